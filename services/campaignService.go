package services

import (
	"context"
	"strings"
	"time"

	"CampaignClinic/apperrors"
	"CampaignClinic/database"
	"CampaignClinic/models"
	"CampaignClinic/rbac"
	"CampaignClinic/repositories"
	"CampaignClinic/utils"

	"gorm.io/gorm"
)

type CampaignInput struct {
	Name        string                `json:"name"`
	Description string                `json:"description"`
	StartDate   *time.Time            `json:"start_date"`
	EndDate     *time.Time            `json:"end_date"`
	HealthArea  string                `json:"health_area"`
	ConsentText string                `json:"consent_text"`
	Status      models.CampaignStatus `json:"status"`
	MaxPatients *int                  `json:"max_patients"`
}

func (in CampaignInput) apply(c *models.Campaign) {
	c.Name = strings.TrimSpace(in.Name)
	c.Description = in.Description
	c.StartDate = in.StartDate
	c.EndDate = in.EndDate
	c.HealthArea = strings.TrimSpace(in.HealthArea)
	c.ConsentText = in.ConsentText
	c.MaxPatients = in.MaxPatients
	if in.Status != "" {
		c.Status = in.Status
	}
}

// CampaignEnrollment is a campaign with the number of patients registered to it.
type CampaignEnrollment struct {
	Campaign models.Campaign `json:"campaign"`
	Patients int64           `json:"patients"`
}

// CampaignService manages campaigns and the lab test and drug catalogs.
type CampaignService struct {
	*Workflow
}

func NewCampaignService(w *Workflow) *CampaignService {
	return &CampaignService{Workflow: w}
}

func (s *CampaignService) CreateCampaign(ctx context.Context, actorID int64, in CampaignInput) (*models.Campaign, error) {
	c := &models.Campaign{Status: models.CampaignDraft}
	in.apply(c)
	err := s.transact(ctx, func(tx *gorm.DB) error {
		actor, err := s.authorize(ctx, tx, actorID, rbac.CanManageCampaigns)
		if err != nil {
			return err
		}
		c.CreatedByID = &actor.ID
		if err := utils.ValidateCampaign(*c); err != nil {
			return apperrors.Validation(err, in)
		}
		if err := s.catalog.WithTx(tx).CreateCampaign(ctx, c); err != nil {
			if database.IsDuplicateKey(err) {
				return apperrors.Validation(validationError("name", "a campaign with this name already exists"), in)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Int64("campaign_id", c.ID).Str("name", c.Name).Msg("campaign created")
	return c, nil
}

func (s *CampaignService) UpdateCampaign(ctx context.Context, actorID, id int64, in CampaignInput) (*models.Campaign, error) {
	var c *models.Campaign
	err := s.transact(ctx, func(tx *gorm.DB) error {
		if _, err := s.authorize(ctx, tx, actorID, rbac.CanManageCampaigns); err != nil {
			return err
		}
		catalog := s.catalog.WithTx(tx)
		var err error
		c, err = catalog.GetCampaign(ctx, id)
		if err != nil {
			return err
		}
		if c == nil {
			return apperrors.NotFound("campaign", id)
		}
		in.apply(c)
		if err := utils.ValidateCampaign(*c); err != nil {
			return apperrors.Validation(err, in)
		}
		if err := catalog.SaveCampaign(ctx, c); err != nil {
			if database.IsDuplicateKey(err) {
				return apperrors.Validation(validationError("name", "a campaign with this name already exists"), in)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CampaignService) ListCampaigns(ctx context.Context, actorID int64) ([]models.Campaign, error) {
	var list []models.Campaign
	err := s.view(ctx, actorID, rbac.CanViewDemographics, func(tx *gorm.DB, _ *models.User) error {
		var err error
		list, err = s.catalog.WithTx(tx).ListCampaigns(ctx)
		return err
	})
	return list, err
}

// Enrollment reports how many patients a campaign has registered.
func (s *CampaignService) Enrollment(ctx context.Context, actorID, id int64) (*CampaignEnrollment, error) {
	var out *CampaignEnrollment
	err := s.view(ctx, actorID, rbac.CanViewPatientReports, func(tx *gorm.DB, _ *models.User) error {
		catalog := s.catalog.WithTx(tx)
		c, err := catalog.GetCampaign(ctx, id)
		if err != nil {
			return err
		}
		if c == nil {
			return apperrors.NotFound("campaign", id)
		}
		n, err := catalog.CountCampaignPatients(ctx, id)
		if err != nil {
			return err
		}
		out = &CampaignEnrollment{Campaign: *c, Patients: n}
		return nil
	})
	return out, err
}

func (s *CampaignService) CreateLabTest(ctx context.Context, actorID int64, t models.LabTest) (*models.LabTest, error) {
	t.ID = 0
	t.Code = strings.ToUpper(strings.TrimSpace(t.Code))
	t.IsActive = true
	err := s.transact(ctx, func(tx *gorm.DB) error {
		if _, err := s.authorize(ctx, tx, actorID, rbac.CanManageCampaigns); err != nil {
			return err
		}
		if err := utils.ValidateLabTest(t); err != nil {
			return apperrors.Validation(err, t)
		}
		err := s.catalog.WithTx(tx).CreateLabTest(ctx, &t)
		if database.IsDuplicateKey(err) {
			return apperrors.Validation(validationError("code", "a lab test with this code already exists"), t)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListLabTests lists the active catalog; inactive entries are included on request.
func (s *CampaignService) ListLabTests(ctx context.Context, actorID int64, includeInactive bool) ([]models.LabTest, error) {
	var list []models.LabTest
	err := s.view(ctx, actorID, rbac.CanViewDemographics, func(tx *gorm.DB, _ *models.User) error {
		var err error
		list, err = s.catalog.WithTx(tx).ListLabTests(ctx, !includeInactive)
		return err
	})
	return list, err
}

func (s *CampaignService) CreateDrug(ctx context.Context, actorID int64, d models.Drug) (*models.Drug, error) {
	d.ID = 0
	d.Name = strings.TrimSpace(d.Name)
	d.IsActive = true
	err := s.transact(ctx, func(tx *gorm.DB) error {
		if _, err := s.authorize(ctx, tx, actorID, rbac.CanManageCampaigns); err != nil {
			return err
		}
		if err := utils.ValidateDrug(d); err != nil {
			return apperrors.Validation(err, d)
		}
		return s.catalog.WithTx(tx).CreateDrug(ctx, &d)
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *CampaignService) ListDrugs(ctx context.Context, actorID int64, includeInactive bool) ([]models.Drug, error) {
	var list []models.Drug
	err := s.view(ctx, actorID, rbac.CanViewDemographics, func(tx *gorm.DB, _ *models.User) error {
		var err error
		list, err = s.catalog.WithTx(tx).ListDrugs(ctx, !includeInactive)
		return err
	})
	return list, err
}

// AuditService exposes the audit trail to administrators.
type AuditService struct {
	*Workflow
}

func NewAuditService(w *Workflow) *AuditService {
	return &AuditService{Workflow: w}
}

func (s *AuditService) List(ctx context.Context, actorID int64, f repositories.AuditFilter) ([]models.AuditLog, error) {
	var entries []models.AuditLog
	err := s.view(ctx, actorID, rbac.CanViewAuditLog, func(tx *gorm.DB, _ *models.User) error {
		var err error
		entries, err = s.audit.WithTx(tx).List(ctx, f)
		return err
	})
	return entries, err
}
