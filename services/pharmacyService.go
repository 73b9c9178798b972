package services

import (
	"context"
	"strings"

	"CampaignClinic/apperrors"
	"CampaignClinic/models"
	"CampaignClinic/rbac"
	"CampaignClinic/utils"

	"gorm.io/gorm"
)

// PrescriptionInput names the medication by formulary id or free text, with
// the same precedence as lab orders. Dosing fields may be left for later.
type PrescriptionInput struct {
	DrugID             *int64       `json:"drug_id"`
	CustomDrugName     string       `json:"custom_drug_name"`
	Dosage             string       `json:"dosage"`
	Frequency          string       `json:"frequency"`
	Duration           string       `json:"duration"`
	Route              models.Route `json:"route"`
	Instructions       string       `json:"instructions"`
	Indication         string       `json:"indication"`
	QuantityPrescribed *int         `json:"quantity_prescribed"`
	RefillsAllowed     int          `json:"refills_allowed"`
}

// PrescriptionDetailsInput is what the pharmacy may fill in or correct.
// Nil fields are left unchanged.
type PrescriptionDetailsInput struct {
	Dosage             *string       `json:"dosage"`
	Frequency          *string       `json:"frequency"`
	Duration           *string       `json:"duration"`
	Route              *models.Route `json:"route"`
	Instructions       *string       `json:"instructions"`
	QuantityPrescribed *int          `json:"quantity_prescribed"`
	PharmacyNotes      *string       `json:"pharmacy_notes"`
}

type DispenseInput struct {
	Quantity *int   `json:"quantity"`
	Notes    string `json:"notes"`
}

type PharmacyService struct {
	*Workflow
}

func NewPharmacyService(w *Workflow) *PharmacyService {
	return &PharmacyService{Workflow: w}
}

func (w *Workflow) addPrescription(ctx context.Context, tx *gorm.DB, c *models.Consultation, in PrescriptionInput) (*models.Prescription, error) {
	choice := models.ResolveCatalogChoice(in.DrugID, in.CustomDrugName)
	drug, err := w.resolveDrug(ctx, tx, choice)
	if err != nil {
		return nil, err
	}

	p := &models.Prescription{
		ConsultationID:     c.ID,
		Dosage:             strings.TrimSpace(in.Dosage),
		Frequency:          strings.TrimSpace(in.Frequency),
		Duration:           strings.TrimSpace(in.Duration),
		Route:              in.Route,
		Instructions:       in.Instructions,
		Indication:         in.Indication,
		QuantityPrescribed: in.QuantityPrescribed,
		RefillsAllowed:     in.RefillsAllowed,
		PharmacyStatus:     models.PharmacyPendingReview,
	}
	if p.Route == "" {
		p.Route = models.RouteOral
	}
	p.SetMedication(choice)
	p.Drug = drug
	p.RefreshPharmacyStatus()
	if err := utils.ValidatePrescription(*p); err != nil {
		return nil, apperrors.Validation(err, in)
	}
	if err := w.prescriptions.WithTx(tx).Create(ctx, p); err != nil {
		return nil, err
	}
	w.metrics.PrescriptionEvent("prescribed")
	return p, nil
}

// CreatePrescription adds a medication to an existing consultation.
func (s *PharmacyService) CreatePrescription(ctx context.Context, actorID, consultationID int64, in PrescriptionInput) (*models.Prescription, error) {
	var p *models.Prescription
	err := s.transact(ctx, func(tx *gorm.DB) error {
		if _, err := s.authorize(ctx, tx, actorID, rbac.CanPrescribe); err != nil {
			return err
		}
		c, err := s.consultations.WithTx(tx).LockByID(ctx, consultationID)
		if err != nil {
			return err
		}
		if c == nil {
			return apperrors.NotFound("consultation", consultationID)
		}
		p, err = s.addPrescription(ctx, tx, c, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateDetails fills in dosing details and recomputes readiness.
func (s *PharmacyService) UpdateDetails(ctx context.Context, actorID, id int64, in PrescriptionDetailsInput) (*models.Prescription, error) {
	var p *models.Prescription
	err := s.transact(ctx, func(tx *gorm.DB) error {
		if _, err := s.authorize(ctx, tx, actorID, rbac.CanDispenseMedications); err != nil {
			return err
		}
		prescriptions := s.prescriptions.WithTx(tx)
		var err error
		p, err = prescriptions.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return apperrors.NotFound("prescription", id)
		}
		if p.PharmacyStatus.Terminal() {
			return apperrors.StateConflict("prescription", string(p.PharmacyStatus), "prescription can no longer be changed")
		}

		setTrimmed(&p.Dosage, in.Dosage)
		setTrimmed(&p.Frequency, in.Frequency)
		setTrimmed(&p.Duration, in.Duration)
		if in.Route != nil {
			p.Route = *in.Route
		}
		if in.Instructions != nil {
			p.Instructions = *in.Instructions
		}
		if in.QuantityPrescribed != nil {
			p.QuantityPrescribed = in.QuantityPrescribed
		}
		if in.PharmacyNotes != nil {
			p.PharmacyNotes = *in.PharmacyNotes
		}
		p.RefreshPharmacyStatus()
		if err := utils.ValidatePrescription(*p); err != nil {
			return apperrors.Validation(err, in)
		}
		return prescriptions.Save(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func setTrimmed(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

// Dispense hands out a ready prescription. The quantity defaults to the
// prescribed quantity.
func (s *PharmacyService) Dispense(ctx context.Context, actorID, id int64, in DispenseInput) (*models.Prescription, error) {
	if in.Quantity != nil && *in.Quantity < 1 {
		return nil, apperrors.Validation(validationError("quantity", "must be no less than 1"), in)
	}
	var p *models.Prescription
	err := s.transact(ctx, func(tx *gorm.DB) error {
		actor, err := s.authorize(ctx, tx, actorID, rbac.CanDispenseMedications)
		if err != nil {
			return err
		}
		prescriptions := s.prescriptions.WithTx(tx)
		p, err = prescriptions.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return apperrors.NotFound("prescription", id)
		}
		if p.PharmacyStatus != models.PharmacyReadyToDispense {
			return apperrors.StateConflict("prescription", string(p.PharmacyStatus),
				"Prescription is not ready to dispense. Please complete dosage, frequency and duration first")
		}

		before := p.PharmacyStatus
		now := s.now()
		p.PharmacyStatus = models.PharmacyDispensed
		p.DispensedByID = &actor.ID
		p.DispensedDate = &now
		p.DispensedQuantity = p.QuantityPrescribed
		if in.Quantity != nil {
			p.DispensedQuantity = in.Quantity
		}
		if notes := strings.TrimSpace(in.Notes); notes != "" {
			p.PharmacyNotes = notes
		}
		if err := prescriptions.Save(ctx, p); err != nil {
			return err
		}
		return s.record(ctx, tx, actor.ID, models.AuditPrescriptionDispensed, "prescription", p.ID, models.Change{
			Before: map[string]interface{}{"pharmacy_status": before},
			After: map[string]interface{}{
				"pharmacy_status":    p.PharmacyStatus,
				"medication":         p.MedicationName(),
				"dispensed_quantity": p.DispensedQuantity,
				"dispensed_date":     now,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.PrescriptionEvent("dispensed")
	s.log.Info().Int64("prescription_id", p.ID).Int64("actor_id", actorID).Msg("prescription dispensed")
	return p, nil
}

// Cancel withdraws a prescription that has not been dispensed.
func (s *PharmacyService) Cancel(ctx context.Context, actorID, id int64, reason string) (*models.Prescription, error) {
	var p *models.Prescription
	err := s.transact(ctx, func(tx *gorm.DB) error {
		actor, err := s.authorize(ctx, tx, actorID, rbac.CanCancelPrescriptions)
		if err != nil {
			return err
		}
		prescriptions := s.prescriptions.WithTx(tx)
		p, err = prescriptions.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return apperrors.NotFound("prescription", id)
		}
		if p.PharmacyStatus.Terminal() {
			return apperrors.StateConflict("prescription", string(p.PharmacyStatus), "prescription can no longer be cancelled")
		}

		before := p.PharmacyStatus
		p.PharmacyStatus = models.PharmacyCancelled
		if reason = strings.TrimSpace(reason); reason != "" {
			p.PharmacyNotes = strings.TrimSpace(p.PharmacyNotes + "\nCancelled: " + reason)
		}
		if err := prescriptions.Save(ctx, p); err != nil {
			return err
		}
		return s.record(ctx, tx, actor.ID, models.AuditPrescriptionCancelled, "prescription", p.ID,
			models.Change{Before: before, After: p.PharmacyStatus, Note: reason})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.PrescriptionEvent("cancelled")
	return p, nil
}

// Queue lists prescriptions by pharmacy status, oldest first.
func (s *PharmacyService) Queue(ctx context.Context, actorID int64, status models.PharmacyStatus) ([]models.Prescription, error) {
	var list []models.Prescription
	err := s.view(ctx, actorID, rbac.CanViewPrescriptions, func(tx *gorm.DB, _ *models.User) error {
		var err error
		list, err = s.prescriptions.WithTx(tx).ListByStatus(ctx, status)
		return err
	})
	return list, err
}

// History lists dispensed prescriptions. A zero dispensedBy lists everyone's.
func (s *PharmacyService) History(ctx context.Context, actorID, dispensedBy int64) ([]models.Prescription, error) {
	var list []models.Prescription
	err := s.view(ctx, actorID, rbac.CanViewPrescriptions, func(tx *gorm.DB, _ *models.User) error {
		var err error
		list, err = s.prescriptions.WithTx(tx).DispensedBy(ctx, dispensedBy)
		return err
	})
	return list, err
}

func (s *PharmacyService) GetByID(ctx context.Context, actorID, id int64) (*models.Prescription, error) {
	var p *models.Prescription
	err := s.view(ctx, actorID, rbac.CanViewPrescriptions, func(tx *gorm.DB, _ *models.User) error {
		var err error
		p, err = s.prescriptions.WithTx(tx).GetByID(ctx, id)
		if err == nil && p == nil {
			err = apperrors.NotFound("prescription", id)
		}
		return err
	})
	return p, err
}
