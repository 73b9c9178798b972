package services

import (
	"context"
	"time"

	"CampaignClinic/apperrors"
	"CampaignClinic/models"
	"CampaignClinic/rbac"
	"CampaignClinic/utils"

	"gorm.io/gorm"
)

// ConsultationInput carries a doctor's notes. Every clinical field is optional.
type ConsultationInput struct {
	ConsultationDate        *time.Time                `json:"consultation_date"`
	ChiefComplaint          string                    `json:"chief_complaint"`
	HistoryOfPresentIllness string                    `json:"history_of_present_illness"`
	PhysicalExamination     string                    `json:"physical_examination"`
	Assessment              string                    `json:"assessment"`
	Diagnosis               string                    `json:"diagnosis"`
	TreatmentPlan           string                    `json:"treatment_plan"`
	Recommendations         string                    `json:"recommendations"`
	FollowUpNotes           string                    `json:"follow_up_notes"`
	ReferralNeeded          bool                      `json:"referral_needed"`
	ReferralTo              string                    `json:"referral_to"`
	ReferralReason          string                    `json:"referral_reason"`
	Status                  models.ConsultationStatus `json:"status"`
	LabOrders               []LabOrderInput           `json:"lab_orders"`
	Prescriptions           []PrescriptionInput       `json:"prescriptions"`
}

func (in ConsultationInput) apply(c *models.Consultation) {
	c.ChiefComplaint = in.ChiefComplaint
	c.HistoryOfPresentIllness = in.HistoryOfPresentIllness
	c.PhysicalExamination = in.PhysicalExamination
	c.Assessment = in.Assessment
	c.Diagnosis = in.Diagnosis
	c.TreatmentPlan = in.TreatmentPlan
	c.Recommendations = in.Recommendations
	c.FollowUpNotes = in.FollowUpNotes
	c.ReferralNeeded = in.ReferralNeeded
	c.ReferralTo = in.ReferralTo
	c.ReferralReason = in.ReferralReason
	if in.Status != "" {
		c.Status = in.Status
	}
	if in.ConsultationDate != nil {
		c.ConsultationDate = *in.ConsultationDate
	}
}

type ConsultationService struct {
	*Workflow
}

func NewConsultationService(w *Workflow) *ConsultationService {
	return &ConsultationService{Workflow: w}
}

// Create records a consultation, with any lab orders and prescriptions
// written alongside it. Completing it advances the patient.
func (s *ConsultationService) Create(ctx context.Context, actorID, patientID int64, in ConsultationInput) (*models.Consultation, error) {
	var id int64
	err := s.transact(ctx, func(tx *gorm.DB) error {
		actor, err := s.authorize(ctx, tx, actorID, rbac.CanConductConsultations)
		if err != nil {
			return err
		}
		if len(in.LabOrders) > 0 && !s.gate.Allowed(actor.Role, rbac.CanOrderLabTests) {
			return s.gate.Require(actor, rbac.CanOrderLabTests)
		}
		if len(in.Prescriptions) > 0 && !s.gate.Allowed(actor.Role, rbac.CanPrescribe) {
			return s.gate.Require(actor, rbac.CanPrescribe)
		}

		patient, err := s.patients.WithTx(tx).LockByID(ctx, patientID)
		if err != nil {
			return err
		}
		if patient == nil {
			return apperrors.NotFound("patient", patientID)
		}

		c := models.Consultation{
			PatientID:        patientID,
			DoctorID:         actor.ID,
			ConsultationDate: s.now(),
			Status:           models.ConsultationInProgress,
		}
		in.apply(&c)
		if err := utils.ValidateConsultation(c); err != nil {
			return apperrors.Validation(err, in)
		}
		if err := s.consultations.WithTx(tx).Create(ctx, &c); err != nil {
			return err
		}
		id = c.ID

		for _, o := range in.LabOrders {
			if _, err := s.addLabOrder(ctx, tx, &c, o); err != nil {
				return err
			}
		}
		for _, p := range in.Prescriptions {
			if _, err := s.addPrescription(ctx, tx, &c, p); err != nil {
				return err
			}
		}

		_, err = s.applyConsultationCompletion(ctx, tx, &c)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidatePatients(ctx)
	return s.consultations.GetByID(ctx, id)
}

// Update edits the consultation notes. Only the consulting doctor or an
// administrator may do so. Nested orders are not touched.
func (s *ConsultationService) Update(ctx context.Context, actorID, id int64, in ConsultationInput) (*models.Consultation, error) {
	err := s.transact(ctx, func(tx *gorm.DB) error {
		actor, err := s.authorize(ctx, tx, actorID, rbac.CanConductConsultations)
		if err != nil {
			return err
		}
		consultations := s.consultations.WithTx(tx)
		c, err := consultations.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if c == nil {
			return apperrors.NotFound("consultation", id)
		}
		if err := s.gate.RequireOwnerOrAdmin(actor, c.DoctorID, "consultation"); err != nil {
			return err
		}

		in.apply(c)
		if err := utils.ValidateConsultation(*c); err != nil {
			return apperrors.Validation(err, in)
		}
		if err := consultations.Save(ctx, c); err != nil {
			return err
		}
		_, err = s.applyConsultationCompletion(ctx, tx, c)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidatePatients(ctx)
	return s.consultations.GetByID(ctx, id)
}

func (s *ConsultationService) GetByID(ctx context.Context, actorID, id int64) (*models.Consultation, error) {
	var c *models.Consultation
	err := s.view(ctx, actorID, rbac.CanViewConsultations, func(tx *gorm.DB, _ *models.User) error {
		var err error
		c, err = s.consultations.WithTx(tx).GetByID(ctx, id)
		if err == nil && c == nil {
			err = apperrors.NotFound("consultation", id)
		}
		return err
	})
	return c, err
}
