package services

import (
	"context"
	"strings"
	"time"

	"CampaignClinic/apperrors"
	"CampaignClinic/models"
	"CampaignClinic/rbac"
	"CampaignClinic/utils"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gorm.io/gorm"
)

// LabOrderInput names the test by catalog id or free text. When both are
// given the catalog wins; when neither is, a placeholder is shown.
type LabOrderInput struct {
	LabTestID          *int64         `json:"lab_test_id"`
	CustomTestName     string         `json:"custom_test_name"`
	Urgency            models.Urgency `json:"urgency"`
	ClinicalIndication string         `json:"clinical_indication"`
	Notes              string         `json:"notes"`
}

type LabResultInput struct {
	ResultValue        string                `json:"result_value"`
	ResultUnit         string                `json:"result_unit"`
	ReferenceRange     string                `json:"reference_range"`
	Interpretation     models.Interpretation `json:"interpretation"`
	TechnicianNotes    string                `json:"technician_notes"`
	ClinicalConclusion string                `json:"clinical_conclusion"`
	SampleQuality      models.SampleQuality  `json:"sample_quality"`
	TestMethod         string                `json:"test_method"`
	IsCritical         bool                  `json:"is_critical"`
}

func (in LabResultInput) apply(r *models.LabResult) {
	r.ResultValue = strings.TrimSpace(in.ResultValue)
	r.ResultUnit = strings.TrimSpace(in.ResultUnit)
	r.ReferenceRange = strings.TrimSpace(in.ReferenceRange)
	r.Interpretation = in.Interpretation
	r.TechnicianNotes = in.TechnicianNotes
	r.ClinicalConclusion = in.ClinicalConclusion
	r.SampleQuality = in.SampleQuality
	if r.SampleQuality == "" {
		r.SampleQuality = models.SampleGood
	}
	r.TestMethod = in.TestMethod
	r.IsCritical = in.IsCritical
}

// NotifyInput records who was told about a critical result.
type NotifyInput struct {
	NotifiedTo string     `json:"notified_to"`
	NotifiedAt *time.Time `json:"notified_at"`
}

type LabService struct {
	*Workflow
	alerts utils.AlertSender
}

// NewLabService builds the service; alerts may be nil to disable email.
func NewLabService(w *Workflow, alerts utils.AlertSender) *LabService {
	return &LabService{Workflow: w, alerts: alerts}
}

func (w *Workflow) addLabOrder(ctx context.Context, tx *gorm.DB, c *models.Consultation, in LabOrderInput) (*models.LabOrder, error) {
	choice := models.ResolveCatalogChoice(in.LabTestID, in.CustomTestName)
	test, err := w.resolveLabTest(ctx, tx, choice)
	if err != nil {
		return nil, err
	}

	order := &models.LabOrder{
		ConsultationID:     c.ID,
		OrderedDate:        w.now(),
		Urgency:            in.Urgency,
		ClinicalIndication: in.ClinicalIndication,
		Notes:              in.Notes,
		LabStatus:          models.LabOrdered,
	}
	if order.Urgency == "" {
		order.Urgency = models.UrgencyRoutine
	}
	order.SetTest(choice)
	order.LabTest = test
	if err := utils.ValidateLabOrder(*order); err != nil {
		return nil, apperrors.Validation(err, in)
	}
	if err := w.labs.WithTx(tx).CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	w.metrics.LabOrderEvent("ordered")
	return order, nil
}

// CreateLabOrder adds a test to an existing consultation.
func (s *LabService) CreateLabOrder(ctx context.Context, actorID, consultationID int64, in LabOrderInput) (*models.LabOrder, error) {
	var order *models.LabOrder
	err := s.transact(ctx, func(tx *gorm.DB) error {
		if _, err := s.authorize(ctx, tx, actorID, rbac.CanOrderLabTests); err != nil {
			return err
		}
		c, err := s.consultations.WithTx(tx).LockByID(ctx, consultationID)
		if err != nil {
			return err
		}
		if c == nil {
			return apperrors.NotFound("consultation", consultationID)
		}
		order, err = s.addLabOrder(ctx, tx, c, in)
		if err != nil {
			return err
		}
		_, err = s.applyConsultationCompletion(ctx, tx, c)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidatePatients(ctx)
	return order, nil
}

// CancelLabOrder withdraws an order that has no result yet.
func (s *LabService) CancelLabOrder(ctx context.Context, actorID, orderID int64, reason string) (*models.LabOrder, error) {
	var order *models.LabOrder
	err := s.transact(ctx, func(tx *gorm.DB) error {
		if _, err := s.authorize(ctx, tx, actorID, rbac.CanOrderLabTests); err != nil {
			return err
		}
		labs := s.labs.WithTx(tx)
		var err error
		order, err = labs.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return apperrors.NotFound("lab order", orderID)
		}
		if order.LabStatus != models.LabOrdered {
			return apperrors.StateConflict("lab order", string(order.LabStatus), "only ordered lab tests can be cancelled")
		}

		order.LabStatus = models.LabCancelled
		if reason = strings.TrimSpace(reason); reason != "" {
			order.Notes = strings.TrimSpace(order.Notes + "\nCancelled: " + reason)
		}
		if err := labs.SaveOrder(ctx, order); err != nil {
			return err
		}
		if err := s.record(ctx, tx, actorID, models.AuditLabOrderCancelled, "lab_order", order.ID,
			models.Change{Before: models.LabOrdered, After: models.LabCancelled, Note: reason}); err != nil {
			return err
		}
		s.metrics.LabOrderEvent("cancelled")
		_, err = s.applyLabCompletion(ctx, tx, order.Consultation.PatientID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidatePatients(ctx)
	return order, nil
}

// CompleteLabOrder enters the result for an ordered test and closes the
// order. A critical result alerts the ordering doctor without blocking.
func (s *LabService) CompleteLabOrder(ctx context.Context, actorID, orderID int64, in LabResultInput) (*models.LabResult, error) {
	var (
		result *models.LabResult
		alert  *utils.CriticalResultAlert
	)
	err := s.transact(ctx, func(tx *gorm.DB) error {
		actor, err := s.authorize(ctx, tx, actorID, rbac.CanEnterLabResults)
		if err != nil {
			return err
		}
		labs := s.labs.WithTx(tx)
		order, err := labs.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return apperrors.NotFound("lab order", orderID)
		}
		if order.LabStatus != models.LabOrdered {
			return apperrors.StateConflict("lab order", string(order.LabStatus), "results can only be entered for ordered lab tests")
		}

		result, err = labs.GetResultByOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		if result == nil {
			result = &models.LabResult{LabOrderID: order.ID}
		}
		in.apply(result)
		result.ApplyCatalogDefaults(order.LabTest)
		result.TechnicianID = actor.ID
		result.ResultDate = s.now()
		if err := utils.ValidateLabResult(*result); err != nil {
			return apperrors.Validation(err, in)
		}
		if err := labs.SaveResult(ctx, result); err != nil {
			return err
		}

		order.LabStatus = models.LabCompleted
		if err := labs.SaveOrder(ctx, order); err != nil {
			return err
		}
		s.metrics.LabOrderEvent("completed")

		if result.NeedsAttention() {
			alert, err = s.buildAlert(ctx, tx, order, result)
			if err != nil {
				return err
			}
		}
		_, err = s.applyLabCompletion(ctx, tx, order.Consultation.PatientID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidatePatients(ctx)
	if alert != nil {
		s.sendAlert(*alert)
	}
	return result, nil
}

// UpdateLabResult lets the entering technician or an administrator correct a result.
func (s *LabService) UpdateLabResult(ctx context.Context, actorID, resultID int64, in LabResultInput) (*models.LabResult, error) {
	var (
		result *models.LabResult
		alert  *utils.CriticalResultAlert
	)
	err := s.transact(ctx, func(tx *gorm.DB) error {
		actor, err := s.authorize(ctx, tx, actorID, rbac.CanEnterLabResults)
		if err != nil {
			return err
		}
		labs := s.labs.WithTx(tx)
		result, err = labs.LockResult(ctx, resultID)
		if err != nil {
			return err
		}
		if result == nil {
			return apperrors.NotFound("lab result", resultID)
		}
		if err := s.gate.RequireOwnerOrAdmin(actor, result.TechnicianID, "lab result"); err != nil {
			return err
		}

		wasCritical := result.NeedsAttention()
		in.apply(result)
		if result.LabOrder != nil {
			result.ApplyCatalogDefaults(result.LabOrder.LabTest)
		}
		if err := utils.ValidateLabResult(*result); err != nil {
			return apperrors.Validation(err, in)
		}
		if err := labs.SaveResult(ctx, result); err != nil {
			return err
		}
		if result.NeedsAttention() && !wasCritical {
			order, err := labs.GetOrder(ctx, result.LabOrderID)
			if err != nil {
				return err
			}
			alert, err = s.buildAlert(ctx, tx, order, result)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if alert != nil {
		s.sendAlert(*alert)
	}
	return result, nil
}

// VerifyLabResult records a second technician's sign-off.
func (s *LabService) VerifyLabResult(ctx context.Context, actorID, resultID int64) (*models.LabResult, error) {
	var result *models.LabResult
	err := s.transact(ctx, func(tx *gorm.DB) error {
		actor, err := s.authorize(ctx, tx, actorID, rbac.CanVerifyLabResults)
		if err != nil {
			return err
		}
		labs := s.labs.WithTx(tx)
		result, err = labs.LockResult(ctx, resultID)
		if err != nil {
			return err
		}
		if result == nil {
			return apperrors.NotFound("lab result", resultID)
		}
		if result.IsVerified() {
			return apperrors.StateConflict("lab result", "verified", "result has already been verified")
		}
		now := s.now()
		result.VerifiedByID = &actor.ID
		result.VerifiedAt = &now
		if err := labs.SaveResult(ctx, result); err != nil {
			return err
		}
		return s.record(ctx, tx, actor.ID, models.AuditLabResultVerified, "lab_result", result.ID,
			models.Change{After: map[string]interface{}{"verified_by_id": actor.ID, "verified_at": now}})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// NotifyCriticalResult records that a clinician was told about a result.
// It can be repeated and never gates further work.
func (s *LabService) NotifyCriticalResult(ctx context.Context, actorID, resultID int64, in NotifyInput) (*models.LabResult, error) {
	if err := (validation.Errors{
		"notified_to": validation.Validate(strings.TrimSpace(in.NotifiedTo), validation.Required, validation.Length(1, 200)),
	}).Filter(); err != nil {
		return nil, apperrors.Validation(err, in)
	}
	var result *models.LabResult
	err := s.transact(ctx, func(tx *gorm.DB) error {
		actor, err := s.authorize(ctx, tx, actorID, rbac.CanEnterLabResults)
		if err != nil {
			return err
		}
		labs := s.labs.WithTx(tx)
		result, err = labs.LockResult(ctx, resultID)
		if err != nil {
			return err
		}
		if result == nil {
			return apperrors.NotFound("lab result", resultID)
		}
		at := s.now()
		if in.NotifiedAt != nil {
			at = *in.NotifiedAt
		}
		before := result.CriticalNotified
		result.CriticalNotified = true
		result.CriticalNotifiedAt = &at
		result.CriticalNotifiedByID = &actor.ID
		result.CriticalNotifiedTo = strings.TrimSpace(in.NotifiedTo)
		if err := labs.SaveResult(ctx, result); err != nil {
			return err
		}
		return s.record(ctx, tx, actor.ID, models.AuditCriticalNotified, "lab_result", result.ID, models.Change{
			Before: map[string]interface{}{"critical_notified": before},
			After:  map[string]interface{}{"critical_notified": true, "notified_to": result.CriticalNotifiedTo, "notified_at": at},
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *LabService) buildAlert(ctx context.Context, tx *gorm.DB, order *models.LabOrder, result *models.LabResult) (*utils.CriticalResultAlert, error) {
	if order.Consultation == nil {
		return nil, nil
	}
	doctor, err := s.users.WithTx(tx).GetByID(ctx, order.Consultation.DoctorID)
	if err != nil {
		return nil, err
	}
	patient, err := s.patients.WithTx(tx).GetByID(ctx, order.Consultation.PatientID)
	if err != nil {
		return nil, err
	}
	alert := &utils.CriticalResultAlert{
		TestName:       order.TestName(),
		ResultValue:    result.ResultValue,
		ResultUnit:     result.ResultUnit,
		Interpretation: string(result.Interpretation),
	}
	if doctor != nil {
		alert.DoctorEmail = doctor.Email
		alert.DoctorName = doctor.FullName()
	}
	if patient != nil {
		alert.PatientID = patient.PatientID
		alert.PatientName = patient.FullName()
	}
	return alert, nil
}

// sendAlert is best effort: failures are logged and counted only.
func (s *LabService) sendAlert(alert utils.CriticalResultAlert) {
	s.metrics.CriticalResult()
	s.log.Warn().Str("patient_id", alert.PatientID).Str("test", alert.TestName).
		Str("value", alert.ResultValue).Msg("critical lab result entered")
	if s.alerts == nil {
		return
	}
	if err := s.alerts.SendCriticalResult(alert); err != nil {
		s.log.Warn().Err(err).Str("patient_id", alert.PatientID).Msg("failed to send critical result alert")
	}
}

// Queue lists lab orders by status, oldest first.
func (s *LabService) Queue(ctx context.Context, actorID int64, status models.LabStatus) ([]models.LabOrder, error) {
	var list []models.LabOrder
	err := s.view(ctx, actorID, rbac.CanViewLabResults, func(tx *gorm.DB, _ *models.User) error {
		var err error
		list, err = s.labs.WithTx(tx).ListOrders(ctx, status)
		return err
	})
	return list, err
}

func (s *LabService) GetOrder(ctx context.Context, actorID, id int64) (*models.LabOrder, error) {
	var order *models.LabOrder
	err := s.view(ctx, actorID, rbac.CanViewLabResults, func(tx *gorm.DB, _ *models.User) error {
		var err error
		order, err = s.labs.WithTx(tx).GetOrder(ctx, id)
		if err == nil && order == nil {
			err = apperrors.NotFound("lab order", id)
		}
		return err
	})
	return order, err
}

func (s *LabService) GetResult(ctx context.Context, actorID, id int64) (*models.LabResult, error) {
	var result *models.LabResult
	err := s.view(ctx, actorID, rbac.CanViewLabResults, func(tx *gorm.DB, _ *models.User) error {
		var err error
		result, err = s.labs.WithTx(tx).GetResult(ctx, id)
		if err == nil && result == nil {
			err = apperrors.NotFound("lab result", id)
		}
		return err
	})
	return result, err
}

// CriticalResults lists results that need attention.
func (s *LabService) CriticalResults(ctx context.Context, actorID int64) ([]models.LabResult, error) {
	var list []models.LabResult
	err := s.view(ctx, actorID, rbac.CanViewLabResults, func(tx *gorm.DB, _ *models.User) error {
		var err error
		list, err = s.labs.WithTx(tx).ListCriticalResults(ctx)
		return err
	})
	return list, err
}
