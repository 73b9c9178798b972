package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CampaignClinic/apperrors"
	"CampaignClinic/cache"
	"CampaignClinic/metrics"
	"CampaignClinic/models"
	"CampaignClinic/rbac"
	"CampaignClinic/repositories"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Workflow holds what every clinical operation shares: the database, the
// access gate, the repositories and the patient status rules.
type Workflow struct {
	db            *gorm.DB
	gate          *rbac.Gate
	metrics       *metrics.Metrics
	log           zerolog.Logger
	now           func() time.Time
	users         *repositories.UserRepository
	patients      *repositories.PatientRepository
	consultations *repositories.ConsultationRepository
	labs          *repositories.LaboratoryRepository
	prescriptions *repositories.PrescriptionRepository
	catalog       *repositories.CatalogRepository
	audit         *repositories.AuditRepository
}

func NewWorkflow(db *gorm.DB, gate *rbac.Gate, c *cache.Cache, m *metrics.Metrics, log zerolog.Logger) *Workflow {
	return &Workflow{
		db:            db,
		gate:          gate,
		metrics:       m,
		log:           log,
		now:           time.Now,
		users:         repositories.NewUserRepository(db),
		patients:      repositories.NewPatientRepository(db, c, log),
		consultations: repositories.NewConsultationRepository(db),
		labs:          repositories.NewLaboratoryRepository(db),
		prescriptions: repositories.NewPrescriptionRepository(db),
		catalog:       repositories.NewCatalogRepository(db),
		audit:         repositories.NewAuditRepository(db),
	}
}

// SetClock replaces the time source.
func (w *Workflow) SetClock(now func() time.Time) {
	w.now = now
}

func (w *Workflow) transact(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return w.db.WithContext(ctx).Transaction(fn)
}

// authorize reloads the actor inside tx and checks c against its current role.
func (w *Workflow) authorize(ctx context.Context, tx *gorm.DB, actorID int64, c rbac.Capability) (*models.User, error) {
	actor, err := w.users.WithTx(tx).GetByID(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := w.gate.Require(actor, c); err != nil {
		return nil, err
	}
	return actor, nil
}

// view runs a read-only operation after checking c.
func (w *Workflow) view(ctx context.Context, actorID int64, c rbac.Capability, fn func(tx *gorm.DB, actor *models.User) error) error {
	return w.transact(ctx, func(tx *gorm.DB) error {
		actor, err := w.authorize(ctx, tx, actorID, c)
		if err != nil {
			return err
		}
		return fn(tx, actor)
	})
}

func (w *Workflow) record(ctx context.Context, tx *gorm.DB, actorID int64, action, model string, objectID interface{}, change models.Change) error {
	entry, err := models.NewAuditLog(actorID, action, model, fmt.Sprint(objectID), change)
	if err != nil {
		return err
	}
	return w.audit.WithTx(tx).Create(ctx, entry)
}

// advancePatient moves the patient to next when that is a forward step.
// It reports whether the status changed.
func (w *Workflow) advancePatient(ctx context.Context, tx *gorm.DB, patientID int64, next models.PatientStatus) (bool, error) {
	patients := w.patients.WithTx(tx)
	patient, err := patients.LockByID(ctx, patientID)
	if err != nil {
		return false, err
	}
	if patient == nil {
		return false, apperrors.NotFound("patient", patientID)
	}
	if !patient.CanAdvanceTo(next) {
		w.log.Debug().Str("patient_id", patient.PatientID).Str("status", string(patient.Status)).
			Str("requested", string(next)).Msg("patient status not advanced")
		return false, nil
	}
	if err := patients.UpdateStatus(ctx, patient.ID, next); err != nil {
		return false, err
	}
	w.log.Info().Str("patient_id", patient.PatientID).Str("from", string(patient.Status)).
		Str("to", string(next)).Msg("patient status advanced")
	w.metrics.PatientTransition(string(next))
	return true, nil
}

// applyConsultationCompletion advances the patient once a consultation is
// completed: to lab_ordered when it has lab orders, otherwise to consultation_done.
// Orders resolved while the consultation was still open are counted right away.
func (w *Workflow) applyConsultationCompletion(ctx context.Context, tx *gorm.DB, c *models.Consultation) (bool, error) {
	if c.Status != models.ConsultationCompleted {
		return false, nil
	}
	n, err := w.consultations.WithTx(tx).CountLabOrders(ctx, c.ID)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return w.advancePatient(ctx, tx, c.PatientID, models.PatientConsultationDone)
	}
	ordered, err := w.advancePatient(ctx, tx, c.PatientID, models.PatientLabOrdered)
	if err != nil {
		return false, err
	}
	completed, err := w.applyLabCompletion(ctx, tx, c.PatientID)
	if err != nil {
		return false, err
	}
	return ordered || completed, nil
}

// applyLabCompletion moves a lab_ordered patient to lab_completed once every
// order is resolved and at least one was completed.
func (w *Workflow) applyLabCompletion(ctx context.Context, tx *gorm.DB, patientID int64) (bool, error) {
	tally, err := w.consultations.WithTx(tx).TallyLabOrders(ctx, patientID)
	if err != nil {
		return false, err
	}
	if !tally.Resolved() || tally.Completed == 0 {
		return false, nil
	}
	patient, err := w.patients.WithTx(tx).LockByID(ctx, patientID)
	if err != nil {
		return false, err
	}
	if patient == nil || patient.Status != models.PatientLabOrdered {
		return false, nil
	}
	return w.advancePatient(ctx, tx, patientID, models.PatientLabCompleted)
}

func (w *Workflow) invalidatePatients(ctx context.Context) {
	w.patients.InvalidateCache(ctx)
}

// resolveLabTest checks a catalog reference and returns the loaded test.
func (w *Workflow) resolveLabTest(ctx context.Context, tx *gorm.DB, choice models.CatalogChoice) (*models.LabTest, error) {
	id, ok := choice.CatalogID()
	if !ok {
		return nil, nil
	}
	test, err := w.catalog.WithTx(tx).GetLabTest(ctx, id)
	if err != nil {
		return nil, err
	}
	if test == nil {
		return nil, apperrors.NotFound("lab test", id)
	}
	return test, nil
}

func (w *Workflow) resolveDrug(ctx context.Context, tx *gorm.DB, choice models.CatalogChoice) (*models.Drug, error) {
	id, ok := choice.CatalogID()
	if !ok {
		return nil, nil
	}
	drug, err := w.catalog.WithTx(tx).GetDrug(ctx, id)
	if err != nil {
		return nil, err
	}
	if drug == nil {
		return nil, apperrors.NotFound("drug", id)
	}
	return drug, nil
}

func validationError(field, message string) error {
	return validation.Errors{field: errors.New(message)}
}
