package repositories

import (
	"context"

	"CampaignClinic/database"
	"CampaignClinic/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConsultationRepository struct {
	db *gorm.DB
}

func NewConsultationRepository(db *gorm.DB) *ConsultationRepository {
	return &ConsultationRepository{db: db}
}

func (r *ConsultationRepository) WithTx(tx *gorm.DB) *ConsultationRepository {
	return &ConsultationRepository{db: tx}
}

func (r *ConsultationRepository) Create(ctx context.Context, c *models.Consultation) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(c).Error; err != nil {
		return errors.Wrap(err, "failed to create consultation")
	}
	return nil
}

func (r *ConsultationRepository) Save(ctx context.Context, c *models.Consultation) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Save(c).Error; err != nil {
		return errors.Wrap(err, "failed to update consultation")
	}
	return nil
}

// GetByID loads the consultation with its orders and prescriptions.
func (r *ConsultationRepository) GetByID(ctx context.Context, id int64) (*models.Consultation, error) {
	var c models.Consultation
	err := r.db.WithContext(ctx).
		Preload("LabOrders", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("LabOrders.LabTest").
		Preload("LabOrders.Result").
		Preload("Prescriptions", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Prescriptions.Drug").
		First(&c, "id = ?", id).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get consultation")
	}
	return &c, nil
}

func (r *ConsultationRepository) LockByID(ctx context.Context, id int64) (*models.Consultation, error) {
	var c models.Consultation
	err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&c, "id = ?", id).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to lock consultation")
	}
	return &c, nil
}

func (r *ConsultationRepository) ListByPatient(ctx context.Context, patientID int64) ([]models.Consultation, error) {
	var list []models.Consultation
	err := r.db.WithContext(ctx).Where("patient_id = ?", patientID).Order("consultation_date DESC, id DESC").Find(&list).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list consultations")
	}
	return list, nil
}

func (r *ConsultationRepository) CountLabOrders(ctx context.Context, consultationID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.LabOrder{}).Where("consultation_id = ?", consultationID).Count(&n).Error
	return n, errors.Wrap(err, "failed to count lab orders")
}

// LabOrderTally counts a patient's lab orders by status across all consultations.
type LabOrderTally struct {
	Ordered   int64
	Completed int64
	Cancelled int64
}

// Resolved is true when nothing is still awaiting a result.
func (t LabOrderTally) Resolved() bool {
	return t.Ordered == 0
}

func (r *ConsultationRepository) TallyLabOrders(ctx context.Context, patientID int64) (LabOrderTally, error) {
	type row struct {
		LabStatus models.LabStatus
		N         int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&models.LabOrder{}).
		Select("lab_orders.lab_status AS lab_status, COUNT(*) AS n").
		Joins("JOIN consultations ON consultations.id = lab_orders.consultation_id").
		Where("consultations.patient_id = ?", patientID).
		Group("lab_orders.lab_status").
		Scan(&rows).Error
	if err != nil {
		return LabOrderTally{}, errors.Wrap(err, "failed to tally lab orders")
	}

	var t LabOrderTally
	for _, rw := range rows {
		switch rw.LabStatus {
		case models.LabOrdered:
			t.Ordered = rw.N
		case models.LabCompleted:
			t.Completed = rw.N
		case models.LabCancelled:
			t.Cancelled = rw.N
		}
	}
	return t, nil
}
