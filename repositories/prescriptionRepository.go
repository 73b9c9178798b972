package repositories

import (
	"context"

	"CampaignClinic/database"
	"CampaignClinic/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PrescriptionRepository struct {
	db *gorm.DB
}

func NewPrescriptionRepository(db *gorm.DB) *PrescriptionRepository {
	return &PrescriptionRepository{db: db}
}

func (r *PrescriptionRepository) WithTx(tx *gorm.DB) *PrescriptionRepository {
	return &PrescriptionRepository{db: tx}
}

func (r *PrescriptionRepository) Create(ctx context.Context, p *models.Prescription) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(p).Error; err != nil {
		return errors.Wrap(err, "failed to create prescription")
	}
	return nil
}

func (r *PrescriptionRepository) Save(ctx context.Context, p *models.Prescription) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Save(p).Error; err != nil {
		return errors.Wrap(err, "failed to update prescription")
	}
	return nil
}

func (r *PrescriptionRepository) GetByID(ctx context.Context, id int64) (*models.Prescription, error) {
	var p models.Prescription
	err := r.db.WithContext(ctx).Preload("Drug").Preload("Consultation").First(&p, "id = ?", id).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get prescription")
	}
	return &p, nil
}

func (r *PrescriptionRepository) LockByID(ctx context.Context, id int64) (*models.Prescription, error) {
	var p models.Prescription
	err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Preload("Drug").First(&p, "id = ?", id).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to lock prescription")
	}
	return &p, nil
}

// ListByStatus returns the pharmacy queue, oldest first. An empty status lists all.
func (r *PrescriptionRepository) ListByStatus(ctx context.Context, status models.PharmacyStatus) ([]models.Prescription, error) {
	var list []models.Prescription
	q := r.db.WithContext(ctx).Preload("Drug").Order("created_at, id")
	if status != "" {
		q = q.Where("pharmacy_status = ?", status)
	}
	if err := q.Find(&list).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list prescriptions")
	}
	return list, nil
}

// DispensedBy returns the dispensing history, newest first. A zero userID lists everyone's.
func (r *PrescriptionRepository) DispensedBy(ctx context.Context, userID int64) ([]models.Prescription, error) {
	var list []models.Prescription
	q := r.db.WithContext(ctx).Preload("Drug").
		Where("pharmacy_status = ?", models.PharmacyDispensed).
		Order("dispensed_date DESC, id DESC")
	if userID != 0 {
		q = q.Where("dispensed_by_id = ?", userID)
	}
	if err := q.Find(&list).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list dispensed prescriptions")
	}
	return list, nil
}
