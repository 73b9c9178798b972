package repositories

import (
	"context"

	"CampaignClinic/database"
	"CampaignClinic/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LaboratoryRepository struct {
	db *gorm.DB
}

func NewLaboratoryRepository(db *gorm.DB) *LaboratoryRepository {
	return &LaboratoryRepository{db: db}
}

func (r *LaboratoryRepository) WithTx(tx *gorm.DB) *LaboratoryRepository {
	return &LaboratoryRepository{db: tx}
}

func (r *LaboratoryRepository) CreateOrder(ctx context.Context, order *models.LabOrder) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(order).Error; err != nil {
		return errors.Wrap(err, "failed to create lab order")
	}
	return nil
}

func (r *LaboratoryRepository) SaveOrder(ctx context.Context, order *models.LabOrder) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Save(order).Error; err != nil {
		return errors.Wrap(err, "failed to update lab order")
	}
	return nil
}

// GetOrder loads an order with its test, consultation and result.
func (r *LaboratoryRepository) GetOrder(ctx context.Context, id int64) (*models.LabOrder, error) {
	var order models.LabOrder
	err := r.db.WithContext(ctx).
		Preload("LabTest").
		Preload("Consultation").
		Preload("Result").
		First(&order, "id = ?", id).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get lab order")
	}
	return &order, nil
}

// LockOrder loads the order FOR UPDATE along with its test and consultation.
func (r *LaboratoryRepository) LockOrder(ctx context.Context, id int64) (*models.LabOrder, error) {
	var order models.LabOrder
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("LabTest").
		Preload("Consultation").
		First(&order, "id = ?", id).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to lock lab order")
	}
	return &order, nil
}

// ListOrders returns the lab queue, oldest first. An empty status lists all orders.
func (r *LaboratoryRepository) ListOrders(ctx context.Context, status models.LabStatus) ([]models.LabOrder, error) {
	var orders []models.LabOrder
	q := r.db.WithContext(ctx).Preload("LabTest").Preload("Result").Order("ordered_date, id")
	if status != "" {
		q = q.Where("lab_status = ?", status)
	}
	if err := q.Find(&orders).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list lab orders")
	}
	return orders, nil
}

func (r *LaboratoryRepository) GetResultByOrder(ctx context.Context, orderID int64) (*models.LabResult, error) {
	var result models.LabResult
	err := r.db.WithContext(ctx).Where("lab_order_id = ?", orderID).First(&result).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get lab result")
	}
	return &result, nil
}

func (r *LaboratoryRepository) GetResult(ctx context.Context, id int64) (*models.LabResult, error) {
	var result models.LabResult
	err := r.db.WithContext(ctx).Preload("LabOrder").Preload("LabOrder.LabTest").First(&result, "id = ?", id).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get lab result")
	}
	return &result, nil
}

func (r *LaboratoryRepository) LockResult(ctx context.Context, id int64) (*models.LabResult, error) {
	var result models.LabResult
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("LabOrder").
		Preload("LabOrder.LabTest").
		First(&result, "id = ?", id).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to lock lab result")
	}
	return &result, nil
}

// SaveResult inserts or updates result.
func (r *LaboratoryRepository) SaveResult(ctx context.Context, result *models.LabResult) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Save(result).Error; err != nil {
		return errors.Wrap(err, "failed to save lab result")
	}
	return nil
}

// ListCriticalResults returns results that need attention, newest first.
func (r *LaboratoryRepository) ListCriticalResults(ctx context.Context) ([]models.LabResult, error) {
	var results []models.LabResult
	err := r.db.WithContext(ctx).
		Where("is_critical = ? OR interpretation IN ?", true,
			[]models.Interpretation{models.InterpretationCriticalLow, models.InterpretationCriticalHigh}).
		Order("result_date DESC, id DESC").
		Find(&results).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list critical results")
	}
	return results, nil
}
