package repositories

import (
	"context"

	"CampaignClinic/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) WithTx(tx *gorm.DB) *AuditRepository {
	return &AuditRepository{db: tx}
}

func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(entry).Error, "failed to write audit log")
}

// AuditFilter narrows List. Zero values match everything.
type AuditFilter struct {
	Action    string
	ModelName string
	ObjectID  string
	ActorID   int64
	Limit     int
}

func (r *AuditRepository) List(ctx context.Context, f AuditFilter) ([]models.AuditLog, error) {
	q := r.db.WithContext(ctx).Order("timestamp DESC, id DESC")
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if f.ModelName != "" {
		q = q.Where("model_name = ?", f.ModelName)
	}
	if f.ObjectID != "" {
		q = q.Where("object_id = ?", f.ObjectID)
	}
	if f.ActorID != 0 {
		q = q.Where("actor_id = ?", f.ActorID)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var entries []models.AuditLog
	if err := q.Limit(limit).Find(&entries).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list audit logs")
	}
	return entries, nil
}
