package repositories

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"CampaignClinic/cache"
	"CampaignClinic/database"
	"CampaignClinic/models"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	PatientCacheExpiry = 10 * time.Minute
	patientsCacheAll   = "all"
)

type PatientRepository struct {
	db    *gorm.DB
	cache *cache.Cache
	log   zerolog.Logger
}

func NewPatientRepository(db *gorm.DB, cache *cache.Cache, log zerolog.Logger) *PatientRepository {
	return &PatientRepository{db: db, cache: cache, log: log}
}

func (r *PatientRepository) WithTx(tx *gorm.DB) *PatientRepository {
	return &PatientRepository{db: tx, cache: r.cache, log: r.log}
}

func (r *PatientRepository) Create(ctx context.Context, patient *models.Patient) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(patient).Error; err != nil {
		return errors.Wrap(err, "failed to create patient")
	}
	return nil
}

// Save writes the patient's columns.
func (r *PatientRepository) Save(ctx context.Context, patient *models.Patient) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Save(patient).Error; err != nil {
		return errors.Wrap(err, "failed to update patient")
	}
	return nil
}

// UpdateStatus writes only the status column.
func (r *PatientRepository) UpdateStatus(ctx context.Context, id int64, status models.PatientStatus) error {
	err := r.db.WithContext(ctx).Model(&models.Patient{}).Where("id = ?", id).Update("status", status).Error
	return errors.Wrap(err, "failed to update patient status")
}

// GetByID returns nil, nil when the patient does not exist.
func (r *PatientRepository) GetByID(ctx context.Context, id int64) (*models.Patient, error) {
	var patient models.Patient
	err := r.db.WithContext(ctx).Preload("ClinicalParameters").First(&patient, "id = ?", id).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get patient")
	}
	return &patient, nil
}

func (r *PatientRepository) GetByPatientID(ctx context.Context, patientID string) (*models.Patient, error) {
	var patient models.Patient
	err := r.db.WithContext(ctx).Preload("ClinicalParameters").Where("patient_id = ?", patientID).First(&patient).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get patient")
	}
	return &patient, nil
}

// LockByID loads the patient row FOR UPDATE.
func (r *PatientRepository) LockByID(ctx context.Context, id int64) (*models.Patient, error) {
	var patient models.Patient
	err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&patient, "id = ?", id).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to lock patient")
	}
	return &patient, nil
}

// ListByStatus returns patients newest first, read through the cache. An
// empty status lists everyone.
func (r *PatientRepository) ListByStatus(ctx context.Context, status models.PatientStatus) ([]models.Patient, error) {
	key := r.listCacheKey(status)
	if cached, err := r.cache.Get(ctx, key); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("failed to get patients from cache")
	} else if cached != "" {
		var patients []models.Patient
		if err := json.Unmarshal([]byte(cached), &patients); err == nil {
			return patients, nil
		}
	}

	var patients []models.Patient
	q := r.db.WithContext(ctx).Preload("ClinicalParameters").Order("registration_date DESC, id DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Find(&patients).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list patients")
	}

	if payload, err := json.Marshal(patients); err == nil {
		if err := r.cache.Set(ctx, key, payload, PatientCacheExpiry); err != nil {
			r.log.Warn().Err(err).Str("key", key).Msg("failed to set patients in cache")
		}
	}
	return patients, nil
}

// InvalidateCache drops every cached patient list.
func (r *PatientRepository) InvalidateCache(ctx context.Context) {
	if err := r.cache.DeleteAll(ctx, "patients_cache:*"); err != nil {
		r.log.Warn().Err(err).Msg("failed to invalidate patient cache")
	}
}

func (r *PatientRepository) listCacheKey(status models.PatientStatus) string {
	if status == "" {
		return "patients_cache:" + patientsCacheAll
	}
	return "patients_cache:" + string(status)
}

// NextSequence increments the counter for scope under a row lock. A missing
// counter is seeded from the highest suffix already issued in scope.
func (r *PatientRepository) NextSequence(ctx context.Context, scope string) (int, error) {
	db := r.db.WithContext(ctx)

	var seq models.PatientIDSequence
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("scope = ?", scope).First(&seq).Error
	switch {
	case database.IsNotFound(err):
		highest, err := r.highestSuffix(ctx, scope)
		if err != nil {
			return 0, err
		}
		seq = models.PatientIDSequence{Scope: scope, LastValue: highest + 1}
		if err := db.Create(&seq).Error; err != nil {
			return 0, errors.Wrap(err, "failed to seed patient id sequence")
		}
		return seq.LastValue, nil
	case err != nil:
		return 0, errors.Wrap(err, "failed to lock patient id sequence")
	}

	seq.LastValue++
	if err := db.Model(&seq).Update("last_value", seq.LastValue).Error; err != nil {
		return 0, errors.Wrap(err, "failed to advance patient id sequence")
	}
	return seq.LastValue, nil
}

func (r *PatientRepository) highestSuffix(ctx context.Context, scope string) (int, error) {
	var ids []string
	prefix := scope + "-"
	err := r.db.WithContext(ctx).Model(&models.Patient{}).
		Where("patient_id LIKE ?", prefix+"%").
		Pluck("patient_id", &ids).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to scan issued patient ids")
	}
	highest := 0
	for _, id := range ids {
		n, err := strconv.Atoi(strings.TrimPrefix(id, prefix))
		if err == nil && n > highest {
			highest = n
		}
	}
	return highest, nil
}

// UpsertVitals creates or replaces the patient's clinical parameters.
func (r *PatientRepository) UpsertVitals(ctx context.Context, params *models.ClinicalParameters) error {
	db := r.db.WithContext(ctx)
	var existing models.ClinicalParameters
	err := db.Where("patient_id = ?", params.PatientID).First(&existing).Error
	switch {
	case database.IsNotFound(err):
		return errors.Wrap(db.Create(params).Error, "failed to create clinical parameters")
	case err != nil:
		return errors.Wrap(err, "failed to load clinical parameters")
	}
	params.ID = existing.ID
	params.RecordedAt = existing.RecordedAt
	return errors.Wrap(db.Save(params).Error, "failed to update clinical parameters")
}
