package repositories

import (
	"context"

	"CampaignClinic/database"
	"CampaignClinic/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// CatalogRepository stores campaigns, the lab test catalog and the drug formulary.
type CatalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) WithTx(tx *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: tx}
}

func (r *CatalogRepository) CreateCampaign(ctx context.Context, c *models.Campaign) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(c).Error, "failed to create campaign")
}

func (r *CatalogRepository) SaveCampaign(ctx context.Context, c *models.Campaign) error {
	return errors.Wrap(r.db.WithContext(ctx).Save(c).Error, "failed to update campaign")
}

func (r *CatalogRepository) GetCampaign(ctx context.Context, id int64) (*models.Campaign, error) {
	var c models.Campaign
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get campaign")
	}
	return &c, nil
}

func (r *CatalogRepository) ListCampaigns(ctx context.Context) ([]models.Campaign, error) {
	var list []models.Campaign
	if err := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&list).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list campaigns")
	}
	return list, nil
}

func (r *CatalogRepository) CountCampaignPatients(ctx context.Context, campaignID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Patient{}).Where("campaign_id = ?", campaignID).Count(&n).Error
	return n, errors.Wrap(err, "failed to count campaign patients")
}

func (r *CatalogRepository) CreateLabTest(ctx context.Context, t *models.LabTest) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(t).Error, "failed to create lab test")
}

func (r *CatalogRepository) GetLabTest(ctx context.Context, id int64) (*models.LabTest, error) {
	var t models.LabTest
	if err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get lab test")
	}
	return &t, nil
}

// ListLabTests returns the catalog; activeOnly hides retired tests.
func (r *CatalogRepository) ListLabTests(ctx context.Context, activeOnly bool) ([]models.LabTest, error) {
	var list []models.LabTest
	q := r.db.WithContext(ctx).Order("category, name")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	if err := q.Find(&list).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list lab tests")
	}
	return list, nil
}

func (r *CatalogRepository) CreateDrug(ctx context.Context, d *models.Drug) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(d).Error, "failed to create drug")
}

func (r *CatalogRepository) GetDrug(ctx context.Context, id int64) (*models.Drug, error) {
	var d models.Drug
	if err := r.db.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get drug")
	}
	return &d, nil
}

func (r *CatalogRepository) ListDrugs(ctx context.Context, activeOnly bool) ([]models.Drug, error) {
	var list []models.Drug
	q := r.db.WithContext(ctx).Order("name, strength")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	if err := q.Find(&list).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list drugs")
	}
	return list, nil
}
