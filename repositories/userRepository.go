package repositories

import (
	"context"

	"CampaignClinic/database"
	"CampaignClinic/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// WithTx binds the repository to tx.
func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{db: tx}
}

// GetByID loads a user with its groups. Returns nil, nil when absent.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Preload("Groups").First(&user, "id = ?", id).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get user")
	}
	return &user, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Preload("Groups").Where("username = ?", username).First(&user).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get user by username")
	}
	return &user, nil
}

func (r *UserRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "failed to check username existence")
	}
	return count > 0, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(user).Error; err != nil {
		return errors.Wrap(err, "failed to create user")
	}
	return nil
}

// Save writes the user's columns. Group membership is not touched.
func (r *UserRepository) Save(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Save(user).Error; err != nil {
		return errors.Wrap(err, "failed to save user")
	}
	return nil
}

// ReplaceGroups sets the user's membership to exactly groups.
func (r *UserRepository) ReplaceGroups(ctx context.Context, user *models.User, groups []models.Group) error {
	assoc := r.db.WithContext(ctx).Model(user).Association("Groups")
	var err error
	if len(groups) == 0 {
		err = assoc.Clear()
	} else {
		err = assoc.Replace(groups)
	}
	if err != nil {
		return errors.Wrap(err, "failed to replace user groups")
	}
	user.Groups = groups
	return nil
}

// List returns users ordered by username; username filters to one account when set.
func (r *UserRepository) List(ctx context.Context, username string) ([]models.User, error) {
	var users []models.User
	q := r.db.WithContext(ctx).Preload("Groups").Order("username")
	if username != "" {
		q = q.Where("username = ?", username)
	}
	if err := q.Find(&users).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list users")
	}
	return users, nil
}

// GroupRepository reads the access-control groups.
type GroupRepository struct {
	db *gorm.DB
}

func NewGroupRepository(db *gorm.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

func (r *GroupRepository) WithTx(tx *gorm.DB) *GroupRepository {
	return &GroupRepository{db: tx}
}

// GetByName returns nil, nil when the group has not been provisioned.
func (r *GroupRepository) GetByName(ctx context.Context, name string) (*models.Group, error) {
	var group models.Group
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&group).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get group")
	}
	return &group, nil
}

// GetByNames returns the groups that exist among names.
func (r *GroupRepository) GetByNames(ctx context.Context, names []string) ([]models.Group, error) {
	var groups []models.Group
	if len(names) == 0 {
		return groups, nil
	}
	if err := r.db.WithContext(ctx).Where("name IN ?", names).Order("name").Find(&groups).Error; err != nil {
		return nil, errors.Wrap(err, "failed to get groups")
	}
	return groups, nil
}

func (r *GroupRepository) List(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	if err := r.db.WithContext(ctx).Preload("Permissions").Order("name").Find(&groups).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list groups")
	}
	return groups, nil
}
