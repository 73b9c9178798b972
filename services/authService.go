package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"CampaignClinic/apperrors"
	"CampaignClinic/database"
	"CampaignClinic/models"
	"CampaignClinic/rbac"
	"CampaignClinic/repositories"
	"CampaignClinic/utils"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// UserInput describes a new staff account.
type UserInput struct {
	Username    string      `json:"username"`
	Email       string      `json:"email"`
	Password    string      `json:"password"`
	FirstName   string      `json:"first_name"`
	LastName    string      `json:"last_name"`
	Role        models.Role `json:"role"`
	EmployeeID  string      `json:"employee_id"`
	PhoneNumber string      `json:"phone_number"`
	Department  string      `json:"department"`
}

// UserService manages staff accounts. Every membership change runs the
// permission synchronizer in the same transaction.
type UserService struct {
	*Workflow
	sync     *PermissionSyncService
	registry *rbac.Registry
	groups   *repositories.GroupRepository
}

func NewUserService(w *Workflow, sync *PermissionSyncService, registry *rbac.Registry) *UserService {
	return &UserService{
		Workflow: w,
		sync:     sync,
		registry: registry,
		groups:   repositories.NewGroupRepository(w.db),
	}
}

// CreateUser creates an account and places it in its role group.
func (s *UserService) CreateUser(ctx context.Context, actorID int64, in UserInput) (*models.User, SyncResult, error) {
	var (
		user *models.User
		res  SyncResult
	)
	err := s.transact(ctx, func(tx *gorm.DB) error {
		if _, err := s.authorize(ctx, tx, actorID, rbac.CanManageUsers); err != nil {
			return err
		}
		var err error
		user, res, err = s.createUser(ctx, tx, actorID, in)
		return err
	})
	if err != nil {
		return nil, res, err
	}
	return user, res, nil
}

// CreateAdmin bootstraps an administrator without an acting user.
func (s *UserService) CreateAdmin(ctx context.Context, in UserInput) (*models.User, SyncResult, error) {
	in.Role = s.registry.AdminRole()
	var (
		user *models.User
		res  SyncResult
	)
	err := s.transact(ctx, func(tx *gorm.DB) error {
		var err error
		user, res, err = s.createUser(ctx, tx, 0, in)
		return err
	})
	if err != nil {
		return nil, res, err
	}
	return user, res, nil
}

func (s *UserService) createUser(ctx context.Context, tx *gorm.DB, actorID int64, in UserInput) (*models.User, SyncResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	account := utils.StaffAccount{Username: in.Username, Email: in.Email, Password: in.Password, Phone: in.PhoneNumber}
	if err := utils.ValidateStaffAccount(account); err != nil {
		return nil, SyncResult{}, apperrors.Validation(err, redacted(in))
	}
	if err := s.checkRole(in.Role); err != nil {
		return nil, SyncResult{}, apperrors.Validation(err, redacted(in))
	}

	users := s.users.WithTx(tx)
	exists, err := users.UsernameExists(ctx, in.Username)
	if err != nil {
		return nil, SyncResult{}, err
	}
	if exists {
		return nil, SyncResult{}, apperrors.Validation(validationError("username", "username already exists"), redacted(in))
	}

	hashed, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, SyncResult{}, errors.Wrap(err, "failed to hash password")
	}
	user := &models.User{
		Username:    in.Username,
		Email:       in.Email,
		Password:    hashed,
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Role:        in.Role,
		PhoneNumber: in.PhoneNumber,
		Department:  in.Department,
		IsActive:    true,
	}
	if id := strings.TrimSpace(in.EmployeeID); id != "" {
		user.EmployeeID = &id
	}
	if err := users.Create(ctx, user); err != nil {
		if database.IsDuplicateKey(err) {
			return nil, SyncResult{}, apperrors.Validation(validationError("username", "username or employee id already exists"), redacted(in))
		}
		return nil, SyncResult{}, err
	}
	if err := s.record(ctx, tx, actorID, models.AuditUserCreated, "user", user.ID, models.Change{
		After: map[string]interface{}{"username": user.Username, "role": user.Role},
	}); err != nil {
		return nil, SyncResult{}, err
	}

	res, err := s.sync.SyncGroupsFromRole(ctx, tx, user, actorID)
	if err != nil {
		return nil, res, err
	}
	s.log.Info().Str("username", user.Username).Str("role", string(user.Role)).Msg("user created")
	return user, res, nil
}

// UpdateRole changes a user's role and resynchronizes its role group.
func (s *UserService) UpdateRole(ctx context.Context, actorID, userID int64, role models.Role) (*models.User, SyncResult, error) {
	var (
		user *models.User
		res  SyncResult
	)
	if err := s.checkRole(role); err != nil {
		return nil, res, apperrors.Validation(err, map[string]interface{}{"role": role})
	}
	err := s.transact(ctx, func(tx *gorm.DB) error {
		if _, err := s.authorize(ctx, tx, actorID, rbac.CanManageUsers); err != nil {
			return err
		}
		users := s.users.WithTx(tx)
		var err error
		user, err = users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return apperrors.NotFound("user", userID)
		}
		if user.Role != role {
			before := user.Role
			user.Role = role
			if err := users.Save(ctx, user); err != nil {
				return err
			}
			if err := s.record(ctx, tx, actorID, models.AuditUserRoleChanged, "user", user.ID,
				models.Change{Before: before, After: role}); err != nil {
				return err
			}
		}
		res, err = s.sync.SyncGroupsFromRole(ctx, tx, user, actorID)
		return err
	})
	if err != nil {
		return nil, res, err
	}
	return user, res, nil
}

// SetGroups replaces a user's group membership and derives its role from the
// role groups it ends up in.
func (s *UserService) SetGroups(ctx context.Context, actorID, userID int64, names []string) (*models.User, SyncResult, error) {
	var (
		user *models.User
		res  SyncResult
	)
	err := s.transact(ctx, func(tx *gorm.DB) error {
		if _, err := s.authorize(ctx, tx, actorID, rbac.CanManageUsers); err != nil {
			return err
		}
		users := s.users.WithTx(tx)
		var err error
		user, err = users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return apperrors.NotFound("user", userID)
		}

		wanted := uniqueNames(names)
		groups, err := s.groups.WithTx(tx).GetByNames(ctx, wanted)
		if err != nil {
			return err
		}
		if len(groups) != len(wanted) {
			found := make(map[string]bool, len(groups))
			for _, g := range groups {
				found[g.Name] = true
			}
			for _, name := range wanted {
				if !found[name] {
					return apperrors.NotFound("group", name)
				}
			}
		}

		before := user.GroupNames()
		if err := users.ReplaceGroups(ctx, user, groups); err != nil {
			return err
		}
		if err := s.record(ctx, tx, actorID, models.AuditUserGroupsChanged, "user", user.ID,
			models.Change{Before: before, After: user.GroupNames()}); err != nil {
			return err
		}
		res, err = s.sync.SyncRoleFromGroups(ctx, tx, user, actorID)
		return err
	})
	if err != nil {
		return nil, res, err
	}
	return user, res, nil
}

func (s *UserService) List(ctx context.Context, actorID int64) ([]models.User, error) {
	var users []models.User
	err := s.view(ctx, actorID, rbac.CanManageUsers, func(tx *gorm.DB, _ *models.User) error {
		var err error
		users, err = s.users.WithTx(tx).List(ctx, "")
		return err
	})
	return users, err
}

func (s *UserService) GetByID(ctx context.Context, actorID, userID int64) (*models.User, error) {
	var user *models.User
	err := s.view(ctx, actorID, rbac.CanManageUsers, func(tx *gorm.DB, _ *models.User) error {
		var err error
		user, err = s.users.WithTx(tx).GetByID(ctx, userID)
		if err == nil && user == nil {
			err = apperrors.NotFound("user", userID)
		}
		return err
	})
	return user, err
}

// RepairPermissions runs the role/group repair on behalf of an administrator.
func (s *UserService) RepairPermissions(ctx context.Context, actorID int64, opts RepairOptions) (RepairReport, error) {
	if _, err := s.authorize(ctx, s.db.WithContext(ctx), actorID, rbac.CanManageUsers); err != nil {
		return RepairReport{}, err
	}
	report, err := s.sync.RepairAll(ctx, opts)
	if err != nil {
		return report, err
	}
	s.log.Info().Int64("actor_id", actorID).Int("checked", report.Checked).Int("fixed", report.Fixed).
		Int("skipped", report.Skipped).Bool("dry_run", report.DryRun).Msg("permission repair requested")
	return report, nil
}

func (s *UserService) DiagnosePermissions(ctx context.Context, actorID int64) ([]Discrepancy, error) {
	if _, err := s.authorize(ctx, s.db.WithContext(ctx), actorID, rbac.CanManageUsers); err != nil {
		return nil, err
	}
	return s.sync.Diagnose(ctx)
}

func (s *UserService) Groups(ctx context.Context, actorID int64) ([]models.Group, error) {
	if _, err := s.authorize(ctx, s.db.WithContext(ctx), actorID, rbac.CanManageUsers); err != nil {
		return nil, err
	}
	return s.sync.Groups(ctx)
}

func (s *UserService) checkRole(role models.Role) error {
	if role != "" && !s.registry.IsKnownRole(role) {
		return validationError("role", fmt.Sprintf("unknown role %q", role))
	}
	return nil
}

func uniqueNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func redacted(in UserInput) UserInput {
	in.Password = ""
	return in
}

// AuthService identifies the acting user.
type AuthService struct {
	users  *repositories.UserRepository
	tokens *utils.TokenMaker
}

func NewAuthService(db *gorm.DB, tokens *utils.TokenMaker) *AuthService {
	return &AuthService{users: repositories.NewUserRepository(db), tokens: tokens}
}

// Login checks the credentials and issues an access token.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, *models.User, error) {
	if err := utils.ValidateLogin(username, password); err != nil {
		return "", nil, apperrors.Validation(err, map[string]string{"username": username})
	}
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return "", nil, err
	}
	if user == nil || !utils.CheckPassword(user.Password, password) {
		return "", nil, apperrors.Unauthorized("invalid username or password")
	}
	if !user.IsActive {
		return "", nil, apperrors.Unauthorized("account is disabled")
	}
	token, err := s.tokens.Generate(user.ID, string(user.Role))
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// Identify resolves a token to the user ID it was issued for.
func (s *AuthService) Identify(token string) (int64, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		if err == utils.ErrTokenExpired {
			return 0, apperrors.Unauthorized("token expired")
		}
		return 0, apperrors.Unauthorized("invalid token")
	}
	return claims.UserID, nil
}

func (s *AuthService) Me(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.NotFound("user", userID)
	}
	return user, nil
}
