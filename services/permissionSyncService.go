package services

import (
	"context"
	"fmt"
	"sort"

	"CampaignClinic/apperrors"
	"CampaignClinic/database"
	"CampaignClinic/metrics"
	"CampaignClinic/models"
	"CampaignClinic/rbac"
	"CampaignClinic/repositories"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// SyncResult describes what a synchronization changed.
type SyncResult struct {
	Changed       bool        `json:"changed"`
	AddedGroups   []string    `json:"added_groups,omitempty"`
	RemovedGroups []string    `json:"removed_groups,omitempty"`
	RoleBefore    models.Role `json:"role_before"`
	RoleAfter     models.Role `json:"role_after"`
	Elevated      bool        `json:"elevated"`
	// Gap is set when the user could not be assigned; it is never returned as an error.
	Gap *apperrors.Error `json:"gap,omitempty"`
}

type RepairOptions struct {
	Username string
	DryRun   bool
}

type RepairReport struct {
	Checked   int               `json:"checked"`
	Fixed     int               `json:"fixed"`
	Skipped   int               `json:"skipped"`
	Unchanged int               `json:"unchanged"`
	Failed    int               `json:"failed"`
	DryRun    bool              `json:"dry_run"`
	Gaps      []*apperrors.Error `json:"gaps,omitempty"`
}

// Discrepancy is a user whose groups disagree with their role.
type Discrepancy struct {
	UserID   int64       `json:"user_id"`
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
	Groups   []string    `json:"groups"`
	Expected string      `json:"expected_group,omitempty"`
	Problem  string      `json:"problem"`
}

var errDryRun = errors.New("dry run")

// PermissionSyncService keeps role and role-group membership consistent.
type PermissionSyncService struct {
	db       *gorm.DB
	registry *rbac.Registry
	policy   rbac.Policy
	metrics  *metrics.Metrics
	log      zerolog.Logger
	users    *repositories.UserRepository
	groups   *repositories.GroupRepository
	audit    *repositories.AuditRepository
}

func NewPermissionSyncService(db *gorm.DB, registry *rbac.Registry, policy rbac.Policy, m *metrics.Metrics, log zerolog.Logger) *PermissionSyncService {
	return &PermissionSyncService{
		db:       db,
		registry: registry,
		policy:   policy,
		metrics:  m,
		log:      log,
		users:    repositories.NewUserRepository(db),
		groups:   repositories.NewGroupRepository(db),
		audit:    repositories.NewAuditRepository(db),
	}
}

// SyncGroupsFromRole puts user in exactly the group mapped from its role,
// leaving groups that are not role groups alone. It runs inside tx.
func (s *PermissionSyncService) SyncGroupsFromRole(ctx context.Context, tx *gorm.DB, user *models.User, actorID int64) (SyncResult, error) {
	res := SyncResult{RoleBefore: user.Role, RoleAfter: user.Role}
	if err := s.loadGroups(ctx, tx, user); err != nil {
		return res, err
	}

	var target *models.Group
	if user.Role != "" {
		name, ok := s.registry.GroupFor(user.Role)
		if !ok {
			res.Gap = apperrors.IntegrityGap("UNKNOWN_ROLE", fmt.Sprintf("no group mapping found for role %q", user.Role))
			s.log.Warn().Str("username", user.Username).Str("role", string(user.Role)).Msg("no group mapping found for role")
			return res, nil
		}
		group, err := s.groups.WithTx(tx).GetByName(ctx, name)
		if err != nil {
			return res, err
		}
		if group == nil {
			res.Gap = apperrors.IntegrityGap("ROLE_GROUP_MISSING", fmt.Sprintf("group %q does not exist; run setup-roles", name))
			s.log.Warn().Str("username", user.Username).Str("group", name).Msg("role group missing, user left unassigned")
			return res, nil
		}
		target = group
	}

	keep := make([]models.Group, 0, len(user.Groups)+1)
	hasTarget := false
	for _, g := range user.Groups {
		switch {
		case target != nil && g.Name == target.Name:
			hasTarget = true
			keep = append(keep, g)
		case s.registry.IsRoleGroup(g.Name):
			res.RemovedGroups = append(res.RemovedGroups, g.Name)
		default:
			keep = append(keep, g)
		}
	}
	if target != nil && !hasTarget {
		keep = append(keep, *target)
		res.AddedGroups = append(res.AddedGroups, target.Name)
	}

	if len(res.AddedGroups) > 0 || len(res.RemovedGroups) > 0 {
		before := user.GroupNames()
		if err := s.users.WithTx(tx).ReplaceGroups(ctx, user, keep); err != nil {
			return res, err
		}
		if err := s.record(ctx, tx, actorID, models.AuditRoleGroupsSynced, user, models.Change{
			Before: map[string]interface{}{"groups": before},
			After:  map[string]interface{}{"groups": user.GroupNames(), "role": user.Role},
		}); err != nil {
			return res, err
		}
		res.Changed = true
		s.metrics.RoleCorrection("groups")
		s.log.Info().Str("username", user.Username).Strs("added", res.AddedGroups).
			Strs("removed", res.RemovedGroups).Msg("role groups synced")
	}

	elevated, err := s.elevate(ctx, tx, user, actorID)
	if err != nil {
		return res, err
	}
	res.Elevated = elevated
	res.Changed = res.Changed || elevated
	return res, nil
}

// SyncRoleFromGroups derives the role from the user's role groups: one group
// decides it, several decide admin only when Administrators is among them,
// none clears it.
func (s *PermissionSyncService) SyncRoleFromGroups(ctx context.Context, tx *gorm.DB, user *models.User, actorID int64) (SyncResult, error) {
	res := SyncResult{RoleBefore: user.Role, RoleAfter: user.Role}
	if err := s.loadGroups(ctx, tx, user); err != nil {
		return res, err
	}

	var roleGroups []string
	for _, g := range user.Groups {
		if s.registry.IsRoleGroup(g.Name) {
			roleGroups = append(roleGroups, g.Name)
		}
	}

	derived := user.Role
	switch {
	case len(roleGroups) == 1:
		derived, _ = s.registry.RoleFor(roleGroups[0])
	case len(roleGroups) > 1:
		if containsString(roleGroups, s.registry.AdminGroup()) {
			derived = s.registry.AdminRole()
		} else {
			s.log.Warn().Str("username", user.Username).Strs("groups", roleGroups).
				Msg("user has multiple role groups but no admin group, role unchanged")
		}
	default:
		derived = ""
	}

	if derived != user.Role {
		before := user.Role
		user.Role = derived
		if err := s.users.WithTx(tx).Save(ctx, user); err != nil {
			return res, err
		}
		if err := s.record(ctx, tx, actorID, models.AuditRoleDerivedFromGroups, user, models.Change{
			Before: map[string]interface{}{"role": before},
			After:  map[string]interface{}{"role": derived, "groups": roleGroups},
		}); err != nil {
			return res, err
		}
		res.RoleAfter = derived
		res.Changed = true
		s.metrics.RoleCorrection("role")
		s.log.Info().Str("username", user.Username).Str("from", string(before)).
			Str("to", string(derived)).Msg("role derived from groups")
	}

	elevated, err := s.elevate(ctx, tx, user, actorID)
	if err != nil {
		return res, err
	}
	res.Elevated = elevated
	res.Changed = res.Changed || elevated
	return res, nil
}

// elevate grants staff and superuser flags to an admin that lacks them.
func (s *PermissionSyncService) elevate(ctx context.Context, tx *gorm.DB, user *models.User, actorID int64) (bool, error) {
	if user.Role != s.registry.AdminRole() || (user.IsStaff && user.IsSuperuser) {
		return false, nil
	}
	before := map[string]interface{}{"is_staff": user.IsStaff, "is_superuser": user.IsSuperuser}
	user.IsStaff = true
	user.IsSuperuser = true
	if err := s.users.WithTx(tx).Save(ctx, user); err != nil {
		return false, err
	}
	if err := s.record(ctx, tx, actorID, models.AuditElevatedGranted, user, models.Change{
		Before: before,
		After:  map[string]interface{}{"is_staff": true, "is_superuser": true},
	}); err != nil {
		return false, err
	}
	s.metrics.RoleCorrection("elevated")
	s.log.Info().Str("username", user.Username).Msg("admin granted staff and superuser status")
	return true, nil
}

func (s *PermissionSyncService) loadGroups(ctx context.Context, tx *gorm.DB, user *models.User) error {
	fresh, err := s.users.WithTx(tx).GetByID(ctx, user.ID)
	if err != nil {
		return err
	}
	if fresh == nil {
		return apperrors.NotFound("user", user.ID)
	}
	user.Groups = fresh.Groups
	return nil
}

func (s *PermissionSyncService) record(ctx context.Context, tx *gorm.DB, actorID int64, action string, user *models.User, change models.Change) error {
	entry, err := models.NewAuditLog(actorID, action, "user", fmt.Sprint(user.ID), change)
	if err != nil {
		return err
	}
	return s.audit.WithTx(tx).Create(ctx, entry)
}

// RepairAll re-runs role to group synchronization for every user, or for
// one user when opts.Username is set. Each user is repaired in its own
// transaction; a dry run rolls every transaction back.
func (s *PermissionSyncService) RepairAll(ctx context.Context, opts RepairOptions) (RepairReport, error) {
	report := RepairReport{DryRun: opts.DryRun}
	users, err := s.users.List(ctx, opts.Username)
	if err != nil {
		return report, err
	}
	if opts.Username != "" && len(users) == 0 {
		return report, apperrors.NotFound("user", opts.Username)
	}

	for i := range users {
		user := &users[i]
		report.Checked++
		if user.Role == "" {
			s.log.Warn().Str("username", user.Username).Msg("user has no role assigned, skipped")
			report.Skipped++
			continue
		}

		var res SyncResult
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			res, err = s.SyncGroupsFromRole(ctx, tx, user, 0)
			if err != nil {
				return err
			}
			if opts.DryRun {
				return errDryRun
			}
			return nil
		})
		if err != nil && !errors.Is(err, errDryRun) {
			s.log.Error().Err(err).Str("username", user.Username).Msg("failed to repair user permissions")
			report.Failed++
			continue
		}

		switch {
		case res.Gap != nil:
			report.Skipped++
			report.Gaps = append(report.Gaps, res.Gap)
		case res.Changed:
			report.Fixed++
		default:
			report.Unchanged++
		}
	}

	s.log.Info().Int("checked", report.Checked).Int("fixed", report.Fixed).Int("skipped", report.Skipped).
		Int("failed", report.Failed).Bool("dry_run", opts.DryRun).Msg("permission repair finished")
	return report, nil
}

// ProvisionGroups creates the role groups and capability permissions and
// grants each group its role's capabilities. Running it again is harmless.
func (s *PermissionSyncService) ProvisionGroups(ctx context.Context) error {
	grants := s.policy.GroupGrants(s.registry)
	if err := database.SeedInitialData(s.db.WithContext(ctx), grants); err != nil {
		return err
	}
	s.log.Info().Int("groups", len(grants)).Msg("role groups provisioned")
	return nil
}

// Groups lists the provisioned groups with their permissions.
func (s *PermissionSyncService) Groups(ctx context.Context) ([]models.Group, error) {
	return s.groups.List(ctx)
}

// Diagnose reports users whose membership or flags disagree with their role.
// It writes nothing.
func (s *PermissionSyncService) Diagnose(ctx context.Context) ([]Discrepancy, error) {
	existing, err := s.groups.GetByNames(ctx, s.registry.GroupNames())
	if err != nil {
		return nil, err
	}
	provisioned := make(map[string]bool, len(existing))
	for _, g := range existing {
		provisioned[g.Name] = true
	}

	users, err := s.users.List(ctx, "")
	if err != nil {
		return nil, err
	}

	var out []Discrepancy
	for _, u := range users {
		var roleGroups []string
		for _, g := range u.Groups {
			if s.registry.IsRoleGroup(g.Name) {
				roleGroups = append(roleGroups, g.Name)
			}
		}
		sort.Strings(roleGroups)
		d := Discrepancy{UserID: u.ID, Username: u.Username, Role: u.Role, Groups: roleGroups}

		if u.Role == "" {
			if len(roleGroups) > 0 {
				d.Problem = "user has role groups but no role"
				out = append(out, d)
			}
			continue
		}
		expected, ok := s.registry.GroupFor(u.Role)
		if !ok {
			d.Problem = "role has no group mapping"
			out = append(out, d)
			continue
		}
		d.Expected = expected
		switch {
		case !provisioned[expected]:
			d.Problem = "role group does not exist"
		case len(roleGroups) == 0:
			d.Problem = "user is not in the role group"
		case len(roleGroups) > 1 || roleGroups[0] != expected:
			d.Problem = "user is in role groups that do not match the role"
		case u.Role == s.registry.AdminRole() && !(u.IsStaff && u.IsSuperuser):
			d.Problem = "admin lacks staff or superuser status"
		default:
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
