package services

import (
	"testing"

	"CampaignClinic/apperrors"
	"CampaignClinic/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func roleGroupNames(e *testEnv, u *models.User) []string {
	var names []string
	for _, g := range u.Groups {
		if e.registry.IsRoleGroup(g.Name) {
			names = append(names, g.Name)
		}
	}
	return names
}

func (e *testEnv) group(t *testing.T, name string) models.Group {
	t.Helper()
	var g models.Group
	require.NoError(t, e.db.Where("name = ?", name).First(&g).Error)
	return g
}

func TestCreateUserJoinsRoleGroup(t *testing.T) {
	env := newTestEnv(t)

	for _, role := range env.registry.Roles() {
		id := env.staff(t, "user_"+string(role), role)
		user := env.loadUser(t, id)
		want, _ := env.registry.GroupFor(role)
		assert.Equal(t, []string{want}, roleGroupNames(env, user), role)
	}
}

func TestAdminIsElevated(t *testing.T) {
	env := newTestEnv(t)

	admin := env.loadUser(t, env.adminID)
	assert.Equal(t, models.RoleAdmin, admin.Role)
	assert.True(t, admin.IsStaff)
	assert.True(t, admin.IsSuperuser)
	assert.Equal(t, []string{"Administrators"}, roleGroupNames(env, admin))
	assert.Equal(t, int64(1), env.auditCount(t, models.AuditElevatedGranted))
}

func TestUpdateRoleMovesGroupAndKeepsOtherGroups(t *testing.T) {
	env := newTestEnv(t)
	id := env.staff(t, "mwangi", models.RoleLabTechnician)

	extra := models.Group{Name: "Night Shift"}
	require.NoError(t, env.db.Create(&extra).Error)
	require.NoError(t, env.db.Model(&models.User{ID: id}).Association("Groups").Append(&extra))

	user, res, err := env.users.UpdateRole(env.ctx, env.adminID, id, models.RoleDoctor)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, []string{"Doctors"}, res.AddedGroups)
	assert.Equal(t, []string{"Lab Technicians"}, res.RemovedGroups)
	assert.Equal(t, models.RoleDoctor, user.Role)

	reloaded := env.loadUser(t, id)
	assert.ElementsMatch(t, []string{"Doctors", "Night Shift"}, reloaded.GroupNames())
}

func TestSyncGroupsFromRoleIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	id := env.staff(t, "otieno", models.RolePharmacyClerk)
	before := env.auditCount(t, models.AuditRoleGroupsSynced)

	for i := 0; i < 2; i++ {
		user := env.loadUser(t, id)
		err := env.db.Transaction(func(tx *gorm.DB) error {
			res, err := env.sync.SyncGroupsFromRole(env.ctx, tx, user, env.adminID)
			require.NoError(t, err)
			assert.False(t, res.Changed)
			return nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, before, env.auditCount(t, models.AuditRoleGroupsSynced))
}

func TestEmptyRoleClearsRoleGroups(t *testing.T) {
	env := newTestEnv(t)
	id := env.staff(t, "wanjiru", models.RoleVitalsClerk)

	_, res, err := env.users.UpdateRole(env.ctx, env.adminID, id, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Vitals Clerks"}, res.RemovedGroups)
	assert.Empty(t, roleGroupNames(env, env.loadUser(t, id)))
}

func TestMissingGroupIsReportedAsGap(t *testing.T) {
	env := newTestEnv(t)
	id := env.staff(t, "achieng", models.RoleRegistrationClerk)

	doctors := env.group(t, "Doctors")
	require.NoError(t, env.db.Exec("DELETE FROM user_groups WHERE group_id = ?", doctors.ID).Error)
	require.NoError(t, env.db.Delete(&doctors).Error)

	user, res, err := env.users.UpdateRole(env.ctx, env.adminID, id, models.RoleDoctor)
	require.NoError(t, err)
	require.NotNil(t, res.Gap)
	assert.True(t, apperrors.IsIntegrityGap(res.Gap))
	assert.Equal(t, "ROLE_GROUP_MISSING", res.Gap.Code)
	assert.Equal(t, models.RoleDoctor, user.Role)
	assert.NotContains(t, env.loadUser(t, id).GroupNames(), "Doctors")
}

func TestUnknownRoleIsRejected(t *testing.T) {
	env := newTestEnv(t)
	id := env.staff(t, "kamau", models.RoleDoctor)

	_, _, err := env.users.UpdateRole(env.ctx, env.adminID, id, models.Role("surgeon"))
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

// A technician moved by hand from Lab Technicians to Doctors becomes a doctor.
func TestGroupEditDerivesRole(t *testing.T) {
	env := newTestEnv(t)
	id := env.staff(t, "njeri", models.RoleLabTechnician)

	user, res, err := env.users.SetGroups(env.ctx, env.adminID, id, []string{"Doctors"})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, models.RoleLabTechnician, res.RoleBefore)
	assert.Equal(t, models.RoleDoctor, res.RoleAfter)
	assert.Equal(t, models.RoleDoctor, user.Role)
	assert.Equal(t, models.RoleDoctor, env.loadUser(t, id).Role)
	assert.Equal(t, int64(1), env.auditCount(t, models.AuditRoleDerivedFromGroups))
}

func TestReverseDerivationIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	id := env.staff(t, "omondi", models.RoleLabTechnician)
	_, _, err := env.users.SetGroups(env.ctx, env.adminID, id, []string{"Pharmacy Clerks"})
	require.NoError(t, err)
	audits := env.auditCount(t, models.AuditRoleDerivedFromGroups)

	var roles []models.Role
	for i := 0; i < 2; i++ {
		user := env.loadUser(t, id)
		require.NoError(t, env.db.Transaction(func(tx *gorm.DB) error {
			res, err := env.sync.SyncRoleFromGroups(env.ctx, tx, user, env.adminID)
			require.NoError(t, err)
			assert.False(t, res.Changed)
			roles = append(roles, user.Role)
			return nil
		}))
	}
	assert.Equal(t, []models.Role{models.RolePharmacyClerk, models.RolePharmacyClerk}, roles)
	assert.Equal(t, audits, env.auditCount(t, models.AuditRoleDerivedFromGroups))
}

func TestSeveralGroupsWithAdministratorsDeriveAdmin(t *testing.T) {
	env := newTestEnv(t)
	id := env.staff(t, "chebet", models.RoleDataAnalyst)

	user, res, err := env.users.SetGroups(env.ctx, env.adminID, id, []string{"Data Analysts", "Administrators"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.True(t, res.Elevated)
	assert.True(t, env.loadUser(t, id).IsSuperuser)
}

func TestSeveralGroupsWithoutAdministratorsKeepRole(t *testing.T) {
	env := newTestEnv(t)
	id := env.staff(t, "kiprop", models.RoleDataAnalyst)

	user, res, err := env.users.SetGroups(env.ctx, env.adminID, id, []string{"Data Analysts", "Doctors"})
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, models.RoleDataAnalyst, user.Role)
}

func TestNoRoleGroupsClearsRole(t *testing.T) {
	env := newTestEnv(t)
	id := env.staff(t, "auma", models.RoleVitalsClerk)

	user, _, err := env.users.SetGroups(env.ctx, env.adminID, id, nil)
	require.NoError(t, err)
	assert.Equal(t, models.Role(""), user.Role)
}

func TestSetGroupsUnknownGroup(t *testing.T) {
	env := newTestEnv(t)
	id := env.staff(t, "baraka", models.RoleDoctor)

	_, _, err := env.users.SetGroups(env.ctx, env.adminID, id, []string{"Surgeons"})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Equal(t, models.RoleDoctor, env.loadUser(t, id).Role)
}

func TestOnlyAdminsManageUsers(t *testing.T) {
	env := newTestEnv(t)
	doctor := env.staff(t, "daktari", models.RoleDoctor)

	_, _, err := env.users.CreateUser(env.ctx, doctor, UserInput{Username: "intruder", Password: testPassword, Role: models.RoleAdmin})
	require.Error(t, err)
	assert.True(t, apperrors.IsAuthorization(err))
}

func TestRepairAllFixesDrift(t *testing.T) {
	env := newTestEnv(t)
	drifted := env.staff(t, "drifted", models.RoleDoctor)
	env.staff(t, "fine", models.RoleLabTechnician)
	env.staff(t, "norole", "")

	require.NoError(t, env.db.Exec("DELETE FROM user_groups WHERE user_id = ?", drifted).Error)

	dry, err := env.sync.RepairAll(env.ctx, RepairOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 4, dry.Checked)
	assert.Equal(t, 1, dry.Fixed)
	assert.Equal(t, 1, dry.Skipped)
	assert.Empty(t, roleGroupNames(env, env.loadUser(t, drifted)))

	report, err := env.sync.RepairAll(env.ctx, RepairOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fixed)
	assert.Equal(t, 2, report.Unchanged)
	assert.Equal(t, []string{"Doctors"}, roleGroupNames(env, env.loadUser(t, drifted)))

	again, err := env.sync.RepairAll(env.ctx, RepairOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Fixed)
}

func TestRepairSingleUserAndMissingGroup(t *testing.T) {
	env := newTestEnv(t)
	env.staff(t, "analyst", models.RoleDataAnalyst)
	analysts := env.group(t, "Data Analysts")
	require.NoError(t, env.db.Exec("DELETE FROM user_groups WHERE group_id = ?", analysts.ID).Error)
	require.NoError(t, env.db.Delete(&analysts).Error)

	report, err := env.sync.RepairAll(env.ctx, RepairOptions{Username: "analyst"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Gaps, 1)

	_, err = env.sync.RepairAll(env.ctx, RepairOptions{Username: "ghost"})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDiagnoseReportsMismatches(t *testing.T) {
	env := newTestEnv(t)
	id := env.staff(t, "mismatch", models.RoleDoctor)
	pharmacy := env.group(t, "Pharmacy Clerks")
	require.NoError(t, env.db.Exec("DELETE FROM user_groups WHERE user_id = ?", id).Error)
	require.NoError(t, env.db.Model(&models.User{ID: id}).Association("Groups").Append(&pharmacy))

	found, err := env.sync.Diagnose(env.ctx)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "mismatch", found[0].Username)
	assert.Equal(t, "Doctors", found[0].Expected)
	assert.Equal(t, []string{"Pharmacy Clerks"}, found[0].Groups)
}

func TestProvisionGroupsIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.sync.ProvisionGroups(env.ctx))

	groups, err := env.sync.Groups(env.ctx)
	require.NoError(t, err)
	assert.Len(t, groups, 8)
	for _, g := range groups {
		if g.Name == "Data Analysts" {
			var codes []string
			for _, p := range g.Permissions {
				codes = append(codes, p.Codename)
			}
			assert.NotContains(t, codes, "can_register")
			assert.Contains(t, codes, "can_view_patient_reports")
		}
	}
}
