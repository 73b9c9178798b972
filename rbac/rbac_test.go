package rbac

import (
	"testing"

	"CampaignClinic/apperrors"
	"CampaignClinic/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRecorder struct {
	denied map[string]int
}

func (c *countingRecorder) AuthorizationDenied(capability string) {
	if c.denied == nil {
		c.denied = map[string]int{}
	}
	c.denied[capability]++
}

func TestRegistryIsBijective(t *testing.T) {
	reg := DefaultRegistry()

	assert.Len(t, reg.Roles(), 8)
	for _, role := range reg.Roles() {
		group, ok := reg.GroupFor(role)
		require.True(t, ok)
		back, ok := reg.RoleFor(group)
		require.True(t, ok)
		assert.Equal(t, role, back)
	}

	g, ok := reg.GroupFor(models.RoleLabTechnician)
	assert.True(t, ok)
	assert.Equal(t, "Lab Technicians", g)
	assert.Equal(t, "Administrators", reg.AdminGroup())

	_, ok = reg.GroupFor(models.Role("janitor"))
	assert.False(t, ok)
	assert.False(t, reg.IsRoleGroup("Volunteers"))
}

func TestRegistryCopiesInput(t *testing.T) {
	mapping := map[models.Role]string{models.RoleDoctor: "Doctors"}
	reg := NewRegistry(mapping, models.RoleAdmin)
	mapping[models.RoleDoctor] = "Changed"

	g, _ := reg.GroupFor(models.RoleDoctor)
	assert.Equal(t, "Doctors", g)
}

func TestRegistryRejectsSharedGroup(t *testing.T) {
	assert.Panics(t, func() {
		NewRegistry(map[models.Role]string{
			models.RoleDoctor:        "Clinicians",
			models.RoleLabTechnician: "Clinicians",
		}, models.RoleAdmin)
	})
}

func TestAdminHoldsEveryCapability(t *testing.T) {
	policy := DefaultPolicy()
	assert.ElementsMatch(t, policy.Capabilities(), policy.CapabilitiesFor(models.RoleAdmin))
}

func TestGateRequire(t *testing.T) {
	rec := &countingRecorder{}
	gate, err := NewGate(DefaultPolicy(), zerolog.Nop(), rec)
	require.NoError(t, err)

	clerk := &models.User{ID: 1, Role: models.RoleRegistrationClerk, IsActive: true}
	tech := &models.User{ID: 2, Role: models.RoleLabTechnician, IsActive: true}
	admin := &models.User{ID: 3, Role: models.RoleAdmin, IsActive: true}
	unassigned := &models.User{ID: 4, IsActive: true}
	inactive := &models.User{ID: 5, Role: models.RoleAdmin}

	assert.NoError(t, gate.Require(clerk, CanRegister))
	assert.NoError(t, gate.Require(admin, CanRegister))
	assert.NoError(t, gate.Require(tech, CanEnterLabResults))

	err = gate.Require(tech, CanRegister)
	require.Error(t, err)
	e, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindAuthorization, e.Kind)
	assert.Equal(t, []string{"admin", "registration_clerk"}, e.RequiredRoles)

	assert.True(t, apperrors.IsAuthorization(gate.Require(unassigned, CanViewDemographics)))
	assert.True(t, apperrors.IsAuthorization(gate.Require(inactive, CanViewDemographics)))
	assert.True(t, apperrors.IsAuthorization(gate.Require(nil, CanViewDemographics)))
	assert.Equal(t, 1, rec.denied[string(CanRegister)])
}

func TestGateOwnerOrAdmin(t *testing.T) {
	gate, err := NewGate(DefaultPolicy(), zerolog.Nop(), nil)
	require.NoError(t, err)

	doctor := &models.User{ID: 10, Role: models.RoleDoctor, IsActive: true}
	other := &models.User{ID: 11, Role: models.RoleDoctor, IsActive: true}
	admin := &models.User{ID: 12, Role: models.RoleAdmin, IsActive: true}

	assert.NoError(t, gate.RequireOwnerOrAdmin(doctor, 10, "consultation"))
	assert.NoError(t, gate.RequireOwnerOrAdmin(admin, 10, "consultation"))
	assert.True(t, apperrors.IsAuthorization(gate.RequireOwnerOrAdmin(other, 10, "consultation")))
}

func TestGroupGrants(t *testing.T) {
	grants := DefaultPolicy().GroupGrants(DefaultRegistry())
	require.Len(t, grants, 8)

	byName := map[string][]string{}
	for _, g := range grants {
		for _, p := range g.Permissions {
			byName[g.Name] = append(byName[g.Name], p.Codename)
		}
	}
	assert.Contains(t, byName["Registration Clerks"], "can_register")
	assert.NotContains(t, byName["Doctors"], "can_register")
	assert.Contains(t, byName["Pharmacy Clerks"], "can_dispense_medications")
}
