// Package rbac holds the role registry, the capability table and the casbin
// backed access gate.
package rbac

import (
	"sort"

	"CampaignClinic/models"
)

// Registry is an immutable one-to-one mapping between roles and group names.
type Registry struct {
	groupByRole map[models.Role]string
	roleByGroup map[string]models.Role
	admin       models.Role
}

// NewRegistry copies mapping. It panics if two roles share a group, since the
// mapping must be a bijection.
func NewRegistry(mapping map[models.Role]string, admin models.Role) *Registry {
	r := &Registry{
		groupByRole: make(map[models.Role]string, len(mapping)),
		roleByGroup: make(map[string]models.Role, len(mapping)),
		admin:       admin,
	}
	for role, group := range mapping {
		if _, dup := r.roleByGroup[group]; dup {
			panic("rbac: group " + group + " mapped from more than one role")
		}
		r.groupByRole[role] = group
		r.roleByGroup[group] = role
	}
	return r
}

// DefaultRegistry returns the eight campaign roles and their groups.
func DefaultRegistry() *Registry {
	return NewRegistry(map[models.Role]string{
		models.RoleAdmin:             "Administrators",
		models.RoleCampaignManager:   "Campaign Managers",
		models.RoleRegistrationClerk: "Registration Clerks",
		models.RoleVitalsClerk:       "Vitals Clerks",
		models.RoleDoctor:            "Doctors",
		models.RoleLabTechnician:     "Lab Technicians",
		models.RolePharmacyClerk:     "Pharmacy Clerks",
		models.RoleDataAnalyst:       "Data Analysts",
	}, models.RoleAdmin)
}

// GroupFor returns the group mapped from role. ok is false for unknown roles.
func (r *Registry) GroupFor(role models.Role) (string, bool) {
	g, ok := r.groupByRole[role]
	return g, ok
}

// RoleFor returns the role mapped to group name.
func (r *Registry) RoleFor(group string) (models.Role, bool) {
	role, ok := r.roleByGroup[group]
	return role, ok
}

func (r *Registry) IsRoleGroup(group string) bool {
	_, ok := r.roleByGroup[group]
	return ok
}

func (r *Registry) IsKnownRole(role models.Role) bool {
	_, ok := r.groupByRole[role]
	return ok
}

// AdminRole is the role that carries elevated privileges.
func (r *Registry) AdminRole() models.Role {
	return r.admin
}

// AdminGroup is the group mapped from AdminRole.
func (r *Registry) AdminGroup() string {
	return r.groupByRole[r.admin]
}

// Roles lists the registered roles in a stable order.
func (r *Registry) Roles() []models.Role {
	roles := make([]models.Role, 0, len(r.groupByRole))
	for role := range r.groupByRole {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// GroupNames lists every role group name in a stable order.
func (r *Registry) GroupNames() []string {
	names := make([]string, 0, len(r.roleByGroup))
	for g := range r.roleByGroup {
		names = append(names, g)
	}
	sort.Strings(names)
	return names
}
