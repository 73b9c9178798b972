package rbac

import (
	"sort"

	"CampaignClinic/models"
)

// Capability is a single permitted action.
type Capability string

const (
	CanRegister             Capability = "can_register"
	CanEditDemographics     Capability = "can_edit_demographics"
	CanViewDemographics     Capability = "can_view_demographics"
	CanEditVitals           Capability = "can_edit_vitals"
	CanViewVitals           Capability = "can_view_vitals"
	CanConductConsultations Capability = "can_conduct_consultations"
	CanViewConsultations    Capability = "can_view_consultations"
	CanOrderLabTests        Capability = "can_order_lab_tests"
	CanEnterLabResults      Capability = "can_enter_lab_results"
	CanVerifyLabResults     Capability = "can_verify_lab_results"
	CanViewLabResults       Capability = "can_view_lab_results"
	CanPrescribe            Capability = "can_prescribe"
	CanDispenseMedications  Capability = "can_dispense_medications"
	CanCancelPrescriptions  Capability = "can_cancel_prescriptions"
	CanViewPrescriptions    Capability = "can_view_prescriptions"
	CanManageCampaigns      Capability = "can_manage_campaigns"
	CanViewPatientReports   Capability = "can_view_patient_reports"
	CanManageUsers          Capability = "can_manage_users"
	CanViewAuditLog         Capability = "can_view_audit_log"
)

var capabilityDescriptions = map[Capability]string{
	CanRegister:             "Register new patients",
	CanEditDemographics:     "Edit patient demographics",
	CanViewDemographics:     "View patient demographics",
	CanEditVitals:           "Record and edit vital signs",
	CanViewVitals:           "View vital signs",
	CanConductConsultations: "Conduct medical consultations",
	CanViewConsultations:    "View consultations",
	CanOrderLabTests:        "Order and cancel laboratory tests",
	CanEnterLabResults:      "Enter laboratory results",
	CanVerifyLabResults:     "Verify laboratory results",
	CanViewLabResults:       "View laboratory results",
	CanPrescribe:            "Prescribe medications",
	CanDispenseMedications:  "Dispense medications",
	CanCancelPrescriptions:  "Cancel prescriptions",
	CanViewPrescriptions:    "View prescriptions",
	CanManageCampaigns:      "Manage campaigns and catalogs",
	CanViewPatientReports:   "View patient reports",
	CanManageUsers:          "Manage staff accounts and permissions",
	CanViewAuditLog:         "Read the audit log",
}

// Description returns the human readable label for c.
func (c Capability) Description() string {
	return capabilityDescriptions[c]
}

// Policy is the static role to capability table.
type Policy struct {
	grants map[Capability][]models.Role
}

// NewPolicy copies grants.
func NewPolicy(grants map[Capability][]models.Role) Policy {
	p := Policy{grants: make(map[Capability][]models.Role, len(grants))}
	for c, roles := range grants {
		p.grants[c] = append([]models.Role(nil), roles...)
	}
	return p
}

// DefaultPolicy returns the campaign capability table. Administrators hold every capability.
func DefaultPolicy() Policy {
	admin := models.RoleAdmin
	return NewPolicy(map[Capability][]models.Role{
		CanRegister:         {models.RoleRegistrationClerk, admin},
		CanEditDemographics: {models.RoleRegistrationClerk, admin},
		CanViewDemographics: {
			models.RoleRegistrationClerk, models.RoleVitalsClerk, models.RoleDoctor, models.RoleLabTechnician,
			models.RolePharmacyClerk, models.RoleCampaignManager, models.RoleDataAnalyst, admin,
		},
		CanEditVitals: {models.RoleVitalsClerk, admin},
		CanViewVitals: {
			models.RoleVitalsClerk, models.RoleDoctor, models.RoleLabTechnician,
			models.RoleCampaignManager, models.RoleDataAnalyst, admin,
		},
		CanConductConsultations: {models.RoleDoctor, admin},
		CanViewConsultations: {
			models.RoleDoctor, models.RoleLabTechnician, models.RolePharmacyClerk,
			models.RoleCampaignManager, models.RoleDataAnalyst, admin,
		},
		CanOrderLabTests:    {models.RoleDoctor, admin},
		CanEnterLabResults:  {models.RoleLabTechnician, admin},
		CanVerifyLabResults: {models.RoleLabTechnician, admin},
		CanViewLabResults: {
			models.RoleDoctor, models.RoleLabTechnician, models.RoleCampaignManager, models.RoleDataAnalyst, admin,
		},
		CanPrescribe:           {models.RoleDoctor, admin},
		CanDispenseMedications: {models.RolePharmacyClerk, admin},
		CanCancelPrescriptions: {models.RoleDoctor, models.RolePharmacyClerk, admin},
		CanViewPrescriptions: {
			models.RoleDoctor, models.RolePharmacyClerk, models.RoleCampaignManager, models.RoleDataAnalyst, admin,
		},
		CanManageCampaigns:    {models.RoleCampaignManager, admin},
		CanViewPatientReports: {models.RoleCampaignManager, models.RoleDataAnalyst, admin},
		CanManageUsers:        {admin},
		CanViewAuditLog:       {admin},
	})
}

// RolesFor lists the roles granted c, sorted.
func (p Policy) RolesFor(c Capability) []models.Role {
	roles := append([]models.Role(nil), p.grants[c]...)
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// CapabilitiesFor lists the capabilities granted to role, sorted.
func (p Policy) CapabilitiesFor(role models.Role) []Capability {
	var caps []Capability
	for c, roles := range p.grants {
		for _, r := range roles {
			if r == role {
				caps = append(caps, c)
				break
			}
		}
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}

// Capabilities lists every capability in the table, sorted.
func (p Policy) Capabilities() []Capability {
	caps := make([]Capability, 0, len(p.grants))
	for c := range p.grants {
		caps = append(caps, c)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}

// GroupGrants turns the table into seed rows, one per role group.
func (p Policy) GroupGrants(reg *Registry) []models.GroupGrant {
	var grants []models.GroupGrant
	for _, role := range reg.Roles() {
		group, _ := reg.GroupFor(role)
		grant := models.GroupGrant{Name: group}
		for _, c := range p.CapabilitiesFor(role) {
			grant.Permissions = append(grant.Permissions, models.Permission{
				Codename:    string(c),
				Description: c.Description(),
			})
		}
		grants = append(grants, grant)
	}
	return grants
}
