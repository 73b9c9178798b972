package models

import (
	"time"

	"gorm.io/gorm"
)

// Role is a staff job function. The empty Role means "unassigned".
type Role string

const (
	RoleAdmin             Role = "admin"
	RoleCampaignManager   Role = "campaign_manager"
	RoleRegistrationClerk Role = "registration_clerk"
	RoleVitalsClerk       Role = "vitals_clerk"
	RoleDoctor            Role = "doctor"
	RoleLabTechnician     Role = "lab_technician"
	RolePharmacyClerk     Role = "pharmacy_clerk"
	RoleDataAnalyst       Role = "data_analyst"
)

// User is a staff account.
type User struct {
	ID          int64     `gorm:"primaryKey;column:id" json:"id"`
	Username    string    `gorm:"size:150;not null;uniqueIndex;column:username" json:"username"`
	Email       string    `gorm:"size:255;column:email" json:"email"`
	Password    string    `gorm:"size:255;not null;column:password" json:"-"`
	FirstName   string    `gorm:"size:150;column:first_name" json:"first_name"`
	LastName    string    `gorm:"size:150;column:last_name" json:"last_name"`
	Role        Role      `gorm:"size:30;index;column:role" json:"role"`
	EmployeeID  *string   `gorm:"size:20;uniqueIndex;column:employee_id" json:"employee_id,omitempty"`
	PhoneNumber string    `gorm:"size:17;column:phone_number" json:"phone_number,omitempty"`
	Department  string    `gorm:"size:100;column:department" json:"department,omitempty"`
	IsActive    bool      `gorm:"not null;default:true;column:is_active" json:"is_active"`
	IsStaff     bool      `gorm:"not null;default:false;column:is_staff" json:"is_staff"`
	IsSuperuser bool      `gorm:"not null;default:false;column:is_superuser" json:"is_superuser"`
	Groups      []Group   `gorm:"many2many:user_groups;" json:"groups,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime;column:created_at" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime;column:updated_at" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// FullName returns "First Last", falling back to the username.
func (u *User) FullName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		return u.Username
	}
	return name
}

// GroupNames lists the names of the loaded groups.
func (u *User) GroupNames() []string {
	names := make([]string, 0, len(u.Groups))
	for _, g := range u.Groups {
		names = append(names, g.Name)
	}
	return names
}

// Group is an access-control bucket. Role groups correspond one to one with roles.
type Group struct {
	ID          int64        `gorm:"primaryKey;column:id" json:"id"`
	Name        string       `gorm:"size:150;not null;uniqueIndex;column:name" json:"name"`
	Permissions []Permission `gorm:"many2many:group_permissions;" json:"permissions,omitempty"`
}

func (Group) TableName() string {
	return "staff_groups"
}

// Permission is a single capability granted through a group.
type Permission struct {
	ID          int64  `gorm:"primaryKey;column:id" json:"id"`
	Codename    string `gorm:"size:100;not null;uniqueIndex;column:codename" json:"codename"`
	Description string `gorm:"type:text;column:description" json:"description"`
}

func (Permission) TableName() string {
	return "permissions"
}

// GroupGrant describes a group to provision and the capabilities it holds.
type GroupGrant struct {
	Name        string
	Permissions []Permission
}

// SeedGroups creates the given groups and permissions and attaches each
// group's permissions. Existing rows are reused.
func SeedGroups(db *gorm.DB, grants []GroupGrant) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, grant := range grants {
			group := Group{Name: grant.Name}
			if err := tx.FirstOrCreate(&group, Group{Name: grant.Name}).Error; err != nil {
				return err
			}

			perms := make([]Permission, 0, len(grant.Permissions))
			for _, p := range grant.Permissions {
				perm := p
				if err := tx.Where(Permission{Codename: p.Codename}).
					Attrs(Permission{Description: p.Description}).
					FirstOrCreate(&perm).Error; err != nil {
					return err
				}
				perms = append(perms, perm)
			}
			if len(perms) > 0 {
				if err := tx.Model(&group).Association("Permissions").Append(perms); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
