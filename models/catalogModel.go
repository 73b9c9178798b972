package models

import (
	"time"
)

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignCompleted CampaignStatus = "completed"
	CampaignCancelled CampaignStatus = "cancelled"
)

// Campaign groups patients registered during one outreach effort.
type Campaign struct {
	ID          int64          `gorm:"primaryKey;column:id" json:"id"`
	Name        string         `gorm:"size:200;not null;uniqueIndex;column:name" json:"name"`
	Description string         `gorm:"type:text;column:description" json:"description"`
	StartDate   *time.Time     `gorm:"column:start_date" json:"start_date,omitempty"`
	EndDate     *time.Time     `gorm:"column:end_date" json:"end_date,omitempty"`
	HealthArea  string         `gorm:"size:200;column:health_area" json:"health_area"`
	ConsentText string         `gorm:"type:text;column:consent_text" json:"consent_text"`
	Status      CampaignStatus `gorm:"size:20;not null;default:draft;column:status" json:"status"`
	MaxPatients *int           `gorm:"column:max_patients" json:"max_patients,omitempty"`
	CreatedByID *int64         `gorm:"column:created_by_id" json:"created_by_id,omitempty"`
	CreatedAt   time.Time      `gorm:"autoCreateTime;column:created_at" json:"created_at"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

// LabTest is a catalog entry a doctor can order.
type LabTest struct {
	ID          int64  `gorm:"primaryKey;column:id" json:"id"`
	Name        string `gorm:"size:200;not null;column:name" json:"name"`
	Code        string `gorm:"size:20;not null;uniqueIndex;column:code" json:"code"`
	NormalRange string `gorm:"size:100;column:normal_range" json:"normal_range"`
	Unit        string `gorm:"size:50;column:unit" json:"unit"`
	Category    string `gorm:"size:100;column:category" json:"category"`
	IsActive    bool   `gorm:"not null;default:true;column:is_active" json:"is_active"`
}

func (LabTest) TableName() string {
	return "lab_tests"
}

// Drug is a formulary entry a doctor can prescribe.
type Drug struct {
	ID          int64  `gorm:"primaryKey;column:id" json:"id"`
	Name        string `gorm:"size:200;not null;column:name" json:"name"`
	GenericName string `gorm:"size:200;column:generic_name" json:"generic_name"`
	Strength    string `gorm:"size:50;column:strength" json:"strength"`
	DosageForm  string `gorm:"size:50;column:dosage_form" json:"dosage_form"`
	Category    string `gorm:"size:100;column:category" json:"category"`
	IsActive    bool   `gorm:"not null;default:true;column:is_active" json:"is_active"`
}

func (Drug) TableName() string {
	return "drugs"
}

// DisplayName is "Name Strength" when a strength is known.
func (d *Drug) DisplayName() string {
	if d.Strength == "" {
		return d.Name
	}
	return d.Name + " " + d.Strength
}
