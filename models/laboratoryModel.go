package models

import (
	"encoding/json"
	"strings"
	"time"
)

type Interpretation string

const (
	InterpretationNormal       Interpretation = "normal"
	InterpretationAbnormalLow  Interpretation = "abnormal_low"
	InterpretationAbnormalHigh Interpretation = "abnormal_high"
	InterpretationCriticalLow  Interpretation = "critical_low"
	InterpretationCriticalHigh Interpretation = "critical_high"
	InterpretationInconclusive Interpretation = "inconclusive"
)

func (i Interpretation) Valid() bool {
	switch i {
	case InterpretationNormal, InterpretationAbnormalLow, InterpretationAbnormalHigh,
		InterpretationCriticalLow, InterpretationCriticalHigh, InterpretationInconclusive:
		return true
	}
	return false
}

func (i Interpretation) Critical() bool {
	return i == InterpretationCriticalLow || i == InterpretationCriticalHigh
}

type SampleQuality string

const (
	SampleGood         SampleQuality = "good"
	SampleAcceptable   SampleQuality = "acceptable"
	SamplePoor         SampleQuality = "poor"
	SampleHemolyzed    SampleQuality = "hemolyzed"
	SampleClotted      SampleQuality = "clotted"
	SampleInsufficient SampleQuality = "insufficient"
)

func (q SampleQuality) Valid() bool {
	switch q {
	case SampleGood, SampleAcceptable, SamplePoor, SampleHemolyzed, SampleClotted, SampleInsufficient:
		return true
	}
	return false
}

// LabResult is the outcome entered for a lab order.
type LabResult struct {
	ID                   int64          `gorm:"primaryKey;column:id" json:"id"`
	LabOrderID           int64          `gorm:"not null;uniqueIndex;column:lab_order_id" json:"lab_order_id"`
	LabOrder             *LabOrder      `gorm:"foreignKey:LabOrderID;references:ID" json:"-"`
	ResultValue          string         `gorm:"type:text;not null;column:result_value" json:"result_value"`
	ResultUnit           string         `gorm:"size:50;column:result_unit" json:"result_unit,omitempty"`
	ReferenceRange       string         `gorm:"size:100;column:reference_range" json:"reference_range,omitempty"`
	Interpretation       Interpretation `gorm:"size:20;column:interpretation" json:"interpretation,omitempty"`
	TechnicianNotes      string         `gorm:"type:text;column:technician_notes" json:"technician_notes,omitempty"`
	ClinicalConclusion   string         `gorm:"type:text;column:clinical_conclusion" json:"clinical_conclusion,omitempty"`
	SampleQuality        SampleQuality  `gorm:"size:20;not null;default:good;column:sample_quality" json:"sample_quality"`
	TestMethod           string         `gorm:"size:100;column:test_method" json:"test_method,omitempty"`
	IsCritical           bool           `gorm:"not null;default:false;column:is_critical" json:"is_critical"`
	CriticalNotified     bool           `gorm:"not null;default:false;column:critical_notified" json:"critical_notified"`
	CriticalNotifiedAt   *time.Time     `gorm:"column:critical_notified_at" json:"critical_notified_at,omitempty"`
	CriticalNotifiedByID *int64         `gorm:"column:critical_notified_by_id" json:"critical_notified_by_id,omitempty"`
	CriticalNotifiedTo   string         `gorm:"size:200;column:critical_notified_to" json:"critical_notified_to,omitempty"`
	TechnicianID         int64          `gorm:"not null;index;column:technician_id" json:"technician_id"`
	ResultDate           time.Time      `gorm:"column:result_date" json:"result_date"`
	VerifiedByID         *int64         `gorm:"column:verified_by_id" json:"verified_by_id,omitempty"`
	VerifiedAt           *time.Time     `gorm:"column:verified_at" json:"verified_at,omitempty"`
	CreatedAt            time.Time      `gorm:"autoCreateTime;column:created_at" json:"created_at"`
	UpdatedAt            time.Time      `gorm:"autoUpdateTime;column:updated_at" json:"updated_at"`
}

func (LabResult) TableName() string {
	return "lab_results"
}

// MarshalJSON adds the attention, abnormal and verified flags.
func (r LabResult) MarshalJSON() ([]byte, error) {
	type plain LabResult
	return json.Marshal(struct {
		plain
		NeedsAttention bool `json:"needs_attention"`
		IsAbnormal     bool `json:"is_abnormal"`
		IsVerified     bool `json:"is_verified"`
	}{
		plain:          plain(r),
		NeedsAttention: r.NeedsAttention(),
		IsAbnormal:     r.IsAbnormal(),
		IsVerified:     r.IsVerified(),
	})
}

// NeedsAttention is true for results flagged critical or interpreted as critical.
func (r *LabResult) NeedsAttention() bool {
	return r.IsCritical || r.Interpretation.Critical()
}

func (r *LabResult) IsAbnormal() bool {
	return r.Interpretation != "" && r.Interpretation != InterpretationNormal && r.Interpretation != InterpretationInconclusive
}

func (r *LabResult) IsVerified() bool {
	return r.VerifiedByID != nil
}

// ApplyCatalogDefaults fills unit and reference range from the ordered test.
func (r *LabResult) ApplyCatalogDefaults(test *LabTest) {
	if test == nil {
		return
	}
	if strings.TrimSpace(r.ReferenceRange) == "" {
		r.ReferenceRange = test.NormalRange
	}
	if strings.TrimSpace(r.ResultUnit) == "" {
		r.ResultUnit = test.Unit
	}
}
