package models

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// PatientStatus tracks how far a patient has moved through the campaign workflow.
type PatientStatus string

const (
	PatientRegistered         PatientStatus = "registered"
	PatientVitalsTaken        PatientStatus = "vitals_taken"
	PatientConsultationDone   PatientStatus = "consultation_done"
	PatientLabOrdered         PatientStatus = "lab_ordered"
	PatientLabCompleted       PatientStatus = "lab_completed"
	PatientTreatmentCompleted PatientStatus = "treatment_completed"
	PatientDischarged         PatientStatus = "discharged"
)

var patientStatusRank = map[PatientStatus]int{
	PatientRegistered:         0,
	PatientVitalsTaken:        1,
	PatientConsultationDone:   2,
	PatientLabOrdered:         3,
	PatientLabCompleted:       4,
	PatientTreatmentCompleted: 5,
	PatientDischarged:         6,
}

// Rank orders statuses; unknown values rank below registered.
func (s PatientStatus) Rank() int {
	if r, ok := patientStatusRank[s]; ok {
		return r
	}
	return -1
}

func (s PatientStatus) Valid() bool {
	_, ok := patientStatusRank[s]
	return ok
}

// PatientStatuses lists every status in workflow order.
func PatientStatuses() []PatientStatus {
	return []PatientStatus{
		PatientRegistered, PatientVitalsTaken, PatientConsultationDone, PatientLabOrdered,
		PatientLabCompleted, PatientTreatmentCompleted, PatientDischarged,
	}
}

// Patient model
type Patient struct {
	ID                           int64               `gorm:"primaryKey;column:id" json:"id"`
	PatientID                    string              `gorm:"size:20;not null;uniqueIndex;column:patient_id" json:"patient_id"`
	CampaignID                   *int64              `gorm:"index;column:campaign_id" json:"campaign_id,omitempty"`
	FirstName                    string              `gorm:"size:100;not null;column:first_name" json:"first_name"`
	MiddleName                   string              `gorm:"size:100;column:middle_name" json:"middle_name,omitempty"`
	LastName                     string              `gorm:"size:100;not null;index;column:last_name" json:"last_name"`
	DateOfBirth                  *time.Time          `gorm:"column:date_of_birth" json:"date_of_birth,omitempty"`
	Age                          int                 `gorm:"not null;column:age" json:"age"`
	Gender                       string              `gorm:"size:1;not null;column:gender" json:"gender"`
	MaritalStatus                string              `gorm:"size:20;column:marital_status" json:"marital_status,omitempty"`
	PhoneNumber                  string              `gorm:"size:17;column:phone_number" json:"phone_number,omitempty"`
	Email                        string              `gorm:"size:255;column:email" json:"email,omitempty"`
	Address                      string              `gorm:"type:text;column:address" json:"address,omitempty"`
	EmergencyContactName         string              `gorm:"size:200;column:emergency_contact_name" json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone        string              `gorm:"size:17;column:emergency_contact_phone" json:"emergency_contact_phone,omitempty"`
	EmergencyContactRelationship string              `gorm:"size:50;column:emergency_contact_relationship" json:"emergency_contact_relationship,omitempty"`
	HealthArea                   string              `gorm:"size:200;column:health_area" json:"health_area"`
	ConsentGiven                 bool                `gorm:"not null;column:consent_given" json:"consent_given"`
	ConsentDate                  *time.Time          `gorm:"column:consent_date" json:"consent_date,omitempty"`
	RegisteredByID               int64               `gorm:"not null;index;column:registered_by_id" json:"registered_by_id"`
	RegistrationDate             time.Time           `gorm:"column:registration_date" json:"registration_date"`
	UpdatedAt                    time.Time           `gorm:"autoUpdateTime;column:updated_at" json:"updated_at"`
	Status                       PatientStatus       `gorm:"size:20;not null;default:registered;index;column:status" json:"status"`
	ClinicalParameters           *ClinicalParameters `gorm:"foreignKey:PatientID;references:ID" json:"clinical_parameters,omitempty"`
	Consultations                []Consultation      `gorm:"foreignKey:PatientID;references:ID" json:"-"`
}

func (Patient) TableName() string {
	return "patients"
}

func (p *Patient) FullName() string {
	if p.MiddleName != "" {
		return fmt.Sprintf("%s %s %s", p.FirstName, p.MiddleName, p.LastName)
	}
	return fmt.Sprintf("%s %s", p.FirstName, p.LastName)
}

// CanAdvanceTo reports whether moving to next keeps the status monotonic.
func (p *Patient) CanAdvanceTo(next PatientStatus) bool {
	return next.Valid() && next.Rank() > p.Status.Rank()
}

// PatientIDSequence holds the last issued sequence number per PREFIX-YEAR scope.
type PatientIDSequence struct {
	Scope     string `gorm:"primaryKey;size:30;column:scope"`
	LastValue int    `gorm:"not null;column:last_value"`
}

func (PatientIDSequence) TableName() string {
	return "patient_id_sequences"
}

// SequenceScope is the PREFIX-YEAR part of a patient identifier.
func SequenceScope(prefix string, year int) string {
	return fmt.Sprintf("%s-%d", prefix, year)
}

// FormatPatientID renders PREFIX-YEAR-NNNN.
func FormatPatientID(scope string, seq int) string {
	return fmt.Sprintf("%s-%04d", scope, seq)
}

// ClinicalParameters holds the vital signs recorded for a patient.
type ClinicalParameters struct {
	ID                  int64      `gorm:"primaryKey;column:id" json:"id"`
	PatientID           int64      `gorm:"not null;uniqueIndex;column:patient_id" json:"patient_id"`
	Weight              *float64   `gorm:"column:weight" json:"weight,omitempty"`
	Height              *float64   `gorm:"column:height" json:"height,omitempty"`
	Temperature         *float64   `gorm:"column:temperature" json:"temperature,omitempty"`
	SystolicBP          *int       `gorm:"column:systolic_bp" json:"systolic_bp,omitempty"`
	DiastolicBP         *int       `gorm:"column:diastolic_bp" json:"diastolic_bp,omitempty"`
	HeartRate           *int       `gorm:"column:heart_rate" json:"heart_rate,omitempty"`
	BloodGlucose        *float64   `gorm:"column:blood_glucose" json:"blood_glucose,omitempty"`
	GlucoseTestType     string     `gorm:"size:3;column:glucose_test_type" json:"glucose_test_type,omitempty"`
	LastMenstrualPeriod *time.Time `gorm:"column:last_menstrual_period" json:"last_menstrual_period,omitempty"`
	IsPregnant          bool       `gorm:"not null;default:false;column:is_pregnant" json:"is_pregnant"`
	GestationalAgeWeeks *int       `gorm:"column:gestational_age_weeks" json:"gestational_age_weeks,omitempty"`
	AgeAtFirstPregnancy *int       `gorm:"column:age_at_first_pregnancy" json:"age_at_first_pregnancy,omitempty"`
	Notes               string     `gorm:"type:text;column:notes" json:"notes,omitempty"`
	RecordedByID        int64      `gorm:"not null;column:recorded_by_id" json:"recorded_by_id"`
	RecordedAt          time.Time  `gorm:"autoCreateTime;column:recorded_at" json:"recorded_at"`
	UpdatedAt           time.Time  `gorm:"autoUpdateTime;column:updated_at" json:"updated_at"`
}

func (ClinicalParameters) TableName() string {
	return "clinical_parameters"
}

// MarshalJSON adds the derived BMI and blood pressure readings.
func (c ClinicalParameters) MarshalJSON() ([]byte, error) {
	type plain ClinicalParameters
	return json.Marshal(struct {
		plain
		BMI                   *float64 `json:"bmi,omitempty"`
		BMICategory           string   `json:"bmi_category,omitempty"`
		BloodPressureCategory string   `json:"bp_category,omitempty"`
	}{
		plain:                 plain(c),
		BMI:                   c.BMI(),
		BMICategory:           c.BMICategory(),
		BloodPressureCategory: c.BloodPressureCategory(),
	})
}

// BMI is weight(kg) / height(m)^2 rounded to one decimal, or nil when unknown.
func (c *ClinicalParameters) BMI() *float64 {
	if c.Weight == nil || c.Height == nil || *c.Height <= 0 {
		return nil
	}
	meters := *c.Height / 100
	bmi := math.Round(*c.Weight/(meters*meters)*10) / 10
	return &bmi
}

func (c *ClinicalParameters) BMICategory() string {
	bmi := c.BMI()
	switch {
	case bmi == nil:
		return ""
	case *bmi < 18.5:
		return "Underweight"
	case *bmi < 25:
		return "Normal weight"
	case *bmi < 30:
		return "Overweight"
	default:
		return "Obese"
	}
}

func (c *ClinicalParameters) BloodPressureCategory() string {
	if c.SystolicBP == nil || c.DiastolicBP == nil {
		return ""
	}
	sys, dia := *c.SystolicBP, *c.DiastolicBP
	switch {
	case sys < 120 && dia < 80:
		return "Normal"
	case sys < 130 && dia < 80:
		return "Elevated"
	case sys < 140 || dia < 90:
		return "High Blood Pressure Stage 1"
	case sys < 180 || dia < 120:
		return "High Blood Pressure Stage 2"
	default:
		return "Hypertensive Crisis"
	}
}
