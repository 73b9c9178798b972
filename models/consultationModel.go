package models

import (
	"encoding/json"
	"strings"
	"time"
)

type ConsultationStatus string

const (
	ConsultationInProgress     ConsultationStatus = "in_progress"
	ConsultationCompleted      ConsultationStatus = "completed"
	ConsultationFollowUpNeeded ConsultationStatus = "follow_up_needed"
)

func (s ConsultationStatus) Valid() bool {
	switch s {
	case ConsultationInProgress, ConsultationCompleted, ConsultationFollowUpNeeded:
		return true
	}
	return false
}

// Consultation is one doctor's encounter with a patient.
type Consultation struct {
	ID                      int64              `gorm:"primaryKey;column:id" json:"id"`
	PatientID               int64              `gorm:"not null;index;column:patient_id" json:"patient_id"`
	Patient                 *Patient           `gorm:"foreignKey:PatientID;references:ID" json:"patient,omitempty"`
	DoctorID                int64              `gorm:"not null;index;column:doctor_id" json:"doctor_id"`
	ConsultationDate        time.Time          `gorm:"column:consultation_date" json:"consultation_date"`
	ChiefComplaint          string             `gorm:"type:text;column:chief_complaint" json:"chief_complaint"`
	HistoryOfPresentIllness string             `gorm:"type:text;column:history_of_present_illness" json:"history_of_present_illness"`
	PhysicalExamination     string             `gorm:"type:text;column:physical_examination" json:"physical_examination"`
	Assessment              string             `gorm:"type:text;column:assessment" json:"assessment"`
	Diagnosis               string             `gorm:"type:text;column:diagnosis" json:"diagnosis"`
	TreatmentPlan           string             `gorm:"type:text;column:treatment_plan" json:"treatment_plan"`
	Recommendations         string             `gorm:"type:text;column:recommendations" json:"recommendations"`
	FollowUpNotes           string             `gorm:"type:text;column:follow_up_notes" json:"follow_up_notes"`
	ReferralNeeded          bool               `gorm:"not null;default:false;column:referral_needed" json:"referral_needed"`
	ReferralTo              string             `gorm:"size:200;column:referral_to" json:"referral_to,omitempty"`
	ReferralReason          string             `gorm:"type:text;column:referral_reason" json:"referral_reason,omitempty"`
	Status                  ConsultationStatus `gorm:"size:20;not null;default:in_progress;column:status" json:"status"`
	LabOrders               []LabOrder         `gorm:"foreignKey:ConsultationID;references:ID" json:"lab_orders,omitempty"`
	Prescriptions           []Prescription     `gorm:"foreignKey:ConsultationID;references:ID" json:"prescriptions,omitempty"`
	CreatedAt               time.Time          `gorm:"autoCreateTime;column:created_at" json:"created_at"`
	UpdatedAt               time.Time          `gorm:"autoUpdateTime;column:updated_at" json:"updated_at"`
}

func (Consultation) TableName() string {
	return "consultations"
}

type LabStatus string

const (
	LabOrdered   LabStatus = "ordered"
	LabCompleted LabStatus = "completed"
	LabCancelled LabStatus = "cancelled"
)

type Urgency string

const (
	UrgencyRoutine Urgency = "routine"
	UrgencyUrgent  Urgency = "urgent"
	UrgencyStat    Urgency = "stat"
)

func (u Urgency) Valid() bool {
	switch u {
	case UrgencyRoutine, UrgencyUrgent, UrgencyStat:
		return true
	}
	return false
}

const (
	LabTestPlaceholder    = "Lab Test (To be specified)"
	MedicationPlaceholder = "Medication (To be specified)"
	CustomTestCategory    = "Custom Test"
)

// LabOrder is a test requested during a consultation.
type LabOrder struct {
	ID                 int64         `gorm:"primaryKey;column:id" json:"id"`
	ConsultationID     int64         `gorm:"not null;index;column:consultation_id" json:"consultation_id"`
	Consultation       *Consultation `gorm:"foreignKey:ConsultationID;references:ID" json:"-"`
	LabTestID          *int64        `gorm:"column:lab_test_id" json:"lab_test_id,omitempty"`
	LabTest            *LabTest      `gorm:"foreignKey:LabTestID;references:ID" json:"lab_test,omitempty"`
	CustomTestName     string        `gorm:"size:200;column:custom_test_name" json:"custom_test_name,omitempty"`
	OrderedDate        time.Time     `gorm:"column:ordered_date" json:"ordered_date"`
	Urgency            Urgency       `gorm:"size:10;not null;default:routine;column:urgency" json:"urgency"`
	ClinicalIndication string        `gorm:"type:text;column:clinical_indication" json:"clinical_indication,omitempty"`
	Notes              string        `gorm:"type:text;column:notes" json:"notes,omitempty"`
	LabStatus          LabStatus     `gorm:"size:20;not null;default:ordered;index;column:lab_status" json:"lab_status"`
	Result             *LabResult    `gorm:"foreignKey:LabOrderID;references:ID" json:"result,omitempty"`
}

func (LabOrder) TableName() string {
	return "lab_orders"
}

// Test returns which test was ordered.
func (o *LabOrder) Test() CatalogChoice {
	return choiceFromColumns(o.LabTestID, o.CustomTestName)
}

// SetTest stores exactly one of the catalog reference or custom name.
func (o *LabOrder) SetTest(choice CatalogChoice) {
	o.LabTestID, o.CustomTestName = choice.columns()
	if !choice.IsCatalog() {
		o.LabTest = nil
	}
}

// TestName resolves the display name. LabTest must be preloaded for catalog orders.
func (o *LabOrder) TestName() string {
	choice := o.Test()
	switch {
	case choice.IsCatalog() && o.LabTest != nil:
		return o.LabTest.Name
	case choice.IsCustom():
		name, _ := choice.Custom()
		return name
	default:
		return LabTestPlaceholder
	}
}

func (o *LabOrder) TestCategory() string {
	if o.Test().IsCatalog() && o.LabTest != nil && o.LabTest.Category != "" {
		return o.LabTest.Category
	}
	return CustomTestCategory
}

// MarshalJSON adds the resolved test name and category.
func (o LabOrder) MarshalJSON() ([]byte, error) {
	type plain LabOrder
	return json.Marshal(struct {
		plain
		TestName     string `json:"test_name"`
		TestCategory string `json:"test_category"`
	}{
		plain:        plain(o),
		TestName:     o.TestName(),
		TestCategory: o.TestCategory(),
	})
}

type PharmacyStatus string

const (
	PharmacyPendingReview   PharmacyStatus = "pending_review"
	PharmacyDetailsNeeded   PharmacyStatus = "details_needed"
	PharmacyReadyToDispense PharmacyStatus = "ready_to_dispense"
	PharmacyDispensed       PharmacyStatus = "dispensed"
	PharmacyCancelled       PharmacyStatus = "cancelled"
)

// Terminal statuses are never recomputed.
func (s PharmacyStatus) Terminal() bool {
	return s == PharmacyDispensed || s == PharmacyCancelled
}

type Route string

const (
	RouteOral       Route = "oral"
	RouteTopical    Route = "topical"
	RouteInjection  Route = "injection"
	RouteInhalation Route = "inhalation"
	RouteOther      Route = "other"
)

func (r Route) Valid() bool {
	switch r {
	case RouteOral, RouteTopical, RouteInjection, RouteInhalation, RouteOther:
		return true
	}
	return false
}

// Prescription is a medication ordered during a consultation.
type Prescription struct {
	ID                 int64          `gorm:"primaryKey;column:id" json:"id"`
	ConsultationID     int64          `gorm:"not null;index;column:consultation_id" json:"consultation_id"`
	Consultation       *Consultation  `gorm:"foreignKey:ConsultationID;references:ID" json:"-"`
	DrugID             *int64         `gorm:"column:drug_id" json:"drug_id,omitempty"`
	Drug               *Drug          `gorm:"foreignKey:DrugID;references:ID" json:"drug,omitempty"`
	CustomDrugName     string         `gorm:"size:200;column:custom_drug_name" json:"custom_drug_name,omitempty"`
	Dosage             string         `gorm:"size:100;column:dosage" json:"dosage"`
	Frequency          string         `gorm:"size:100;column:frequency" json:"frequency"`
	Duration           string         `gorm:"size:100;column:duration" json:"duration"`
	Route              Route          `gorm:"size:20;not null;default:oral;column:route" json:"route"`
	Instructions       string         `gorm:"type:text;column:instructions" json:"instructions,omitempty"`
	Indication         string         `gorm:"size:200;column:indication" json:"indication,omitempty"`
	QuantityPrescribed *int           `gorm:"column:quantity_prescribed" json:"quantity_prescribed,omitempty"`
	RefillsAllowed     int            `gorm:"not null;default:0;column:refills_allowed" json:"refills_allowed"`
	PharmacyStatus     PharmacyStatus `gorm:"size:20;not null;default:pending_review;index;column:pharmacy_status" json:"pharmacy_status"`
	DispensedByID      *int64         `gorm:"column:dispensed_by_id" json:"dispensed_by_id,omitempty"`
	DispensedDate      *time.Time     `gorm:"column:dispensed_date" json:"dispensed_date,omitempty"`
	DispensedQuantity  *int           `gorm:"column:dispensed_quantity" json:"dispensed_quantity,omitempty"`
	PharmacyNotes      string         `gorm:"type:text;column:pharmacy_notes" json:"pharmacy_notes,omitempty"`
	CreatedAt          time.Time      `gorm:"autoCreateTime;column:created_at" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime;column:updated_at" json:"updated_at"`
}

func (Prescription) TableName() string {
	return "prescriptions"
}

func (p *Prescription) Medication() CatalogChoice {
	return choiceFromColumns(p.DrugID, p.CustomDrugName)
}

func (p *Prescription) SetMedication(choice CatalogChoice) {
	p.DrugID, p.CustomDrugName = choice.columns()
	if !choice.IsCatalog() {
		p.Drug = nil
	}
}

// MedicationName resolves the display name. Drug must be preloaded for catalog prescriptions.
func (p *Prescription) MedicationName() string {
	choice := p.Medication()
	switch {
	case choice.IsCatalog() && p.Drug != nil:
		return p.Drug.DisplayName()
	case choice.IsCustom():
		name, _ := choice.Custom()
		return name
	default:
		return MedicationPlaceholder
	}
}

func (p Prescription) MarshalJSON() ([]byte, error) {
	type plain Prescription
	return json.Marshal(struct {
		plain
		MedicationName string `json:"medication_name"`
	}{
		plain:          plain(p),
		MedicationName: p.MedicationName(),
	})
}

// HasCompleteDetails reports whether dosage, frequency and duration are all set.
func (p *Prescription) HasCompleteDetails() bool {
	return strings.TrimSpace(p.Dosage) != "" &&
		strings.TrimSpace(p.Frequency) != "" &&
		strings.TrimSpace(p.Duration) != ""
}

// RefreshPharmacyStatus recomputes the status from field completeness.
// Dispensed and cancelled prescriptions keep their status.
func (p *Prescription) RefreshPharmacyStatus() {
	if p.PharmacyStatus.Terminal() {
		return
	}
	if p.HasCompleteDetails() {
		p.PharmacyStatus = PharmacyReadyToDispense
	} else {
		p.PharmacyStatus = PharmacyDetailsNeeded
	}
}
