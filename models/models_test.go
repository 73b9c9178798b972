package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int           { return &v }
func int64Ptr(v int64) *int64     { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestResolveCatalogChoice(t *testing.T) {
	tests := []struct {
		name      string
		catalogID *int64
		custom    string
		catalog   bool
		isCustom  bool
	}{
		{name: "catalog wins over custom", catalogID: int64Ptr(4), custom: "CBC", catalog: true},
		{name: "custom only", custom: "Malaria RDT", isCustom: true},
		{name: "blank custom is unspecified", custom: "   "},
		{name: "zero id is ignored", catalogID: int64Ptr(0), custom: "Widal", isCustom: true},
		{name: "nothing given"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ResolveCatalogChoice(tt.catalogID, tt.custom)
			assert.Equal(t, tt.catalog, c.IsCatalog())
			assert.Equal(t, tt.isCustom, c.IsCustom())
			assert.Equal(t, !tt.catalog && !tt.isCustom, c.IsUnspecified())
		})
	}
}

func TestLabOrderSetTestClearsOtherColumn(t *testing.T) {
	order := &LabOrder{CustomTestName: "old"}
	order.SetTest(CatalogRef(7))
	assert.Equal(t, int64(7), *order.LabTestID)
	assert.Empty(t, order.CustomTestName)

	order.SetTest(CustomName("Urinalysis"))
	assert.Nil(t, order.LabTestID)
	assert.Equal(t, "Urinalysis", order.TestName())
	assert.Equal(t, CustomTestCategory, order.TestCategory())
}

func TestLabOrderPlaceholderName(t *testing.T) {
	order := &LabOrder{}
	order.SetTest(Unspecified())
	assert.Equal(t, "Lab Test (To be specified)", order.TestName())

	order.SetTest(CatalogRef(3))
	order.LabTest = &LabTest{ID: 3, Name: "Full Blood Count", Category: "Hematology"}
	assert.Equal(t, "Full Blood Count", order.TestName())
	assert.Equal(t, "Hematology", order.TestCategory())
}

func TestPrescriptionRefreshPharmacyStatus(t *testing.T) {
	p := &Prescription{Dosage: "500mg", Frequency: "", Duration: "7 days", PharmacyStatus: PharmacyPendingReview}
	p.RefreshPharmacyStatus()
	assert.Equal(t, PharmacyDetailsNeeded, p.PharmacyStatus)

	p.Frequency = "twice daily"
	p.RefreshPharmacyStatus()
	assert.Equal(t, PharmacyReadyToDispense, p.PharmacyStatus)

	p.Duration = " "
	p.RefreshPharmacyStatus()
	assert.Equal(t, PharmacyDetailsNeeded, p.PharmacyStatus)

	for _, terminal := range []PharmacyStatus{PharmacyDispensed, PharmacyCancelled} {
		p := &Prescription{PharmacyStatus: terminal}
		p.RefreshPharmacyStatus()
		assert.Equal(t, terminal, p.PharmacyStatus)
	}
}

func TestPrescriptionMedicationName(t *testing.T) {
	p := &Prescription{}
	assert.Equal(t, MedicationPlaceholder, p.MedicationName())

	p.SetMedication(CatalogRef(2))
	p.Drug = &Drug{ID: 2, Name: "Amoxicillin", Strength: "500mg"}
	assert.Equal(t, "Amoxicillin 500mg", p.MedicationName())
}

func TestPatientStatusRank(t *testing.T) {
	statuses := PatientStatuses()
	for i := 1; i < len(statuses); i++ {
		assert.Greater(t, statuses[i].Rank(), statuses[i-1].Rank())
	}

	p := &Patient{Status: PatientLabCompleted}
	assert.False(t, p.CanAdvanceTo(PatientLabOrdered))
	assert.False(t, p.CanAdvanceTo(PatientLabCompleted))
	assert.True(t, p.CanAdvanceTo(PatientDischarged))
	assert.False(t, p.CanAdvanceTo(PatientStatus("bogus")))
}

func TestFormatPatientID(t *testing.T) {
	assert.Equal(t, "HC-2026-0042", FormatPatientID(SequenceScope("HC", 2026), 42))
}

func TestClinicalDerivedValues(t *testing.T) {
	c := &ClinicalParameters{Weight: floatPtr(70), Height: floatPtr(175)}
	assert.InDelta(t, 22.9, *c.BMI(), 0.001)
	assert.Equal(t, "Normal weight", c.BMICategory())

	c.SystolicBP, c.DiastolicBP = intPtr(135), intPtr(85)
	assert.Equal(t, "High Blood Pressure Stage 1", c.BloodPressureCategory())

	c.SystolicBP, c.DiastolicBP = intPtr(185), intPtr(125)
	assert.Equal(t, "Hypertensive Crisis", c.BloodPressureCategory())

	empty := &ClinicalParameters{}
	assert.Nil(t, empty.BMI())
	assert.Empty(t, empty.BloodPressureCategory())
}

func TestLabResultAttention(t *testing.T) {
	r := &LabResult{Interpretation: InterpretationCriticalHigh}
	assert.True(t, r.NeedsAttention())
	assert.True(t, r.IsAbnormal())

	r = &LabResult{Interpretation: InterpretationNormal}
	assert.False(t, r.NeedsAttention())
	r.IsCritical = true
	assert.True(t, r.NeedsAttention())

	r.ApplyCatalogDefaults(&LabTest{NormalRange: "4.0-11.0", Unit: "x10^9/L"})
	assert.Equal(t, "4.0-11.0", r.ReferenceRange)
	assert.Equal(t, "x10^9/L", r.ResultUnit)
}

func TestDerivedValuesInJSON(t *testing.T) {
	c := ClinicalParameters{PatientID: 3, Weight: floatPtr(70), Height: floatPtr(175), SystolicBP: intPtr(118), DiastolicBP: intPtr(76)}
	raw, err := json.Marshal(Patient{PatientID: "HC-2025-0003", ClinicalParameters: &c})
	assert.NoError(t, err)
	var out struct {
		ClinicalParameters map[string]interface{} `json:"clinical_parameters"`
	}
	assert.NoError(t, json.Unmarshal(raw, &out))
	assert.InDelta(t, 22.9, out.ClinicalParameters["bmi"], 0.001)
	assert.Equal(t, "Normal weight", out.ClinicalParameters["bmi_category"])
	assert.Equal(t, "Normal", out.ClinicalParameters["bp_category"])
	assert.EqualValues(t, 3, out.ClinicalParameters["patient_id"])

	raw, err = json.Marshal(LabResult{ResultValue: "7.9", Interpretation: InterpretationCriticalLow})
	assert.NoError(t, err)
	var result map[string]interface{}
	assert.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, true, result["needs_attention"])
	assert.Equal(t, false, result["is_verified"])
	assert.Equal(t, "7.9", result["result_value"])
}

func TestDisplayNamesInJSON(t *testing.T) {
	raw, err := json.Marshal(LabOrder{ID: 1, Urgency: UrgencyRoutine, LabStatus: LabOrdered})
	assert.NoError(t, err)
	var order map[string]interface{}
	assert.NoError(t, json.Unmarshal(raw, &order))
	assert.Equal(t, LabTestPlaceholder, order["test_name"])
	assert.Equal(t, CustomTestCategory, order["test_category"])
	assert.Equal(t, "ordered", order["lab_status"])

	raw, err = json.Marshal(LabOrder{
		LabTestID: int64Ptr(4),
		LabTest:   &LabTest{ID: 4, Name: "Fasting Blood Sugar", Code: "FBS", Category: "Chemistry"},
	})
	assert.NoError(t, err)
	assert.NoError(t, json.Unmarshal(raw, &order))
	assert.Equal(t, "Fasting Blood Sugar", order["test_name"])
	assert.Equal(t, "Chemistry", order["test_category"])

	raw, err = json.Marshal(Consultation{Prescriptions: []Prescription{
		{ID: 2},
		{ID: 3, DrugID: int64Ptr(9), Drug: &Drug{ID: 9, Name: "Amoxicillin", Strength: "500mg"}},
	}})
	assert.NoError(t, err)
	var c struct {
		Prescriptions []map[string]interface{} `json:"prescriptions"`
	}
	assert.NoError(t, json.Unmarshal(raw, &c))
	if assert.Len(t, c.Prescriptions, 2) {
		assert.Equal(t, MedicationPlaceholder, c.Prescriptions[0]["medication_name"])
		assert.Equal(t, "Amoxicillin 500mg", c.Prescriptions[1]["medication_name"])
	}
}
