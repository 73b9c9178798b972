package utils

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"CampaignClinic/models"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

var phoneRegex = regexp.MustCompile(`^\+?1?\d{9,15}$`)

var (
	ErrConsentRequired = errors.New("patient consent is required for registration")
	ErrFutureBirthDate = errors.New("date of birth cannot be in the future")
	ErrPhoneFormat     = errors.New("phone number must be entered in the format '+999999999' with 9 to 15 digits")
	ErrSystolicTooLow  = errors.New("systolic blood pressure must be higher than diastolic blood pressure")
	ErrGestationalAge  = errors.New("gestational age is required if patient is pregnant")
)

// CompletedYears is the age in whole years on day today.
func CompletedYears(dob, today time.Time) int {
	years := today.Year() - dob.Year()
	if today.Month() < dob.Month() || (today.Month() == dob.Month() && today.Day() < dob.Day()) {
		years--
	}
	return years
}

// ValidatePatient checks demographics and consent. today anchors the
// date-of-birth checks.
func ValidatePatient(p models.Patient, today time.Time) error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.FirstName, validation.Required, validation.Length(1, 100)),
		validation.Field(&p.MiddleName, validation.Length(0, 100)),
		validation.Field(&p.LastName, validation.Required, validation.Length(1, 100)),
		validation.Field(&p.Age, validation.Min(0), validation.Max(150), validation.By(ageMatchesBirthDate(p.DateOfBirth, today))),
		validation.Field(&p.DateOfBirth, validation.By(notAfter(today))),
		validation.Field(&p.Gender, validation.Required, validation.In("M", "F", "O")),
		validation.Field(&p.MaritalStatus, validation.In("single", "married", "divorced", "widowed", "separated")),
		validation.Field(&p.PhoneNumber, validation.Match(phoneRegex).ErrorObject(validation.NewError("validation_phone", ErrPhoneFormat.Error()))),
		validation.Field(&p.EmergencyContactPhone, validation.Match(phoneRegex).ErrorObject(validation.NewError("validation_phone", ErrPhoneFormat.Error()))),
		validation.Field(&p.Email, is.EmailFormat),
		validation.Field(&p.HealthArea, validation.Required, validation.Length(1, 200)),
		validation.Field(&p.ConsentGiven, validation.Required.ErrorObject(validation.NewError("validation_consent", ErrConsentRequired.Error()))),
	)
}

func ageMatchesBirthDate(dob *time.Time, today time.Time) validation.RuleFunc {
	return func(value interface{}) error {
		age, _ := value.(int)
		if dob == nil {
			return nil
		}
		// Exact match: no one-year tolerance around birthdays.
		if expected := CompletedYears(*dob, today); expected != age {
			return fmt.Errorf("age must equal the completed years since date of birth: expected exactly %d", expected)
		}
		return nil
	}
}

func notAfter(today time.Time) validation.RuleFunc {
	return func(value interface{}) error {
		dob, _ := value.(*time.Time)
		if dob != nil && dob.After(today) {
			return ErrFutureBirthDate
		}
		return nil
	}
}

// ValidateVitals checks ranges and the blood pressure and pregnancy rules.
func ValidateVitals(v models.ClinicalParameters) error {
	return validation.ValidateStruct(&v,
		validation.Field(&v.Weight, validation.NilOrNotEmpty, validation.Min(0.1), validation.Max(999.99)),
		validation.Field(&v.Height, validation.NilOrNotEmpty, validation.Min(1.0), validation.Max(999.99)),
		validation.Field(&v.Temperature, validation.NilOrNotEmpty, validation.Min(25.0), validation.Max(45.0)),
		validation.Field(&v.SystolicBP, validation.NilOrNotEmpty, validation.Min(50), validation.Max(300), validation.By(systolicAbove(v.DiastolicBP))),
		validation.Field(&v.DiastolicBP, validation.NilOrNotEmpty, validation.Min(30), validation.Max(200)),
		validation.Field(&v.HeartRate, validation.NilOrNotEmpty, validation.Min(30), validation.Max(250)),
		validation.Field(&v.BloodGlucose, validation.Min(0.0), validation.Max(999.99)),
		validation.Field(&v.GlucoseTestType, validation.In("fbs", "rbs", "pp")),
		validation.Field(&v.GestationalAgeWeeks,
			validation.When(v.IsPregnant, validation.Required.ErrorObject(validation.NewError("validation_gestational_age", ErrGestationalAge.Error()))),
			validation.Min(1), validation.Max(42)),
		validation.Field(&v.AgeAtFirstPregnancy, validation.Min(10), validation.Max(50)),
	)
}

func systolicAbove(diastolic *int) validation.RuleFunc {
	return func(value interface{}) error {
		systolic, _ := value.(*int)
		if systolic == nil || diastolic == nil {
			return nil
		}
		if *systolic <= *diastolic {
			return ErrSystolicTooLow
		}
		return nil
	}
}
