package utils

import (
	"errors"
	"strings"

	"CampaignClinic/models"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	ErrCriticalMismatch = errors.New("critical results must have a critical_low or critical_high interpretation")
	ErrSampleNotes      = errors.New("please provide notes explaining the sample quality issue")
	ErrReferralTarget   = errors.New("referral destination is required when a referral is needed")
)

func ValidateConsultation(c models.Consultation) error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Status, validation.Required, validation.By(func(value interface{}) error {
			if s, _ := value.(models.ConsultationStatus); !s.Valid() {
				return errors.New("must be in_progress, completed or follow_up_needed")
			}
			return nil
		})),
		validation.Field(&c.ReferralTo,
			validation.When(c.ReferralNeeded, validation.Required.ErrorObject(validation.NewError("validation_referral", ErrReferralTarget.Error()))),
			validation.Length(0, 200)),
	)
}

func ValidateLabOrder(o models.LabOrder) error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.Urgency, validation.Required, validation.In(models.UrgencyRoutine, models.UrgencyUrgent, models.UrgencyStat)),
		validation.Field(&o.CustomTestName, validation.Length(0, 200)),
	)
}

// ValidateLabResult checks the entered values. Poor samples need an explanation
// and a critical flag needs a critical interpretation.
func ValidateLabResult(r models.LabResult) error {
	poorSample := r.SampleQuality != models.SampleGood && r.SampleQuality != models.SampleAcceptable
	return validation.ValidateStruct(&r,
		validation.Field(&r.ResultValue, validation.Required.Error("result value is required")),
		validation.Field(&r.Interpretation,
			validation.In(models.InterpretationNormal, models.InterpretationAbnormalLow, models.InterpretationAbnormalHigh,
				models.InterpretationCriticalLow, models.InterpretationCriticalHigh, models.InterpretationInconclusive),
			validation.When(r.IsCritical, validation.By(func(value interface{}) error {
				if i, _ := value.(models.Interpretation); !i.Critical() {
					return ErrCriticalMismatch
				}
				return nil
			}))),
		validation.Field(&r.SampleQuality, validation.Required, validation.In(models.SampleGood, models.SampleAcceptable,
			models.SamplePoor, models.SampleHemolyzed, models.SampleClotted, models.SampleInsufficient)),
		validation.Field(&r.TechnicianNotes, validation.When(poorSample && strings.TrimSpace(r.TechnicianNotes) == "",
			validation.Required.ErrorObject(validation.NewError("validation_sample_notes", ErrSampleNotes.Error())))),
		validation.Field(&r.ResultUnit, validation.Length(0, 50)),
		validation.Field(&r.ReferenceRange, validation.Length(0, 100)),
	)
}

// ValidatePrescription checks field formats only. Missing dosage details are
// allowed and surface as details_needed.
func ValidatePrescription(p models.Prescription) error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Route, validation.Required, validation.In(models.RouteOral, models.RouteTopical,
			models.RouteInjection, models.RouteInhalation, models.RouteOther)),
		validation.Field(&p.Dosage, validation.Length(0, 100)),
		validation.Field(&p.Frequency, validation.Length(0, 100)),
		validation.Field(&p.Duration, validation.Length(0, 100)),
		validation.Field(&p.CustomDrugName, validation.Length(0, 200)),
		validation.Field(&p.QuantityPrescribed, validation.NilOrNotEmpty, validation.Min(1)),
		validation.Field(&p.RefillsAllowed, validation.Min(0), validation.Max(12)),
	)
}
