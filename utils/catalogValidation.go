package utils

import (
	"errors"

	"CampaignClinic/models"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var ErrCampaignDates = errors.New("end date must be on or after the start date")

func ValidateCampaign(c models.Campaign) error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&c.Status, validation.Required, validation.In(models.CampaignDraft, models.CampaignActive,
			models.CampaignCompleted, models.CampaignCancelled)),
		validation.Field(&c.EndDate, validation.When(c.StartDate != nil && c.EndDate != nil, validation.By(func(interface{}) error {
			if c.EndDate.Before(*c.StartDate) {
				return ErrCampaignDates
			}
			return nil
		}))),
		validation.Field(&c.MaxPatients, validation.NilOrNotEmpty, validation.Min(1)),
		validation.Field(&c.HealthArea, validation.Length(0, 200)),
	)
}

func ValidateLabTest(t models.LabTest) error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&t.Code, validation.Required, validation.Length(1, 20)),
		validation.Field(&t.NormalRange, validation.Length(0, 100)),
		validation.Field(&t.Unit, validation.Length(0, 50)),
	)
}

func ValidateDrug(d models.Drug) error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&d.Strength, validation.Length(0, 50)),
		validation.Field(&d.DosageForm, validation.Length(0, 50)),
	)
}
