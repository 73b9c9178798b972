package services

import (
	"context"
	"strings"
	"time"

	"CampaignClinic/apperrors"
	"CampaignClinic/database"
	"CampaignClinic/models"
	"CampaignClinic/rbac"
	"CampaignClinic/utils"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

const maxRegistrationAttempts = 5

// PatientInput carries the demographic fields a clerk submits.
type PatientInput struct {
	CampaignID                   *int64     `json:"campaign_id"`
	FirstName                    string     `json:"first_name"`
	MiddleName                   string     `json:"middle_name"`
	LastName                     string     `json:"last_name"`
	DateOfBirth                  *time.Time `json:"date_of_birth"`
	Age                          int        `json:"age"`
	Gender                       string     `json:"gender"`
	MaritalStatus                string     `json:"marital_status"`
	PhoneNumber                  string     `json:"phone_number"`
	Email                        string     `json:"email"`
	Address                      string     `json:"address"`
	EmergencyContactName         string     `json:"emergency_contact_name"`
	EmergencyContactPhone        string     `json:"emergency_contact_phone"`
	EmergencyContactRelationship string     `json:"emergency_contact_relationship"`
	HealthArea                   string     `json:"health_area"`
	ConsentGiven                 bool       `json:"consent_given"`
}

func (in PatientInput) apply(p *models.Patient) {
	p.CampaignID = in.CampaignID
	p.FirstName = strings.TrimSpace(in.FirstName)
	p.MiddleName = strings.TrimSpace(in.MiddleName)
	p.LastName = strings.TrimSpace(in.LastName)
	p.DateOfBirth = in.DateOfBirth
	p.Age = in.Age
	p.Gender = in.Gender
	p.MaritalStatus = in.MaritalStatus
	p.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	p.Email = strings.TrimSpace(in.Email)
	p.Address = in.Address
	p.EmergencyContactName = in.EmergencyContactName
	p.EmergencyContactPhone = strings.TrimSpace(in.EmergencyContactPhone)
	p.EmergencyContactRelationship = in.EmergencyContactRelationship
	p.HealthArea = strings.TrimSpace(in.HealthArea)
	p.ConsentGiven = in.ConsentGiven
}

// VitalsInput carries one vital signs reading.
type VitalsInput struct {
	Weight              *float64   `json:"weight"`
	Height              *float64   `json:"height"`
	Temperature         *float64   `json:"temperature"`
	SystolicBP          *int       `json:"systolic_bp"`
	DiastolicBP         *int       `json:"diastolic_bp"`
	HeartRate           *int       `json:"heart_rate"`
	BloodGlucose        *float64   `json:"blood_glucose"`
	GlucoseTestType     string     `json:"glucose_test_type"`
	LastMenstrualPeriod *time.Time `json:"last_menstrual_period"`
	IsPregnant          bool       `json:"is_pregnant"`
	GestationalAgeWeeks *int       `json:"gestational_age_weeks"`
	AgeAtFirstPregnancy *int       `json:"age_at_first_pregnancy"`
	Notes               string     `json:"notes"`
}

type PatientService struct {
	*Workflow
	locker database.Locker
	prefix string
}

func NewPatientService(w *Workflow, locker database.Locker, prefix string) *PatientService {
	return &PatientService{Workflow: w, locker: locker, prefix: prefix}
}

// Register validates and stores a new patient under a freshly issued
// PREFIX-YEAR-NNNN identifier.
func (s *PatientService) Register(ctx context.Context, actorID int64, in PatientInput) (*models.Patient, error) {
	now := s.now()
	scope := models.SequenceScope(s.prefix, now.Year())

	release, err := s.locker.Acquire(ctx, "patient_id_lock:"+scope)
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize patient id generation")
	}
	defer release()

	var patient *models.Patient
	for attempt := 1; attempt <= maxRegistrationAttempts; attempt++ {
		patient, err = s.register(ctx, actorID, in, scope, now)
		if err == nil || !database.IsDuplicateKey(err) {
			break
		}
		s.log.Warn().Err(err).Int("attempt", attempt).Str("scope", scope).Msg("patient id collision, retrying")
	}
	if err != nil {
		return nil, err
	}

	s.invalidatePatients(ctx)
	s.metrics.PatientTransition(string(models.PatientRegistered))
	s.log.Info().Str("patient_id", patient.PatientID).Int64("actor_id", actorID).Msg("patient registered")
	return patient, nil
}

func (s *PatientService) register(ctx context.Context, actorID int64, in PatientInput, scope string, now time.Time) (*models.Patient, error) {
	var patient models.Patient
	err := s.transact(ctx, func(tx *gorm.DB) error {
		if _, err := s.authorize(ctx, tx, actorID, rbac.CanRegister); err != nil {
			return err
		}

		in.apply(&patient)
		if err := s.applyCampaignDefaults(ctx, tx, &patient); err != nil {
			return err
		}
		if err := utils.ValidatePatient(patient, now); err != nil {
			return apperrors.Validation(err, in)
		}

		patients := s.patients.WithTx(tx)
		seq, err := patients.NextSequence(ctx, scope)
		if err != nil {
			return err
		}
		patient.PatientID = models.FormatPatientID(scope, seq)
		patient.Status = models.PatientRegistered
		patient.RegisteredByID = actorID
		patient.RegistrationDate = now
		consentAt := now
		patient.ConsentDate = &consentAt

		if err := patients.Create(ctx, &patient); err != nil {
			return err
		}
		return s.record(ctx, tx, actorID, models.AuditPatientRegistered, "patient", patient.PatientID,
			models.Change{After: map[string]interface{}{"patient_id": patient.PatientID, "status": patient.Status}})
	})
	if err != nil {
		return nil, err
	}
	return &patient, nil
}

// applyCampaignDefaults checks the campaign and fills in its health area.
func (s *PatientService) applyCampaignDefaults(ctx context.Context, tx *gorm.DB, p *models.Patient) error {
	if p.CampaignID == nil {
		return nil
	}
	campaign, err := s.catalog.WithTx(tx).GetCampaign(ctx, *p.CampaignID)
	if err != nil {
		return err
	}
	if campaign == nil {
		return apperrors.NotFound("campaign", *p.CampaignID)
	}
	if p.HealthArea == "" {
		p.HealthArea = campaign.HealthArea
	}
	return nil
}

// Update changes demographics. The identifier and status never change here.
func (s *PatientService) Update(ctx context.Context, actorID, id int64, in PatientInput) (*models.Patient, error) {
	var patient *models.Patient
	err := s.transact(ctx, func(tx *gorm.DB) error {
		actor, err := s.authorize(ctx, tx, actorID, rbac.CanEditDemographics)
		if err != nil {
			return err
		}
		patients := s.patients.WithTx(tx)
		patient, err = patients.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if patient == nil {
			return apperrors.NotFound("patient", id)
		}
		if err := s.gate.RequireOwnerOrAdmin(actor, patient.RegisteredByID, "patient"); err != nil {
			return err
		}

		patientID, status, consentDate := patient.PatientID, patient.Status, patient.ConsentDate
		in.apply(patient)
		patient.PatientID, patient.Status, patient.ConsentDate = patientID, status, consentDate
		if err := s.applyCampaignDefaults(ctx, tx, patient); err != nil {
			return err
		}
		if err := utils.ValidatePatient(*patient, s.now()); err != nil {
			return apperrors.Validation(err, in)
		}
		return patients.Save(ctx, patient)
	})
	if err != nil {
		return nil, err
	}
	s.invalidatePatients(ctx)
	return patient, nil
}

// RecordVitals stores the patient's vital signs and moves a registered
// patient to vitals_taken.
func (s *PatientService) RecordVitals(ctx context.Context, actorID, patientID int64, in VitalsInput) (*models.ClinicalParameters, error) {
	params := &models.ClinicalParameters{
		PatientID:           patientID,
		Weight:              in.Weight,
		Height:              in.Height,
		Temperature:         in.Temperature,
		SystolicBP:          in.SystolicBP,
		DiastolicBP:         in.DiastolicBP,
		HeartRate:           in.HeartRate,
		BloodGlucose:        in.BloodGlucose,
		GlucoseTestType:     in.GlucoseTestType,
		LastMenstrualPeriod: in.LastMenstrualPeriod,
		IsPregnant:          in.IsPregnant,
		GestationalAgeWeeks: in.GestationalAgeWeeks,
		AgeAtFirstPregnancy: in.AgeAtFirstPregnancy,
		Notes:               in.Notes,
		RecordedByID:        actorID,
	}

	err := s.transact(ctx, func(tx *gorm.DB) error {
		if _, err := s.authorize(ctx, tx, actorID, rbac.CanEditVitals); err != nil {
			return err
		}
		if err := utils.ValidateVitals(*params); err != nil {
			return apperrors.Validation(err, in)
		}
		patient, err := s.patients.WithTx(tx).LockByID(ctx, patientID)
		if err != nil {
			return err
		}
		if patient == nil {
			return apperrors.NotFound("patient", patientID)
		}
		if err := s.patients.WithTx(tx).UpsertVitals(ctx, params); err != nil {
			return err
		}
		_, err = s.advancePatient(ctx, tx, patientID, models.PatientVitalsTaken)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidatePatients(ctx)
	return params, nil
}

// CompleteTreatment marks the patient's care as finished.
func (s *PatientService) CompleteTreatment(ctx context.Context, actorID, patientID int64) (*models.Patient, error) {
	return s.closeOut(ctx, actorID, patientID, models.PatientTreatmentCompleted)
}

// Discharge ends the patient's visit.
func (s *PatientService) Discharge(ctx context.Context, actorID, patientID int64) (*models.Patient, error) {
	return s.closeOut(ctx, actorID, patientID, models.PatientDischarged)
}

func (s *PatientService) closeOut(ctx context.Context, actorID, patientID int64, next models.PatientStatus) (*models.Patient, error) {
	var patient *models.Patient
	err := s.transact(ctx, func(tx *gorm.DB) error {
		if _, err := s.authorize(ctx, tx, actorID, rbac.CanConductConsultations); err != nil {
			return err
		}
		current, err := s.patients.WithTx(tx).LockByID(ctx, patientID)
		if err != nil {
			return err
		}
		if current == nil {
			return apperrors.NotFound("patient", patientID)
		}
		if !current.CanAdvanceTo(next) {
			return apperrors.StateConflict("patient", string(current.Status),
				"patient cannot move back to "+string(next))
		}
		if _, err := s.advancePatient(ctx, tx, patientID, next); err != nil {
			return err
		}
		patient, err = s.patients.WithTx(tx).GetByID(ctx, patientID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidatePatients(ctx)
	return patient, nil
}

func (s *PatientService) GetByID(ctx context.Context, actorID, id int64) (*models.Patient, error) {
	var patient *models.Patient
	err := s.view(ctx, actorID, rbac.CanViewDemographics, func(tx *gorm.DB, _ *models.User) error {
		var err error
		patient, err = s.patients.WithTx(tx).GetByID(ctx, id)
		if err == nil && patient == nil {
			err = apperrors.NotFound("patient", id)
		}
		return err
	})
	return patient, err
}

func (s *PatientService) GetByPatientID(ctx context.Context, actorID int64, patientID string) (*models.Patient, error) {
	var patient *models.Patient
	err := s.view(ctx, actorID, rbac.CanViewDemographics, func(tx *gorm.DB, _ *models.User) error {
		var err error
		patient, err = s.patients.WithTx(tx).GetByPatientID(ctx, patientID)
		if err == nil && patient == nil {
			err = apperrors.NotFound("patient", patientID)
		}
		return err
	})
	return patient, err
}

// List returns patients filtered by status; an empty status lists all.
func (s *PatientService) List(ctx context.Context, actorID int64, status models.PatientStatus) ([]models.Patient, error) {
	if status != "" && !status.Valid() {
		return nil, apperrors.Validation(validationError("status", "unknown patient status"), map[string]string{"status": string(status)})
	}
	var list []models.Patient
	err := s.view(ctx, actorID, rbac.CanViewDemographics, func(tx *gorm.DB, _ *models.User) error {
		var err error
		list, err = s.patients.WithTx(tx).ListByStatus(ctx, status)
		return err
	})
	return list, err
}

// Consultations lists the patient's consultations, newest first.
func (s *PatientService) Consultations(ctx context.Context, actorID, patientID int64) ([]models.Consultation, error) {
	var list []models.Consultation
	err := s.view(ctx, actorID, rbac.CanViewConsultations, func(tx *gorm.DB, _ *models.User) error {
		var err error
		list, err = s.consultations.WithTx(tx).ListByPatient(ctx, patientID)
		return err
	})
	return list, err
}
