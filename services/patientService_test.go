package services

import (
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"CampaignClinic/apperrors"
	"CampaignClinic/database"
	"CampaignClinic/models"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIssuesSequentialIDs(t *testing.T) {
	env := newTestEnv(t)
	clerk := env.staff(t, "reception", models.RoleRegistrationClerk)

	var ids []string
	for i := 0; i < 3; i++ {
		p, err := env.patients.Register(env.ctx, clerk, validPatient())
		require.NoError(t, err)
		assert.Equal(t, models.PatientRegistered, p.Status)
		assert.Equal(t, clerk, p.RegisteredByID)
		require.NotNil(t, p.ConsentDate)
		ids = append(ids, p.PatientID)
	}
	assert.Equal(t, []string{"HC-2025-0001", "HC-2025-0002", "HC-2025-0003"}, ids)
	assert.Equal(t, int64(3), env.auditCount(t, models.AuditPatientRegistered))
}

func TestRegisterContinuesAfterExistingIDs(t *testing.T) {
	env := newTestEnv(t)
	clerk := env.staff(t, "reception", models.RoleRegistrationClerk)

	legacy := models.Patient{
		PatientID: "HC-2025-0041", FirstName: "Old", LastName: "Record", Age: 40, Gender: "M",
		HealthArea: "Kisumu East", ConsentGiven: true, RegisteredByID: clerk, Status: models.PatientDischarged,
	}
	require.NoError(t, env.db.Create(&legacy).Error)

	p, err := env.patients.Register(env.ctx, clerk, validPatient())
	require.NoError(t, err)
	assert.Equal(t, "HC-2025-0042", p.PatientID)
}

func TestRegisterRejectsAgeMismatch(t *testing.T) {
	env := newTestEnv(t)
	clerk := env.staff(t, "reception", models.RoleRegistrationClerk)

	in := validPatient()
	in.Age = 31
	_, err := env.patients.Register(env.ctx, clerk, in)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	verr, _ := apperrors.As(err)
	assert.Contains(t, verr.Fields, "age")
	assert.Equal(t, in, verr.Input)

	var n int64
	require.NoError(t, env.db.Model(&models.Patient{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestRegisterRequiresConsentAndHealthArea(t *testing.T) {
	env := newTestEnv(t)
	clerk := env.staff(t, "reception", models.RoleRegistrationClerk)

	in := validPatient()
	in.ConsentGiven = false
	in.HealthArea = ""
	_, err := env.patients.Register(env.ctx, clerk, in)
	verr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Contains(t, verr.Fields, "consent_given")
	assert.Contains(t, verr.Fields, "health_area")
}

func TestRegisterTakesHealthAreaFromCampaign(t *testing.T) {
	env := newTestEnv(t)
	manager := env.staff(t, "manager", models.RoleCampaignManager)
	clerk := env.staff(t, "reception", models.RoleRegistrationClerk)

	campaign, err := env.campaigns.CreateCampaign(env.ctx, manager, CampaignInput{Name: "Cervical screening", HealthArea: "Nyando"})
	require.NoError(t, err)

	in := validPatient()
	in.HealthArea = ""
	in.CampaignID = &campaign.ID
	p, err := env.patients.Register(env.ctx, clerk, in)
	require.NoError(t, err)
	assert.Equal(t, "Nyando", p.HealthArea)

	enrollment, err := env.campaigns.Enrollment(env.ctx, manager, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), enrollment.Patients)
}

func TestRegisterRequiresCapability(t *testing.T) {
	env := newTestEnv(t)
	pharmacist := env.staff(t, "pharmacist", models.RolePharmacyClerk)

	_, err := env.patients.Register(env.ctx, pharmacist, validPatient())
	require.Error(t, err)
	assert.True(t, apperrors.IsAuthorization(err))
	verr, _ := apperrors.As(err)
	assert.ElementsMatch(t, []string{"admin", "registration_clerk"}, verr.RequiredRoles)
}

func TestRoleChangeTakesEffectImmediately(t *testing.T) {
	env := newTestEnv(t)
	id := env.staff(t, "switcher", models.RoleRegistrationClerk)

	_, err := env.patients.Register(env.ctx, id, validPatient())
	require.NoError(t, err)

	_, _, err = env.users.UpdateRole(env.ctx, env.adminID, id, models.RoleDataAnalyst)
	require.NoError(t, err)
	_, err = env.patients.Register(env.ctx, id, validPatient())
	assert.True(t, apperrors.IsAuthorization(err))
}

func TestConcurrentRegistrationsGetDistinctIDs(t *testing.T) {
	env := newTestEnv(t)
	assertDistinctConcurrentIDs(t, env, env.patients)
}

func TestConcurrentRegistrationsUnderRedisLock(t *testing.T) {
	env := newTestEnv(t)
	client := redis.NewClient(&redis.Options{Addr: env.redis.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	patients := NewPatientService(env.workflow, database.NewRedisLocker(client, zerolog.Nop()), "HC")

	assertDistinctConcurrentIDs(t, env, patients)
	for _, key := range env.redis.Keys() {
		assert.NotContains(t, key, "patient_id_lock:", "lock left behind")
	}
}

// assertDistinctConcurrentIDs registers patients from several goroutines.
// The test database allows one connection, so the transactions themselves
// run one after another; the locker decides the order.
func assertDistinctConcurrentIDs(t *testing.T, env *testEnv, patients *PatientService) {
	t.Helper()
	clerk := env.staff(t, "reception", models.RoleRegistrationClerk)

	const n = 8
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids []string
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := patients.Register(env.ctx, clerk, validPatient())
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			ids = append(ids, p.PatientID)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, ids, n)
	sort.Strings(ids)
	for i, id := range ids {
		assert.Equal(t, fmt.Sprintf("HC-2025-%04d", i+1), id)
	}
}

func TestUpdateOnlyByRegistrarOrAdmin(t *testing.T) {
	env := newTestEnv(t)
	owner := env.staff(t, "owner", models.RoleRegistrationClerk)
	other := env.staff(t, "other", models.RoleRegistrationClerk)

	p, err := env.patients.Register(env.ctx, owner, validPatient())
	require.NoError(t, err)

	in := validPatient()
	in.Address = "Kondele"
	_, err = env.patients.Update(env.ctx, other, p.ID, in)
	require.Error(t, err)
	assert.True(t, apperrors.IsAuthorization(err))

	updated, err := env.patients.Update(env.ctx, env.adminID, p.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Kondele", updated.Address)
	assert.Equal(t, p.PatientID, updated.PatientID)
	assert.Equal(t, models.PatientRegistered, updated.Status)
}

func TestRecordVitalsAdvancesOnce(t *testing.T) {
	env := newTestEnv(t)
	clerk := env.staff(t, "reception", models.RoleRegistrationClerk)
	vitals := env.staff(t, "triage", models.RoleVitalsClerk)

	p, err := env.patients.Register(env.ctx, clerk, validPatient())
	require.NoError(t, err)

	_, err = env.patients.RecordVitals(env.ctx, vitals, p.ID, VitalsInput{SystolicBP: intPtr(80), DiastolicBP: intPtr(90)})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, models.PatientRegistered, env.patientStatus(t, p.ID))

	_, err = env.patients.RecordVitals(env.ctx, vitals, p.ID, VitalsInput{SystolicBP: intPtr(120), DiastolicBP: intPtr(80)})
	require.NoError(t, err)
	assert.Equal(t, models.PatientVitalsTaken, env.patientStatus(t, p.ID))

	_, err = env.patients.RecordVitals(env.ctx, vitals, p.ID, VitalsInput{SystolicBP: intPtr(118), DiastolicBP: intPtr(76)})
	require.NoError(t, err)
	var rows int64
	require.NoError(t, env.db.Model(&models.ClinicalParameters{}).Where("patient_id = ?", p.ID).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)

	loaded, err := env.patients.GetByID(env.ctx, vitals, p.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.ClinicalParameters)
	assert.Equal(t, 118, *loaded.ClinicalParameters.SystolicBP)
}

func TestStatusNeverRegresses(t *testing.T) {
	env := newTestEnv(t)
	doctor := env.staff(t, "doctor", models.RoleDoctor)
	p := env.patientWithVitals(t)

	_, err := env.patients.Discharge(env.ctx, doctor, p.ID)
	require.NoError(t, err)

	_, err = env.patients.CompleteTreatment(env.ctx, doctor, p.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsStateConflict(err))

	weight := 70.0
	_, err = env.patients.RecordVitals(env.ctx, env.adminID, p.ID, VitalsInput{Weight: &weight})
	require.NoError(t, err)
	assert.Equal(t, models.PatientDischarged, env.patientStatus(t, p.ID))
}

func TestListIsFilteredAndRefreshedAfterChanges(t *testing.T) {
	env := newTestEnv(t)
	clerk := env.staff(t, "reception", models.RoleRegistrationClerk)

	p, err := env.patients.Register(env.ctx, clerk, validPatient())
	require.NoError(t, err)

	registered, err := env.patients.List(env.ctx, clerk, models.PatientRegistered)
	require.NoError(t, err)
	require.Len(t, registered, 1)
	assert.True(t, env.redis.Exists("patients_cache:registered"))

	weight := 55.0
	_, err = env.patients.RecordVitals(env.ctx, env.adminID, p.ID, VitalsInput{Weight: &weight})
	require.NoError(t, err)

	registered, err = env.patients.List(env.ctx, clerk, models.PatientRegistered)
	require.NoError(t, err)
	assert.Empty(t, registered)

	_, err = env.patients.List(env.ctx, clerk, models.PatientStatus("admitted"))
	assert.True(t, apperrors.IsValidation(err))
}

func TestGetByPatientID(t *testing.T) {
	env := newTestEnv(t)
	clerk := env.staff(t, "reception", models.RoleRegistrationClerk)
	p, err := env.patients.Register(env.ctx, clerk, validPatient())
	require.NoError(t, err)

	found, err := env.patients.GetByPatientID(env.ctx, clerk, p.PatientID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, found.ID)

	_, err = env.patients.GetByPatientID(env.ctx, clerk, "HC-2025-9999")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRegisterUsesClockYear(t *testing.T) {
	env := newTestEnv(t)
	clerk := env.staff(t, "reception", models.RoleRegistrationClerk)

	env.workflow.SetClock(func() time.Time { return time.Date(2026, time.January, 2, 8, 0, 0, 0, time.UTC) })
	in := validPatient()
	in.Age = 31
	in.DateOfBirth = birthDate(1995, time.January, 1)
	p, err := env.patients.Register(env.ctx, clerk, in)
	require.NoError(t, err)
	assert.Equal(t, "HC-2026-0001", p.PatientID)
}
