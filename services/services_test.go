package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"CampaignClinic/cache"
	"CampaignClinic/database"
	"CampaignClinic/metrics"
	"CampaignClinic/models"
	"CampaignClinic/rbac"
	"CampaignClinic/utils"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testPassword = "Campaign#2025"

var testNow = time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC)

type recordingAlerts struct {
	mu   sync.Mutex
	sent []utils.CriticalResultAlert
}

func (r *recordingAlerts) SendCriticalResult(alert utils.CriticalResultAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, alert)
	return nil
}

func (r *recordingAlerts) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type testEnv struct {
	ctx           context.Context
	db            *gorm.DB
	redis         *miniredis.Miniredis
	registry      *rbac.Registry
	workflow      *Workflow
	sync          *PermissionSyncService
	users         *UserService
	patients      *PatientService
	consultations *ConsultationService
	labs          *LabService
	pharmacy      *PharmacyService
	campaigns     *CampaignService
	audit         *AuditService
	alerts        *recordingAlerts
	adminID       int64
	clerks        int
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.RunMigrations(db))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log := zerolog.Nop()
	m := metrics.New()
	registry := rbac.DefaultRegistry()
	policy := rbac.DefaultPolicy()
	gate, err := rbac.NewGate(policy, log, m)
	require.NoError(t, err)

	w := NewWorkflow(db, gate, cache.NewCache(client), m, log)
	w.SetClock(func() time.Time { return testNow })

	syncer := NewPermissionSyncService(db, registry, policy, m, log)
	alerts := &recordingAlerts{}
	env := &testEnv{
		ctx:           context.Background(),
		db:            db,
		redis:         mr,
		registry:      registry,
		workflow:      w,
		sync:          syncer,
		users:         NewUserService(w, syncer, registry),
		patients:      NewPatientService(w, database.NewLocalLocker(), "HC"),
		consultations: NewConsultationService(w),
		labs:          NewLabService(w, alerts),
		pharmacy:      NewPharmacyService(w),
		campaigns:     NewCampaignService(w),
		audit:         NewAuditService(w),
		alerts:        alerts,
	}
	require.NoError(t, syncer.ProvisionGroups(env.ctx))

	admin, _, err := env.users.CreateAdmin(env.ctx, UserInput{
		Username: "root",
		Email:    "root@clinic.test",
		Password: testPassword,
	})
	require.NoError(t, err)
	env.adminID = admin.ID
	return env
}

// staff creates an active account holding role and returns its id.
func (e *testEnv) staff(t *testing.T, username string, role models.Role) int64 {
	t.Helper()
	user, _, err := e.users.CreateUser(e.ctx, e.adminID, UserInput{
		Username:  username,
		Email:     username + "@clinic.test",
		Password:  testPassword,
		FirstName: username,
		Role:      role,
	})
	require.NoError(t, err)
	return user.ID
}

func (e *testEnv) loadUser(t *testing.T, id int64) *models.User {
	t.Helper()
	var user models.User
	require.NoError(t, e.db.Preload("Groups").First(&user, id).Error)
	return &user
}

func (e *testEnv) patientStatus(t *testing.T, id int64) models.PatientStatus {
	t.Helper()
	var p models.Patient
	require.NoError(t, e.db.First(&p, id).Error)
	return p.Status
}

func (e *testEnv) auditCount(t *testing.T, action string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&models.AuditLog{}).Where("action = ?", action).Count(&n).Error)
	return n
}

func birthDate(year int, month time.Month, day int) *time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &d
}

func validPatient() PatientInput {
	return PatientInput{
		FirstName:    "Amina",
		LastName:     "Okello",
		DateOfBirth:  birthDate(1995, time.January, 10),
		Age:          30,
		Gender:       "F",
		PhoneNumber:  "+254712345678",
		HealthArea:   "Kisumu East",
		ConsentGiven: true,
	}
}

// patientWithVitals registers a patient and records vitals for it.
func (e *testEnv) patientWithVitals(t *testing.T) *models.Patient {
	t.Helper()
	e.clerks++
	clerk := e.staff(t, fmt.Sprintf("clerk%d", e.clerks), models.RoleRegistrationClerk)
	p, err := e.patients.Register(e.ctx, clerk, validPatient())
	require.NoError(t, err)
	weight := 62.5
	_, err = e.patients.RecordVitals(e.ctx, e.adminID, p.ID, VitalsInput{Weight: &weight})
	require.NoError(t, err)
	return p
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }
