package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"CampaignClinic/cache"
	"CampaignClinic/config"
	"CampaignClinic/database"
	"CampaignClinic/metrics"
	"CampaignClinic/models"
	"CampaignClinic/rbac"
	"CampaignClinic/services"
	"CampaignClinic/utils"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	apiKey       = "test-api-key"
	symmetricKey = "0123456789abcdef0123456789abcdef"
	password     = "Campaign#2025"
)

type server struct {
	t       *testing.T
	handler http.Handler
	db      *gorm.DB
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

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

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	tokens, err := utils.NewTokenMaker(symmetricKey)
	require.NoError(t, err)

	registry := rbac.DefaultRegistry()
	policy := rbac.DefaultPolicy()
	log := zerolog.Nop()

	syncer := services.NewPermissionSyncService(db, registry, policy, nil, log)
	require.NoError(t, syncer.ProvisionGroups(context.Background()))
	gate, err := rbac.NewGate(policy, log, nil)
	require.NoError(t, err)
	users := services.NewUserService(services.NewWorkflow(db, gate, cache.NewCache(nil), nil, log), syncer, registry)
	_, _, err = users.CreateAdmin(context.Background(), services.UserInput{
		Username: "root",
		Email:    "root@clinic.test",
		Password: password,
	})
	require.NoError(t, err)

	handler, err := SetupRoutes(Dependencies{
		Config: &config.AppConfig{
			Env:             "test",
			BearerToken:     apiKey,
			SymmetricKey:    symmetricKey,
			PatientIDPrefix: "HC",
			CORSOrigins:     []string{"http://localhost:3000"},
			RateLimitRPS:    1000,
			RateLimitBurst:  1000,
		},
		DB:       db,
		Cache:    cache.NewCache(client),
		Locker:   database.NewRedisLocker(client, log),
		Metrics:  metrics.New(),
		Registry: registry,
		Policy:   policy,
		Tokens:   tokens,
		Log:      log,
		Now:      func() time.Time { return time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return &server{t: t, handler: handler, db: db}
}

// do sends a request with the API key and, when token is set, the session token.
func (s *server) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)
	if token != "" {
		req.Header.Set("X-Access-Token", token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *server) login(username string) string {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/auth/login", "", gin.H{"username": username, "password": password})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotEmpty(s.t, out.AccessToken)
	return out.AccessToken
}

// staff creates an account through the admin API and logs it in.
func (s *server) staff(admin, username string, role models.Role) string {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/admin/users", admin, gin.H{
		"username": username,
		"email":    username + "@clinic.test",
		"password": password,
		"role":     role,
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return s.login(username)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func pathf(format string, args ...interface{}) string {
	return fmt.Sprintf(format, args...)
}

func patientBody() gin.H {
	return gin.H{
		"first_name":    "Amina",
		"last_name":     "Okello",
		"date_of_birth": "1995-01-10T00:00:00Z",
		"age":           30,
		"gender":        "F",
		"phone_number":  "+254712345678",
		"health_area":   "Kisumu East",
		"consent_given": true,
	}
}

func TestPublicRoutes(t *testing.T) {
	s := newServer(t)

	for _, path := range []string{"/", "/health", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"), path)
	}
}

func TestAPIKeyAndSessionRequired(t *testing.T) {
	s := newServer(t)

	req := httptest.NewRequest(http.MethodGet, "/patients", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/patients", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decode(t, rec)["kind"])

	rec = s.do(http.MethodGet, "/patients", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/auth/login", "", gin.H{"username": "root", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginSetsCookieAndMe(t *testing.T) {
	s := newServer(t)

	rec := s.do(http.MethodPost, "/auth/login", "", gin.H{"username": "root", "password": password})
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, utils.AccessTokenCookie, cookies[0].Name)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("X-API-Key", apiKey)
	req.AddCookie(cookies[0])
	me := httptest.NewRecorder()
	s.handler.ServeHTTP(me, req)
	require.Equal(t, http.StatusOK, me.Code, me.Body.String())
	body := decode(t, me)
	assert.Equal(t, "root", body["username"])
	assert.Equal(t, "admin", body["role"])
	assert.NotContains(t, body, "password")
}

func TestWorkflowOverHTTP(t *testing.T) {
	s := newServer(t)
	admin := s.login("root")
	clerk := s.staff(admin, "reception", models.RoleRegistrationClerk)
	nurse := s.staff(admin, "triage", models.RoleVitalsClerk)
	doctor := s.staff(admin, "doctor", models.RoleDoctor)
	tech := s.staff(admin, "labtech", models.RoleLabTechnician)

	rec := s.do(http.MethodPost, "/patients", clerk, patientBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	patient := decode(t, rec)
	assert.Equal(t, "HC-2025-0001", patient["patient_id"])
	assert.Equal(t, "registered", patient["status"])
	id := int64(patient["id"].(float64))

	rec = s.do(http.MethodGet, "/patients/by-code/HC-2025-0001", clerk, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodPut, pathf("/patients/%d/vitals", id), nurse, gin.H{"systolic_bp": 120, "diastolic_bp": 80})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, pathf("/patients/%d/consultations", id), doctor, gin.H{
		"chief_complaint": "fatigue",
		"status":          "completed",
		"lab_orders":      []gin.H{{"custom_test_name": "Hemoglobin", "urgency": "routine"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var consultation models.Consultation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &consultation))
	require.Len(t, consultation.LabOrders, 1)
	orderID := consultation.LabOrders[0].ID

	rec = s.do(http.MethodGet, pathf("/patients/%d", id), doctor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "lab_ordered", decode(t, rec)["status"])

	result := gin.H{"result_value": "13.2", "result_unit": "g/dL", "interpretation": "normal"}
	rec = s.do(http.MethodPost, pathf("/lab-orders/%d/complete", orderID), doctor, result)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	denied := decode(t, rec)
	assert.Equal(t, "authorization", denied["kind"])
	assert.Contains(t, denied["required_roles"], "lab_technician")

	rec = s.do(http.MethodPost, pathf("/lab-orders/%d/complete", orderID), tech, result)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, pathf("/lab-orders/%d/complete", orderID), tech, result)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "completed", decode(t, rec)["current_state"])

	rec = s.do(http.MethodGet, pathf("/patients/%d", id), doctor, nil)
	assert.Equal(t, "lab_completed", decode(t, rec)["status"])

	rec = s.do(http.MethodGet, "/lab-orders?status=completed", tech, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var queue []models.LabOrder
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &queue))
	assert.Len(t, queue, 1)
}

func TestValidationErrorEchoesInput(t *testing.T) {
	s := newServer(t)
	admin := s.login("root")
	clerk := s.staff(admin, "reception", models.RoleRegistrationClerk)

	body := patientBody()
	body["age"] = 31
	rec := s.do(http.MethodPost, "/patients", clerk, body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "validation", out["kind"])
	assert.Contains(t, out["fields"], "age")
	assert.Equal(t, "Amina", out["input"].(map[string]interface{})["first_name"])

	rec = s.do(http.MethodGet, "/patients/abc", clerk, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/patients/999", clerk, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminPermissionRoutes(t *testing.T) {
	s := newServer(t)
	admin := s.login("root")
	doctor := s.staff(admin, "doctor", models.RoleDoctor)

	rec := s.do(http.MethodGet, "/admin/users", doctor, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Knock the doctor out of their group behind the service's back.
	require.NoError(t, s.db.Exec("DELETE FROM user_groups").Error)

	rec = s.do(http.MethodGet, "/admin/permissions/diagnose", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode(t, rec)["count"])

	rec = s.do(http.MethodPost, "/admin/permissions/repair?dry_run=true", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode(t, rec)
	assert.EqualValues(t, 2, report["fixed"])
	assert.Equal(t, true, report["dry_run"])

	rec = s.do(http.MethodPost, "/admin/permissions/repair", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/admin/permissions/diagnose", admin, nil)
	assert.EqualValues(t, 0, decode(t, rec)["count"])

	rec = s.do(http.MethodGet, "/admin/audit-logs?action=role_groups_synced", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []models.AuditLog
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.NotEmpty(t, entries)
}
