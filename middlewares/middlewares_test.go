package middlewares

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"CampaignClinic/apperrors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeIdentifier map[string]int64

func (f fakeIdentifier) Identify(token string) (int64, error) {
	if id, ok := f[token]; ok {
		return id, nil
	}
	return 0, apperrors.Unauthorized("invalid token")
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestValidateBearerToken(t *testing.T) {
	r := gin.New()
	r.Use(ValidateBearerToken("secret"))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"api key header", "X-API-Key", "secret", http.StatusOK},
		{"bearer", "Authorization", "Bearer secret", http.StatusOK},
		{"wrong scheme", "Authorization", "Basic secret", http.StatusUnauthorized},
		{"wrong key", "X-API-Key", "guess", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			assert.Equal(t, tc.want, serve(r, req).Code)
		})
	}
}

func TestTokenAuthMiddlewareSetsActor(t *testing.T) {
	r := gin.New()
	r.Use(TokenAuthMiddleware(fakeIdentifier{"good": 42}))
	r.GET("/", func(c *gin.Context) {
		id, ok := ActorID(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"actor": id})
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(AccessTokenHeader, "good")
	rec := serve(r, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"actor":42}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/?accessToken=good", nil)
	assert.Equal(t, http.StatusOK, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(AccessTokenHeader, "bad")
	rec = serve(r, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"unauthorized"`)
}

func TestHttpErrorMapsKinds(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperrors.Authorization("can_prescribe", []string{"doctor", "admin"}), http.StatusForbidden},
		{apperrors.StateConflict("lab order", "completed", "already completed"), http.StatusConflict},
		{apperrors.NotFound("patient", 7), http.StatusNotFound},
		{apperrors.Validation(errors.New("bad"), nil), http.StatusBadRequest},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		r := gin.New()
		r.GET("/", func(c *gin.Context) { HttpError(c, tc.err) })
		rec := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, tc.want, rec.Code, tc.err.Error())
	}

	r := gin.New()
	r.GET("/", func(c *gin.Context) { HttpError(c, errors.New("pq: password authentication failed")) })
	rec := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestRequestLoggerPropagatesID(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger(zerolog.Nop()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = serve(r, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestCorsPreflight(t *testing.T) {
	r := gin.New()
	r.Use(CorsMiddleware(DefaultCorsConfig([]string{"http://localhost:3000"})))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := serve(r, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = serve(r, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRateLimiterPerClient(t *testing.T) {
	d := &rateLimiterData{
		config:  RateLimiterConfig{RequestsPerSecond: 1, Burst: 2, PerClient: true, IdleTTL: time.Minute},
		clients: make(map[string]*clientLimiter),
		swept:   time.Now(),
	}
	now := time.Now()
	assert.True(t, d.allow("10.0.0.1", now))
	assert.True(t, d.allow("10.0.0.1", now))
	assert.False(t, d.allow("10.0.0.1", now))
	assert.True(t, d.allow("10.0.0.2", now))

	later := now.Add(2 * time.Minute)
	assert.True(t, d.allow("10.0.0.3", later))
	assert.NotContains(t, d.clients, "10.0.0.1")
}
