package routes

import (
	"net/http"
	"time"

	"CampaignClinic/cache"
	"CampaignClinic/config"
	"CampaignClinic/controllers"
	"CampaignClinic/database"
	"CampaignClinic/handlers"
	"CampaignClinic/metrics"
	"CampaignClinic/middlewares"
	"CampaignClinic/rbac"
	"CampaignClinic/services"
	"CampaignClinic/utils"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Dependencies are the shared resources the HTTP layer is built from.
type Dependencies struct {
	Config   *config.AppConfig
	DB       *gorm.DB
	Cache    *cache.Cache
	Locker   database.Locker
	Metrics  *metrics.Metrics
	Registry *rbac.Registry
	Policy   rbac.Policy
	Tokens   *utils.TokenMaker
	// Alerts may be nil to disable critical result emails.
	Alerts utils.AlertSender
	Log    zerolog.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// SetupRoutes initializes the routes and middleware for the server
func SetupRoutes(deps Dependencies) (http.Handler, error) {
	cfg := deps.Config
	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middlewares.RequestLogger(deps.Log))
	router.Use(middlewares.CorsMiddleware(middlewares.DefaultCorsConfig(cfg.CORSOrigins)))
	router.Use(middlewares.NewRateLimiterMiddleware(middlewares.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
		PerClient:         true,
	}))

	gate, err := rbac.NewGate(deps.Policy, deps.Log, deps.Metrics)
	if err != nil {
		return nil, err
	}

	// Initialize services and handlers
	workflow := services.NewWorkflow(deps.DB, gate, deps.Cache, deps.Metrics, deps.Log)
	if deps.Now != nil {
		workflow.SetClock(deps.Now)
	}
	syncer := services.NewPermissionSyncService(deps.DB, deps.Registry, deps.Policy, deps.Metrics, deps.Log)

	authService := services.NewAuthService(deps.DB, deps.Tokens)
	userService := services.NewUserService(workflow, syncer, deps.Registry)
	patientService := services.NewPatientService(workflow, deps.Locker, cfg.PatientIDPrefix)
	consultationService := services.NewConsultationService(workflow)
	labService := services.NewLabService(workflow, deps.Alerts)
	pharmacyService := services.NewPharmacyService(workflow)
	campaignService := services.NewCampaignService(workflow)
	auditService := services.NewAuditService(workflow)

	authHandler := handlers.NewAuthHandler(authService)
	adminHandler := handlers.NewAdminHandler(userService, auditService)
	patientHandler := handlers.NewPatientHandler(patientService, consultationService)
	consultationHandler := handlers.NewConsultationHandler(consultationService, labService, pharmacyService)
	labHandler := handlers.NewLabHandler(labService)
	pharmacyHandler := handlers.NewPharmacyHandler(pharmacyService)
	campaignHandler := handlers.NewCampaignHandler(campaignService)

	var metricsHandler http.Handler
	if deps.Metrics != nil {
		metricsHandler = deps.Metrics.Handler()
	}
	controllers.SetupRootRoute(router, deps.DB, metricsHandler)

	// Everything else requires the service API key
	api := router.Group("", middlewares.ValidateBearerToken(cfg.GetBearerToken()))
	tokenAuth := middlewares.TokenAuthMiddleware(authService)

	controllers.NewAuthController(authHandler, tokenAuth).RegisterRoutes(api)
	controllers.SetupAdminRoutes(api, tokenAuth, adminHandler)
	controllers.SetupPatientRoutes(api, tokenAuth, patientHandler, consultationHandler, labHandler, pharmacyHandler)
	controllers.SetupCampaignRoutes(api, tokenAuth, campaignHandler)

	return router, nil
}
