package controllers

import (
	"CampaignClinic/handlers"

	"github.com/gin-gonic/gin"
)

type AuthController struct {
	Handler   *handlers.AuthHandler
	tokenAuth gin.HandlerFunc
}

// NewAuthController creates a new AuthController with the given AuthHandler
func NewAuthController(authHandler *handlers.AuthHandler, tokenAuth gin.HandlerFunc) *AuthController {
	return &AuthController{
		Handler:   authHandler,
		tokenAuth: tokenAuth,
	}
}

// RegisterRoutes initializes all authentication routes
func (ac *AuthController) RegisterRoutes(router gin.IRouter) {
	// Public routes: No session required
	router.POST("/auth/login", ac.Handler.Login)
	router.POST("/auth/logoff", ac.Handler.Logoff)

	// Protected routes: Requires a valid token
	authGroup := router.Group("/auth").Use(ac.tokenAuth)
	{
		authGroup.GET("/me", ac.Handler.Me)
	}
}

// SetupAdminRoutes registers account management, permission maintenance and
// audit routes. Each operation checks can_manage_users or can_view_audit_log itself.
func SetupAdminRoutes(router gin.IRouter, tokenAuth gin.HandlerFunc, adminHandler *handlers.AdminHandler) {
	admin := router.Group("/admin").Use(tokenAuth)
	{
		admin.POST("/users", adminHandler.CreateUser)
		admin.GET("/users", adminHandler.ListUsers)
		admin.GET("/users/:id", adminHandler.GetUserByID)
		admin.PUT("/users/:id/role", adminHandler.UpdateUserRole)
		admin.PUT("/users/:id/groups", adminHandler.SetUserGroups)
		admin.GET("/groups", adminHandler.ListGroups)

		admin.POST("/permissions/repair", adminHandler.RepairPermissions)
		admin.GET("/permissions/diagnose", adminHandler.DiagnosePermissions)

		admin.GET("/audit-logs", adminHandler.GetAuditLogs)
	}
}
