package handlers

import (
	"net/http"
	"strconv"

	"CampaignClinic/middlewares"
	"CampaignClinic/models"
	"CampaignClinic/repositories"
	"CampaignClinic/services"

	"github.com/gin-gonic/gin"
)

// AdminHandler serves staff account management, permission maintenance and
// the audit trail.
type AdminHandler struct {
	users *services.UserService
	audit *services.AuditService
}

func NewAdminHandler(users *services.UserService, audit *services.AuditService) *AdminHandler {
	return &AdminHandler{users: users, audit: audit}
}

// userResponse pairs the account with what the permission synchronizer did.
type userResponse struct {
	User *models.User        `json:"user"`
	Sync services.SyncResult `json:"sync"`
}

func (h *AdminHandler) CreateUser(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	var in services.UserInput
	if !bindJSON(c, &in) {
		return
	}
	user, res, err := h.users.CreateUser(c.Request.Context(), actorID, in)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, userResponse{User: user, Sync: res}, http.StatusCreated)
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	users, err := h.users.List(c.Request.Context(), actorID)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, users, http.StatusOK)
}

func (h *AdminHandler) GetUserByID(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	user, err := h.users.GetByID(c.Request.Context(), actorID, id)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, user, http.StatusOK)
}

func (h *AdminHandler) UpdateUserRole(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var body struct {
		Role models.Role `json:"role"`
	}
	if !bindJSON(c, &body) {
		return
	}
	user, res, err := h.users.UpdateRole(c.Request.Context(), actorID, id, body.Role)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, userResponse{User: user, Sync: res}, http.StatusOK)
}

func (h *AdminHandler) SetUserGroups(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var body struct {
		Groups []string `json:"groups"`
	}
	if !bindJSON(c, &body) {
		return
	}
	user, res, err := h.users.SetGroups(c.Request.Context(), actorID, id, body.Groups)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, userResponse{User: user, Sync: res}, http.StatusOK)
}

func (h *AdminHandler) ListGroups(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	groups, err := h.users.Groups(c.Request.Context(), actorID)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, groups, http.StatusOK)
}

// RepairPermissions brings every role and group membership back in line.
// ?username= limits it to one account and ?dry_run=true reports without writing.
func (h *AdminHandler) RepairPermissions(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	dryRun, _ := strconv.ParseBool(c.DefaultQuery("dry_run", "false"))
	report, err := h.users.RepairPermissions(c.Request.Context(), actorID, services.RepairOptions{
		Username: c.Query("username"),
		DryRun:   dryRun,
	})
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, report, http.StatusOK)
}

func (h *AdminHandler) DiagnosePermissions(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	problems, err := h.users.DiagnosePermissions(c.Request.Context(), actorID)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, gin.H{"problems": problems, "count": len(problems)}, http.StatusOK)
}

// GetAuditLogs filters with ?action=, ?model=, ?object_id=, ?actor_id= and ?limit=.
func (h *AdminHandler) GetAuditLogs(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	filter := repositories.AuditFilter{
		Action:    c.Query("action"),
		ModelName: c.Query("model"),
		ObjectID:  c.Query("object_id"),
	}
	if v := c.Query("actor_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			middlewares.BadRequest(c, "invalid actor_id")
			return
		}
		filter.ActorID = id
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			middlewares.BadRequest(c, "invalid limit")
			return
		}
		filter.Limit = limit
	}
	entries, err := h.audit.List(c.Request.Context(), actorID, filter)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, entries, http.StatusOK)
}
