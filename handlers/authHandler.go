package handlers

import (
	"net/http"

	"CampaignClinic/middlewares"
	"CampaignClinic/services"
	"CampaignClinic/utils"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	service *services.AuthService
}

func NewAuthHandler(service *services.AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

// Login authenticates a staff member and returns an access token. The token
// is also set as an HTTP-only cookie.
func (h *AuthHandler) Login(c *gin.Context) {
	var credentials struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !bindJSON(c, &credentials) {
		return
	}

	token, user, err := h.service.Login(c.Request.Context(), credentials.Username, credentials.Password)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}

	utils.SetAuthCookie(c, token)
	middlewares.RespondJSON(c, gin.H{
		"accessToken": token,
		"user":        user,
	}, http.StatusOK)
}

// Logoff clears the session cookie.
func (h *AuthHandler) Logoff(c *gin.Context) {
	utils.ClearAuthCookie(c)
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) Me(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	user, err := h.service.Me(c.Request.Context(), actorID)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, user, http.StatusOK)
}
