package handlers

import (
	"net/http"
	"strconv"

	"CampaignClinic/middlewares"
	"CampaignClinic/models"
	"CampaignClinic/services"

	"github.com/gin-gonic/gin"
)

// CampaignHandler serves campaigns and the lab test and drug catalogs.
type CampaignHandler struct {
	service *services.CampaignService
}

func NewCampaignHandler(service *services.CampaignService) *CampaignHandler {
	return &CampaignHandler{service: service}
}

func (h *CampaignHandler) CreateCampaign(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	var in services.CampaignInput
	if !bindJSON(c, &in) {
		return
	}
	campaign, err := h.service.CreateCampaign(c.Request.Context(), actorID, in)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, campaign, http.StatusCreated)
}

func (h *CampaignHandler) UpdateCampaign(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in services.CampaignInput
	if !bindJSON(c, &in) {
		return
	}
	campaign, err := h.service.UpdateCampaign(c.Request.Context(), actorID, id, in)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, campaign, http.StatusOK)
}

func (h *CampaignHandler) GetAllCampaigns(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	list, err := h.service.ListCampaigns(c.Request.Context(), actorID)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, list, http.StatusOK)
}

func (h *CampaignHandler) GetEnrollment(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	enrollment, err := h.service.Enrollment(c.Request.Context(), actorID, id)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, enrollment, http.StatusOK)
}

func (h *CampaignHandler) CreateLabTest(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	var in models.LabTest
	if !bindJSON(c, &in) {
		return
	}
	test, err := h.service.CreateLabTest(c.Request.Context(), actorID, in)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, test, http.StatusCreated)
}

func (h *CampaignHandler) GetLabTests(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	list, err := h.service.ListLabTests(c.Request.Context(), actorID, includeInactive(c))
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, list, http.StatusOK)
}

func (h *CampaignHandler) CreateDrug(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	var in models.Drug
	if !bindJSON(c, &in) {
		return
	}
	drug, err := h.service.CreateDrug(c.Request.Context(), actorID, in)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, drug, http.StatusCreated)
}

func (h *CampaignHandler) GetDrugs(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	list, err := h.service.ListDrugs(c.Request.Context(), actorID, includeInactive(c))
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, list, http.StatusOK)
}

func includeInactive(c *gin.Context) bool {
	v, _ := strconv.ParseBool(c.DefaultQuery("include_inactive", "false"))
	return v
}
