package handlers

import (
	"net/http"

	"CampaignClinic/middlewares"
	"CampaignClinic/models"
	"CampaignClinic/services"

	"github.com/gin-gonic/gin"
)

type LabHandler struct {
	service *services.LabService
}

func NewLabHandler(service *services.LabService) *LabHandler {
	return &LabHandler{service: service}
}

// GetLabQueue lists orders by ?status=, pending orders when omitted.
func (h *LabHandler) GetLabQueue(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	status := models.LabStatus(c.DefaultQuery("status", string(models.LabOrdered)))
	orders, err := h.service.Queue(c.Request.Context(), actorID, status)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, orders, http.StatusOK)
}

func (h *LabHandler) GetLabOrderByID(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	order, err := h.service.GetOrder(c.Request.Context(), actorID, id)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, order, http.StatusOK)
}

func (h *LabHandler) CompleteLabOrder(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in services.LabResultInput
	if !bindJSON(c, &in) {
		return
	}
	result, err := h.service.CompleteLabOrder(c.Request.Context(), actorID, id, in)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, result, http.StatusCreated)
}

func (h *LabHandler) CancelLabOrder(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var body reasonBody
	if !bindOptionalJSON(c, &body) {
		return
	}
	order, err := h.service.CancelLabOrder(c.Request.Context(), actorID, id, body.Reason)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, order, http.StatusOK)
}

func (h *LabHandler) GetLabResultByID(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	result, err := h.service.GetResult(c.Request.Context(), actorID, id)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, result, http.StatusOK)
}

func (h *LabHandler) UpdateLabResult(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in services.LabResultInput
	if !bindJSON(c, &in) {
		return
	}
	result, err := h.service.UpdateLabResult(c.Request.Context(), actorID, id, in)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, result, http.StatusOK)
}

func (h *LabHandler) VerifyLabResult(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	result, err := h.service.VerifyLabResult(c.Request.Context(), actorID, id)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, result, http.StatusOK)
}

func (h *LabHandler) NotifyCriticalResult(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in services.NotifyInput
	if !bindJSON(c, &in) {
		return
	}
	result, err := h.service.NotifyCriticalResult(c.Request.Context(), actorID, id, in)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, result, http.StatusOK)
}

func (h *LabHandler) GetCriticalResults(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	results, err := h.service.CriticalResults(c.Request.Context(), actorID)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, results, http.StatusOK)
}
