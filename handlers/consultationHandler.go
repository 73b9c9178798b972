package handlers

import (
	"net/http"

	"CampaignClinic/middlewares"
	"CampaignClinic/services"

	"github.com/gin-gonic/gin"
)

type ConsultationHandler struct {
	service  *services.ConsultationService
	labs     *services.LabService
	pharmacy *services.PharmacyService
}

func NewConsultationHandler(service *services.ConsultationService, labs *services.LabService, pharmacy *services.PharmacyService) *ConsultationHandler {
	return &ConsultationHandler{service: service, labs: labs, pharmacy: pharmacy}
}

func (h *ConsultationHandler) GetConsultationByID(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	consultation, err := h.service.GetByID(c.Request.Context(), actorID, id)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, consultation, http.StatusOK)
}

func (h *ConsultationHandler) UpdateConsultation(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in services.ConsultationInput
	if !bindJSON(c, &in) {
		return
	}
	consultation, err := h.service.Update(c.Request.Context(), actorID, id, in)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, consultation, http.StatusOK)
}

func (h *ConsultationHandler) CreateLabOrder(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in services.LabOrderInput
	if !bindJSON(c, &in) {
		return
	}
	order, err := h.labs.CreateLabOrder(c.Request.Context(), actorID, id, in)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, order, http.StatusCreated)
}

func (h *ConsultationHandler) CreatePrescription(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in services.PrescriptionInput
	if !bindJSON(c, &in) {
		return
	}
	prescription, err := h.pharmacy.CreatePrescription(c.Request.Context(), actorID, id, in)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, prescription, http.StatusCreated)
}
