package handlers

import (
	"net/http"
	"strconv"

	"CampaignClinic/middlewares"
	"CampaignClinic/models"
	"CampaignClinic/services"

	"github.com/gin-gonic/gin"
)

type PharmacyHandler struct {
	service *services.PharmacyService
}

func NewPharmacyHandler(service *services.PharmacyService) *PharmacyHandler {
	return &PharmacyHandler{service: service}
}

// GetPharmacyQueue lists prescriptions by ?status=, pending review when omitted.
func (h *PharmacyHandler) GetPharmacyQueue(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	status := models.PharmacyStatus(c.DefaultQuery("status", string(models.PharmacyPendingReview)))
	list, err := h.service.Queue(c.Request.Context(), actorID, status)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, list, http.StatusOK)
}

// GetDispensingHistory lists dispensed prescriptions, optionally ?dispensed_by=<user id>.
func (h *PharmacyHandler) GetDispensingHistory(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	var dispensedBy int64
	if v := c.Query("dispensed_by"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			middlewares.BadRequest(c, "invalid dispensed_by")
			return
		}
		dispensedBy = id
	}
	list, err := h.service.History(c.Request.Context(), actorID, dispensedBy)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, list, http.StatusOK)
}

func (h *PharmacyHandler) GetPrescriptionByID(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	p, err := h.service.GetByID(c.Request.Context(), actorID, id)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, p, http.StatusOK)
}

func (h *PharmacyHandler) UpdatePrescriptionDetails(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in services.PrescriptionDetailsInput
	if !bindJSON(c, &in) {
		return
	}
	p, err := h.service.UpdateDetails(c.Request.Context(), actorID, id, in)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, p, http.StatusOK)
}

func (h *PharmacyHandler) DispensePrescription(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in services.DispenseInput
	if !bindOptionalJSON(c, &in) {
		return
	}
	p, err := h.service.Dispense(c.Request.Context(), actorID, id, in)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, p, http.StatusOK)
}

func (h *PharmacyHandler) CancelPrescription(c *gin.Context) {
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
	p, err := h.service.Cancel(c.Request.Context(), actorID, id, body.Reason)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, p, http.StatusOK)
}
