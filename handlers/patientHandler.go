package handlers

import (
	"context"
	"net/http"

	"CampaignClinic/middlewares"
	"CampaignClinic/models"
	"CampaignClinic/services"

	"github.com/gin-gonic/gin"
)

type PatientHandler struct {
	service       *services.PatientService
	consultations *services.ConsultationService
}

func NewPatientHandler(service *services.PatientService, consultations *services.ConsultationService) *PatientHandler {
	return &PatientHandler{service: service, consultations: consultations}
}

func (h *PatientHandler) RegisterPatient(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	var in services.PatientInput
	if !bindJSON(c, &in) {
		return
	}
	patient, err := h.service.Register(c.Request.Context(), actorID, in)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, patient, http.StatusCreated)
}

func (h *PatientHandler) GetPatientByID(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	patient, err := h.service.GetByID(c.Request.Context(), actorID, id)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, patient, http.StatusOK)
}

// GetPatientByCode looks a patient up by the issued patient ID (HC-2025-0001).
func (h *PatientHandler) GetPatientByCode(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	patient, err := h.service.GetByPatientID(c.Request.Context(), actorID, c.Param("patient_id"))
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, patient, http.StatusOK)
}

// GetAllPatients lists patients, optionally filtered with ?status=.
func (h *PatientHandler) GetAllPatients(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	patients, err := h.service.List(c.Request.Context(), actorID, models.PatientStatus(c.Query("status")))
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, patients, http.StatusOK)
}

func (h *PatientHandler) UpdatePatient(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in services.PatientInput
	if !bindJSON(c, &in) {
		return
	}
	patient, err := h.service.Update(c.Request.Context(), actorID, id, in)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, patient, http.StatusOK)
}

func (h *PatientHandler) RecordVitals(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in services.VitalsInput
	if !bindJSON(c, &in) {
		return
	}
	vitals, err := h.service.RecordVitals(c.Request.Context(), actorID, id, in)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, vitals, http.StatusOK)
}

func (h *PatientHandler) GetConsultations(c *gin.Context) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	list, err := h.service.Consultations(c.Request.Context(), actorID, id)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, list, http.StatusOK)
}

// CreateConsultation opens a consultation for the patient, together with any
// lab orders and prescriptions in the body.
func (h *PatientHandler) CreateConsultation(c *gin.Context) {
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
	consultation, err := h.consultations.Create(c.Request.Context(), actorID, id, in)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, consultation, http.StatusCreated)
}

func (h *PatientHandler) CompleteTreatment(c *gin.Context) {
	h.closeOut(c, h.service.CompleteTreatment)
}

func (h *PatientHandler) Discharge(c *gin.Context) {
	h.closeOut(c, h.service.Discharge)
}

func (h *PatientHandler) closeOut(c *gin.Context, op func(ctx context.Context, actorID, patientID int64) (*models.Patient, error)) {
	actorID, ok := middlewares.MustActorID(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	patient, err := op(c.Request.Context(), actorID, id)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, patient, http.StatusOK)
}
