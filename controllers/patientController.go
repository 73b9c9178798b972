package controllers

import (
	"CampaignClinic/handlers"

	"github.com/gin-gonic/gin"
)

// SetupPatientRoutes registers the clinical workflow routes, from registration
// through consultation, laboratory and pharmacy to discharge.
func SetupPatientRoutes(router gin.IRouter, tokenAuth gin.HandlerFunc, patientHandler *handlers.PatientHandler, consultationHandler *handlers.ConsultationHandler, labHandler *handlers.LabHandler, pharmacyHandler *handlers.PharmacyHandler) {
	r := router.Group("/").Use(tokenAuth)

	r.POST("/patients", patientHandler.RegisterPatient)
	r.GET("/patients", patientHandler.GetAllPatients)
	r.GET("/patients/:id", patientHandler.GetPatientByID)
	r.GET("/patients/by-code/:patient_id", patientHandler.GetPatientByCode)
	r.PUT("/patients/:id", patientHandler.UpdatePatient)
	r.PUT("/patients/:id/vitals", patientHandler.RecordVitals)
	r.GET("/patients/:id/consultations", patientHandler.GetConsultations)
	r.POST("/patients/:id/consultations", patientHandler.CreateConsultation)
	r.POST("/patients/:id/complete-treatment", patientHandler.CompleteTreatment)
	r.POST("/patients/:id/discharge", patientHandler.Discharge)

	r.GET("/consultations/:id", consultationHandler.GetConsultationByID)
	r.PUT("/consultations/:id", consultationHandler.UpdateConsultation)
	r.POST("/consultations/:id/lab-orders", consultationHandler.CreateLabOrder)
	r.POST("/consultations/:id/prescriptions", consultationHandler.CreatePrescription)

	r.GET("/lab-orders", labHandler.GetLabQueue)
	r.GET("/lab-orders/:id", labHandler.GetLabOrderByID)
	r.POST("/lab-orders/:id/complete", labHandler.CompleteLabOrder)
	r.POST("/lab-orders/:id/cancel", labHandler.CancelLabOrder)

	r.GET("/lab-results/critical", labHandler.GetCriticalResults)
	r.GET("/lab-results/:id", labHandler.GetLabResultByID)
	r.PUT("/lab-results/:id", labHandler.UpdateLabResult)
	r.POST("/lab-results/:id/verify", labHandler.VerifyLabResult)
	r.POST("/lab-results/:id/notify", labHandler.NotifyCriticalResult)

	r.GET("/prescriptions", pharmacyHandler.GetPharmacyQueue)
	r.GET("/prescriptions/history", pharmacyHandler.GetDispensingHistory)
	r.GET("/prescriptions/:id", pharmacyHandler.GetPrescriptionByID)
	r.PUT("/prescriptions/:id", pharmacyHandler.UpdatePrescriptionDetails)
	r.POST("/prescriptions/:id/dispense", pharmacyHandler.DispensePrescription)
	r.POST("/prescriptions/:id/cancel", pharmacyHandler.CancelPrescription)
}

// SetupCampaignRoutes registers campaign and catalog management.
func SetupCampaignRoutes(router gin.IRouter, tokenAuth gin.HandlerFunc, campaignHandler *handlers.CampaignHandler) {
	r := router.Group("/").Use(tokenAuth)

	r.POST("/campaigns", campaignHandler.CreateCampaign)
	r.GET("/campaigns", campaignHandler.GetAllCampaigns)
	r.PUT("/campaigns/:id", campaignHandler.UpdateCampaign)
	r.GET("/campaigns/:id/enrollment", campaignHandler.GetEnrollment)

	r.POST("/catalog/lab-tests", campaignHandler.CreateLabTest)
	r.GET("/catalog/lab-tests", campaignHandler.GetLabTests)
	r.POST("/catalog/drugs", campaignHandler.CreateDrug)
	r.GET("/catalog/drugs", campaignHandler.GetDrugs)
}
