package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New()
	m.PatientTransition("vitals_taken")
	m.PatientTransition("vitals_taken")
	m.AuthorizationDenied("can_register")
	m.CriticalResult()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.patientTransitions.WithLabelValues("vitals_taken")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.denials.WithLabelValues("can_register")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.criticalResults))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.PatientTransition("registered")
		m.LabOrderEvent("completed")
		m.PrescriptionEvent("dispensed")
		m.RoleCorrection("groups")
	})
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.PrescriptionEvent("dispensed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `clinic_prescription_events_total{event="dispensed"} 1`)
}
