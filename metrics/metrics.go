// Package metrics exposes workflow counters for prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry           *prometheus.Registry
	patientTransitions *prometheus.CounterVec
	labOrders          *prometheus.CounterVec
	prescriptions      *prometheus.CounterVec
	criticalResults    prometheus.Counter
	denials            *prometheus.CounterVec
	roleCorrections    *prometheus.CounterVec
}

// New registers the clinic collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		patientTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Name:      "patient_status_transitions_total",
			Help:      "Patient status changes by target status.",
		}, []string{"status"}),
		labOrders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Name:      "lab_order_events_total",
			Help:      "Lab order lifecycle events.",
		}, []string{"event"}),
		prescriptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Name:      "prescription_events_total",
			Help:      "Prescription lifecycle events.",
		}, []string{"event"}),
		criticalResults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Name:      "critical_lab_results_total",
			Help:      "Lab results entered as critical.",
		}),
		denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Name:      "authorization_denied_total",
			Help:      "Refused access checks by capability.",
		}, []string{"capability"}),
		roleCorrections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Name:      "role_group_corrections_total",
			Help:      "Corrections applied by the permission synchronizer.",
		}, []string{"kind"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		m.patientTransitions,
		m.labOrders,
		m.prescriptions,
		m.criticalResults,
		m.denials,
		m.roleCorrections,
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) PatientTransition(status string) {
	if m == nil {
		return
	}
	m.patientTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) LabOrderEvent(event string) {
	if m == nil {
		return
	}
	m.labOrders.WithLabelValues(event).Inc()
}

func (m *Metrics) PrescriptionEvent(event string) {
	if m == nil {
		return
	}
	m.prescriptions.WithLabelValues(event).Inc()
}

func (m *Metrics) CriticalResult() {
	if m == nil {
		return
	}
	m.criticalResults.Inc()
}

func (m *Metrics) AuthorizationDenied(capability string) {
	if m == nil {
		return
	}
	m.denials.WithLabelValues(capability).Inc()
}

func (m *Metrics) RoleCorrection(kind string) {
	if m == nil {
		return
	}
	m.roleCorrections.WithLabelValues(kind).Inc()
}
