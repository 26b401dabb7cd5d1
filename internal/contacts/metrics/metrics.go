package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the contacts module.
type Metrics struct {
	RequestsSent      prometheus.Counter
	RequestsResolved  *prometheus.CounterVec
	Rejections        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	ReferencesHealed  prometheus.Counter
}

// New registers the contacts metrics with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the contacts metrics with reg. Tests pass a
// fresh prometheus.NewRegistry() so repeated construction does not panic.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatline_contact_requests_sent_total",
			Help: "Total number of contact requests created",
		}),
		RequestsResolved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatline_contact_requests_resolved_total",
			Help: "Contact requests moved to a terminal status",
		}, []string{"status"}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatline_contact_operation_rejections_total",
			Help: "Operations refused with a domain error, by reason",
		}, []string{"operation", "reason"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chatline_contact_operation_duration_seconds",
			Help:    "Duration of contact operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
		ReferencesHealed: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatline_pending_references_healed_total",
			Help: "Pending-request references added or removed by reconciliation",
		}),
	}
}

func (m *Metrics) IncrementRequestsSent() {
	m.RequestsSent.Inc()
}

func (m *Metrics) IncrementResolved(status string) {
	m.RequestsResolved.WithLabelValues(status).Inc()
}

// IncrementRejection records an operation refused with a domain error reason.
func (m *Metrics) IncrementRejection(operation, reason string) {
	m.Rejections.WithLabelValues(operation, reason).Inc()
}

// ObserveOperation records the duration of an operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) AddReferencesHealed(n int) {
	m.ReferencesHealed.Add(float64(n))
}
