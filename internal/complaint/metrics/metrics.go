package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the complaint lifecycle.
// Tracks creations, status transitions, lock contention and operation latency.
type Metrics struct {
	ComplaintsCreated prometheus.Counter
	StatusChanges     *prometheus.CounterVec
	LockConflicts     prometheus.Counter
	OperationDuration *prometheus.HistogramVec
}

// New creates a Metrics instance registered on reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		ComplaintsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "complaints_created_total",
			Help: "Total number of complaints filed",
		}),
		StatusChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "complaint_status_changes_total",
			Help: "Total number of complaint status transitions by target status",
		}, []string{"status"}),
		LockConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "complaint_lock_conflicts_total",
			Help: "Total number of lock attempts rejected because another user holds the lease",
		}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "complaint_operation_duration_seconds",
			Help:    "Duration of lifecycle operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

// IncrementCreated records a successful complaint creation.
func (m *Metrics) IncrementCreated() {
	m.ComplaintsCreated.Inc()
}

// IncrementStatusChange records a transition into status.
func (m *Metrics) IncrementStatusChange(status string) {
	m.StatusChanges.WithLabelValues(status).Inc()
}

// IncrementLockConflict records a rejected lock acquisition.
func (m *Metrics) IncrementLockConflict() {
	m.LockConflicts.Inc()
}

// ObserveOperation records the duration of a lifecycle operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
