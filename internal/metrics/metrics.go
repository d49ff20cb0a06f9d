// Package metrics exposes Prometheus instruments for the scheduling core. A nil
// *Metrics is valid and records nothing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	conflictChecks   *prometheus.CounterVec
	bookings         *prometheus.CounterVec
	reschedules      *prometheus.CounterVec
	correctiveWrites prometheus.Counter
	syncBlocks       *prometheus.CounterVec
	syncRuns         *prometheus.CounterVec
	projection       *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		conflictChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicflow",
			Subsystem: "scheduling",
			Name:      "conflict_checks_total",
			Help:      "Conflict checks by outcome (free, appointment, blocked_slot)",
		}, []string{"outcome"}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicflow",
			Subsystem: "scheduling",
			Name:      "booking_operations_total",
			Help:      "Booking operations by kind and result",
		}, []string{"operation", "result"}),
		reschedules: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicflow",
			Subsystem: "reschedule",
			Name:      "drops_total",
			Help:      "Drag-and-drop reschedule attempts by result",
		}, []string{"result"}),
		correctiveWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinicflow",
			Subsystem: "reschedule",
			Name:      "corrective_updates_total",
			Help:      "Reschedules whose stored date disagreed and needed a corrective update",
		}),
		syncBlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicflow",
			Subsystem: "lunch_sync",
			Name:      "blocks_total",
			Help:      "Blocked slots added or removed by lunch synchronization",
		}, []string{"scope", "action"}),
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicflow",
			Subsystem: "lunch_sync",
			Name:      "runs_total",
			Help:      "Lunch synchronization runs by result",
		}, []string{"result"}),
		projection: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinicflow",
			Subsystem: "calendar",
			Name:      "projection_seconds",
			Help:      "Time spent projecting a calendar view",
			Buckets:   prometheus.DefBuckets,
		}, []string{"view"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.conflictChecks, m.bookings, m.reschedules, m.correctiveWrites, m.syncBlocks, m.syncRuns, m.projection)
	return m
}

func (m *Metrics) ObserveConflictCheck(outcome string) {
	if m == nil {
		return
	}
	m.conflictChecks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveBooking(operation, result string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) ObserveDrop(result string) {
	if m == nil {
		return
	}
	m.reschedules.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveCorrectiveUpdate() {
	if m == nil {
		return
	}
	m.correctiveWrites.Inc()
}

func (m *Metrics) ObserveSync(scope string, added, removed int) {
	if m == nil {
		return
	}
	m.syncBlocks.WithLabelValues(scope, "added").Add(float64(added))
	m.syncBlocks.WithLabelValues(scope, "removed").Add(float64(removed))
}

func (m *Metrics) ObserveSyncRun(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.syncRuns.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveProjection(view string, seconds float64) {
	if m == nil {
		return
	}
	m.projection.WithLabelValues(view).Observe(seconds)
}
