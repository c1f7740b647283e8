package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the process-wide metric set. One instance is created at
// startup and shared by every room; all vectors are labeled so rooms do
// not need private registries.
type Metrics struct {
	EventsEmitted   *prometheus.CounterVec
	EventsCancelled *prometheus.CounterVec
	EventsSlow      prometheus.Counter
	RateLimitDrops  *prometheus.CounterVec
	ErrorsHandled   prometheus.Counter

	CommandsSubmitted *prometheus.CounterVec
	CommandReject     *prometheus.CounterVec
	CommandsCompleted prometheus.Counter

	PhaseTransitions *prometheus.CounterVec
	RoundsResolved   prometheus.Counter
	ResolveDuration  prometheus.Histogram

	ConnectedClients prometheus.Gauge
	RoomsActive      prometheus.Gauge
	SnapshotWrites   prometheus.Counter
	ArchiveTasks     prometheus.Counter
}

// NewMetrics registers the metric set on reg. Pass
// prometheus.DefaultRegisterer in production; tests use a private
// registry so parallel packages do not collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warlock_events_emitted_total",
			Help: "Events entering the bus, before middleware.",
		}, []string{"type"}),
		EventsCancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warlock_events_cancelled_total",
			Help: "Events cancelled by middleware.",
		}, []string{"middleware"}),
		EventsSlow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warlock_events_slow_total",
			Help: "Emits exceeding the slow-event threshold.",
		}),
		RateLimitDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warlock_rate_limit_drops_total",
			Help: "Events dropped by the per-room rate limiter.",
		}, []string{"type"}),
		ErrorsHandled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warlock_errors_handled_total",
			Help: "Errors caught by the error-handling middleware.",
		}),
		CommandsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warlock_commands_submitted_total",
			Help: "Commands accepted into player queues.",
		}, []string{"action_type"}),
		CommandReject: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warlock_commands_rejected_total",
			Help: "Commands rejected, by reason.",
		}, []string{"reason"}),
		CommandsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warlock_commands_completed_total",
			Help: "Commands that executed to completion.",
		}),
		PhaseTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warlock_phase_transitions_total",
			Help: "Phase transitions, by edge.",
		}, []string{"from", "to"}),
		RoundsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warlock_rounds_resolved_total",
			Help: "Completed action→results resolutions.",
		}),
		ResolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "warlock_resolve_duration_seconds",
			Help:    "Wall time of a round resolution.",
			Buckets: prometheus.DefBuckets,
		}),
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "warlock_connected_clients",
			Help: "Currently connected websocket clients.",
		}),
		RoomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "warlock_rooms_active",
			Help: "Live room actors.",
		}),
		SnapshotWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warlock_snapshot_writes_total",
			Help: "Room snapshots persisted at phase boundaries.",
		}),
		ArchiveTasks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warlock_archive_tasks_total",
			Help: "End-of-game archive tasks published.",
		}),
	}

	reg.MustRegister(
		m.EventsEmitted, m.EventsCancelled, m.EventsSlow, m.RateLimitDrops,
		m.ErrorsHandled, m.CommandsSubmitted, m.CommandReject,
		m.CommandsCompleted, m.PhaseTransitions, m.RoundsResolved,
		m.ResolveDuration, m.ConnectedClients, m.RoomsActive,
		m.SnapshotWrites, m.ArchiveTasks,
	)
	return m
}

// NewTestMetrics returns a metric set on a throwaway registry.
func NewTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
