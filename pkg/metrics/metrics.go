package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Plate metrics
	PlatesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "titan_plates_total",
			Help: "Total number of plates by phase",
		},
		[]string{"phase"},
	)

	PlateWorkflowDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "titan_plate_workflow_duration_seconds",
			Help:    "Time taken for a plate to complete its full workflow",
			Buckets: prometheus.DefBuckets,
		},
	)

	PlateStepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "titan_plate_step_duration_seconds",
			Help:    "Time taken to complete a single workflow step, by station",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"station_id"},
	)

	PlatesCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "titan_plates_completed_total",
			Help: "Total number of plates that finished their workflow",
		},
	)

	PlatesErroredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "titan_plates_errored_total",
			Help: "Total number of plates that entered the error phase",
		},
	)

	PlatesAbortedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "titan_plates_aborted_total",
			Help: "Total number of plates aborted by an operator",
		},
	)

	// Mover metrics
	MoversTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "titan_movers_total",
			Help: "Total number of movers by run state",
		},
		[]string{"state"},
	)

	MoverAssignmentWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "titan_mover_assignment_wait_seconds",
			Help:    "Time a plate waits in the mover pool queue before assignment",
			Buckets: prometheus.DefBuckets,
		},
	)

	MoverTransportDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "titan_mover_transport_duration_seconds",
			Help:    "Time taken for a mover to complete a transport plan",
			Buckets: prometheus.DefBuckets,
		},
	)

	MoverTransportsFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "titan_mover_transports_failed_total",
			Help: "Total number of transports that failed or were unreachable",
		},
	)

	// Station metrics
	StationQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "titan_station_queue_depth",
			Help: "Current number of plates waiting for station access",
		},
		[]string{"station_id"},
	)

	StationAccessWaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "titan_station_access_wait_seconds",
			Help:    "Time a plate waits for station access to be granted",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"station_id"},
	)

	// Device metrics
	DeviceProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "titan_device_processing_duration_seconds",
			Help:    "Time taken for a device to process one workflow step",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"device_id"},
	)

	DeviceErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "titan_device_errors_total",
			Help: "Total number of device driver errors by device",
		},
		[]string{"device_id"},
	)

	// Planner metrics
	PlanningDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "titan_planning_duration_seconds",
			Help:    "Time taken to compute a route plan",
			Buckets: prometheus.DefBuckets,
		},
	)

	PlanningFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "titan_planning_failures_total",
			Help: "Total number of planning failures by reason",
		},
		[]string{"reason"},
	)

	// Actor runtime metrics
	MailboxDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "titan_actor_mailbox_depth",
			Help: "Current number of messages queued in an actor's mailbox",
		},
		[]string{"actor_id"},
	)

	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "titan_events_published_total",
			Help: "Total number of events published to the event bus, by event type",
		},
		[]string{"event_type"},
	)

	// Sweeper metrics
	StalenessSweepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "titan_staleness_sweeps_total",
			Help: "Total number of staleness sweep cycles completed",
		},
	)

	StalenessSweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "titan_staleness_sweep_duration_seconds",
			Help:    "Time taken for a single staleness sweep cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	StalePlatesDetectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "titan_stale_plates_detected_total",
			Help: "Total number of plates flagged stale by the sweeper",
		},
	)
)

func init() {
	prometheus.MustRegister(PlatesTotal)
	prometheus.MustRegister(PlateWorkflowDuration)
	prometheus.MustRegister(PlateStepDuration)
	prometheus.MustRegister(PlatesCompletedTotal)
	prometheus.MustRegister(PlatesErroredTotal)
	prometheus.MustRegister(PlatesAbortedTotal)

	prometheus.MustRegister(MoversTotal)
	prometheus.MustRegister(MoverAssignmentWaitDuration)
	prometheus.MustRegister(MoverTransportDuration)
	prometheus.MustRegister(MoverTransportsFailedTotal)

	prometheus.MustRegister(StationQueueDepth)
	prometheus.MustRegister(StationAccessWaitDuration)

	prometheus.MustRegister(DeviceProcessingDuration)
	prometheus.MustRegister(DeviceErrorsTotal)

	prometheus.MustRegister(PlanningDuration)
	prometheus.MustRegister(PlanningFailuresTotal)

	prometheus.MustRegister(MailboxDepth)
	prometheus.MustRegister(EventsPublishedTotal)

	prometheus.MustRegister(StalenessSweepsTotal)
	prometheus.MustRegister(StalenessSweepDuration)
	prometheus.MustRegister(StalePlatesDetectedTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
