package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "shiftwatch"

// Collector groups the engine's Prometheus collectors. A nil *Collector is
// valid and records nothing, which keeps tests free of registry wiring.
type Collector struct {
	PollCycles          prometheus.Counter
	PollCycleDuration   prometheus.Histogram
	ZoneFailures        *prometheus.CounterVec
	PunchesApplied      *prometheus.CounterVec
	AttendanceWrites    *prometheus.CounterVec
	Confirmations       prometheus.Counter
	NotificationsSent   *prometheus.CounterVec
	DispatchSkipped     *prometheus.CounterVec
	BreakerStateChanges *prometheus.CounterVec
	JobRuns             *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		PollCycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Completed zone poll cycles.",
		}),
		PollCycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_cycle_duration_seconds",
			Help:      "Wall time of a zone poll cycle.",
			Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		ZoneFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "zone_failures_total",
			Help:      "Zone poll failures by device role.",
		}, []string{"role"}),
		PunchesApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "punches_applied_total",
			Help:      "Punch events that changed an attendance record.",
		}, []string{"role"}),
		AttendanceWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attendance_writes_total",
			Help:      "Attendance records written by operation.",
		}, []string{"op"}),
		Confirmations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_confirmations_total",
			Help:      "Notification records confirmed by a notify device punch.",
		}),
		NotificationsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Notification deliveries by result.",
		}, []string{"result"}),
		DispatchSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_skipped_total",
			Help:      "Notification job evaluations that did not dispatch, by reason.",
		}, []string{"reason"}),
		BreakerStateChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_breaker_state_changes_total",
			Help:      "Device circuit breaker transitions.",
		}, []string{"device", "to"}),
		JobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Engine job runs by type and status.",
		}, []string{"job_type", "status"}),
	}
}

func (c *Collector) CycleDone(seconds float64) {
	if c == nil {
		return
	}
	c.PollCycles.Inc()
	c.PollCycleDuration.Observe(seconds)
}

func (c *Collector) ZoneFailed(role string) {
	if c == nil {
		return
	}
	c.ZoneFailures.WithLabelValues(role).Inc()
}

func (c *Collector) PunchApplied(role string) {
	if c == nil {
		return
	}
	c.PunchesApplied.WithLabelValues(role).Inc()
}

func (c *Collector) AttendanceWritten(op string, n int) {
	if c == nil || n == 0 {
		return
	}
	c.AttendanceWrites.WithLabelValues(op).Add(float64(n))
}

func (c *Collector) Confirmed(n int) {
	if c == nil || n == 0 {
		return
	}
	c.Confirmations.Add(float64(n))
}

func (c *Collector) NotificationSent(result string) {
	if c == nil {
		return
	}
	c.NotificationsSent.WithLabelValues(result).Inc()
}

func (c *Collector) DispatchSkip(reason string) {
	if c == nil {
		return
	}
	c.DispatchSkipped.WithLabelValues(reason).Inc()
}

func (c *Collector) BreakerChanged(device, to string) {
	if c == nil {
		return
	}
	c.BreakerStateChanges.WithLabelValues(device, to).Inc()
}

func (c *Collector) JobRun(jobType, status string) {
	if c == nil {
		return
	}
	c.JobRuns.WithLabelValues(jobType, status).Inc()
}
