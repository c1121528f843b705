// Package metrics holds the Prometheus collectors of the bot and the
// listener that exposes them.
//
// Label sets stay bounded: handler names come from the command registry and
// the remaining labels are fixed enumerations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/m3rciful/gatebot/core/logger"
)

const namespace = "gatebot"

// Collectors groups every metric the bot records. All methods are safe for
// concurrent use and tolerate a nil receiver.
type Collectors struct {
	updates         *prometheus.CounterVec
	handlerLatency  *prometheus.HistogramVec
	codesCreated    prometheus.Counter
	referrals       *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	sent            *prometheus.CounterVec
	snapshotWrites  *prometheus.CounterVec
	snapshotLatency prometheus.Histogram
	ticks           prometheus.Counter
	tickLatency     prometheus.Histogram
	checked         prometheus.Counter
	transitions     *prometheus.CounterVec
	removed         prometheus.Counter
	probeErrors     prometheus.Counter
	users           prometheus.Gauge
	subscribed      prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Handled Telegram updates by handler and status.",
		}, []string{"handler", "status"}),
		handlerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handler_duration_seconds",
			Help:      "Handler latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"handler"}),
		codesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "referral_codes_created_total",
			Help:      "Referral codes issued.",
		}),
		referrals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "referrals_processed_total",
			Help:      "Referral attempts by result (credited, rejected).",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unsubscribe_notifications_total",
			Help:      "Unsubscribe notices by status.",
		}, []string{"status"}),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_messages_total",
			Help:      "Async Bot API sends by action and final status.",
		}, []string{"action", "status"}),
		snapshotWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_writes_total",
			Help:      "Snapshot file writes by status.",
		}, []string{"status"}),
		snapshotLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_write_duration_seconds",
			Help:      "Snapshot write latency in seconds.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "ticks_total",
			Help:      "Completed reconciliation ticks.",
		}),
		tickLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "tick_duration_seconds",
			Help:      "Reconciliation tick duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		checked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "users_checked_total",
			Help:      "Users probed by the reconciliation loop.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "transitions_total",
			Help:      "Subscription status changes by direction (subscribed, unsubscribed).",
		}, []string{"direction"}),
		removed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "users_removed_total",
			Help:      "Users removed after blocking the bot.",
		}),
		probeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "errors_total",
			Help:      "Per-user failures during reconciliation.",
		}),
		users: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "users",
			Help:      "Known users.",
		}),
		subscribed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribed_users",
			Help:      "Known users currently subscribed to the channel.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			c.updates, c.handlerLatency,
			c.codesCreated, c.referrals, c.notifications, c.sent,
			c.snapshotWrites, c.snapshotLatency,
			c.ticks, c.tickLatency, c.checked, c.transitions, c.removed, c.probeErrors,
			c.users, c.subscribed,
		)
	}
	return c
}

// ObserveUpdate records one handled update.
func (c *Collectors) ObserveUpdate(handler string, err error, took time.Duration) {
	if c == nil {
		return
	}
	if handler == "" {
		handler = "unknown"
	}
	c.updates.WithLabelValues(handler, logger.Status(err)).Inc()
	c.handlerLatency.WithLabelValues(handler).Observe(took.Seconds())
}

// CodeCreated counts an issued referral code.
func (c *Collectors) CodeCreated() {
	if c == nil {
		return
	}
	c.codesCreated.Inc()
}

// ReferralProcessed counts a referral attempt.
func (c *Collectors) ReferralProcessed(credited bool) {
	if c == nil {
		return
	}
	result := "rejected"
	if credited {
		result = "credited"
	}
	c.referrals.WithLabelValues(result).Inc()
}

// NotificationQueued counts an unsubscribe notice hand-off.
func (c *Collectors) NotificationQueued(err error) {
	if c == nil {
		return
	}
	c.notifications.WithLabelValues(logger.Status(err)).Inc()
}

// MessageSent records the final outcome of an async send. Its signature
// matches the sender dispatcher hook.
func (c *Collectors) MessageSent(action string, err error) {
	if c == nil {
		return
	}
	c.sent.WithLabelValues(action, logger.Status(err)).Inc()
}

// SnapshotWritten records one snapshot write. Its signature matches the
// storage coordinator hook.
func (c *Collectors) SnapshotWritten(err error, took time.Duration) {
	if c == nil {
		return
	}
	c.snapshotWrites.WithLabelValues(logger.Status(err)).Inc()
	c.snapshotLatency.Observe(took.Seconds())
}

// TickReport is the subset of a reconciliation report that is exported.
type TickReport struct {
	Checked      int
	Removed      int
	Unsubscribed int
	Subscribed   int
	Errors       int
	Duration     time.Duration
}

// TickCompleted records one reconciliation tick.
func (c *Collectors) TickCompleted(r TickReport) {
	if c == nil {
		return
	}
	c.ticks.Inc()
	c.tickLatency.Observe(r.Duration.Seconds())
	c.checked.Add(float64(r.Checked))
	c.removed.Add(float64(r.Removed))
	c.probeErrors.Add(float64(r.Errors))
	c.transitions.WithLabelValues("unsubscribed").Add(float64(r.Unsubscribed))
	c.transitions.WithLabelValues("subscribed").Add(float64(r.Subscribed))
}

// SetUsers sets the user gauges.
func (c *Collectors) SetUsers(total, subscribed int) {
	if c == nil {
		return
	}
	c.users.Set(float64(total))
	c.subscribed.Set(float64(subscribed))
}
