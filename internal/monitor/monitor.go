// Package monitor periodically reconciles stored subscription state with the
// channel membership reported by Telegram.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/m3rciful/gatebot/core/logger"
	"github.com/m3rciful/gatebot/internal/domain"
	"github.com/m3rciful/gatebot/internal/membership"
	"github.com/m3rciful/gatebot/internal/metrics"
)

const (
	// DefaultInterval is the pause between ticks.
	DefaultInterval = 5 * time.Minute
	// DefaultProbesPerSecond paces Bot API probes.
	DefaultProbesPerSecond = 20.0

	component = "monitor"
)

// Prober reports channel membership and reachability of a user.
type Prober interface {
	Status(ctx context.Context, userID int64) (domain.MembershipStatus, error)
	Blocked(ctx context.Context, userID int64) (bool, error)
}

// Notifier tells a user they left the channel.
type Notifier interface {
	NotifyUnsubscribed(ctx context.Context, userID int64) error
}

// Users is the part of the user store the loop mutates.
type Users interface {
	List() []domain.UserRecord
	Get(id int64) (domain.UserRecord, bool)
	Remove(ctx context.Context, id int64) error
	UpdateSubscriptionStatus(ctx context.Context, id int64, subscribed bool) error
}

// Options configures a Monitor.
type Options struct {
	Users    Users
	Prober   Prober
	Notifier Notifier
	Metrics  *metrics.Collectors

	Interval        time.Duration
	ProbesPerSecond float64
}

// Report summarizes one tick.
type Report struct {
	RunID        string
	Checked      int
	Removed      int
	Unsubscribed int
	Subscribed   int
	Errors       int
	Duration     time.Duration
}

// Monitor runs the reconciliation loop. Ticks never overlap.
type Monitor struct {
	users    Users
	prober   Prober
	notifier Notifier
	metrics  *metrics.Collectors
	interval time.Duration
	limiter  *rate.Limiter

	tickMu sync.Mutex

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// New builds a monitor. Interval and rate fall back to the defaults.
func New(opts Options) *Monitor {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	rps := opts.ProbesPerSecond
	if rps <= 0 {
		rps = DefaultProbesPerSecond
	}
	return &Monitor{
		users:    opts.Users,
		prober:   opts.Prober,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Start launches the ticker loop. A second Start while running is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	go m.loop(ctx, m.done)
	logger.Info(ctx, component, "start", slog.Duration("interval", m.interval))
}

// Stop cancels the loop and waits for the running tick to return.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel, done := m.cancel, m.done
	m.running = false
	m.mu.Unlock()

	cancel()
	<-done
	logger.Info(logger.Background(), component, "stop")
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single reconciliation pass over the users known at the
// start of the pass. Per-user failures are counted and logged.
func (m *Monitor) RunOnce(ctx context.Context) Report {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	start := time.Now()
	rep := Report{RunID: uuid.NewString()}
	ctx = logger.WithRID(ctx, rep.RunID)

	users := m.users.List()
	logger.Debug(ctx, component, "tick.start", slog.Int("users", len(users)))

	for _, u := range users {
		if ctx.Err() != nil {
			break
		}
		m.reconcile(ctx, u.ID, &rep)
	}

	rep.Duration = logger.Took(start)
	m.publish(ctx, rep)
	return rep
}

func (m *Monitor) reconcile(ctx context.Context, userID int64, rep *Report) {
	uctx := logger.WithUpdateMeta(ctx, 0, userID, userID)

	if err := m.limiter.Wait(ctx); err != nil {
		return
	}
	blocked, err := m.prober.Blocked(uctx, userID)
	if err != nil {
		rep.Errors++
		logger.Warn(uctx, component, "probe.blocked_fail", slog.String("err", err.Error()))
		blocked = false
	}
	if blocked {
		rep.Checked++
		if err := m.users.Remove(uctx, userID); err != nil {
			rep.Errors++
			logger.Error(uctx, component, "user.remove_fail", slog.String("err", err.Error()))
			return
		}
		rep.Removed++
		logger.Info(uctx, component, "user.blocked_removed")
		return
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return
	}
	status, err := m.prober.Status(uctx, userID)
	rep.Checked++
	if err != nil {
		rep.Errors++
		logger.Warn(uctx, component, "probe.status_fail", slog.String("err", err.Error()))
	}
	status = membership.FailClosed(status, err)
	subscribed := status.Subscribed()

	current, ok := m.users.Get(userID)
	if !ok {
		return
	}

	switch {
	case current.IsSubscribed && !subscribed:
		if m.notifier != nil {
			nerr := m.notifier.NotifyUnsubscribed(uctx, userID)
			m.metrics.NotificationQueued(nerr)
			if nerr != nil {
				rep.Errors++
				logger.Warn(uctx, component, "notify.fail", slog.String("err", nerr.Error()))
			}
		}
		if err := m.users.UpdateSubscriptionStatus(uctx, userID, false); err != nil {
			rep.Errors++
			logger.Error(uctx, component, "status.update_fail", slog.String("err", err.Error()))
		}
		rep.Unsubscribed++
		logger.Info(uctx, component, "user.unsubscribed", slog.String("status", string(status)))
	case !current.IsSubscribed && subscribed:
		if err := m.users.UpdateSubscriptionStatus(uctx, userID, true); err != nil {
			rep.Errors++
			logger.Error(uctx, component, "status.update_fail", slog.String("err", err.Error()))
		}
		rep.Subscribed++
		logger.Info(uctx, component, "user.subscribed", slog.String("status", string(status)))
	}
}

func (m *Monitor) publish(ctx context.Context, rep Report) {
	m.metrics.TickCompleted(metrics.TickReport{
		Checked:      rep.Checked,
		Removed:      rep.Removed,
		Unsubscribed: rep.Unsubscribed,
		Subscribed:   rep.Subscribed,
		Errors:       rep.Errors,
		Duration:     rep.Duration,
	})
	if m.metrics != nil {
		all := m.users.List()
		subs := 0
		for _, u := range all {
			if u.IsSubscribed {
				subs++
			}
		}
		m.metrics.SetUsers(len(all), subs)
	}

	logger.Info(ctx, component, "tick.done",
		slog.Int("checked", rep.Checked),
		slog.Int("removed", rep.Removed),
		slog.Int("unsubscribed", rep.Unsubscribed),
		slog.Int("subscribed", rep.Subscribed),
		slog.Int("errors", rep.Errors),
		slog.Duration("duration", rep.Duration),
	)
}
