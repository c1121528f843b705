// Package sender runs outbound Bot API calls on a bounded worker pool with
// linear backoff between attempts.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/gatebot/core/logger"
	"github.com/m3rciful/gatebot/core/telegram/netutil"
)

const component = "tg.sender"

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned when the buffer has no room for the job.
	ErrQueueFull = errors.New("telegram sender: queue full")

	errNilRun = errors.New("telegram sender: nil run function")
)

// Options controls the behaviour of the outbound dispatcher.
// Zero values select the defaults below.
type Options struct {
	QueueSize    int           // 256
	Workers      int           // 4
	MaxRetries   int           // 0
	RetryBackoff time.Duration // 2s, multiplied by the attempt number
	// MaxDuration bounds the time spent retrying a single job. 12s.
	MaxDuration time.Duration
	// OnDone is called once per job with its final error.
	OnDone func(action string, err error)
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	o.MaxRetries = max(o.MaxRetries, 0)
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	return o
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
}

// Dispatcher executes outbound Telegram calls asynchronously.
type Dispatcher struct {
	opts   Options
	queue  chan job
	closed atomic.Bool
	mu     sync.RWMutex
	once   sync.Once
	wg     sync.WaitGroup
	failed atomic.Uint64
}

// NewDispatcher starts the worker pool.
func NewDispatcher(opts Options) *Dispatcher {
	d := &Dispatcher{opts: opts.withDefaults()}
	d.queue = make(chan job, d.opts.QueueSize)
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for j := range d.queue {
				d.finish(j, d.execute(j))
			}
		}()
	}
	return d
}

// Enqueue schedules run without blocking. run may be called more than once
// when MaxRetries is set, so it has to be safe to repeat.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	if run == nil {
		return errNilRun
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed.Load() {
		return ErrQueueClosed
	}
	select {
	case d.queue <- job{ctx: ctx, action: action, endpoint: endpoint, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrorCount returns the number of jobs that finished with an error.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.failed.Load()
}

// Close rejects new jobs, drains the queue and waits for the workers.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed.Store(true)
		close(d.queue)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

// execute runs j until it succeeds, fails permanently, exhausts its attempts
// or runs out of time.
func (d *Dispatcher) execute(j job) error {
	ctx, cancel := context.WithTimeout(j.ctx, d.opts.MaxDuration)
	defer cancel()

	started := time.Now()
	attrs := jobAttrs(j)
	logger.Debug(j.ctx, component, "send.start", attrs...)

	limit := d.opts.MaxRetries + 1
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return d.fail(j, attrs, err, attempt-1, started)
		}
		err := j.run()
		if err == nil {
			if attempt > 1 {
				attrs = append(attrs, slog.Int("attempt", attempt))
			}
			logger.Debug(j.ctx, component, "send.success",
				append(attrs, slog.Duration("elapsed", time.Since(started)))...)
			return nil
		}
		if attempt >= limit || !netutil.ShouldRetry(err) {
			return d.fail(j, attrs, err, attempt, started)
		}

		wait := d.opts.RetryBackoff * time.Duration(attempt)
		logger.Debug(j.ctx, component, "send.retry",
			append(attrs,
				slog.Int("attempt", attempt),
				slog.Duration("delay", wait),
				slog.String("error_kind", classify(err)),
			)...)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return d.fail(j, attrs, ctx.Err(), attempt, started)
		case <-t.C:
		}
	}
}

func (d *Dispatcher) fail(j job, attrs []slog.Attr, err error, attempts int, started time.Time) error {
	d.failed.Add(1)
	logger.Error(j.ctx, component, "send.fail",
		append(attrs,
			slog.String("error", redactErr(err)),
			slog.String("error_kind", classify(err)),
			slog.Int("attempts", attempts),
			slog.Duration("elapsed", time.Since(started)),
		)...)
	return err
}

func (d *Dispatcher) finish(j job, err error) {
	if d.opts.OnDone != nil {
		d.opts.OnDone(j.action, err)
	}
}

// jobAttrs carries the action and endpoint. Update metadata is added by the
// logging handler from the job context.
func jobAttrs(j job) []slog.Attr {
	attrs := make([]slog.Attr, 0, 6)
	attrs = append(attrs, slog.String("action", j.action))
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	return attrs
}
