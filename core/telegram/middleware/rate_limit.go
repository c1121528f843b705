package middleware

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/m3rciful/gatebot/core/logger"
	tghelpers "github.com/m3rciful/gatebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	// Interval is the minimum gap between two updates of one user.
	Interval time.Duration
	// Exclude lists update kinds that bypass the limit: "callback",
	// "message" or "inline_query".
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
}

// userLimiters keeps one token bucket per user. Buckets idle for longer than
// the sweep period are dropped.
type userLimiters struct {
	mu      sync.Mutex
	every   rate.Limit
	sweep   time.Duration
	swept   time.Time
	buckets map[int64]*bucket
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func newUserLimiters(interval time.Duration) *userLimiters {
	return &userLimiters{
		every:   rate.Every(interval),
		sweep:   max(10*interval, time.Minute),
		buckets: make(map[int64]*bucket),
	}
}

func (u *userLimiters) allow(userID int64, now time.Time) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if now.Sub(u.swept) > u.sweep {
		for id, b := range u.buckets {
			if now.Sub(b.seen) > u.sweep {
				delete(u.buckets, id)
			}
		}
		u.swept = now
	}
	b, ok := u.buckets[userID]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(u.every, 1)}
		u.buckets[userID] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

func updateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil:
		return "message"
	case upd.Query != nil:
		return "inline_query"
	}
	return "other"
}

// RateLimitMiddleware drops updates from a user that arrive sooner than
// Interval after the previous accepted one. OnLimited answers the dropped
// update.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	if opts.Interval <= 0 {
		return func(next tele.HandlerFunc) tele.HandlerFunc { return next }
	}
	limiters := newUserLimiters(opts.Interval)
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil {
				return next(c)
			}
			kind := updateKind(c.Update())
			if _, skip := opts.Exclude[kind]; skip {
				return next(c)
			}
			if limiters.allow(user.ID, time.Now()) {
				return next(c)
			}
			logger.Warn(tghelpers.BuildContext(c), "tg", "tg.rate_limit", slog.String("kind", kind))
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
