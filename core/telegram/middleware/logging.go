package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/gatebot/core/logger"
	"github.com/m3rciful/gatebot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/gatebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// seenUpdates remembers update IDs for a short while so an update that passes
// through both the global chain and a route chain is logged once.
type seenUpdates struct {
	mu    sync.Mutex
	ttl   time.Duration
	ids   map[int]time.Time
	swept time.Time
}

var received = &seenUpdates{ttl: 10 * time.Second, ids: make(map[int]time.Time)}

// first reports whether id is seen for the first time within ttl.
func (s *seenUpdates) first(id int, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.swept) > s.ttl {
		for k, at := range s.ids {
			if now.Sub(at) > s.ttl {
				delete(s.ids, k)
			}
		}
		s.swept = now
	}
	if at, ok := s.ids[id]; ok && now.Sub(at) <= s.ttl {
		return false
	}
	s.ids[id] = now
	return true
}

// LoggerMiddleware attaches the update context and logs one update.received
// line per update.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		upd := c.Update()
		if logger.ShouldSampleDebug() && received.first(upd.ID, time.Now()) {
			logger.LogEvent(ctx, logger.Component("tg"), slog.LevelDebug, "update.received", receiptAttrs(c, upd)...)
		}
		return next(c)
	}
}

func receiptAttrs(c tele.Context, upd tele.Update) []slog.Attr {
	attrs := []slog.Attr{slog.String("status", "ok")}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if u := c.Sender(); u != nil {
		if u.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(u.Username, 64)))
		}
		if u.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", u.LanguageCode))
		}
	}
	switch {
	case upd.Callback != nil:
		key, payload := callbacks.ParseCallbackData(upd.Callback)
		attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 128)))
		if payload != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(payload, 256)))
		}
	case upd.Message != nil:
		if t := c.Text(); t != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
		}
	}
	return attrs
}
