// Package router turns registry entries into telebot routes that log one
// handler.handled line per update and report to an Observer.
package router

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/m3rciful/gatebot/core/logger"
	tghelpers "github.com/m3rciful/gatebot/core/telegram/helpers"
	"github.com/m3rciful/gatebot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Observer receives the outcome of every routed handler.
type Observer func(handler string, err error, took time.Duration)

// summary describes one routed call.
type summary struct {
	name   string
	start  time.Time
	status string
	extras []slog.Attr
}

func newSummary(name string, extras ...slog.Attr) *summary {
	return &summary{name: name, start: time.Now(), extras: extras}
}

// run executes fn under the handler name, logs the summary and notifies obs.
func (s *summary) run(c tele.Context, obs Observer, fn func() error) error {
	tghelpers.WithHandler(c, s.name)
	err := fn()
	s.log(c, err)
	if obs != nil {
		obs(s.name, err, time.Since(s.start))
	}
	return err
}

// skip logs an update nobody handled.
func (s *summary) skip(c tele.Context) {
	s.status = "skip"
	s.log(c, nil)
}

func (s *summary) log(c tele.Context, err error) {
	ctx := tghelpers.WithHandler(c, s.name)
	replies := middleware.RepliesOf(c)

	outcome := "ok"
	if err != nil {
		outcome = "fail"
	}
	status := s.status
	if status == "" {
		status = outcome
	}

	attrs := make([]slog.Attr, 0, 8+len(s.extras))
	attrs = append(attrs,
		slog.String("status", status),
		slog.String("outcome", outcome),
		slog.Int("messages", replies.Messages),
		slog.Bool("kb", replies.Keyboard),
		slog.Duration("duration", time.Since(s.start)),
	)
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", errorCode(err)),
		)
	}
	attrs = append(attrs, s.extras...)
	logger.LogEvent(ctx, logger.Component("tg"), slog.LevelInfo, "handler.handled", attrs...)
}

// handlerName turns "/My Stats" into "my_stats".
func handlerName(raw string) string {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "/")
	if raw == "" {
		return "unknown"
	}
	return strings.ToLower(strings.ReplaceAll(raw, " ", "_"))
}

// errorCode prefers a Code() string from the error chain and falls back to
// the concrete type name.
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		if code := strings.TrimSpace(coded.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if name := t.Name(); name != "" {
		return strings.ToUpper(name)
	}
	return "UNKNOWN_ERROR"
}
