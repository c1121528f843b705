// Package logger is the structured slog setup shared by the bot: one line per
// event with component and event keys first, written asynchronously to stdout
// and an optional file.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/gatebot/core/buildinfo"
	coreconfig "github.com/m3rciful/gatebot/core/config"
)

// Debug update logs pass 1 in 50 unless configured otherwise.
const defaultSampleN, defaultSampleD = 1, 50

var (
	initOnce sync.Once
	stopOnce sync.Once

	out   *lineWriter
	files []io.Closer
	level slog.LevelVar

	debugSampler sampler
	traceAll     bool
	stacks       bool

	// L is the root logger. It stays nil until InitLogger runs and the
	// package helpers do nothing until then.
	L *slog.Logger
)

// settings is the logging section of the config after defaults.
type settings struct {
	format  logFormat
	level   slog.Level
	order   []string
	sampleN int
	sampleD int
	stacks  bool
	file    string
	profile string
}

func readSettings(cfg *coreconfig.Config) settings {
	s := settings{
		format:  formatJSON,
		level:   slog.LevelInfo,
		order:   defaultKeyOrder,
		sampleN: defaultSampleN,
		sampleD: defaultSampleD,
		profile: "prod",
	}
	if cfg == nil {
		return s
	}
	lc := cfg.Logging

	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		s.profile = p
	}
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		s.format = formatKV
	case "json":
	default:
		if s.profile == "debug" || s.profile == "dev" {
			s.format = formatKV
		}
	}

	switch strings.ToLower(strings.TrimSpace(lc.Level)) {
	case "debug":
		s.level = slog.LevelDebug
	case "warn", "warning":
		s.level = slog.LevelWarn
	case "error":
		s.level = slog.LevelError
	}

	if raw := strings.TrimSpace(lc.KeysOrder); raw != "" && raw != "default" {
		var order []string
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				order = append(order, k)
			}
		}
		if len(order) > 0 {
			s.order = order
		}
	}

	if n, d, ok := parseRatio(lc.DebugSample); ok {
		s.sampleN, s.sampleD = n, d
	}
	s.stacks = isTruthy(lc.Stacks)

	if dir, name := strings.TrimSpace(lc.Dir), strings.TrimSpace(lc.BotFile); dir != "" && name != "" {
		s.file = filepath.Join(dir, name)
	}
	return s
}

// InitLogger installs the global logger. Later calls are no-ops.
func InitLogger(cfg *coreconfig.Config) error {
	var err error
	initOnce.Do(func() { err = install(cfg) })
	return err
}

func install(cfg *coreconfig.Config) error {
	s := readSettings(cfg)
	level.Set(s.level)
	debugSampler.set(s.sampleN, s.sampleD)
	traceAll = isTruthy(os.Getenv("TRACE")) || isTruthy(os.Getenv("LOG_TRACE"))
	stacks = s.stacks

	sinks := []io.Writer{os.Stdout}
	if s.file != "" {
		f, err := openLogFile(s.file)
		if err != nil {
			// Keep logging to stdout; the file is optional.
			fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		} else {
			sinks = append(sinks, f)
			files = append(files, f)
		}
	}
	out = newLineWriter(sinks...)

	L = slog.New(newHandler(handlerOptions{
		level:  &level,
		out:    out,
		format: s.format,
		order:  s.order,
	}))
	slog.SetDefault(L)

	build := buildinfo.Get()
	attrs := []slog.Attr{
		slog.String("go_version", runtime.Version()),
		slog.String("build_version", build.Version),
		slog.String("build_commit", build.Commit),
		slog.String("build_time", build.Date),
		slog.String("cfg_profile", s.profile),
	}
	if cfg != nil {
		attrs = append(attrs, slog.String("mode", cfg.Telegram.RunMode))
	}
	Info(Background(), "app", "startup", attrs...)
	return nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// Shutdown drains queued lines and closes the log file.
func Shutdown() error {
	var errs []error
	stopOnce.Do(func() {
		if out != nil {
			errs = append(errs, out.Close())
		}
		for _, f := range files {
			errs = append(errs, f.Close())
		}
	})
	return errors.Join(errs...)
}

// Background is the context for logs that do not belong to an update.
func Background() context.Context {
	return context.Background()
}

// Component returns L scoped to name, or nil before InitLogger.
func Component(name string) *slog.Logger {
	if L == nil {
		return nil
	}
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With(slog.String("component", name))
}

// LogEvent writes event with attrs through log, falling back to the context
// logger and then to L.
func LogEvent(ctx context.Context, log *slog.Logger, lvl slog.Level, event string, attrs ...slog.Attr) {
	if log == nil {
		log = FromContext(ctx)
	}
	if log == nil {
		return
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	log.LogAttrs(ctx, lvl, "", attrs...)
}

func logAt(ctx context.Context, component string, lvl slog.Level, event string, attrs []slog.Attr) {
	LogEvent(ctx, Component(component), lvl, event, attrs...)
}

// Debug logs event for component at debug level.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	logAt(ctx, component, slog.LevelDebug, event, attrs)
}

// Info logs event for component at info level.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	logAt(ctx, component, slog.LevelInfo, event, attrs)
}

// Warn logs event for component at warn level.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	logAt(ctx, component, slog.LevelWarn, event, attrs)
}

// Error logs event for component at error level.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	logAt(ctx, component, slog.LevelError, event, attrs)
}

// ShouldSampleDebug reports whether a high-volume debug event should be logged.
// TRACE=1 lets every event through.
func ShouldSampleDebug() bool {
	return traceAll || debugSampler.allow()
}

// StacksEnabled reports whether recovered panics are logged with a stack.
func StacksEnabled() bool {
	return stacks || traceAll
}
