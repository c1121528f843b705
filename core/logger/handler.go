package logger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	tsLayout = "2006-01-02T15:04:05.000Z07:00"
)

var errNoWriter = errors.New("logger: writer not initialized")

type handlerOptions struct {
	level  slog.Leveler
	out    *lineWriter
	format logFormat
	order  []string
}

type field struct {
	key string
	val any
}

// handler renders one flat line per record. Groups become dotted key prefixes.
type handler struct {
	opts   *handlerOptions
	pre    []field
	prefix string
}

func newHandler(opts handlerOptions) *handler {
	if opts.level == nil {
		opts.level = slog.LevelInfo
	}
	if opts.order == nil {
		opts.order = defaultKeyOrder
	}
	return &handler{opts: &opts}
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.level.Level()
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.pre = append([]field(nil), h.pre...)
	for _, a := range attrs {
		clone.pre = appendAttr(clone.pre, h.prefix, a)
	}
	return &clone
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	if h.opts.out == nil {
		return errNoWriter
	}
	ts := r.Time.UTC()
	rec := map[string]any{
		"ts":    ts.Truncate(time.Millisecond).Format(tsLayout),
		"level": levelName(r.Level.String()),
	}
	if h.opts.format == formatJSON {
		rec["ts_unix_nano"] = ts.UnixNano()
	}
	for _, f := range h.pre {
		rec[f.key] = f.val
	}
	var fs []field
	r.Attrs(func(a slog.Attr) bool {
		fs = appendAttr(fs, h.prefix, a)
		return true
	})
	for _, f := range fs {
		rec[f.key] = f.val
	}

	addMeta(rec, MetaFrom(ctx), h.opts.format == formatJSON)
	if s, _ := rec["event"].(string); s == "" {
		rec["event"] = firstNonEmpty(r.Message, "unknown")
	}
	if s, _ := rec["component"].(string); s == "" {
		rec["component"] = "app"
	}
	if s, ok := rec["status"].(string); ok {
		rec["status"] = strings.ToLower(s)
	}
	if s, ok := rec["outcome"].(string); ok && !outcomes[strings.ToLower(s)] {
		delete(rec, "outcome")
	}
	for k, v := range rec {
		if v == nil || v == "" {
			delete(rec, k)
		}
	}

	var (
		line []byte
		err  error
	)
	if h.opts.format == formatJSON {
		line, err = encodeJSON(rec, h.opts.order)
	} else {
		line = encodeKV(rec, h.opts.order)
	}
	if err != nil {
		return err
	}
	return h.opts.out.Write(append(line, '\n'))
}

// addMeta fills correlation keys the record did not set itself.
func addMeta(rec map[string]any, m Meta, keepFullRID bool) {
	setDefault := func(k string, v any, empty bool) {
		if _, ok := rec[k]; !ok && !empty {
			rec[k] = v
		}
	}
	setDefault("rid", m.RID, m.RID == "")
	setDefault("update_id", m.UpdateID, m.UpdateID == 0)
	setDefault("user_id", m.UserID, m.UserID == 0)
	setDefault("chat_id", m.ChatID, m.ChatID == 0)
	setDefault("handler", m.Handler, m.Handler == "")

	rid, _ := rec["rid"].(string)
	if short := CompactRID(rid); short != rid {
		if keepFullRID {
			setDefault("rid_full", rid, false)
		}
		rec["rid"] = short
	}
}

func appendAttr(dst []field, prefix string, a slog.Attr) []field {
	a.Value = a.Value.Resolve()
	key := joinKey(prefix, a.Key)
	if a.Value.Kind() == slog.KindGroup {
		for _, child := range a.Value.Group() {
			dst = appendAttr(dst, key, child)
		}
		return dst
	}
	if a.Key == "" {
		return dst
	}
	if k, v, ok := plainValue(key, a.Value); ok {
		dst = append(dst, field{key: k, val: v})
	}
	return dst
}

// plainValue converts v into a JSON-friendly value. Durations are reported
// in milliseconds under a key ending in _ms.
func plainValue(key string, v slog.Value) (string, any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(v.String()), true
	case slog.KindBool:
		return key, v.Bool(), true
	case slog.KindInt64:
		return key, v.Int64(), true
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, v.Uint64(), true
	case slog.KindFloat64:
		return key, v.Float64(), true
	case slog.KindDuration:
		return msKey(key), RoundMS(v.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := v.Any().(type) {
	case nil:
		return key, nil, false
	case error:
		return key, x.Error(), true
	case time.Duration:
		return msKey(key), RoundMS(x).Milliseconds(), true
	case fmt.Stringer:
		return key, x.String(), true
	case []string:
		return key, strings.Join(x, ","), true
	default:
		return key, fmt.Sprint(x), true
	}
}

func msKey(key string) string {
	switch {
	case key == "duration":
		return "duration_ms"
	case strings.HasSuffix(key, "_ms"):
		return key
	}
	return key + "_ms"
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "." + key
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
