package logger

import "strings"

// Level names as they appear in output.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

func levelName(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	}
	return strings.ToUpper(level)
}

// outcomes are the only accepted values of the "outcome" key; others are dropped.
var outcomes = map[string]bool{
	"ok":           true,
	"fail":         true,
	"cancelled":    true,
	"rate_limited": true,
}

// defaultKeyOrder puts correlation and bot-specific keys first. Keys not
// listed follow in alphabetical order.
var defaultKeyOrder = []string{
	"ts", "level", "component", "event", "status",
	"rid", "rid_full", "ts_unix_nano",
	"update_id", "user_id", "chat_id", "chat_type", "handler",
	"cb_key", "outcome", "duration_ms", "messages", "kb",
	// referrals and users
	"code", "owner_id", "referred_id", "credited", "new_user", "subscribed", "count",
	// monitor
	"run_id", "users", "checked", "removed", "unsubscribed", "errors",
	// storage
	"path", "bytes", "backups",
	// transport
	"mode", "listen", "public_url", "addr", "action", "endpoint", "http_code",
	"err", "err_code", "cause", "retryable", "attempts", "backoff_ms",
	"rate_limited", "payload", "username",
}
