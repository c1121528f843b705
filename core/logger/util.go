package logger

import (
	"slices"
	"strings"
	"time"
)

// Status maps err to the status field: "error" or "ok".
func Status(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}

// Took is the time since start rounded to milliseconds.
func Took(start time.Time) time.Duration {
	return RoundMS(time.Since(start))
}

// RoundMS rounds d to milliseconds. Negative durations become zero.
func RoundMS(d time.Duration) time.Duration {
	return max(d, 0).Round(time.Millisecond)
}

var truthy = []string{"1", "true", "on", "yes"}

func isTruthy(v string) bool {
	return slices.Contains(truthy, strings.ToLower(strings.TrimSpace(v)))
}
