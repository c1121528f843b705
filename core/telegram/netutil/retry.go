// Package netutil classifies Bot API transport errors and scrubs tokens from
// error text.
package netutil

import (
	"errors"
	"net"
	"regexp"

	tele "gopkg.in/telebot.v4"
)

var tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

type timeouter interface{ Timeout() bool }

// ShouldRetry reports whether a failed Bot API call may succeed when repeated:
// flood control, 5xx answers, timeouts and failed dials. Other API errors are
// final.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return true
	}
	var api *tele.Error
	if errors.As(err, &api) {
		return api.Code >= 500
	}
	var to timeouter
	if errors.As(err, &to) && to.Timeout() {
		return true
	}
	var op *net.OpError
	return errors.As(err, &op) && op.Op == "dial"
}

// Redact masks Telegram bot tokens in s.
func Redact(s string) string {
	return tokenRe.ReplaceAllString(s, "bot<redacted>")
}
