package netutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestShouldRetry(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"url timeout", &url.Error{Op: "Post", URL: "x", Err: context.DeadlineExceeded}, true},
		{"flood", tele.FloodError{RetryAfter: 3}, true},
		{"api 5xx", fmt.Errorf("send: %w", &tele.Error{Code: 502, Description: "Bad Gateway"}), true},
		{"api 4xx", &tele.Error{Code: 403, Description: "Forbidden"}, false},
		{"blocked", tele.ErrBlockedByUser, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ShouldRetry(tc.err); got != tc.want {
				t.Fatalf("ShouldRetry = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRedact(t *testing.T) {
	in := `Post "https://api.telegram.org/bot123456:ABC-def_9/getMe": timeout`
	want := `Post "https://api.telegram.org/bot<redacted>/getMe": timeout`
	if got := Redact(in); got != want {
		t.Fatalf("Redact = %q", got)
	}
}
