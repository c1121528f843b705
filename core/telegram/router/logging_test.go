package router

import (
	"fmt"
	"testing"
)

type codedErr struct{}

func (codedErr) Error() string { return "coded" }
func (codedErr) Code() string  { return "not subscribed" }

type plainErr struct{}

func (*plainErr) Error() string { return "plain" }

func TestHandlerName(t *testing.T) {
	cases := map[string]string{
		"/Start":       "start",
		"":             "unknown",
		" my stats ":   "my_stats",
		"/leaderboard": "leaderboard",
	}
	for in, want := range cases {
		if got := handlerName(in); got != want {
			t.Errorf("handlerName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestErrorCode(t *testing.T) {
	if got := errorCode(codedErr{}); got != "NOT_SUBSCRIBED" {
		t.Fatalf("coded = %q", got)
	}
	if got := errorCode(fmt.Errorf("wrapped: %w", codedErr{})); got != "NOT_SUBSCRIBED" {
		t.Fatalf("wrapped = %q", got)
	}
	if got := errorCode(&plainErr{}); got != "PLAINERR" {
		t.Fatalf("plain = %q", got)
	}
	if got := errorCode(nil); got != "" {
		t.Fatalf("nil = %q", got)
	}
}
