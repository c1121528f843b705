package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"

	"github.com/m3rciful/gatebot/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

// trailingCode matches the "(502)" suffix telebot appends to API errors.
var trailingCode = regexp.MustCompile(`\((\d{3})\)\s*$`)

// classify buckets err for the error_kind log field.
func classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return "timeout"
		}
		return "dns"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return "dial"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		if kind := classify(urlErr.Err); kind != "unknown" {
			return kind
		}
	}
	var alert tls.AlertError
	if errors.As(err, &alert) {
		return "tls"
	}

	switch code := statusCode(err); {
	case code >= 500:
		return "http_5xx"
	case code == http.StatusTooManyRequests:
		return "flood"
	case code >= 400:
		return "http_4xx"
	}
	return "unknown"
}

// statusCode extracts the HTTP status from a telebot error, 0 if none.
func statusCode(err error) int {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return http.StatusTooManyRequests
	}
	var group tele.GroupError
	if errors.As(err, &group) {
		return http.StatusBadRequest
	}
	if m := trailingCode.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return code
	}
	return 0
}

// redactErr renders err without the bot token.
func redactErr(err error) string {
	if err == nil {
		return ""
	}
	return netutil.Redact(err.Error())
}
