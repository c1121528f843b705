package telegram

import (
	"log/slog"
	"net"
	"net/http"
	"path"
	"time"

	"github.com/m3rciful/gatebot/core/logger"
	"github.com/m3rciful/gatebot/core/telegram/netutil"
)

// HTTPClientOptions tunes the Bot API client. Zero values pick the defaults.
// Timeout must exceed the long-poll timeout or getUpdates is cut short.
type HTTPClientOptions struct {
	Timeout      time.Duration // 30s
	MaxRetries   int           // 3
	RetryBackoff time.Duration // 2s, multiplied by the attempt number
	Transport    http.RoundTripper
}

func defaultTransport() *http.Transport {
	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

// BuildHTTPClient returns the client telebot uses for Bot API calls. Transport
// errors worth repeating are retried with linear backoff.
func BuildHTTPClient(opts HTTPClientOptions) *http.Client {
	rt := &retryTransport{
		base:    opts.Transport,
		retries: opts.MaxRetries,
		backoff: opts.RetryBackoff,
	}
	if rt.base == nil {
		rt.base = defaultTransport()
	}
	if rt.retries <= 0 {
		rt.retries = 3
	}
	if rt.backoff <= 0 {
		rt.backoff = 2 * time.Second
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout, Transport: rt}
}

type retryTransport struct {
	base    http.RoundTripper
	retries int
	backoff time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	for attempt := 1; ; attempt++ {
		resp, err := t.base.RoundTrip(req)
		if err == nil || attempt > t.retries || !netutil.ShouldRetry(err) {
			return resp, err
		}

		next, rerr := rewind(req)
		if rerr != nil {
			// The body cannot be replayed; report the original failure.
			return nil, err
		}
		wait := t.backoff * time.Duration(attempt)
		logger.Debug(ctx, "tg.wire", "http.retry",
			slog.String("method", path.Base(req.URL.Path)),
			slog.Int("attempt", attempt),
			slog.Duration("delay", wait),
			slog.String("err", netutil.Redact(err.Error())),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		req = next
	}
}

// rewind clones req with a fresh body for another attempt.
func rewind(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, http.ErrBodyReadAfterClose
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone.Body = body
	return clone, nil
}
