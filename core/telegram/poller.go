package telegram

import (
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/gatebot/core/config"

	tele "gopkg.in/telebot.v4"
)

// DefaultLongPollTimeout applies when no timeout is configured.
const DefaultLongPollTimeout = 10 * time.Second

// WebhookOptions declares webhook listener settings.
type WebhookOptions struct {
	Listen string
	Port   int
	URL    string
}

// PollerOptions configures BuildPoller.
type PollerOptions struct {
	RunMode                string
	LongPollTimeoutSeconds int
	Webhook                WebhookOptions
}

func (o PollerOptions) webhook() bool {
	return strings.EqualFold(strings.TrimSpace(o.RunMode), coreconfig.RunModeWebhook)
}

func (o PollerOptions) longPollTimeout() time.Duration {
	if o.LongPollTimeoutSeconds <= 0 {
		return DefaultLongPollTimeout
	}
	return time.Duration(o.LongPollTimeoutSeconds) * time.Second
}

// BuildPoller returns a webhook listener in webhook mode and a long poller
// otherwise.
func BuildPoller(opts PollerOptions) tele.Poller {
	if opts.webhook() {
		return &tele.Webhook{
			Listen:   net.JoinHostPort(opts.Webhook.Listen, strconv.Itoa(opts.Webhook.Port)),
			Endpoint: &tele.WebhookEndpoint{PublicURL: opts.Webhook.URL},
		}
	}
	return &tele.LongPoller{Timeout: opts.longPollTimeout()}
}

// pollerAttrs describes p for the startup log line.
func pollerAttrs(p tele.Poller) []slog.Attr {
	switch v := p.(type) {
	case *tele.Webhook:
		attrs := []slog.Attr{slog.String("mode", coreconfig.RunModeWebhook), slog.String("listen", v.Listen)}
		if v.Endpoint != nil {
			attrs = append(attrs, slog.String("public_url", v.Endpoint.PublicURL))
		}
		return attrs
	case *tele.LongPoller:
		return []slog.Attr{
			slog.String("mode", coreconfig.RunModeLongpoll),
			slog.Int("timeout_seconds", int(v.Timeout/time.Second)),
		}
	default:
		return []slog.Attr{slog.String("mode", "custom")}
	}
}
