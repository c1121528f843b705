package router

import (
	"log/slog"

	tg "github.com/m3rciful/gatebot/core/telegram"
	"github.com/m3rciful/gatebot/core/telegram/callbacks"
	"github.com/m3rciful/gatebot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CallbackOptions customises fallback behaviour for callbacks.
type CallbackOptions struct {
	NotFound tele.HandlerFunc
	Observer Observer
}

// CallbackRoute dispatches callback queries by key. Keys missing from the
// registry go to the registry fallback, then to opts.NotFound. A query the
// handler did not answer is answered empty afterwards so the client stops
// its spinner.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	handler := func(c tele.Context) error {
		if c.Callback() == nil {
			return nil
		}
		key, _ := callbacks.ParseCallbackData(c.Callback())
		s := newSummary("callback."+handlerName(key), slog.String("cb_key", key))

		fn, ok := reg.GetCallback(key)
		if !ok || fn == nil {
			s.extras = append(s.extras, slog.String("reason", "not_found"))
			fn = reg.CallbackNotFound()
			if fn == nil {
				fn = opts.NotFound
			}
		}

		err := s.run(c, opts.Observer, func() error {
			if fn == nil {
				return nil
			}
			return fn(c)
		})
		if !middleware.RepliesOf(c).Answered {
			_ = c.Respond()
		}
		return err
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  routeChain(handler),
	}
}

// routeChain applies the per-route middleware. The global chain may already
// have run them; each is idempotent per update.
func routeChain(h tele.HandlerFunc) tele.HandlerFunc {
	return middleware.RecoverMiddleware(middleware.LoggerMiddleware(middleware.MessageMetricsMiddleware(h)))
}
