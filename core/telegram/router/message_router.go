package router

import (
	tg "github.com/m3rciful/gatebot/core/telegram"

	tele "gopkg.in/telebot.v4"
)

// TextOptions controls fallback behaviour for text/document updates.
type TextOptions struct {
	UnknownText     tele.HandlerFunc
	UnknownDocument tele.HandlerFunc
	Observer        Observer
}

// TextRoutes routes plain text and documents. Text naming a public command or
// alias runs that command. Other text goes to the registry fallback, then to
// UnknownText.
func TextRoutes(reg *tg.Registry, opts TextOptions) []tg.Route {
	text := func(c tele.Context) error {
		name, fn := "unknown_text", opts.UnknownText
		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(c.Text()); ok && cmd.Handler != nil && !cmd.AdminOnly {
				name, fn = handlerName(key), cmd.Handler
			} else if fb := reg.TextFallback(); fb != nil {
				name, fn = "fallback", fb
			}
		}
		return dispatch(c, name, fn, opts.Observer)
	}
	doc := func(c tele.Context) error {
		return dispatch(c, "unexpected_document", opts.UnknownDocument, opts.Observer)
	}
	return []tg.Route{
		{Endpoint: tele.OnText, Handler: routeChain(text)},
		{Endpoint: tele.OnDocument, Handler: routeChain(doc)},
	}
}

func dispatch(c tele.Context, name string, fn tele.HandlerFunc, obs Observer) error {
	s := newSummary(name)
	if fn == nil {
		s.skip(c)
		return nil
	}
	return s.run(c, obs, func() error { return fn(c) })
}
