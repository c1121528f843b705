package router

import (
	"log/slog"

	"github.com/m3rciful/gatebot/core/logger"
	tg "github.com/m3rciful/gatebot/core/telegram"
	"github.com/m3rciful/gatebot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRouteOptions configures how commands are wrapped and exposed.
type CommandRouteOptions struct {
	AdminID       int64
	OnAdminReject tele.HandlerFunc
	Observer      Observer
}

// CommandRoutes returns one route per registered command, each guarded by
// the admin check.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}
	guard := middleware.AdminOptions{AdminID: opts.AdminID, OnReject: opts.OnAdminReject}
	cmds := reg.Commands()

	routes := make([]tg.Route, 0, len(cmds))
	for endpoint, cmd := range cmds {
		name := handlerName(endpoint)
		inner := middleware.WithAdminCheck(guard, cmd)
		routes = append(routes, tg.Route{
			Endpoint: endpoint,
			Handler: routeChain(func(c tele.Context) error {
				return newSummary(name).run(c, opts.Observer, func() error { return inner(c) })
			}),
		})
	}

	logger.Info(logger.Background(), "tg.wire", "complete",
		slog.Int("commands", len(cmds)),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)
	return routes
}
