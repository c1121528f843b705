// Package telegram assembles a telebot bot from a Registry, global
// middleware and routes, and runs it with lifecycle hooks.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	coreconfig "github.com/m3rciful/gatebot/core/config"
	"github.com/m3rciful/gatebot/core/logger"
	tghelpers "github.com/m3rciful/gatebot/core/telegram/helpers"
	"github.com/m3rciful/gatebot/core/telegram/netutil"
	tgsender "github.com/m3rciful/gatebot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// Middleware is a named global middleware installed with bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route binds a handler to an endpoint accepted by tele.Bot.Handle.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	// Dispatcher is created from DispatcherOptions when nil.
	DispatcherOptions tgsender.Options
	Dispatcher        *tgsender.Dispatcher

	Middlewares []Middleware
	Routes      []Route

	HTTPClient HTTPClientOptions

	DisableWebhookCleanup   bool
	DisableHelperDispatcher bool

	// OnStart runs after wiring and before polling starts. An error aborts the run.
	OnStart func(ctx context.Context, rt Runtime) error
	// OnStop runs after polling stopped and before the dispatcher drains.
	OnStop func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// RunTelegram builds the bot and serves updates until ctx is done. A
// cancelled context is a clean shutdown and returns nil.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if opts.Config == nil {
		return errors.New("telegram: nil config provided")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rt, err := assemble(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		rt.Dispatcher.Close()
		if !opts.DisableHelperDispatcher {
			tghelpers.SetDispatcher(nil)
		}
	}()

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}

	runErr := serve(ctx, rt.Bot)

	if opts.OnStop != nil {
		if err := opts.OnStop(ctx, rt); err != nil {
			return err
		}
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// assemble creates the bot and dispatcher and installs middleware, routes
// and the command menu.
func assemble(ctx context.Context, opts RunOptions) (Runtime, error) {
	cfg := opts.Config
	rt := Runtime{Registry: opts.Registry, Dispatcher: opts.Dispatcher}
	if rt.Registry == nil {
		rt.Registry = NewRegistry()
	}

	poller := BuildPoller(PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		Webhook: WebhookOptions{
			Listen: cfg.Webhook.Listen,
			Port:   cfg.Webhook.Port,
			URL:    cfg.Webhook.URL,
		},
	})

	started := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: poller,
		Client: BuildHTTPClient(opts.HTTPClient),
	})
	if err != nil {
		return rt, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	rt.Bot = bot
	logger.Info(ctx, "tg", "mode", append(pollerAttrs(poller), slog.Duration("duration", time.Since(started)))...)

	if _, longPoll := poller.(*tele.LongPoller); longPoll && !opts.DisableWebhookCleanup {
		// A leftover webhook makes getUpdates fail.
		if err := bot.RemoveWebhook(false); err != nil {
			logger.Warn(ctx, "tg", "delete_webhook",
				slog.String("status", "error"),
				slog.String("err", netutil.Redact(err.Error())),
			)
		} else {
			logger.Info(ctx, "tg", "delete_webhook", slog.String("status", "ok"))
		}
	}

	if rt.Dispatcher == nil {
		rt.Dispatcher = tgsender.NewDispatcher(opts.DispatcherOptions)
	}
	if !opts.DisableHelperDispatcher {
		tghelpers.SetDispatcher(rt.Dispatcher)
	}

	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, r := range opts.Routes {
		if r.Endpoint != nil && r.Handler != nil {
			bot.Handle(r.Endpoint, r.Handler)
		}
	}
	SetupCommands(bot, rt.Registry)
	return rt, nil
}

// serve runs the poller until ctx is done or the bot stops by itself.
func serve(ctx context.Context, bot *tele.Bot) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		bot.Start()
	}()
	select {
	case <-ctx.Done():
		bot.Stop()
		<-done
		return ctx.Err()
	case <-done:
		return nil
	}
}
