// Package app wires the gate bot: storage, stores, services, Telegram routes
// and the background loop.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/m3rciful/gatebot/core/bootstrap"
	coreconfig "github.com/m3rciful/gatebot/core/config"
	"github.com/m3rciful/gatebot/core/logger"
	tg "github.com/m3rciful/gatebot/core/telegram"
	"github.com/m3rciful/gatebot/core/telegram/router"
	tgsender "github.com/m3rciful/gatebot/core/telegram/sender"
	"github.com/m3rciful/gatebot/internal/bot"
	"github.com/m3rciful/gatebot/internal/domain"
	"github.com/m3rciful/gatebot/internal/gate"
	"github.com/m3rciful/gatebot/internal/membership"
	"github.com/m3rciful/gatebot/internal/metrics"
	"github.com/m3rciful/gatebot/internal/monitor"
	"github.com/m3rciful/gatebot/internal/referral"
	"github.com/m3rciful/gatebot/internal/storage"
	"github.com/m3rciful/gatebot/internal/users"
)

const (
	component       = "app"
	shutdownTimeout = 5 * time.Second
)

var errBotNotStarted = errors.New("app: bot not started")

// App holds every long-lived component.
type App struct {
	cfg *Config

	promReg   *prometheus.Registry
	metrics   *metrics.Collectors
	files     *storage.FileStore
	coord     *storage.Coordinator
	users     *users.Store
	referrals *referral.Store
	prober    *lazyProber
	gate      *gate.Service
	handlers  *bot.Handlers
	registry  *tg.Registry

	monitor    *monitor.Monitor
	metricsSrv *metrics.Server
}

// Options overrides pieces of the bootstrap, mainly for tests.
type Options struct {
	LoggerInit func(*coreconfig.Config) error
}

// Bootstrap initializes logging and builds the app from cfg.
func Bootstrap(cfg *Config, opts ...Options) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config")
	}
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}

	a := &App{cfg: cfg, prober: &lazyProber{}}
	bo := bootstrap.Options{
		Config:     cfg.CoreConfig(),
		LoggerInit: o.LoggerInit,
		Steps: []bootstrap.Step{
			{Name: "metrics", Run: a.initMetrics},
			{Name: "storage", Run: a.initStorage},
			{Name: "stores", Run: a.initStores},
			{Name: "handlers", Run: a.initHandlers},
		},
	}
	res, err := bootstrap.Run(bo)
	if err != nil {
		return nil, err
	}
	logger.Info(logger.Background(), component, "bootstrap",
		slog.Any("steps", res.Steps),
		slog.Duration("duration", res.Duration),
		slog.Int("users", a.users.Count()),
		slog.Int("codes", a.referrals.Stats().TotalCodes),
	)
	return a, nil
}

func (a *App) initMetrics() error {
	a.promReg = prometheus.NewRegistry()
	a.promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.promReg)
	return nil
}

func (a *App) initStorage() error {
	files, err := storage.NewFileStore(storage.Options{
		DataFile:    a.cfg.Storage.DataFile,
		BackupDir:   a.cfg.Storage.BackupDir,
		KeepBackups: a.cfg.Storage.KeepBackups,
	})
	if err != nil {
		return err
	}
	a.files = files
	a.coord = storage.NewCoordinator(files, a.metrics.SnapshotWritten)
	return nil
}

func (a *App) initStores() error {
	snap := a.coord.Load()
	a.users = users.New(snap, users.Options{Persister: a.coord})
	a.referrals = referral.New(snap, referral.Options{Persister: a.coord})
	a.coord.Register(a.users)
	a.coord.Register(a.referrals)
	return nil
}

func (a *App) initHandlers() error {
	a.gate = gate.New(gate.Options{
		Users:            a.users,
		Referrals:        a.referrals,
		Prober:           a.prober,
		Snapshot:         a.files,
		Metrics:          a.metrics,
		LeaderboardLimit: a.cfg.Gate.LeaderboardLimit,
	})
	a.handlers = bot.NewHandlers(bot.Options{
		Gate:        a.gate,
		Channel:     a.cfg.Gate.Channel,
		BotUsername: a.cfg.Gate.BotUsername,
	})
	a.registry = tg.NewRegistry()
	return a.handlers.Register(a.registry)
}

// TelegramRunOptions implements cmd.TelegramApp.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	core := a.cfg.CoreConfig()
	observe := router.Observer(a.metrics.ObserveUpdate)

	routes := router.CommandRoutes(a.registry, router.CommandRouteOptions{
		AdminID:       core.Telegram.AdminID,
		OnAdminReject: a.handlers.AdminReject,
		Observer:      observe,
	})
	routes = append(routes, router.CallbackRoute(a.registry, router.CallbackOptions{Observer: observe}))
	routes = append(routes, router.TextRoutes(a.registry, router.TextOptions{
		UnknownDocument: a.handlers.UnknownDocument,
		Observer:        observe,
	})...)

	return tg.RunOptions{
		Config:            core,
		Registry:          a.registry,
		DispatcherOptions: tgsender.Options{OnDone: a.metrics.MessageSent},
		Middlewares:       tg.DefaultMiddlewares(core, a.handlers.RateLimited),
		Routes:            routes,
		OnStart:           a.onStart,
		OnStop:            a.onStop,
	}, nil
}

func (a *App) onStart(ctx context.Context, rt tg.Runtime) error {
	if a.cfg.Gate.BotUsername == "" && rt.Bot != nil && rt.Bot.Me != nil {
		a.handlers.SetBotUsername(rt.Bot.Me.Username)
	}
	if a.handlers.BotUsername() == "" {
		logger.Warn(ctx, component, "bot_username.missing")
	}

	prober := membership.NewProber(rt.Bot, a.cfg.Gate.Channel, a.cfg.Monitor.ProbeTimeout)
	a.prober.set(prober)
	a.gate.AdminStats()

	if a.cfg.Monitor.On() {
		a.monitor = monitor.New(monitor.Options{
			Users:           a.users,
			Prober:          prober,
			Notifier:        bot.NewNotifier(rt.Bot, rt.Dispatcher, a.cfg.Gate.Channel),
			Metrics:         a.metrics,
			Interval:        a.cfg.Monitor.Interval,
			ProbesPerSecond: a.cfg.Monitor.ProbesPerSecond,
		})
		a.monitor.Start(ctx)
	} else {
		logger.Info(ctx, component, "monitor.disabled")
	}

	if a.cfg.Metrics.Listen != "" {
		srv, err := metrics.Listen(a.cfg.Metrics.Listen, a.promReg)
		if err != nil {
			a.stopMonitor()
			return err
		}
		a.metricsSrv = srv
	}
	return nil
}

func (a *App) onStop(ctx context.Context, _ tg.Runtime) error {
	a.stopMonitor()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.metricsSrv.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.coord.Persist(ctx); err != nil {
		errs = append(errs, fmt.Errorf("app: final persist: %w", err))
	}
	return errors.Join(errs...)
}

func (a *App) stopMonitor() {
	if a.monitor != nil {
		a.monitor.Stop()
	}
}

// lazyProber forwards to the membership prober once the bot is running.
// Before that every probe fails, which callers treat as not subscribed.
type lazyProber struct {
	p atomic.Pointer[membership.Prober]
}

func (l *lazyProber) set(p *membership.Prober) { l.p.Store(p) }

// Status implements gate.Prober.
func (l *lazyProber) Status(ctx context.Context, userID int64) (domain.MembershipStatus, error) {
	p := l.p.Load()
	if p == nil {
		return domain.MembershipUnknown, errBotNotStarted
	}
	return p.Status(ctx, userID)
}
