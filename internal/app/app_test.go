package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/gatebot/core/config"
	tg "github.com/m3rciful/gatebot/core/telegram"
	"github.com/m3rciful/gatebot/internal/bot"
	"github.com/m3rciful/gatebot/internal/gate"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	off := false
	cfg := &Config{}
	cfg.Telegram.Token = "123:abc"
	cfg.Gate.Channel = "@news"
	cfg.Gate.BotUsername = "gatebot"
	cfg.Storage.DataFile = filepath.Join(dir, "bot_data.json")
	cfg.Storage.BackupDir = filepath.Join(dir, "backups")
	cfg.Monitor.Enabled = &off
	require.NoError(t, cfg.Normalize())
	return cfg
}

func noLogger(*coreconfig.Config) error { return nil }

func TestBootstrapWiresRegistry(t *testing.T) {
	a, err := Bootstrap(testConfig(t), Options{LoggerInit: noLogger})
	require.NoError(t, err)

	assert.Len(t, a.registry.Commands(), 8)
	assert.Len(t, a.registry.ListCallbacks(), 7)
	assert.NotNil(t, a.registry.TextFallback())
	assert.Equal(t, "gatebot", a.handlers.BotUsername())

	opts, err := a.TelegramRunOptions()
	require.NoError(t, err)
	assert.Len(t, opts.Routes, 8+1+2)
	assert.Same(t, a.cfg.CoreConfig(), opts.Config)
	assert.NotEmpty(t, opts.Middlewares)
	assert.NotNil(t, opts.DispatcherOptions.OnDone)
}

func TestProbesFailClosedBeforeStart(t *testing.T) {
	a, err := Bootstrap(testConfig(t), Options{LoggerInit: noLogger})
	require.NoError(t, err)

	ok, err := a.gate.Check(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLifecyclePersistsOnStop(t *testing.T) {
	cfg := testConfig(t)
	a, err := Bootstrap(cfg, Options{LoggerInit: noLogger})
	require.NoError(t, err)

	b, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	rt := tg.Runtime{Bot: b}

	ctx := context.Background()
	require.NoError(t, a.onStart(ctx, rt))
	assert.Nil(t, a.monitor)
	assert.Nil(t, a.metricsSrv)

	link, err := a.gate.ReferralLink(ctx, gate.Profile{ID: 1, FirstName: "Alice"})
	require.NoError(t, err)
	require.True(t, link.Created)

	require.NoError(t, a.onStop(ctx, rt))
	_, err = os.Stat(cfg.Storage.DataFile)
	require.NoError(t, err)

	again, err := Bootstrap(cfg, Options{LoggerInit: noLogger})
	require.NoError(t, err)
	code, ok := again.referrals.UserReferralCode(1)
	require.True(t, ok)
	assert.Equal(t, link.Code, code)
	u, ok := again.users.Get(1)
	require.True(t, ok)
	assert.Equal(t, link.Code, u.ReferralCode)
}

func TestOnStartLearnsBotUsername(t *testing.T) {
	cfg := testConfig(t)
	cfg.Gate.BotUsername = ""
	cfg.Metrics.Listen = "127.0.0.1:0"
	a, err := Bootstrap(cfg, Options{LoggerInit: noLogger})
	require.NoError(t, err)

	b, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	b.Me = &tele.User{Username: "learned_bot"}

	ctx := context.Background()
	require.NoError(t, a.onStart(ctx, tg.Runtime{Bot: b}))
	assert.Equal(t, "learned_bot", a.handlers.BotUsername())
	require.NotNil(t, a.metricsSrv)
	assert.NotEmpty(t, a.metricsSrv.Addr())
	assert.Equal(t, "https://t.me/learned_bot?start=AB12CD34", bot.ReferralLink(a.handlers.BotUsername(), "AB12CD34"))

	require.NoError(t, a.onStop(ctx, tg.Runtime{Bot: b}))
}
