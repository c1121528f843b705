package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	coreconfig "github.com/m3rciful/gatebot/core/config"
	coretelegram "github.com/m3rciful/gatebot/core/telegram"
)

type carrier struct{ cfg *coreconfig.Config }

func (c carrier) CoreConfig() *coreconfig.Config { return c.cfg }

type app struct{ opts coretelegram.RunOptions }

func (a app) TelegramRunOptions() (coretelegram.RunOptions, error) { return a.opts, nil }

func TestLoadEnvFilesSkipsMissingAndKeepsExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("GATEBOT_TEST_A=from-file\nGATEBOT_TEST_B=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GATEBOT_TEST_B", "from-env")
	t.Cleanup(func() { os.Unsetenv("GATEBOT_TEST_A") })

	if err := LoadEnvFiles(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("GATEBOT_TEST_A"); got != "from-file" {
		t.Fatalf("A = %q", got)
	}
	if got := os.Getenv("GATEBOT_TEST_B"); got != "from-env" {
		t.Fatalf("B = %q", got)
	}
}

func TestRunWiresLifecycle(t *testing.T) {
	t.Setenv("GATEBOT_TEST_CONFIG", "")
	var loadedPath string
	started, stopped := false, false

	err := Run(Options{
		ConfigEnvVar:      "GATEBOT_TEST_CONFIG",
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (ConfigCarrier, error) {
			loadedPath = path
			return carrier{cfg: &coreconfig.Config{}}, nil
		},
		Bootstrap: func(ConfigCarrier) (TelegramApp, error) {
			return app{opts: coretelegram.RunOptions{
				OnStart: func(context.Context, coretelegram.Runtime) error { started = true; return nil },
				OnStop:  func(context.Context, coretelegram.Runtime) error { stopped = true; return nil },
			}}, nil
		},
		ShutdownLogger: func() error { return nil },
		RunTelegram: func(ctx context.Context, opts coretelegram.RunOptions) error {
			if err := opts.OnStart(ctx, coretelegram.Runtime{}); err != nil {
				return err
			}
			return opts.OnStop(ctx, coretelegram.Runtime{})
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if loadedPath != "config.yaml" {
		t.Fatalf("path = %q", loadedPath)
	}
	if !started || !stopped {
		t.Fatalf("hooks not called: start=%v stop=%v", started, stopped)
	}
}

func TestRunPropagatesLoadError(t *testing.T) {
	boom := errors.New("boom")
	err := Run(Options{
		LoadConfig: func(string) (ConfigCarrier, error) { return nil, boom },
		Bootstrap:  func(ConfigCarrier) (TelegramApp, error) { return nil, nil },
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestConfigPathPrefersEnv(t *testing.T) {
	t.Setenv("GATEBOT_TEST_CONFIG", "/etc/gatebot.yaml")
	o := Options{ConfigEnvVar: "GATEBOT_TEST_CONFIG", DefaultConfigPath: "config.yaml"}
	if got := o.configPath(); got != "/etc/gatebot.yaml" {
		t.Fatalf("path = %q", got)
	}
	t.Setenv("GATEBOT_TEST_CONFIG", "")
	if got := o.configPath(); got != "config.yaml" {
		t.Fatalf("path = %q", got)
	}
}

func TestAnnounceStopsOnStartError(t *testing.T) {
	boom := errors.New("boom")
	ro := coretelegram.RunOptions{
		OnStart: func(context.Context, coretelegram.Runtime) error { return boom },
	}
	announce(&ro, time.Now())
	if err := ro.OnStart(context.Background(), coretelegram.Runtime{}); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if err := ro.OnStop(context.Background(), coretelegram.Runtime{}); err != nil {
		t.Fatalf("stop err = %v", err)
	}
}
