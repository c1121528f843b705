package app

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/gatebot/core/config"
	"github.com/m3rciful/gatebot/internal/membership"
	"github.com/m3rciful/gatebot/internal/monitor"
	"github.com/m3rciful/gatebot/internal/storage"
)

// GateConfig names the gating channel and the bot used in referral links.
type GateConfig struct {
	Channel string `yaml:"channel_username" envconfig:"CHANNEL_USERNAME"`
	// BotUsername is learned from getMe at startup when empty.
	BotUsername      string `yaml:"bot_username" envconfig:"BOT_USERNAME"`
	LeaderboardLimit int    `yaml:"leaderboard_limit" envconfig:"LEADERBOARD_LIMIT"`
}

// StorageConfig locates the snapshot file and its backups.
type StorageConfig struct {
	DataFile    string `yaml:"data_file" envconfig:"DATA_FILE"`
	BackupDir   string `yaml:"backup_dir" envconfig:"BACKUP_DIR"`
	KeepBackups int    `yaml:"keep_backups" envconfig:"KEEP_BACKUPS"`
}

// MonitorConfig tunes the reconciliation loop.
type MonitorConfig struct {
	Enabled         *bool         `yaml:"enabled" envconfig:"MONITOR_ENABLED"`
	Interval        time.Duration `yaml:"interval" envconfig:"MONITOR_INTERVAL"`
	ProbeTimeout    time.Duration `yaml:"probe_timeout" envconfig:"MONITOR_PROBE_TIMEOUT"`
	ProbesPerSecond float64       `yaml:"probes_per_second" envconfig:"MONITOR_PROBES_PER_SECOND"`
}

// On reports whether the loop should run. Unset means on.
func (m MonitorConfig) On() bool {
	return m.Enabled == nil || *m.Enabled
}

// MetricsConfig exposes Prometheus metrics. An empty Listen disables the server.
type MetricsConfig struct {
	Listen string `yaml:"listen" envconfig:"METRICS_LISTEN"`
}

// Config is the full bot configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Gate    GateConfig    `yaml:"gate"`
	Storage StorageConfig `yaml:"storage"`
	Monitor MonitorConfig `yaml:"monitor"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// CoreConfig implements cmd.ConfigCarrier.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

const (
	defaultDataFile  = "data/bot_data.json"
	defaultBackupDir = "data/backups"
)

// LoadConfig reads path (optional) and the environment, then validates.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates the core and bot sections and fills defaults.
func (c *Config) Normalize() error {
	if err := coreconfig.Normalize(&c.Config); err != nil {
		return err
	}

	c.Gate.Channel = strings.TrimPrefix(strings.TrimSpace(c.Gate.Channel), "@")
	if c.Gate.Channel == "" {
		return fmt.Errorf("gate.channel_username is required")
	}
	c.Gate.BotUsername = strings.TrimPrefix(strings.TrimSpace(c.Gate.BotUsername), "@")
	if c.Gate.LeaderboardLimit < 0 {
		return fmt.Errorf("gate.leaderboard_limit must be >= 0")
	}

	if strings.TrimSpace(c.Storage.DataFile) == "" {
		c.Storage.DataFile = defaultDataFile
	}
	if strings.TrimSpace(c.Storage.BackupDir) == "" {
		c.Storage.BackupDir = defaultBackupDir
	}
	if c.Storage.KeepBackups <= 0 {
		c.Storage.KeepBackups = storage.DefaultKeepBackups
	}

	if c.Monitor.Interval < 0 {
		return fmt.Errorf("monitor.interval must be >= 0")
	}
	if c.Monitor.Interval == 0 {
		c.Monitor.Interval = monitor.DefaultInterval
	}
	if c.Monitor.ProbeTimeout <= 0 {
		c.Monitor.ProbeTimeout = membership.DefaultTimeout
	}
	if c.Monitor.ProbesPerSecond <= 0 {
		c.Monitor.ProbesPerSecond = monitor.DefaultProbesPerSecond
	}

	c.Metrics.Listen = strings.TrimSpace(c.Metrics.Listen)
	return nil
}
