package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/stackup-dev/stackup/internal/logger"
	"github.com/stackup-dev/stackup/internal/service"
)

// Polling policy defaults: 30 attempts at a 2-second interval gives a
// 60-second readiness ceiling per service.
const (
	DefaultProbeAttempts = 30
	DefaultProbeInterval = 2 * time.Second
	DefaultProbeTimeout  = 3 * time.Second
	DefaultGraceDelay    = 2 * time.Second
	DefaultStopWait      = 3 * time.Second
)

// ProbeConfig is the fixed-interval readiness retry policy shared by all
// services. There is no backoff: the interval is constant across attempts.
type ProbeConfig struct {
	MaxAttempts int           `toml:"max_attempts" mapstructure:"max_attempts"`
	Interval    time.Duration `toml:"interval" mapstructure:"interval"`
	Timeout     time.Duration `toml:"timeout" mapstructure:"timeout"`
}

// ServerConfig describes the admin/status HTTP endpoint served while the
// stack is up.
type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

// MetricsConfig enables Prometheus metrics and, optionally, a /metrics
// listener.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

// HistoryConfig selects a lifecycle event sink by DSN
// (sqlite:///path, postgres://..., or a bare file path for SQLite).
type HistoryConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

// Config is the top-level TOML structure.
type Config struct {
	GraceDelay time.Duration  `toml:"grace_delay" mapstructure:"grace_delay"`
	StopWait   time.Duration  `toml:"stop_wait" mapstructure:"stop_wait"`
	Env        []string       `toml:"env" mapstructure:"env"`
	Probe      ProbeConfig    `toml:"probe" mapstructure:"probe"`
	Log        *logger.Config `toml:"log" mapstructure:"log"`
	Server     *ServerConfig  `toml:"server" mapstructure:"server"`
	Metrics    *MetricsConfig `toml:"metrics" mapstructure:"metrics"`
	History    *HistoryConfig `toml:"history" mapstructure:"history"`
	Services   []service.Spec `toml:"services" mapstructure:"services"`
}

// Load parses the TOML config at path, applies defaults and resolves
// relative workdir/pidfile/log paths against the config file's directory.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	cfg.resolvePaths(filepath.Dir(path))
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.GraceDelay <= 0 {
		c.GraceDelay = DefaultGraceDelay
	}
	if c.StopWait <= 0 {
		c.StopWait = DefaultStopWait
	}
	if c.Probe.MaxAttempts <= 0 {
		c.Probe.MaxAttempts = DefaultProbeAttempts
	}
	if c.Probe.Interval <= 0 {
		c.Probe.Interval = DefaultProbeInterval
	}
	if c.Probe.Timeout <= 0 {
		c.Probe.Timeout = DefaultProbeTimeout
	}
	for i := range c.Services {
		s := &c.Services[i]
		if s.PIDFile == "" && s.WorkDir != "" {
			s.PIDFile = filepath.Join(s.WorkDir, s.Name+".pid")
		}
		if s.Prepare.Seed != "" && s.Prepare.SeedSentinel == "" {
			s.Prepare.SeedSentinel = ".seeded"
		}
		// Per-service log config inherits the top-level directory.
		if c.Log != nil && s.Log.Dir == "" && s.Log.StdoutPath == "" && s.Log.StderrPath == "" {
			s.Log = *c.Log
		}
	}
}

func (c *Config) resolvePaths(baseDir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(baseDir, p)
	}
	if c.Log != nil {
		c.Log.Dir = abs(c.Log.Dir)
	}
	for i := range c.Services {
		s := &c.Services[i]
		s.WorkDir = abs(s.WorkDir)
		s.PIDFile = abs(s.PIDFile)
		s.Log.Dir = abs(s.Log.Dir)
		s.Log.StdoutPath = abs(s.Log.StdoutPath)
		s.Log.StderrPath = abs(s.Log.StderrPath)
		if s.EnvFile.Path != "" && !filepath.IsAbs(s.EnvFile.Path) {
			base := s.WorkDir
			if base == "" {
				base = baseDir
			}
			s.EnvFile.Path = filepath.Join(base, s.EnvFile.Path)
		}
		if s.Prepare.SeedSentinel != "" && !filepath.IsAbs(s.Prepare.SeedSentinel) && s.WorkDir != "" {
			s.Prepare.SeedSentinel = filepath.Join(s.WorkDir, s.Prepare.SeedSentinel)
		}
	}
}

func (c *Config) validate() error {
	if len(c.Services) == 0 {
		return fmt.Errorf("config declares no services")
	}
	names := make(map[string]struct{}, len(c.Services))
	ports := make(map[int]string, len(c.Services))
	for i := range c.Services {
		s := &c.Services[i]
		if err := s.Validate(); err != nil {
			return err
		}
		if _, dup := names[s.Name]; dup {
			return fmt.Errorf("duplicate service name %q", s.Name)
		}
		names[s.Name] = struct{}{}
		if other, dup := ports[s.Port]; dup {
			return fmt.Errorf("services %q and %q both declare port %d", other, s.Name, s.Port)
		}
		ports[s.Port] = s.Name
	}
	return nil
}
