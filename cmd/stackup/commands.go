package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/stackup-dev/stackup"
	"github.com/stackup-dev/stackup/internal/cleanup"
	"github.com/stackup-dev/stackup/internal/logger"
	"github.com/stackup-dev/stackup/internal/service"
)

type command struct{}

// Up loads the configuration, brings the whole stack up and blocks until a
// termination signal arrives or startup fails. Teardown is guaranteed on
// both paths; only the exit code differs.
func (c *command) Up(f UpFlags) error {
	cfg, err := stackup.LoadConfig(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Setup(parseLevel(f.LogLevel))

	var sink stackup.HistorySink
	if cfg.History != nil && cfg.History.DSN != "" {
		sink, err = stackup.NewHistorySink(cfg.History.DSN)
		if err != nil {
			return fmt.Errorf("open history sink: %w", err)
		}
		defer func() { _ = sink.Close() }()
	}

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		if err := stackup.RegisterMetricsDefault(); err != nil {
			slog.Warn("metrics registration failed", "error", err)
		}
		if cfg.Metrics.Listen != "" {
			go func() {
				if err := stackup.ServeMetrics(cfg.Metrics.Listen); err != nil {
					slog.Warn("metrics server stopped", "error", err)
				}
			}()
		}
	}

	stack := stackup.New(cfg, slog.Default(), sink)

	if cfg.Server != nil && cfg.Server.Listen != "" {
		srv, err := stackup.NewHTTPServer(cfg.Server.Listen, cfg.Server.BasePath, stack)
		if err != nil {
			return fmt.Errorf("start admin server: %w", err)
		}
		defer func() { _ = srv.Close() }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return stack.Run(ctx)
}

// Down tears down a stack that this process did not launch: it reads the
// configured pidfiles and ports and kills whatever still runs there.
func (c *command) Down(f DownFlags) error {
	cfg, err := stackup.LoadConfig(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Setup(slog.LevelInfo)
	wait := f.Wait
	if wait <= 0 {
		wait = cfg.StopWait
	}
	coord := cleanup.New(cleanup.FromSpecs(cfg.Services), wait, slog.Default())
	coord.Run()
	logger.Success(slog.Default(), "all services stopped")
	return nil
}

// Status reports, per configured service, whether a live process is tracked
// by its pidfile.
func (c *command) Status(f StatusFlags) error {
	cfg, err := stackup.LoadConfig(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	type row struct {
		Name    string `json:"name"`
		Port    int    `json:"port"`
		PID     int    `json:"pid,omitempty"`
		Running bool   `json:"running"`
	}
	rows := make([]row, 0, len(cfg.Services))
	for i := range cfg.Services {
		s := &cfg.Services[i]
		alive, pid, _ := service.AliveFromPIDFile(s.PIDFile)
		if !alive {
			pid = 0
		}
		rows = append(rows, row{Name: s.Name, Port: s.Port, PID: pid, Running: alive})
	}

	if f.JSONOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	for _, r := range rows {
		state := "stopped"
		if r.Running {
			state = fmt.Sprintf("running (pid %d)", r.PID)
		}
		fmt.Printf("%-20s port %-6d %s\n", r.Name, r.Port, state)
	}
	return nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
