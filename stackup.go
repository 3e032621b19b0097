package stackup

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/stackup-dev/stackup/internal/config"
	"github.com/stackup-dev/stackup/internal/history"
	"github.com/stackup-dev/stackup/internal/history/factory"
	"github.com/stackup-dev/stackup/internal/metrics"
	"github.com/stackup-dev/stackup/internal/orchestrator"
	iapi "github.com/stackup-dev/stackup/internal/server"
	"github.com/stackup-dev/stackup/internal/service"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = service.Spec

type Status = service.Status

type Config = cfg.Config

type State = orchestrator.State

type HistorySink = history.Sink

// Stack is a thin facade over internal/orchestrator.Orchestrator.
// It provides a stable public API for embedding.
type Stack struct{ inner *orchestrator.Orchestrator }

// New builds a Stack from a loaded configuration. logger and sink may be nil.
func New(c *Config, logger *slog.Logger, sink HistorySink) *Stack {
	return &Stack{inner: orchestrator.New(c, logger, sink)}
}

// Run launches the stack, waits for readiness and blocks until ctx is
// canceled. Cleanup is guaranteed on every return path.
func (s *Stack) Run(ctx context.Context) error { return s.inner.Run(ctx) }

// Cleanup tears the stack down; it is idempotent.
func (s *Stack) Cleanup() { s.inner.Cleanup() }

func (s *Stack) State() string              { return string(s.inner.State()) }
func (s *Stack) Statuses() []service.Status { return s.inner.Statuses() }

// LoadConfig parses and validates the TOML configuration at path.
func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// NewHistorySink creates a lifecycle event sink from a DSN
// (sqlite:///path, postgres://..., or a bare file path for SQLite).
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// NewHTTPServer starts the admin HTTP server exposing the stack's state.
func NewHTTPServer(addr, basePath string, s *Stack) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, s)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It returns any immediate listen error; otherwise it runs
// the server in the caller goroutine.
func ServeMetrics(addr string) error {
	http.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
