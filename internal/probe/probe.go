package probe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/stackup-dev/stackup/internal/metrics"
)

// A readiness probe asks only "is something listening and answering": any
// HTTP response counts as ready, regardless of status code or body. A 404
// from a freshly migrated backend still proves the server is up.

// TimeoutError reports a service whose probe never answered within the
// attempt budget.
type TimeoutError struct {
	Service  string
	URL      string
	Attempts int
	LastErr  error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("service %s not ready after %d attempts probing %s: %v", e.Service, e.Attempts, e.URL, e.LastErr)
}

func (e *TimeoutError) Unwrap() error { return e.LastErr }

// Prober polls readiness URLs with a fixed-interval retry policy.
type Prober struct {
	Client      *http.Client
	MaxAttempts int
	Interval    time.Duration
	Logger      *slog.Logger
}

// New returns a Prober with a per-attempt request timeout.
func New(timeout time.Duration, maxAttempts int, interval time.Duration, l *slog.Logger) *Prober {
	if l == nil {
		l = slog.Default()
	}
	return &Prober{
		Client:      &http.Client{Timeout: timeout},
		MaxAttempts: maxAttempts,
		Interval:    interval,
		Logger:      l,
	}
}

// AwaitReady polls url until a response of any kind arrives. It makes exactly
// MaxAttempts attempts, sleeping Interval between them (no backoff), and
// returns a TimeoutError on exhaustion. Context cancellation aborts between
// attempts and is reported as the context's error, not a readiness failure.
func (p *Prober) AwaitReady(ctx context.Context, name, url string) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		metrics.IncProbeAttempt(name)
		err := p.tryOnce(ctx, url)
		if err == nil {
			p.Logger.Info("service answered readiness probe", "service", name, "url", url, "attempt", attempt)
			return nil
		}
		lastErr = err
		p.Logger.Debug("probe attempt failed", "service", name, "attempt", attempt, "error", err)
		if attempt == p.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Interval):
		}
	}
	metrics.IncReadinessFailure(name)
	return &TimeoutError{Service: name, URL: url, Attempts: p.MaxAttempts, LastErr: lastErr}
}

func (p *Prober) tryOnce(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	// Any response, any status code, counts as ready.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
	return nil
}
