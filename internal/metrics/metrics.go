package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register and
// the recording helpers no-op until that happens.
var (
	regOK atomic.Bool

	serviceLaunches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackup",
			Subsystem: "orchestrator",
			Name:      "launches_total",
			Help:      "Number of successful service launches.",
		}, []string{"service"},
	)
	prepareSteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackup",
			Subsystem: "orchestrator",
			Name:      "prepare_steps_total",
			Help:      "Number of executed prepare steps (install/migrate/seed).",
		}, []string{"service", "step"},
	)
	probeAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackup",
			Subsystem: "orchestrator",
			Name:      "probe_attempts_total",
			Help:      "Number of readiness probe attempts.",
		}, []string{"service"},
	)
	readinessFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackup",
			Subsystem: "orchestrator",
			Name:      "readiness_failures_total",
			Help:      "Number of services that exhausted their probe budget.",
		}, []string{"service"},
	)
	cleanupKills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackup",
			Subsystem: "orchestrator",
			Name:      "cleanup_kills_total",
			Help:      "Number of processes terminated during cleanup, by method.",
		}, []string{"method"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "stackup",
			Subsystem: "orchestrator",
			Name:      "state",
			Help:      "Current orchestrator state (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{serviceLaunches, prepareSteps, probeAttempts, readinessFailures, cleanupKills, currentState}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving Prometheus metrics for the
// DefaultGatherer. The caller wires the route and server.
func Handler() http.Handler { return promhttp.Handler() }

func IncLaunch(service string) {
	if regOK.Load() {
		serviceLaunches.WithLabelValues(service).Inc()
	}
}

func IncPrepareStep(service, step string) {
	if regOK.Load() {
		prepareSteps.WithLabelValues(service, step).Inc()
	}
}

func IncProbeAttempt(service string) {
	if regOK.Load() {
		probeAttempts.WithLabelValues(service).Inc()
	}
}

func IncReadinessFailure(service string) {
	if regOK.Load() {
		readinessFailures.WithLabelValues(service).Inc()
	}
}

func IncCleanupKill(method string) {
	if regOK.Load() {
		cleanupKills.WithLabelValues(method).Inc()
	}
}

func SetState(state string, active bool) {
	if regOK.Load() {
		var v float64
		if active {
			v = 1
		}
		currentState.WithLabelValues(state).Set(v)
	}
}
