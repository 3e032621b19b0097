package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stackup-dev/stackup/internal/cleanup"
	"github.com/stackup-dev/stackup/internal/config"
	"github.com/stackup-dev/stackup/internal/history"
	"github.com/stackup-dev/stackup/internal/launcher"
	"github.com/stackup-dev/stackup/internal/logger"
	"github.com/stackup-dev/stackup/internal/metrics"
	"github.com/stackup-dev/stackup/internal/probe"
	"github.com/stackup-dev/stackup/internal/service"
)

// State is the sequencer's position in the startup/shutdown lifecycle.
type State string

const (
	StateIdle        State = "idle"
	StateLaunching   State = "launching"
	StateAllLaunched State = "all_launched"
	StateProbing     State = "probing"
	StateReady       State = "ready"
	StateFailed      State = "failed"
	StateCleanup     State = "cleanup"
	StateTerminal    State = "terminal"
)

// Orchestrator owns the whole stack lifecycle: launch every declared service
// in order, verify readiness for all of them, stay alive while they serve,
// and guarantee teardown on every exit path.
//
// All mutable run state (the ordered launched list and the shutting-down
// flag) lives here as an explicit value owned by the sequencer; cleanup is a
// function of this state plus the on-disk pidfiles, never of ambient globals.
type Orchestrator struct {
	cfg    *config.Config
	lch    *launcher.Launcher
	prober *probe.Prober
	logger *slog.Logger
	sink   history.Sink

	mu           sync.Mutex
	state        State
	launched     []*service.Service
	shuttingDown bool
}

// New builds an Orchestrator for cfg. sink may be nil.
func New(cfg *config.Config, l *slog.Logger, sink history.Sink) *Orchestrator {
	if l == nil {
		l = slog.Default()
	}
	return &Orchestrator{
		cfg:    cfg,
		lch:    launcher.New(cfg.Env, l),
		prober: probe.New(cfg.Probe.Timeout, cfg.Probe.MaxAttempts, cfg.Probe.Interval, l),
		logger: l,
		sink:   sink,
		state:  StateIdle,
	}
}

// Run drives the state machine to Ready and then blocks until ctx is
// canceled (the signal path). Cleanup always runs before Run returns,
// whatever the exit path. A nil return means a clean, signal-initiated
// shutdown; a non-nil return is a fatal prerequisite, launch, or readiness
// failure and the whole run must exit non-zero.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.Cleanup()

	o.setState(StateLaunching)
	if err := o.lch.CheckPrerequisites(o.cfg.Services); err != nil {
		o.setState(StateFailed)
		return err
	}

	// Launches are issued strictly in declared order with a fixed grace
	// delay between them; launch i+1 does not wait for readiness of i.
	for i := range o.cfg.Services {
		if ctx.Err() != nil {
			return nil
		}
		spec := o.cfg.Services[i]
		svc, err := o.lch.Launch(spec)
		if err != nil {
			o.setState(StateFailed)
			o.record(history.EventLaunch, spec.Name, 0, "failed: "+err.Error())
			return err
		}
		o.mu.Lock()
		o.launched = append(o.launched, svc)
		o.mu.Unlock()
		o.record(history.EventLaunch, spec.Name, svc.Snapshot().PID, "")

		if i < len(o.cfg.Services)-1 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(o.cfg.GraceDelay):
			}
		}
	}
	o.setState(StateAllLaunched)

	// Readiness is verified only after all launches were issued, in
	// declared order; the first failure fails the whole run.
	o.setState(StateProbing)
	for i := range o.cfg.Services {
		spec := o.cfg.Services[i]
		if err := o.prober.AwaitReady(ctx, spec.Name, spec.ProbeURL); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			o.setState(StateFailed)
			o.record(history.EventProbeTimeout, spec.Name, 0, err.Error())
			return err
		}
		o.record(history.EventReady, spec.Name, o.pidOf(spec.Name), "")
	}

	o.setState(StateReady)
	o.banner()

	// Serving means staying alive: the children are owned by this process
	// and outlive it only as orphans, which cleanup prevents.
	<-ctx.Done()
	o.logger.Info("shutdown requested")
	return nil
}

// Cleanup tears down every launched service and is safe to invoke multiple
// times; only the first invocation per run does work.
func (o *Orchestrator) Cleanup() {
	o.mu.Lock()
	if o.shuttingDown {
		o.mu.Unlock()
		return
	}
	o.shuttingDown = true
	o.mu.Unlock()

	o.setState(StateCleanup)
	o.record(history.EventCleanup, "", 0, "")
	coord := cleanup.New(cleanup.FromSpecs(o.cfg.Services), o.cfg.StopWait, o.logger)
	coord.Run()
	for _, svc := range o.snapshotLaunched() {
		st := svc.Snapshot()
		o.record(history.EventTerminated, st.Name, st.PID, "")
	}
	o.setState(StateTerminal)
	logger.Success(o.logger, "all services stopped")
}

// State returns the current sequencer state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Statuses returns snapshots of every launched service in launch order.
func (o *Orchestrator) Statuses() []service.Status {
	svcs := o.snapshotLaunched()
	out := make([]service.Status, 0, len(svcs))
	for _, svc := range svcs {
		st := svc.Snapshot()
		st.Running = svc.DetectAlive()
		out = append(out, st)
	}
	return out
}

func (o *Orchestrator) snapshotLaunched() []*service.Service {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*service.Service(nil), o.launched...)
}

func (o *Orchestrator) pidOf(name string) int {
	for _, svc := range o.snapshotLaunched() {
		if st := svc.Snapshot(); st.Name == name {
			return st.PID
		}
	}
	return 0
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	prev := o.state
	o.state = s
	o.mu.Unlock()
	metrics.SetState(string(prev), false)
	metrics.SetState(string(s), true)
	o.logger.Debug("state transition", "from", prev, "to", s)
}

func (o *Orchestrator) record(t history.EventType, svcName string, pid int, detail string) {
	if o.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	e := history.Event{Type: t, OccurredAt: time.Now(), Service: svcName, PID: pid, Detail: detail}
	if err := o.sink.Send(ctx, e); err != nil {
		o.logger.Warn("history sink write failed", "event", t, "error", err)
	}
}

func (o *Orchestrator) banner() {
	logger.Success(o.logger, "all services are up")
	for i := range o.cfg.Services {
		s := &o.cfg.Services[i]
		logger.Success(o.logger, "endpoint ready", "service", s.Name, "url", s.ProbeURL, "pid", o.pidOf(s.Name))
	}
	if o.cfg.Server != nil && o.cfg.Server.Listen != "" {
		o.logger.Info("admin endpoint", "listen", o.cfg.Server.Listen, "base_path", o.cfg.Server.BasePath)
	}
	o.logger.Info("press Ctrl+C to stop the stack")
}
