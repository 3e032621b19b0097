package cleanup

import (
	"errors"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/stackup-dev/stackup/internal/metrics"
	"github.com/stackup-dev/stackup/internal/service"
)

// The coordinator is deliberately a pure function of its targets plus the
// on-disk pidfiles: it never consults in-memory process handles, so it works
// from a signal context and from a different invocation than the one that
// launched the services.

// Target identifies one service to tear down.
type Target struct {
	Name    string
	PIDFile string
	Port    int
}

// FromSpecs derives cleanup targets from service specs.
func FromSpecs(specs []service.Spec) []Target {
	targets := make([]Target, 0, len(specs))
	for _, s := range specs {
		targets = append(targets, Target{Name: s.Name, PIDFile: s.PIDFile, Port: s.Port})
	}
	return targets
}

// Coordinator terminates every target service. Run is idempotent: a second
// invocation finds no pidfiles and no listeners and does nothing.
type Coordinator struct {
	Targets  []Target
	StopWait time.Duration
	Logger   *slog.Logger
}

// New returns a Coordinator for targets. wait bounds the graceful SIGTERM
// window per service before escalation.
func New(targets []Target, wait time.Duration, l *slog.Logger) *Coordinator {
	if l == nil {
		l = slog.Default()
	}
	if wait <= 0 {
		wait = 3 * time.Second
	}
	return &Coordinator{Targets: targets, StopWait: wait, Logger: l}
}

// Run tears everything down in two independent passes: first by recorded
// pidfile, then by force-killing whatever is still bound to each declared
// port (a service may have forked, or its pidfile may be stale).
func (c *Coordinator) Run() {
	for _, t := range c.Targets {
		c.killFromPIDFile(t)
	}
	for _, t := range c.Targets {
		if t.Port > 0 {
			c.killPortListeners(t)
		}
	}
}

func (c *Coordinator) killFromPIDFile(t Target) {
	if t.PIDFile == "" {
		return
	}
	pid, startUnix, err := service.ReadPIDFile(t.PIDFile)
	if err != nil {
		if !os.IsNotExist(err) {
			// Unreadable pidfile is stale by definition; drop it.
			c.Logger.Warn("removing unreadable pidfile", "service", t.Name, "pidfile", t.PIDFile, "error", err)
			service.RemovePIDFile(t.PIDFile)
		}
		return
	}
	defer service.RemovePIDFile(t.PIDFile)

	alive, _, err := service.AliveFromPIDFile(t.PIDFile)
	if err != nil || !alive {
		return
	}

	// Signal the whole process group; the service was spawned with setpgid.
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return
		}
		// Group signal can fail when the leader already exited; try the pid.
		_ = syscall.Kill(pid, syscall.SIGTERM)
	}
	c.Logger.Info("sent SIGTERM", "service", t.Name, "pid", pid)
	metrics.IncCleanupKill("pidfile")

	if !waitUntilDead(pid, startUnix, c.StopWait) {
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		_ = syscall.Kill(pid, syscall.SIGKILL)
		c.Logger.Warn("escalated to SIGKILL", "service", t.Name, "pid", pid)
		waitUntilDead(pid, startUnix, 500*time.Millisecond)
	}
}

// waitUntilDead polls until the recorded process is gone (or replaced by a
// PID-reuse successor, which counts as gone).
func waitUntilDead(pid int, startUnix int64, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !service.PIDAlive(pid) {
			return true
		}
		if startUnix > 0 {
			if cur := service.ProcStartUnix(pid); cur > 0 && cur != startUnix {
				return true
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	return !service.PIDAlive(pid)
}
