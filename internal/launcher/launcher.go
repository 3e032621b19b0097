package launcher

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/stackup-dev/stackup/internal/metrics"
	"github.com/stackup-dev/stackup/internal/service"
)

// StepError reports a failed prepare step or spawn. Every StepError is fatal
// to the whole run: a partially-up stack is worse than a clearly-failed
// startup, so there is no partial-cluster mode.
type StepError struct {
	Service string
	Step    string
	Output  string
	Err     error
}

func (e *StepError) Error() string {
	msg := fmt.Sprintf("service %s: %s step failed: %v", e.Service, e.Step, e.Err)
	if e.Output != "" {
		msg += "\n" + e.Output
	}
	return msg
}

func (e *StepError) Unwrap() error { return e.Err }

// PrerequisiteError reports a required runtime/tool missing from PATH,
// detected before any launch attempt.
type PrerequisiteError struct {
	Service string
	Program string
	Err     error
}

func (e *PrerequisiteError) Error() string {
	return fmt.Sprintf("service %s: required program %q not found: %v", e.Service, e.Program, e.Err)
}

func (e *PrerequisiteError) Unwrap() error { return e.Err }

// Launcher runs each service's one-time preparation steps and spawns its
// server process.
type Launcher struct {
	GlobalEnv []string
	Logger    *slog.Logger
}

// New returns a Launcher. globalEnv entries are appended to the OS
// environment of every prepare step and spawned server.
func New(globalEnv []string, l *slog.Logger) *Launcher {
	if l == nil {
		l = slog.Default()
	}
	return &Launcher{GlobalEnv: globalEnv, Logger: l}
}

// CheckPrerequisites verifies, before anything is launched, that every
// service's server command resolves to an executable.
func (l *Launcher) CheckPrerequisites(specs []service.Spec) error {
	for i := range specs {
		s := &specs[i]
		prog := s.Executable()
		if prog == "" {
			continue
		}
		if strings.ContainsRune(prog, '/') {
			if _, err := os.Stat(prog); err != nil {
				return &PrerequisiteError{Service: s.Name, Program: prog, Err: err}
			}
			continue
		}
		if _, err := exec.LookPath(prog); err != nil {
			return &PrerequisiteError{Service: s.Name, Program: prog, Err: err}
		}
	}
	return nil
}

// Launch runs the service's prepare steps (install, migrate, seed gated by
// its sentinel marker), ensures the declared env file exists, then spawns
// the server process in the background. The pidfile is persisted by
// Service.Start immediately after spawn, before Launch returns.
func (l *Launcher) Launch(spec service.Spec) (*service.Service, error) {
	if err := l.runStep(spec, "install", spec.Prepare.Install); err != nil {
		return nil, err
	}
	if err := l.runStep(spec, "migrate", spec.Prepare.Migrate); err != nil {
		return nil, err
	}
	if err := l.runSeed(spec); err != nil {
		return nil, err
	}
	if err := l.ensureEnvFile(spec); err != nil {
		return nil, &StepError{Service: spec.Name, Step: "env_file", Err: err}
	}

	svc := service.New(spec)
	if err := svc.Start(l.GlobalEnv); err != nil {
		return nil, &StepError{Service: spec.Name, Step: "spawn", Err: err}
	}
	metrics.IncLaunch(spec.Name)
	st := svc.Snapshot()
	l.Logger.Info("service launched", "service", spec.Name, "pid", st.PID, "port", spec.Port)
	return svc, nil
}

// runSeed executes the seed step at most once across repeated launches:
// a present sentinel marker suppresses it, a successful run creates it.
func (l *Launcher) runSeed(spec service.Spec) error {
	if spec.Prepare.Seed == "" {
		return nil
	}
	sentinel := spec.Prepare.SeedSentinel
	if sentinel != "" {
		if _, err := os.Stat(sentinel); err == nil {
			l.Logger.Info("seed already applied, skipping", "service", spec.Name, "sentinel", sentinel)
			return nil
		}
	}
	if err := l.runStep(spec, "seed", spec.Prepare.Seed); err != nil {
		return err
	}
	if sentinel != "" {
		if err := os.WriteFile(sentinel, nil, 0o644); err != nil {
			return &StepError{Service: spec.Name, Step: "seed", Err: fmt.Errorf("write sentinel: %w", err)}
		}
	}
	return nil
}

// runStep executes one blocking prepare command in the service's workdir.
func (l *Launcher) runStep(spec service.Spec, step, cmdStr string) error {
	if strings.TrimSpace(cmdStr) == "" {
		return nil
	}
	l.Logger.Info("running prepare step", "service", spec.Name, "step", step)
	cmd := service.BuildShellAware(cmdStr)
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	env := os.Environ()
	env = append(env, l.GlobalEnv...)
	env = append(env, spec.Env...)
	cmd.Env = env
	out, err := cmd.CombinedOutput()
	metrics.IncPrepareStep(spec.Name, step)
	if err != nil {
		return &StepError{Service: spec.Name, Step: step, Output: tail(out, 2048), Err: err}
	}
	return nil
}

// ensureEnvFile creates the declared environment file with default values
// when it does not exist yet. An existing file is left untouched.
func (l *Launcher) ensureEnvFile(spec service.Spec) error {
	ef := spec.EnvFile
	if ef.Path == "" {
		return nil
	}
	if _, err := os.Stat(ef.Path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	content := strings.Join(ef.Defaults, "\n")
	if content != "" {
		content += "\n"
	}
	l.Logger.Info("writing default env file", "service", spec.Name, "path", ef.Path)
	return os.WriteFile(ef.Path, []byte(content), 0o644)
}

func tail(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return s
}
