package service

import (
	"bytes"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"
)

// Status is a point-in-time snapshot of a launched service.
type Status struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	ProbeURL  string    `json:"probe_url"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
	ExitError string    `json:"exit_error,omitempty"`
}

// Service owns the spawned server process for one Spec.
// Invariant: at most one live process handle per Service.
type Service struct {
	spec     Spec
	mu       sync.Mutex
	cmd      *exec.Cmd
	status   Status
	waitDone chan struct{} // closed once the reaper observed process exit
	outW     io.WriteCloser
	errW     io.WriteCloser
}

// New creates an unstarted Service record for spec.
func New(spec Spec) *Service { return &Service{spec: spec} }

// Spec returns a copy of the service's spec.
func (s *Service) Spec() Spec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spec
}

// Start spawns the server process in its own process group and persists the
// pidfile synchronously before returning, so the handle is discoverable even
// if the orchestrator crashes immediately afterwards.
func (s *Service) Start(globalEnv []string) error {
	cmd := s.configureCmd(globalEnv)
	if err := cmd.Start(); err != nil {
		s.closeWriters()
		return err
	}
	pid := cmd.Process.Pid

	s.mu.Lock()
	s.cmd = cmd
	s.waitDone = make(chan struct{})
	s.status = Status{
		Name:      s.spec.Name,
		Running:   true,
		PID:       pid,
		Port:      s.spec.Port,
		ProbeURL:  s.spec.ProbeURL,
		StartedAt: time.Now(),
	}
	wd := s.waitDone
	s.mu.Unlock()

	if err := WritePIDFile(s.spec.PIDFile, pid); err != nil {
		// The process is up but untracked on disk; kill it rather than leak.
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		<-s.reap(cmd, wd)
		return err
	}

	s.reap(cmd, wd)
	return nil
}

func (s *Service) configureCmd(globalEnv []string) *exec.Cmd {
	cmd := s.spec.BuildCommand()
	if s.spec.WorkDir != "" {
		cmd.Dir = s.spec.WorkDir
	}
	env := os.Environ()
	env = append(env, globalEnv...)
	env = append(env, s.spec.Env...)
	cmd.Env = env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if s.spec.Log.Dir != "" || s.spec.Log.StdoutPath != "" || s.spec.Log.StderrPath != "" {
		if s.spec.Log.Dir != "" {
			_ = os.MkdirAll(s.spec.Log.Dir, 0o750)
		}
		outW, errW, _ := s.spec.Log.Writers(s.spec.Name)
		s.mu.Lock()
		s.outW, s.errW = outW, errW
		s.mu.Unlock()
		cmd.Stdout = writerOrNull(outW)
		cmd.Stderr = writerOrNull(errW)
	} else {
		null, _ := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		cmd.Stdout = null
		cmd.Stderr = null
	}
	return cmd
}

func writerOrNull(w io.WriteCloser) io.Writer {
	if w != nil {
		return w
	}
	null, _ := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	return null
}

// reap waits for process exit in the background so the child never lingers as
// a zombie, then records the exit and closes log writers.
func (s *Service) reap(cmd *exec.Cmd, done chan struct{}) chan struct{} {
	go func() {
		err := cmd.Wait()
		s.mu.Lock()
		s.status.Running = false
		s.status.StoppedAt = time.Now()
		if err != nil {
			s.status.ExitError = err.Error()
		}
		s.mu.Unlock()
		s.closeWriters()
		close(done)
	}()
	return done
}

func (s *Service) closeWriters() {
	s.mu.Lock()
	outW, errW := s.outW, s.errW
	s.outW, s.errW = nil, nil
	s.mu.Unlock()
	if outW != nil {
		_ = outW.Close()
	}
	if errW != nil {
		_ = errW.Close()
	}
}

// Snapshot returns a copy of the current status.
func (s *Service) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// DetectAlive probes liveness avoiding races with os/exec internals.
func (s *Service) DetectAlive() bool {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		pid := cmd.Process.Pid
		// A quickly-exiting child can linger as a zombie until reaped;
		// treat that as not alive.
		if runtime.GOOS == "linux" && isZombieLinux(pid) {
			return false
		}
		if syscall.Kill(pid, 0) == nil {
			return true
		}
	}
	alive, _, _ := AliveFromPIDFile(s.spec.PIDFile)
	return alive
}

// Stop sends SIGTERM to the process group, waits up to wait for exit and
// escalates to SIGKILL. It is a no-op when the process is already gone.
func (s *Service) Stop(wait time.Duration) error {
	if !s.DetectAlive() {
		return nil
	}
	s.mu.Lock()
	cmd := s.cmd
	wd := s.waitDone
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	pid := cmd.Process.Pid
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	select {
	case <-wd:
	case <-time.After(wait):
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		select {
		case <-wd:
		case <-time.After(200 * time.Millisecond):
			// best-effort
		}
	}
	return nil
}

// isZombieLinux returns true if /proc/<pid>/status reports state Z.
func isZombieLinux(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}
