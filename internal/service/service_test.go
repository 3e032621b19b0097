package service

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stackup-dev/stackup/internal/logger"
)

func TestStartWritesPIDFileBeforeReturning(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	pidfile := filepath.Join(dir, "svc.pid")
	svc := New(Spec{
		Name:     "svc",
		Command:  "sleep 5",
		Port:     18000,
		ProbeURL: "http://127.0.0.1:18000/",
		PIDFile:  pidfile,
	})
	if err := svc.Start(nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = svc.Stop(time.Second) }()

	// The pidfile must exist the moment Start returns, not eventually.
	pid, startUnix, err := ReadPIDFile(pidfile)
	if err != nil {
		t.Fatalf("pidfile not readable right after Start: %v", err)
	}
	st := svc.Snapshot()
	if pid != st.PID {
		t.Fatalf("pidfile pid %d != snapshot pid %d", pid, st.PID)
	}
	if startUnix <= 0 {
		t.Fatalf("pidfile missing start time")
	}
	if !st.Running || st.StartedAt.IsZero() {
		t.Fatalf("unexpected snapshot: %+v", st)
	}
	if !svc.DetectAlive() {
		t.Fatalf("freshly started service not alive")
	}
}

func TestStopTerminatesProcessGroup(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	pidfile := filepath.Join(dir, "svc.pid")
	// The shell wrapper forks: killing only the leader would orphan sleep.
	svc := New(Spec{
		Name:     "svc",
		Command:  "sh -c 'sleep 30'",
		Port:     18001,
		ProbeURL: "http://127.0.0.1:18001/",
		PIDFile:  pidfile,
	})
	if err := svc.Start(nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	pid := svc.Snapshot().PID
	if err := svc.Stop(2 * time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	ok := waitUntil(2*time.Second, 20*time.Millisecond, func() bool {
		return !svc.DetectAlive()
	})
	if !ok {
		t.Fatalf("service still alive after Stop")
	}
	// The group must be gone too.
	if err := syscall.Kill(-pid, 0); err == nil {
		t.Fatalf("process group %d still exists", pid)
	}
}

func TestStopIsNoOpWhenAlreadyDead(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	svc := New(Spec{
		Name:     "svc",
		Command:  "true",
		Port:     18002,
		ProbeURL: "http://127.0.0.1:18002/",
		PIDFile:  filepath.Join(dir, "svc.pid"),
	})
	if err := svc.Start(nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitUntil(2*time.Second, 20*time.Millisecond, func() bool {
		return !svc.Snapshot().Running
	})
	if err := svc.Stop(time.Second); err != nil {
		t.Fatalf("Stop on dead service: %v", err)
	}
}

func TestReaperRecordsExit(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	svc := New(Spec{
		Name:     "svc",
		Command:  "sh -c 'exit 3'",
		Port:     18003,
		ProbeURL: "http://127.0.0.1:18003/",
		PIDFile:  filepath.Join(dir, "svc.pid"),
	})
	if err := svc.Start(nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ok := waitUntil(2*time.Second, 20*time.Millisecond, func() bool {
		st := svc.Snapshot()
		return !st.Running && st.ExitError != ""
	})
	if !ok {
		t.Fatalf("exit not recorded: %+v", svc.Snapshot())
	}
	if svc.Snapshot().StoppedAt.IsZero() {
		t.Fatalf("StoppedAt not set")
	}
}

func TestStartWritesChildOutputToLogDir(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	logDir := filepath.Join(dir, "logs")
	svc := New(Spec{
		Name:     "svc",
		Command:  "sh -c 'echo hello-stdout'",
		Port:     18004,
		ProbeURL: "http://127.0.0.1:18004/",
		PIDFile:  filepath.Join(dir, "svc.pid"),
		Log:      logger.Config{Dir: logDir},
	})
	if err := svc.Start(nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	out := filepath.Join(logDir, "svc.stdout.log")
	ok := waitUntil(2*time.Second, 20*time.Millisecond, func() bool {
		b, err := os.ReadFile(out)
		return err == nil && len(b) > 0
	})
	if !ok {
		t.Fatalf("child stdout not captured in %s", out)
	}
}
