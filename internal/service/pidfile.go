package service

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// The pidfile is the durable record of a spawned process: the first line is
// the decimal PID, the second an optional JSON meta line carrying the process
// start time so that a later invocation can detect PID reuse. It is written
// atomically (temp file + rename) immediately after spawn so cleanup can
// always find a handle even if the orchestrator dies right after launching.

type pidMeta struct {
	StartUnix int64 `json:"start_unix"`
}

// WritePIDFile atomically persists pid (and its start time) to path.
func WritePIDFile(path string, pid int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString(strconv.Itoa(pid))
	b.WriteByte('\n')
	if start := procStartUnix(pid); start > 0 {
		meta, _ := json.Marshal(pidMeta{StartUnix: start})
		b.Write(meta)
		b.WriteByte('\n')
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadPIDFile reads a pidfile written by WritePIDFile. For legacy files that
// contain only the PID, startUnix is zero.
func ReadPIDFile(path string) (int, int64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, err
	}
	pidLine, rest, _ := strings.Cut(string(b), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(pidLine))
	if err != nil {
		return 0, 0, err
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return pid, 0, nil
	}
	var m pidMeta
	if err := json.Unmarshal([]byte(rest), &m); err != nil {
		// Return PID even when meta cannot be parsed.
		return pid, 0, nil
	}
	return pid, m.StartUnix, nil
}

// RemovePIDFile best-effort.
func RemovePIDFile(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}

// ProcStartUnix exposes the platform start-time lookup for callers that
// need to detect PID reuse themselves (e.g. the cleanup coordinator).
func ProcStartUnix(pid int) int64 { return procStartUnix(pid) }

// PIDAlive reports whether a process with the given pid exists (or EPERM).
func PIDAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// AliveFromPIDFile reports whether the process recorded at path is still the
// one that wrote the file. A recorded start time that no longer matches the
// current process means the PID was reused and the service is gone.
func AliveFromPIDFile(path string) (bool, int, error) {
	pid, startUnix, err := ReadPIDFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	if startUnix > 0 {
		if cur := procStartUnix(pid); cur > 0 && cur != startUnix {
			return false, pid, nil
		}
	}
	return PIDAlive(pid), pid, nil
}
