//go:build !windows

package cleanup

import (
	"os"
	"syscall"

	gnet "github.com/shirou/gopsutil/v4/net"

	"github.com/stackup-dev/stackup/internal/metrics"
)

// killPortListeners force-terminates any process still bound to the target's
// declared listen port. This is the backstop for services that forked away
// from their recorded process group or whose pidfile went stale.
func (c *Coordinator) killPortListeners(t Target) {
	pids, err := listenerPIDs(t.Port)
	if err != nil {
		c.Logger.Warn("port scan failed", "service", t.Name, "port", t.Port, "error", err)
		return
	}
	self := os.Getpid()
	for _, pid := range pids {
		if pid == self {
			continue
		}
		if err := syscall.Kill(pid, syscall.SIGKILL); err == nil {
			c.Logger.Warn("force-killed stale port binder", "service", t.Name, "port", t.Port, "pid", pid)
			metrics.IncCleanupKill("port")
		}
	}
}

// listenerPIDs returns the PIDs of processes listening on the given TCP port.
func listenerPIDs(port int) ([]int, error) {
	conns, err := gnet.Connections("tcp")
	if err != nil {
		return nil, err
	}
	var pids []int
	seen := make(map[int32]struct{})
	for _, conn := range conns {
		if conn.Status != "LISTEN" || conn.Laddr.Port != uint32(port) || conn.Pid <= 0 {
			continue
		}
		if _, dup := seen[conn.Pid]; dup {
			continue
		}
		seen[conn.Pid] = struct{}{}
		pids = append(pids, int(conn.Pid))
	}
	return pids, nil
}
