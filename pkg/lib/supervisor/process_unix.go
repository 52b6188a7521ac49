//go:build unix

package supervisor

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// newProcessGroupAttr puts the server in its own process group, so a Ctrl-C
// in the wrapper's terminal is not delivered to it directly.
func newProcessGroupAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup kills the server and anything it spawned.
func killProcessGroup(pid int) error {
	return unix.Kill(-pid, unix.SIGKILL)
}

// processAlive probes pid with signal 0.
func processAlive(pid int) bool {
	return unix.Kill(pid, 0) == nil
}
