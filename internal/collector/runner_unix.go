//go:build !windows

package collector

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// killProcessGroupOnCancel starts the child as a process group leader and
// makes context cancellation kill the entire group.
func killProcessGroupOnCancel(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		// A negative pid addresses the process group.
		if err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL); err != nil && err != unix.ESRCH {
			return cmd.Process.Kill()
		}
		return nil
	}
}
