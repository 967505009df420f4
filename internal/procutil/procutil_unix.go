//go:build unix

package procutil

import (
	"os/exec"
	"syscall"
)

// setpgid places the child in its own process group so a termination
// signal can reach any subprocesses it spawned, not just the direct
// child.
func setpgid() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func signalProcessGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	return syscall.Kill(-cmd.Process.Pid, sig)
}
