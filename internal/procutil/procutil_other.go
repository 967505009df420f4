//go:build !unix

package procutil

import (
	"os/exec"
	"syscall"
)

func setpgid() *syscall.SysProcAttr {
	return nil
}

func signalProcessGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Signal(sig)
}
