//go:build !windows

package monitor

import (
	"os/exec"
	"syscall"
)

// detach puts the worker in its own process group so a terminal SIGINT to the supervisor
// does not reach it.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
