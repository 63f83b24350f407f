//go:build windows

package monitor

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// detach starts the worker in a new process group so console Ctrl+C stays with the supervisor.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
}
