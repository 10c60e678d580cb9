//go:build windows

package finalize

import (
	"os/exec"
	"syscall"
)

// hideWindow stops ffmpeg from opening a console when screenrec runs
// without one.
func hideWindow(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.HideWindow = true
}
