//go:build !unix

package invoke

import "os/exec"

func isolate(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return cmd.Process.Kill()
	}
}

func signalOf(state interface{ Sys() any }) string {
	return ""
}
