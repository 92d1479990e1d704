//go:build unix

package invoke

import (
	"os/exec"
	"testing"
)

func TestKillGroup(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	isolate(cmd)
	if err := cmd.Start(); err != nil {
		t.Skipf("sleep not available: %v", err)
	}
	pid := cmd.Process.Pid

	if err := killGroup(pid); err != nil {
		t.Fatalf("killGroup: %v", err)
	}
	cmd.Wait()
	if got := signalOf(cmd.ProcessState); got != "SIGKILL" {
		t.Errorf("signal = %q, want SIGKILL", got)
	}
	if err := killGroup(pid); err != nil {
		t.Errorf("killing a finished group: %v", err)
	}
}
