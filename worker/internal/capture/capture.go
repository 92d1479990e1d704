//go:build linux || darwin

// Package capture redirects the process's standard output file descriptor
// into an unlinked temporary file for the duration of a native call.
//
// Redirection happens at the descriptor level, so output written by C code
// through its own stdio buffers is captured as well, provided those buffers
// are flushed before Restore.
package capture

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

const stdoutFD = 1

// Capture holds a redirected fd 1 and the saved original.
type Capture struct {
	sink     *os.File
	saved    int
	restored bool
}

// Start points fd 1 at a fresh temporary file. The file is unlinked at once
// so it disappears with the process whatever happens to it.
func Start(dir string) (*Capture, error) {
	sink, err := os.CreateTemp(dir, "tckbridge-out-*")
	if err != nil {
		return nil, fmt.Errorf("create capture file: %w", err)
	}
	_ = os.Remove(sink.Name())

	saved, err := unix.Dup(stdoutFD)
	if err != nil {
		sink.Close()
		return nil, fmt.Errorf("dup stdout: %w", err)
	}
	unix.CloseOnExec(saved)

	if err := dupTo(int(sink.Fd()), stdoutFD); err != nil {
		unix.Close(saved)
		sink.Close()
		return nil, fmt.Errorf("redirect stdout: %w", err)
	}
	return &Capture{sink: sink, saved: saved}, nil
}

// Restore puts the original fd 1 back. Calling it again is a no-op.
func (c *Capture) Restore() error {
	if c.restored {
		return nil
	}
	c.restored = true

	err := dupTo(c.saved, stdoutFD)
	unix.Close(c.saved)
	if err != nil {
		return fmt.Errorf("restore stdout: %w", err)
	}
	return nil
}

// Output restores fd 1 if needed and returns everything written while it
// was redirected.
func (c *Capture) Output() ([]byte, error) {
	if err := c.Restore(); err != nil {
		return nil, err
	}
	defer c.sink.Close()

	if _, err := c.sink.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind capture file: %w", err)
	}
	b, err := io.ReadAll(c.sink)
	if err != nil {
		return nil, fmt.Errorf("read capture file: %w", err)
	}
	return b, nil
}
