// Package scratch manages the temporary files a request needs for its
// lifetime, such as model text the native library reads by path.
package scratch

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/multierr"
)

// Scope owns a set of temporary files and removes all of them on Close.
// Use one scope per request and defer Close immediately after creating it.
type Scope struct {
	dir    string
	prefix string
	paths  []string
	mu     sync.Mutex
	closed bool
}

// New returns a scope that creates files in dir (os.TempDir when empty).
func New(dir, prefix string) *Scope {
	if prefix == "" {
		prefix = "tckbridge"
	}
	return &Scope{dir: dir, prefix: prefix}
}

// WriteFile stores data in a new file readable only by the current user and
// returns its path. The name is unique, so concurrent scopes never collide.
func (s *Scope) WriteFile(data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", fmt.Errorf("scratch scope closed")
	}

	f, err := os.CreateTemp(s.dir, s.prefix+"-*.txt")
	if err != nil {
		return "", fmt.Errorf("create scratch file: %w", err)
	}
	s.paths = append(s.paths, f.Name())

	if err := f.Chmod(0o600); err != nil {
		f.Close()
		return "", fmt.Errorf("chmod scratch file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("write scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close scratch file: %w", err)
	}
	return f.Name(), nil
}

// Paths lists the files created so far.
func (s *Scope) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// Close removes every file in the scope. Files already gone are not an
// error; other failures are combined into one error.
func (s *Scope) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	for _, p := range s.paths {
		if rerr := os.Remove(p); rerr != nil && !os.IsNotExist(rerr) {
			err = multierr.Append(err, rerr)
		}
	}
	s.paths = nil
	return err
}
