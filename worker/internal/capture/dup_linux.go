package capture

import "golang.org/x/sys/unix"

// dup2 is missing on some linux architectures; dup3 is everywhere.
func dupTo(oldfd, newfd int) error {
	return unix.Dup3(oldfd, newfd, 0)
}
