// Package testlib names system libraries that tests can call into without
// building a native fixture.
package testlib

import (
	"runtime"
	"testing"
)

// Libc returns the C library's soname for the current platform.
func Libc(t testing.TB) string {
	t.Helper()
	switch runtime.GOOS {
	case "linux":
		return "libc.so.6"
	case "darwin":
		return "/usr/lib/libSystem.B.dylib"
	}
	t.Skipf("no C library known for %s", runtime.GOOS)
	return ""
}

// Libm returns the math library's soname; on darwin it is part of libSystem.
func Libm(t testing.TB) string {
	t.Helper()
	switch runtime.GOOS {
	case "linux":
		return "libm.so.6"
	case "darwin":
		return "/usr/lib/libSystem.B.dylib"
	}
	t.Skipf("no math library known for %s", runtime.GOOS)
	return ""
}
