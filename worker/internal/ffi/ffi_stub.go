//go:build !cgo || noffi || !(linux || darwin)

package ffi

import (
	"unsafe"

	"github.com/wippyai/tck-bridge/call"
	"github.com/wippyai/tck-bridge/errors"
	"github.com/wippyai/tck-bridge/native"
	"github.com/wippyai/tck-bridge/report"
)

var errUnsupported = errors.Unsupported(errors.PhaseLoad, "native calls need a cgo build with libffi on linux or darwin")

func Supported() bool { return false }

type Library struct{}

func Open(path string) (*Library, error) {
	return nil, errors.LibraryLoad(path, errUnsupported)
}

func (l *Library) Lookup(names ...string) ([]unsafe.Pointer, error) {
	return nil, errUnsupported
}

type Call struct{}

func Prepare(fn unsafe.Pointer, returns native.Type, args []call.Arg) (*Call, error) {
	return nil, errUnsupported
}

func (c *Call) Invoke() {}

func (c *Call) Result(release unsafe.Pointer) native.Value { return native.VoidValue }

func (c *Call) Out() []report.OutValue { return nil }

func (c *Call) Free() {}
