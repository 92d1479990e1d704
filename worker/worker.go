// Package worker is the isolated half of the bridge: a short-lived process
// that reads one call request on stdin, makes the native call, and writes one
// framed report to stdout.
//
// The worker trusts nothing it receives. It re-validates the request, binds
// the call from the declared types only, and captures everything the native
// code prints so it cannot be confused with the report. If the native code
// crashes the process dies without a report and the invoker classifies the
// death from the exit status.
package worker

import (
	"fmt"
	"io"
	"os"
	"unsafe"

	"github.com/wippyai/tck-bridge/call"
	"github.com/wippyai/tck-bridge/errors"
	"github.com/wippyai/tck-bridge/report"
	"github.com/wippyai/tck-bridge/worker/internal/capture"
	"github.com/wippyai/tck-bridge/worker/internal/ffi"
)

// Exit codes, from sysexits. Code 2 is left to the Go runtime, which uses
// it for fatal errors such as unrecovered panics.
const (
	ExitOK          = 0
	ExitMalformed   = 65 // EX_DATAERR: request or argument rejected
	ExitLibraryLoad = 69 // EX_UNAVAILABLE: library or symbol missing
	ExitInternal    = 70 // EX_SOFTWARE: binding or capture failure
)

// MaxRequestSize bounds what the worker will read from stdin.
const MaxRequestSize = 64 << 20

// Supported reports whether this build can make native calls.
func Supported() bool {
	return ffi.Supported()
}

// Main runs the worker against the process's stdio and exits.
func Main() {
	os.Exit(Run(os.Stdin, os.Stdout))
}

// Run handles one request and returns the process exit code. Everything it
// writes to stdout is a single report.
func Run(stdin io.Reader, stdout io.Writer) int {
	raw, err := io.ReadAll(io.LimitReader(stdin, MaxRequestSize+1))
	if err != nil {
		return fail(stdout, ExitMalformed, errors.Malformed("read request", err))
	}
	if len(raw) > MaxRequestSize {
		return fail(stdout, ExitMalformed, errors.Malformed(fmt.Sprintf("request exceeds %d bytes", MaxRequestSize), nil))
	}

	req, err := call.DecodeRequest(raw)
	if err != nil {
		return fail(stdout, ExitMalformed, err)
	}
	d := req.Call

	lib, err := ffi.Open(req.Library)
	if err != nil {
		return fail(stdout, ExitLibraryLoad, err)
	}

	names := []string{d.Symbol()}
	if d.Release() != "" {
		names = append(names, d.Release())
	}
	syms, err := lib.Lookup(names...)
	if err != nil {
		return fail(stdout, ExitLibraryLoad, err)
	}
	var release unsafe.Pointer
	if len(syms) > 1 {
		release = syms[1]
	}

	c, err := ffi.Prepare(syms[0], d.Returns(), d.Args())
	if err != nil {
		return fail(stdout, ExitInternal, err)
	}
	defer c.Free()

	output, err := execute(c)
	if err != nil {
		return fail(stdout, ExitInternal, errors.Wrap(errors.PhaseCall, errors.KindSpawn, err, "capture output"))
	}

	rep := &report.Report{
		Output: output,
		Result: &report.Result{
			Value: c.Result(release),
			Out:   c.Out(),
		},
	}
	return write(stdout, rep, ExitOK)
}

// execute makes the call with fd 1 redirected. The deferred restore covers
// a Go-level panic; a native crash takes the process with it.
func execute(c *ffi.Call) ([]byte, error) {
	cp, err := capture.Start("")
	if err != nil {
		return nil, err
	}
	defer cp.Restore()

	c.Invoke()
	return cp.Output()
}

func fail(stdout io.Writer, code int, err error) int {
	phase, kind := errors.PhaseWorker, errors.KindMalformedRequest
	switch code {
	case ExitLibraryLoad:
		phase, kind = errors.PhaseLoad, errors.KindLibraryLoad
	case ExitInternal:
		phase, kind = errors.PhaseBind, errors.KindUnsupported
	}
	rep := &report.Report{Fault: report.FaultFrom(err, phase, kind)}
	if code == ExitLibraryLoad {
		rep.Fault.Kind = errors.KindLibraryLoad
	}
	return write(stdout, rep, code)
}

func write(stdout io.Writer, rep *report.Report, code int) int {
	b, err := rep.MarshalBinary()
	if err == nil {
		_, err = stdout.Write(b)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "tckbridge worker: write report: %v\n", err)
		return ExitInternal
	}
	return code
}
