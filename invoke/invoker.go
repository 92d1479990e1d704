package invoke

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/wippyai/tck-bridge/call"
	"github.com/wippyai/tck-bridge/errors"
	"github.com/wippyai/tck-bridge/report"
)

// DefaultTimeout applies when neither the invoker nor the call sets one.
const DefaultTimeout = 30 * time.Second

// DefaultStderrLimit caps how much worker stderr an Outcome keeps.
const DefaultStderrLimit = 64 << 10

// How long Wait lets the worker's pipes drain once it has exited or been
// killed.
const waitDelay = 2 * time.Second

var tracer = otel.Tracer("tckbridge.invoke")

// Observer is told about every invocation. Finished follows each Started; a
// call rejected before any worker starts gets Finished alone, with zero
// elapsed time. Implementations must be safe for concurrent use.
type Observer interface {
	Started(symbol string)
	Finished(symbol string, status Status, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) Started(string)                        {}
func (nopObserver) Finished(string, Status, time.Duration) {}

// Invoker runs each call in a fresh worker process against one library.
// It holds no per-call state and is safe for concurrent use.
type Invoker struct {
	observer    Observer
	sem         *semaphore.Weighted
	library     string
	release     string
	command     []string
	env         []string
	timeout     time.Duration
	stderrLimit int
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithTimeout sets the default per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(iv *Invoker) { iv.timeout = d }
}

// WithCommand sets the argv that starts a worker. The default re-executes
// the current binary with the "worker" sub-command.
func WithCommand(argv ...string) Option {
	return func(iv *Invoker) { iv.command = append([]string(nil), argv...) }
}

// WithEnv sets the worker environment; nil inherits the parent's.
func WithEnv(env []string) Option {
	return func(iv *Invoker) { iv.env = env }
}

// WithMaxConcurrent bounds the number of live workers. Time spent waiting
// for a slot counts toward the call's timeout. Zero means unbounded.
func WithMaxConcurrent(n int) Option {
	return func(iv *Invoker) {
		if n > 0 {
			iv.sem = semaphore.NewWeighted(int64(n))
		} else {
			iv.sem = nil
		}
	}
}

// WithRelease names the library function Call pairs with text returns to
// free them.
func WithRelease(symbol string) Option {
	return func(iv *Invoker) { iv.release = symbol }
}

func WithObserver(o Observer) Option {
	return func(iv *Invoker) {
		if o != nil {
			iv.observer = o
		}
	}
}

func WithStderrLimit(n int) Option {
	return func(iv *Invoker) { iv.stderrLimit = n }
}

// New creates an invoker for the shared library at library.
func New(library string, opts ...Option) (*Invoker, error) {
	iv := &Invoker{
		library:     library,
		timeout:     DefaultTimeout,
		stderrLimit: DefaultStderrLimit,
		observer:    nopObserver{},
	}
	for _, opt := range opts {
		opt(iv)
	}

	if library == "" {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Detail("library path is required").
			Build()
	}
	if iv.timeout <= 0 {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Detail("timeout must be positive, got %s", iv.timeout).
			Build()
	}
	if len(iv.command) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindSpawn, err, "locate worker executable")
		}
		iv.command = []string{exe, "worker"}
	}
	return iv, nil
}

func (iv *Invoker) Library() string { return iv.library }

func (iv *Invoker) Timeout() time.Duration { return iv.timeout }

// CallOption adjusts a single invocation.
type CallOption func(*callConfig)

type callConfig struct {
	timeout time.Duration
}

// Timeout overrides the invoker's timeout for one call. It must be positive.
func Timeout(d time.Duration) CallOption {
	return func(c *callConfig) { c.timeout = d }
}

// Call builds a descriptor from type tags and raw arguments and invokes it.
// Rejections that happen before a worker is spawned still produce an
// Outcome with the matching status.
func (iv *Invoker) Call(ctx context.Context, symbol string, params []string, returns string, args []any, opts ...CallOption) (*Outcome, error) {
	d, err := call.New(symbol, params, returns, args, call.WithRelease(iv.release))
	if err != nil {
		out := Rejected(symbol, err)
		iv.observer.Finished(symbol, out.Status, 0)
		iv.log(out)
		return out, err
	}
	return iv.Invoke(ctx, d, opts...)
}

// Invoke runs d in a fresh worker. The returned Outcome is never nil; the
// error is non-nil exactly when the Outcome's status is not completed.
//
// Cancelling ctx does not stop the call: the timeout is the only thing that
// ends a running worker early. ctx still carries trace context and values.
func (iv *Invoker) Invoke(ctx context.Context, d *call.Descriptor, opts ...CallOption) (*Outcome, error) {
	if d == nil {
		err := errors.Malformed("nil call descriptor", nil)
		return newOutcome("").fail(StatusMalformedRequest, err)
	}

	cfg := callConfig{timeout: iv.timeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	out := newOutcome(d.Symbol())
	if cfg.timeout <= 0 {
		err := errors.New(errors.PhaseSpawn, errors.KindInvalidInput).
			Detail("timeout must be positive, got %s", cfg.timeout).
			Build()
		return out.fail(StatusMalformedRequest, err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "invoke.Invoke",
		trace.WithAttributes(
			attribute.String("invoke.id", out.ID.String()),
			attribute.String("invoke.symbol", d.Symbol()),
			attribute.String("invoke.signature", d.String()),
		),
	)
	defer span.End()

	iv.observer.Started(d.Symbol())
	Logger().Debug("invocation started",
		zap.String("id", out.ID.String()),
		zap.Stringer("call", d),
		zap.Duration("timeout", cfg.timeout),
	)

	iv.run(ctx, d, cfg.timeout, out)
	out.Duration = time.Since(out.Started)

	iv.observer.Finished(d.Symbol(), out.Status, out.Duration)
	span.SetAttributes(
		attribute.String("invoke.status", string(out.Status)),
		attribute.Int("invoke.pid", out.PID),
		attribute.Int("invoke.exit_code", out.ExitCode),
	)
	if out.Err != nil {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, string(out.Status))
	}
	iv.log(out)

	return out, out.Err
}

func (iv *Invoker) run(ctx context.Context, d *call.Descriptor, timeout time.Duration, out *Outcome) {
	if iv.sem != nil {
		if err := iv.sem.Acquire(ctx, 1); err != nil {
			out.fail(StatusTimedOut, timedOut(timeout, "waiting for a worker slot"))
			return
		}
		defer iv.sem.Release(1)
	}

	cmd := exec.CommandContext(ctx, iv.command[0], iv.command[1:]...)
	cmd.Env = iv.env
	cmd.Stdin = bytes.NewReader(call.EncodeRequest(iv.library, d))
	var stdout bytes.Buffer
	stderr := &capBuffer{max: iv.stderrLimit}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	isolate(cmd)

	if err := cmd.Start(); err != nil {
		out.fail(StatusCrashed, errors.Wrap(errors.PhaseSpawn, errors.KindSpawn, err, "start worker"))
		return
	}
	out.PID = cmd.Process.Pid

	err := cmd.Wait()
	out.Stderr = stderr.Bytes()
	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
		out.Signal = signalOf(cmd.ProcessState)
	}

	if err != nil && ctx.Err() != nil {
		out.fail(StatusTimedOut, timedOut(timeout, "worker killed"))
		return
	}
	if err != nil && !stderrors.Is(err, exec.ErrWaitDelay) {
		var exitErr *exec.ExitError
		if !stderrors.As(err, &exitErr) {
			out.fail(StatusCrashed, errors.Wrap(errors.PhaseSpawn, errors.KindSpawn, err, "wait for worker"))
			return
		}
	}

	classify(d, stdout.Bytes(), out)
}

// classify turns a finished worker's exit state and stdout into the outcome.
func classify(d *call.Descriptor, raw []byte, out *Outcome) {
	if out.Signal != "" {
		out.fail(StatusCrashed, crashed(out, "worker terminated by "+out.Signal))
		return
	}

	if out.ExitCode != 0 {
		// A worker that exits non-zero either reported why or died abnormally.
		if rep, err := report.Parse(raw); err == nil && rep.Fault != nil {
			out.Output = rep.Output
			out.fail(statusOfKind(rep.Fault.Kind), rep.Fault.Err())
			return
		}
		out.fail(StatusCrashed, crashed(out, fmt.Sprintf("worker exited with code %d", out.ExitCode)))
		return
	}

	rep, err := report.Decode(raw, d.Returns())
	if err != nil {
		out.fail(StatusResultParse, err)
		return
	}
	out.Output = rep.Output
	if rep.Fault != nil {
		out.fail(statusOfKind(rep.Fault.Kind), rep.Fault.Err())
		return
	}
	if err := rep.CheckOutSlots(d.OutSlots()); err != nil {
		out.fail(StatusResultParse, err)
		return
	}

	out.Value = rep.Result.Value
	out.Out = rep.Result.Out
	out.Status = StatusCompleted
}

func crashed(out *Outcome, detail string) error {
	b := errors.New(errors.PhaseSpawn, errors.KindCrashed).Value(out.ExitCode)
	if tail := lastLine(out.Stderr); tail != "" {
		return b.Detail("%s: %s", detail, tail).Build()
	}
	return b.Detail("%s", detail).Build()
}

func timedOut(timeout time.Duration, detail string) error {
	return errors.New(errors.PhaseSpawn, errors.KindTimedOut).
		Value(timeout).
		Detail("%s after %s", detail, timeout).
		Build()
}

func lastLine(b []byte) string {
	b = bytes.TrimRight(b, "\r\n\t ")
	if i := bytes.LastIndexByte(b, '\n'); i >= 0 {
		b = b[i+1:]
	}
	if len(b) > 256 {
		b = b[:256]
	}
	return string(b)
}

func (iv *Invoker) log(out *Outcome) {
	fields := []zap.Field{
		zap.String("id", out.ID.String()),
		zap.String("symbol", out.Symbol),
		zap.String("status", string(out.Status)),
		zap.Duration("duration", out.Duration),
		zap.Int("pid", out.PID),
	}
	switch out.Status {
	case StatusCompleted:
		Logger().Debug("invocation completed", fields...)
	case StatusCrashed, StatusTimedOut:
		fields = append(fields,
			zap.Int("exit_code", out.ExitCode),
			zap.String("signal", out.Signal),
			zap.ByteString("stderr", out.Stderr),
			zap.Error(out.Err),
		)
		Logger().Warn("invocation failed", fields...)
	default:
		Logger().Info("invocation rejected", append(fields, zap.Error(out.Err))...)
	}
}

// capBuffer keeps the first max bytes written and silently drops the rest,
// so a worker flooding stderr cannot exhaust the parent's memory.
type capBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (c *capBuffer) Write(p []byte) (int, error) {
	if room := c.max - c.buf.Len(); room > 0 {
		if len(p) > room {
			c.buf.Write(p[:room])
			c.truncated = true
		} else {
			c.buf.Write(p)
		}
	} else if len(p) > 0 {
		c.truncated = true
	}
	return len(p), nil
}

func (c *capBuffer) Bytes() []byte {
	if c.truncated {
		return append(bytes.Clone(c.buf.Bytes()), "\n[stderr truncated]"...)
	}
	return bytes.Clone(c.buf.Bytes())
}
