// Package report defines the framed report a worker writes to its stdout and
// the strict decoder the invoker applies to it.
//
// A report is a version frame, an optional output frame holding everything
// the native call printed, and exactly one terminal frame: either the call's
// result or a fault describing why there is none. Nothing may follow the
// terminal frame.
package report

import (
	stderrors "errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/wippyai/tck-bridge/errors"
	"github.com/wippyai/tck-bridge/internal/wire"
	"github.com/wippyai/tck-bridge/native"
)

// Version is the report format produced by this build.
const Version = 1

const (
	fieldVersion protowire.Number = 1
	fieldOutput  protowire.Number = 2
	fieldResult  protowire.Number = 3
	fieldFault   protowire.Number = 4
)

const (
	resultType  protowire.Number = 1
	resultInt   protowire.Number = 2
	resultFloat protowire.Number = 3
	resultText  protowire.Number = 4
	resultNull  protowire.Number = 5
	resultOut   protowire.Number = 6
)

const (
	outIndex protowire.Number = 1
	outValue protowire.Number = 2
)

const (
	faultPhase  protowire.Number = 1
	faultKind   protowire.Number = 2
	faultDetail protowire.Number = 3
)

type Report struct {
	// Result is set on success, Fault otherwise; never both.
	Result *Result
	Fault  *Fault
	// Output is the native call's captured standard output, verbatim.
	Output  []byte
	Version uint64
}

type Result struct {
	Out   []OutValue
	Value native.Value
}

// OutValue is the int32 a call stored through its output parameter at Index.
type OutValue struct {
	Index int
	Value int32
}

// Fault is a failure the worker detected and reported before exiting.
type Fault struct {
	Phase  errors.Phase
	Kind   errors.Kind
	Detail string
}

// Err converts the fault into the bridge error it describes.
func (f *Fault) Err() error {
	return &errors.Error{
		Phase:  f.Phase,
		Kind:   f.Kind,
		Detail: f.Detail,
	}
}

// FaultFrom builds a fault from any error, keeping the structured phase and
// kind when err carries them.
func FaultFrom(err error, phase errors.Phase, kind errors.Kind) *Fault {
	f := &Fault{Phase: phase, Kind: kind, Detail: err.Error()}
	var be *errors.Error
	if stderrors.As(err, &be) {
		f.Phase, f.Kind = be.Phase, be.Kind
		// Err re-adds the phase and kind prefix.
		prefix := fmt.Sprintf("[%s] %s", be.Phase, be.Kind)
		f.Detail = strings.TrimLeft(strings.TrimPrefix(f.Detail, prefix), ": ")
	} else if k := errors.KindOf(err); k != "" {
		f.Kind = k
	}
	return f
}

// MarshalBinary encodes r in wire order: version, output, terminal frame.
func (r *Report) MarshalBinary() ([]byte, error) {
	if (r.Result == nil) == (r.Fault == nil) {
		return nil, errors.New(errors.PhaseWorker, errors.KindInvalidInput).
			Detail("report needs exactly one of result and fault").
			Build()
	}

	var b []byte
	b = wire.AppendVarint(b, fieldVersion, Version)
	if len(r.Output) > 0 {
		b = wire.AppendBytes(b, fieldOutput, r.Output)
	}
	if r.Result != nil {
		b = wire.AppendBytes(b, fieldResult, r.Result.marshal())
	} else {
		b = wire.AppendBytes(b, fieldFault, r.Fault.marshal())
	}
	return b, nil
}

func (r *Result) marshal() []byte {
	var b []byte
	v := r.Value
	b = wire.AppendVarint(b, resultType, uint64(v.Type))
	switch v.Type {
	case native.Int32:
		b = wire.AppendSint(b, resultInt, int64(v.Int))
	case native.Double:
		b = wire.AppendFixed64(b, resultFloat, math.Float64bits(v.Float))
	case native.Text:
		if v.Null {
			b = wire.AppendVarint(b, resultNull, 1)
		} else {
			b = wire.AppendString(b, resultText, v.Str)
		}
	}
	for _, o := range r.Out {
		var ob []byte
		ob = wire.AppendVarint(ob, outIndex, uint64(o.Index))
		ob = wire.AppendSint(ob, outValue, int64(o.Value))
		b = wire.AppendBytes(b, resultOut, ob)
	}
	return b
}

func (f *Fault) marshal() []byte {
	var b []byte
	b = wire.AppendString(b, faultPhase, string(f.Phase))
	b = wire.AppendString(b, faultKind, string(f.Kind))
	b = wire.AppendString(b, faultDetail, f.Detail)
	return b
}
