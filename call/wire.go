package call

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/wippyai/tck-bridge/errors"
	"github.com/wippyai/tck-bridge/internal/wire"
	"github.com/wippyai/tck-bridge/native"
)

// Request field numbers.
const (
	fieldLibrary protowire.Number = 1
	fieldSymbol  protowire.Number = 2
	fieldReturns protowire.Number = 3
	fieldRelease protowire.Number = 4
	fieldArg     protowire.Number = 5
)

// Argument field numbers.
const (
	argType  protowire.Number = 1
	argInt   protowire.Number = 2
	argFloat protowire.Number = 3
	argText  protowire.Number = 4
)

// Request is what a worker receives on stdin: the library to load and the
// call to make in it.
type Request struct {
	Call    *Descriptor
	Library string
}

// EncodeRequest serializes a request for a worker.
func EncodeRequest(library string, d *Descriptor) []byte {
	var b []byte
	b = wire.AppendString(b, fieldLibrary, library)
	b = wire.AppendString(b, fieldSymbol, d.symbol)
	b = wire.AppendVarint(b, fieldReturns, uint64(d.returns))
	if d.release != "" {
		b = wire.AppendString(b, fieldRelease, d.release)
	}
	for _, a := range d.args {
		b = wire.AppendBytes(b, fieldArg, encodeArg(a))
	}
	return b
}

func encodeArg(a Arg) []byte {
	var b []byte
	b = wire.AppendVarint(b, argType, uint64(a.Type))
	switch a.Type {
	case native.Int32:
		b = wire.AppendSint(b, argInt, int64(a.Int))
	case native.Double:
		b = wire.AppendFixed64(b, argFloat, math.Float64bits(a.Float))
	case native.Text:
		b = wire.AppendBytes(b, argText, a.Text)
	}
	return b
}

// DecodeRequest parses and re-validates a request. Any structural problem
// is a malformed request; a well-formed request carrying an argument its
// type cannot hold fails with that argument's own error kind.
func DecodeRequest(b []byte) (*Request, error) {
	fields, err := wire.Fields(b)
	if err != nil {
		return nil, errors.Malformed("request framing", err)
	}

	var (
		req                  Request
		symbol, release      string
		returns              native.Type
		haveSymbol, haveType bool
		args                 []Arg
	)
	for _, f := range fields {
		switch f.Num {
		case fieldLibrary:
			if err := f.Expect(protowire.BytesType); err != nil {
				return nil, errors.Malformed("library", err)
			}
			req.Library = string(f.Bytes)
		case fieldSymbol:
			if err := f.Expect(protowire.BytesType); err != nil {
				return nil, errors.Malformed("symbol", err)
			}
			symbol, haveSymbol = string(f.Bytes), true
		case fieldReturns:
			if err := f.Expect(protowire.VarintType); err != nil {
				return nil, errors.Malformed("return type", err)
			}
			if f.Varint > math.MaxUint8 || !native.Type(f.Varint).Valid() {
				return nil, errors.Malformed("unknown return type", nil)
			}
			returns, haveType = native.Type(f.Varint), true
		case fieldRelease:
			if err := f.Expect(protowire.BytesType); err != nil {
				return nil, errors.Malformed("release", err)
			}
			release = string(f.Bytes)
		case fieldArg:
			if err := f.Expect(protowire.BytesType); err != nil {
				return nil, errors.Malformed("argument", err)
			}
			a, err := decodeArg(f.Bytes)
			if err != nil {
				return nil, err
			}
			args = append(args, a)
		default:
			return nil, errors.New(errors.PhaseWorker, errors.KindMalformedRequest).
				Detail("unknown request field %d", f.Num).
				Build()
		}
	}

	if req.Library == "" {
		return nil, errors.Malformed("missing library", nil)
	}
	if !haveSymbol || !haveType {
		return nil, errors.Malformed("missing symbol or return type", nil)
	}

	d, err := fromArgs(symbol, release, returns, args)
	if err != nil {
		return nil, err
	}
	req.Call = d
	return &req, nil
}

func decodeArg(b []byte) (Arg, error) {
	fields, err := wire.Fields(b)
	if err != nil {
		return Arg{}, errors.Malformed("argument framing", err)
	}

	var (
		a        Arg
		haveType bool
	)
	for _, f := range fields {
		switch f.Num {
		case argType:
			if err := f.Expect(protowire.VarintType); err != nil {
				return Arg{}, errors.Malformed("argument type", err)
			}
			if f.Varint > math.MaxUint8 || !native.Type(f.Varint).Valid() {
				return Arg{}, errors.Malformed("unknown argument type", nil)
			}
			a.Type, haveType = native.Type(f.Varint), true
		case argInt:
			if err := f.Expect(protowire.VarintType); err != nil {
				return Arg{}, errors.Malformed("int argument", err)
			}
			v := f.Sint()
			if v < math.MinInt32 || v > math.MaxInt32 {
				return Arg{}, errors.Overflow(errors.PhaseWorker, nil, v, native.Int32.String())
			}
			a.Int = int32(v)
		case argFloat:
			if err := f.Expect(protowire.Fixed64Type); err != nil {
				return Arg{}, errors.Malformed("double argument", err)
			}
			a.Float = math.Float64frombits(f.Fixed64)
		case argText:
			if err := f.Expect(protowire.BytesType); err != nil {
				return Arg{}, errors.Malformed("text argument", err)
			}
			a.Text = append([]byte{}, f.Bytes...)
		default:
			return Arg{}, errors.New(errors.PhaseWorker, errors.KindMalformedRequest).
				Detail("unknown argument field %d", f.Num).
				Build()
		}
	}
	if !haveType {
		return Arg{}, errors.Malformed("argument without type", nil)
	}
	if a.Type == native.Text && a.Text == nil {
		a.Text = []byte{}
	}
	return a, nil
}
