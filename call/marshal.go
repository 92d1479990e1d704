package call

import (
	"bytes"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/wippyai/tck-bridge/errors"
	"github.com/wippyai/tck-bridge/native"
)

// Arg is one argument already encoded for its native type. Only the field
// matching Type is meaningful.
type Arg struct {
	Text  []byte
	Float float64
	Int   int32
	Type  native.Type
}

// Encode converts value to the representation of t. Text is kept as
// explicit-length UTF-8 bytes; the worker adds the terminator when it copies
// them to native memory.
func Encode(value any, t native.Type) (Arg, error) {
	return encodeAt(nil, value, t)
}

func encodeAt(path []string, value any, t native.Type) (Arg, error) {
	switch t {
	case native.Int32:
		v, fit := native.CoerceToInt32(value)
		switch fit {
		case native.FitOverflow:
			return Arg{}, errors.Overflow(errors.PhaseEncode, path, value, t.String())
		case native.FitMismatch:
			return Arg{}, errors.TypeMismatch(errors.PhaseEncode, path, goTypeName(value), t.String())
		}
		return Arg{Type: t, Int: v}, nil

	case native.Double:
		v, fit := native.CoerceToFloat64(value)
		switch fit {
		case native.FitOverflow:
			return Arg{}, errors.Overflow(errors.PhaseEncode, path, value, t.String())
		case native.FitMismatch:
			return Arg{}, errors.TypeMismatch(errors.PhaseEncode, path, goTypeName(value), t.String())
		}
		return Arg{Type: t, Float: v}, nil

	case native.Text:
		var b []byte
		switch v := value.(type) {
		case string:
			b = []byte(v)
		case []byte:
			b = bytes.Clone(v)
		default:
			return Arg{}, errors.TypeMismatch(errors.PhaseEncode, path, goTypeName(value), t.String())
		}
		if err := checkText(path, b); err != nil {
			return Arg{}, err
		}
		if b == nil {
			b = []byte{}
		}
		return Arg{Type: t, Text: b}, nil

	case native.OutInt32Ptr:
		if value != nil {
			return Arg{}, errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
				Path(path...).
				GoType(goTypeName(value)).
				NativeType(t.String()).
				Detail("output slots are allocated by the worker; pass null").
				Build()
		}
		return Arg{Type: t}, nil
	}

	return Arg{}, errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
		Path(path...).
		NativeType(t.String()).
		Detail("not a parameter type").
		Build()
}

// checkText rejects bytes a C string cannot carry faithfully.
func checkText(path []string, b []byte) error {
	if !utf8.Valid(b) {
		return errors.InvalidUTF8(errors.PhaseEncode, path, b)
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
			Path(path...).
			NativeType(native.Text.String()).
			Detail("NUL byte at offset %d would truncate the native string", i).
			Build()
	}
	return nil
}

// check validates an already-encoded argument, as received over the wire.
func (a Arg) check(path []string) error {
	switch a.Type {
	case native.Int32, native.Double, native.OutInt32Ptr:
		return nil
	case native.Text:
		return checkText(path, a.Text)
	}
	return errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
		Path(path...).
		NativeType(a.Type.String()).
		Detail("not a parameter type").
		Build()
}

func argPath(i int) []string {
	return []string{"args", strconv.Itoa(i)}
}

func goTypeName(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}
