// Package native is the closed registry of ABI kinds the bridge can pass
// across the native call boundary.
//
// Type tags arriving as data are resolved through a fixed table. Nothing in
// this package interprets a tag beyond an exact lookup.
package native

import (
	"strconv"

	"github.com/wippyai/tck-bridge/errors"
)

type Type uint8

const (
	Void Type = iota
	Int32
	Double
	Text
	OutInt32Ptr
)

var typeNames = [...]string{
	Void:        "void",
	Int32:       "int32",
	Double:      "double",
	Text:        "text",
	OutInt32Ptr: "out_int32_ptr",
}

// tags maps every accepted tag to its Type. The ctypes spellings are the
// literal strings older clients send; they are keys, never expressions.
var tags = map[string]Type{
	"void":          Void,
	"int32":         Int32,
	"double":        Double,
	"text":          Text,
	"out_int32_ptr": OutInt32Ptr,

	"None":                         Void,
	"ctypes.c_int":                 Int32,
	"ctypes.c_int32":               Int32,
	"ctypes.c_double":              Double,
	"ctypes.c_char_p":              Text,
	"ctypes.POINTER(ctypes.c_int)": OutInt32Ptr,
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "unknown(" + strconv.Itoa(int(t)) + ")"
}

// Valid reports whether t is one of the registry's types.
func (t Type) Valid() bool {
	return int(t) < len(typeNames)
}

// IsParam reports whether t may appear in a parameter list.
func (t Type) IsParam() bool {
	return t == Int32 || t == Double || t == Text || t == OutInt32Ptr
}

// IsReturn reports whether t may be a return type.
func (t Type) IsReturn() bool {
	return t == Void || t == Int32 || t == Double || t == Text
}

// LibraryOwned reports whether a value of this type returned by the native
// library points at memory the library allocated and must release.
func (t Type) LibraryOwned() bool {
	return t == Text
}

// Size is the width in bytes of the native slot for t.
// Pointer-shaped types report the pointer width of a 64-bit target.
func (t Type) Size() int {
	switch t {
	case Int32:
		return 4
	case Double, Text, OutInt32Ptr:
		return 8
	default:
		return 0
	}
}

// MarshalText encodes t as its canonical tag.
func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, errors.Unsupported(errors.PhaseResolve, "marshal "+t.String())
	}
	return []byte(typeNames[t]), nil
}

// UnmarshalText resolves a tag through the registry.
func (t *Type) UnmarshalText(b []byte) error {
	v, err := Resolve(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Resolve looks tag up in the closed registry.
func Resolve(tag string) (Type, error) {
	if t, ok := tags[tag]; ok {
		return t, nil
	}
	return 0, errors.UnknownType(nil, tag)
}

// ResolveAll resolves a parameter tag list, reporting the index of the
// first unknown tag.
func ResolveAll(list []string) ([]Type, error) {
	out := make([]Type, len(list))
	for i, tag := range list {
		t, ok := tags[tag]
		if !ok {
			return nil, errors.UnknownType([]string{"params", strconv.Itoa(i)}, tag)
		}
		out[i] = t
	}
	return out, nil
}

// Tags returns the canonical tag of every registry type.
func Tags() []string {
	out := make([]string, len(typeNames))
	copy(out, typeNames[:])
	return out
}
