// Package call builds validated descriptions of native function calls.
//
// A Descriptor pairs an exported symbol with its declared parameter and
// return types and the already-encoded arguments. It is immutable once built:
// every argument has been checked against its declared type, so an invalid
// call is rejected before any worker process is spawned.
package call

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/wippyai/tck-bridge/errors"
	"github.com/wippyai/tck-bridge/native"
)

// Exported C symbols; anything else cannot name a function in the library.
var symbolPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Descriptor is an immutable, validated call description.
type Descriptor struct {
	symbol  string
	release string
	params  []native.Type
	args    []Arg
	returns native.Type
}

// Option configures a Descriptor at construction.
type Option func(*Descriptor)

// WithRelease names the library function that frees a returned text buffer.
// It is ignored unless the return type is library owned.
func WithRelease(symbol string) Option {
	return func(d *Descriptor) {
		d.release = symbol
	}
}

// New resolves the type tags and encodes args against them.
func New(symbol string, paramTags []string, returnTag string, args []any, opts ...Option) (*Descriptor, error) {
	params, err := native.ResolveAll(paramTags)
	if err != nil {
		return nil, err
	}
	returns, err := native.Resolve(returnTag)
	if err != nil {
		return nil, err
	}
	return NewTyped(symbol, params, returns, args, opts...)
}

// NewTyped is New for callers that already hold resolved types.
func NewTyped(symbol string, params []native.Type, returns native.Type, args []any, opts ...Option) (*Descriptor, error) {
	if len(args) != len(params) {
		return nil, errors.New(errors.PhaseEncode, errors.KindInvalidInput).
			Detail("%s declares %d parameters, got %d arguments", symbol, len(params), len(args)).
			Build()
	}

	encoded := make([]Arg, len(args))
	for i, v := range args {
		if !params[i].IsParam() {
			return nil, notParam(i, params[i])
		}
		a, err := encodeAt(argPath(i), v, params[i])
		if err != nil {
			return nil, err
		}
		encoded[i] = a
	}

	d := &Descriptor{
		symbol:  symbol,
		params:  append([]native.Type(nil), params...),
		args:    encoded,
		returns: returns,
	}
	for _, opt := range opts {
		opt(d)
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// fromArgs rebuilds a descriptor from wire arguments, re-checking each one.
func fromArgs(symbol, release string, returns native.Type, args []Arg) (*Descriptor, error) {
	d := &Descriptor{
		symbol:  symbol,
		release: release,
		params:  make([]native.Type, len(args)),
		args:    args,
		returns: returns,
	}
	for i, a := range args {
		if !a.Type.IsParam() {
			return nil, notParam(i, a.Type)
		}
		if err := a.check(argPath(i)); err != nil {
			return nil, err
		}
		d.params[i] = a.Type
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Descriptor) validate() error {
	if !symbolPattern.MatchString(d.symbol) {
		return errors.New(errors.PhaseEncode, errors.KindInvalidInput).
			Value(d.symbol).
			Detail("invalid symbol name %q", d.symbol).
			Build()
	}
	if !d.returns.IsReturn() {
		return errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
			Path("returns").
			NativeType(d.returns.String()).
			Detail("not a return type").
			Build()
	}
	if !d.returns.LibraryOwned() {
		d.release = ""
	}
	if d.release != "" && !symbolPattern.MatchString(d.release) {
		return errors.New(errors.PhaseEncode, errors.KindInvalidInput).
			Value(d.release).
			Detail("invalid release symbol name %q", d.release).
			Build()
	}
	return nil
}

func notParam(i int, t native.Type) error {
	return errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
		Path(argPath(i)...).
		NativeType(t.String()).
		Detail("not a parameter type").
		Build()
}

func (d *Descriptor) Symbol() string { return d.symbol }

// Release returns the release function name, or "" when the return value is
// not library owned or no release function was given.
func (d *Descriptor) Release() string { return d.release }

func (d *Descriptor) Returns() native.Type { return d.returns }

// Params returns a copy of the declared parameter types.
func (d *Descriptor) Params() []native.Type {
	return append([]native.Type(nil), d.params...)
}

// Args returns a deep copy of the encoded arguments.
func (d *Descriptor) Args() []Arg {
	out := make([]Arg, len(d.args))
	for i, a := range d.args {
		if a.Text != nil {
			a.Text = append([]byte{}, a.Text...)
		}
		out[i] = a
	}
	return out
}

// OutSlots returns the indices of the output parameters, in order.
func (d *Descriptor) OutSlots() []int {
	var out []int
	for i, t := range d.params {
		if t == native.OutInt32Ptr {
			out = append(out, i)
		}
	}
	return out
}

// String renders the call as a C-like prototype, e.g. "double frexp(double, out_int32_ptr)".
func (d *Descriptor) String() string {
	names := make([]string, len(d.params))
	for i, t := range d.params {
		names[i] = t.String()
	}
	return fmt.Sprintf("%s %s(%s)", d.returns, d.symbol, strings.Join(names, ", "))
}
