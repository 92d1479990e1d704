//go:build cgo && !noffi && (linux || darwin)

// Package ffi binds and calls functions in a shared library through libffi.
// Every argument, slot and return buffer lives on the C heap, so a prepared
// call holds no Go pointers while native code runs.
package ffi

/*
#cgo linux LDFLAGS: -ldl
#cgo pkg-config: libffi
#include <ffi.h>
#include <dlfcn.h>
#include <stdint.h>
#include <stdio.h>
#include <stdlib.h>

static void* tb_dlopen(const char* path) {
	return dlopen(path, RTLD_NOW | RTLD_LOCAL);
}

static const char* tb_dlerror(void) {
	return dlerror();
}

// Clear dlerror, call dlsym, and return the error (if any) alongside the symbol.
static void* tb_dlsym_clear(void* h, const char* name, char** err) {
	dlerror();
	void* p = dlsym(h, name);
	char* e = dlerror();
	if (e) { if (err) *err = e; return NULL; }
	if (err) *err = NULL;
	return p;
}

static ffi_type* tb_type(int t) {
	switch (t) {
	case 0: return &ffi_type_void;
	case 1: return &ffi_type_sint32;
	case 2: return &ffi_type_double;
	default: return &ffi_type_pointer;
	}
}

static int tb_prep(ffi_cif* cif, unsigned int n, int rtype, ffi_type** atypes, const int* kinds) {
	for (unsigned int i = 0; i < n; i++) {
		atypes[i] = tb_type(kinds[i]);
	}
	return ffi_prep_cif(cif, FFI_DEFAULT_ABI, n, tb_type(rtype), atypes);
}

static void tb_call(ffi_cif* cif, void* fn, void* rvalue, void** avalue) {
	ffi_call(cif, (void (*)(void))fn, rvalue, avalue);
}

static void tb_flush(void) {
	fflush(NULL);
}

typedef void (*tb_release_fn)(void*);
static void tb_release(void* fn, void* p) {
	((tb_release_fn)fn)(p);
}

static int32_t tb_ret_int32(void* rvalue) {
	return (int32_t)(*(ffi_sarg*)rvalue);
}
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/wippyai/tck-bridge/call"
	"github.com/wippyai/tck-bridge/errors"
	"github.com/wippyai/tck-bridge/native"
	"github.com/wippyai/tck-bridge/report"
)

// Width of one argument slot; large enough for a double or a pointer.
const slotSize = 8

// Return buffer; libffi widens small integer returns to ffi_arg.
const retSize = 16

// Supported reports whether this build can make native calls.
func Supported() bool { return true }

// Library is a dlopen handle.
type Library struct {
	handle unsafe.Pointer
	path   string
}

// Open loads the shared library at path with all symbols bound immediately.
func Open(path string) (*Library, error) {
	cs := C.CString(path)
	defer C.free(unsafe.Pointer(cs))

	h := C.tb_dlopen(cs)
	if h == nil {
		return nil, errors.LibraryLoad(path, fmt.Errorf("dlopen: %s", dlerr()))
	}
	return &Library{handle: h, path: path}, nil
}

// Lookup resolves every name, reporting all of the missing ones together.
func (l *Library) Lookup(names ...string) ([]unsafe.Pointer, error) {
	ptrs := make([]unsafe.Pointer, len(names))
	var missing []string
	for i, name := range names {
		cs := C.CString(name)
		var cerr *C.char
		p := C.tb_dlsym_clear(l.handle, cs, &cerr)
		C.free(unsafe.Pointer(cs))
		if cerr != nil || p == nil {
			missing = append(missing, name)
			continue
		}
		ptrs[i] = p
	}
	if len(missing) > 0 {
		return nil, errors.NewMissingSymbolsError(l.path, missing)
	}
	return ptrs, nil
}

func dlerr() string {
	if e := C.tb_dlerror(); e != nil {
		return C.GoString(e)
	}
	return "unknown dlerror"
}

// Call is a prepared invocation. Free releases its C storage.
type Call struct {
	fn      unsafe.Pointer
	cif     *C.ffi_cif
	atypes  unsafe.Pointer
	avalues unsafe.Pointer
	slots   unsafe.Pointer
	outs    unsafe.Pointer
	ret     unsafe.Pointer
	texts   []unsafe.Pointer
	args    []call.Arg
	returns native.Type
}

// Prepare lays the arguments out in C memory and builds the call interface
// from the declared types alone.
func Prepare(fn unsafe.Pointer, returns native.Type, args []call.Arg) (*Call, error) {
	n := len(args)
	c := &Call{
		fn:      fn,
		args:    args,
		returns: returns,
		cif:     (*C.ffi_cif)(C.calloc(1, C.size_t(unsafe.Sizeof(C.ffi_cif{})))),
		atypes:  C.calloc(C.size_t(n+1), C.size_t(unsafe.Sizeof(uintptr(0)))),
		avalues: C.calloc(C.size_t(n+1), C.size_t(unsafe.Sizeof(uintptr(0)))),
		slots:   C.calloc(C.size_t(n+1), slotSize),
		outs:    C.calloc(C.size_t(n+1), 4),
		ret:     C.calloc(1, retSize),
	}
	kinds := (*C.int)(C.calloc(C.size_t(n+1), C.size_t(unsafe.Sizeof(C.int(0)))))
	defer C.free(unsafe.Pointer(kinds))

	for i, a := range args {
		slot := unsafe.Add(c.slots, i*slotSize)
		switch a.Type {
		case native.Int32:
			*(*C.int32_t)(slot) = C.int32_t(a.Int)
		case native.Double:
			*(*C.double)(slot) = C.double(a.Float)
		case native.Text:
			cs := unsafe.Pointer(C.CString(string(a.Text)))
			c.texts = append(c.texts, cs)
			*(*unsafe.Pointer)(slot) = cs
		case native.OutInt32Ptr:
			*(*unsafe.Pointer)(slot) = unsafe.Add(c.outs, i*4)
		default:
			c.Free()
			return nil, errors.New(errors.PhaseBind, errors.KindTypeMismatch).
				Path("args", fmt.Sprint(i)).
				NativeType(a.Type.String()).
				Detail("not a parameter type").
				Build()
		}
		*(*unsafe.Pointer)(unsafe.Add(c.avalues, i*int(unsafe.Sizeof(uintptr(0))))) = slot
		*(*C.int)(unsafe.Add(unsafe.Pointer(kinds), i*int(unsafe.Sizeof(C.int(0))))) = C.int(a.Type)
	}

	st := C.tb_prep(c.cif, C.uint(n), C.int(returns), (**C.ffi_type)(c.atypes), kinds)
	if st != C.FFI_OK {
		c.Free()
		return nil, errors.New(errors.PhaseBind, errors.KindUnsupported).
			Detail("ffi_prep_cif failed: %d", int(st)).
			Build()
	}
	return c, nil
}

// Invoke runs the native function and flushes C stdio so everything it
// printed reaches file descriptor 1 before the caller restores it.
func (c *Call) Invoke() {
	C.tb_call(c.cif, c.fn, c.ret, (*unsafe.Pointer)(c.avalues))
	C.tb_flush()
}

// Result decodes the return buffer. A library-owned text return is copied
// and then handed to release, when one is given.
func (c *Call) Result(release unsafe.Pointer) native.Value {
	switch c.returns {
	case native.Int32:
		return native.Value{Type: native.Int32, Int: int32(C.tb_ret_int32(c.ret))}
	case native.Double:
		return native.Value{Type: native.Double, Float: float64(*(*C.double)(c.ret))}
	case native.Text:
		p := *(*unsafe.Pointer)(c.ret)
		if p == nil {
			return native.Value{Type: native.Text, Null: true}
		}
		s := C.GoString((*C.char)(p))
		if release != nil {
			C.tb_release(release, p)
		}
		return native.Value{Type: native.Text, Str: s}
	}
	return native.VoidValue
}

// Out reads back every output slot, in parameter order.
func (c *Call) Out() []report.OutValue {
	var out []report.OutValue
	for i, a := range c.args {
		if a.Type != native.OutInt32Ptr {
			continue
		}
		v := *(*C.int32_t)(unsafe.Add(c.outs, i*4))
		out = append(out, report.OutValue{Index: i, Value: int32(v)})
	}
	return out
}

// Free releases all C memory owned by the call. Safe to call more than once.
func (c *Call) Free() {
	for _, p := range c.texts {
		C.free(p)
	}
	c.texts = nil
	for _, p := range []*unsafe.Pointer{&c.atypes, &c.avalues, &c.slots, &c.outs, &c.ret} {
		if *p != nil {
			C.free(*p)
			*p = nil
		}
	}
	if c.cif != nil {
		C.free(unsafe.Pointer(c.cif))
		c.cif = nil
	}
}
