package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:      PhaseEncode,
				Kind:       KindTypeMismatch,
				Path:       []string{"args", "2"},
				GoType:     "string",
				NativeType: "int32",
				Detail:     "cannot convert",
			},
			contains: []string{"[encode]", "type_mismatch", "args.2", "string", "int32", "cannot convert"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseDecode,
				Kind:  KindResultParse,
			},
			contains: []string{"[decode]", "result_parse"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseLoad,
				Kind:   KindLibraryLoad,
				Detail: "load ./libtchecker.so",
				Cause:  errors.New("no such file"),
			},
			contains: []string{"[load]", "library_load", "libtchecker.so", "caused by", "no such file"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseSpawn,
		Kind:  KindSpawn,
		Cause: cause,
	}

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find cause through the chain")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseEncode,
		Kind:  KindOverflow,
		Path:  []string{"args", "0"},
	}

	if !err.Is(&Error{Phase: PhaseEncode, Kind: KindOverflow}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseDecode, Kind: KindOverflow}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseEncode, Kind: KindTypeMismatch}) {
		t.Error("Is should not match different kind")
	}
	if !errors.Is(err, &Error{Kind: KindOverflow}) {
		t.Error("empty target phase should match any phase")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseEncode, KindTypeMismatch).
		Path("args", "1").
		GoType("bool").
		NativeType("double").
		Value(true).
		Cause(cause).
		Detail("expected %s, got %s", "number", "bool").
		Build()

	if err.Phase != PhaseEncode {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseEncode)
	}
	if err.Kind != KindTypeMismatch {
		t.Errorf("Kind = %v, want %v", err.Kind, KindTypeMismatch)
	}
	if len(err.Path) != 2 || err.Path[0] != "args" || err.Path[1] != "1" {
		t.Errorf("Path = %v, want [args 1]", err.Path)
	}
	if err.GoType != "bool" || err.NativeType != "double" {
		t.Errorf("GoType=%v NativeType=%v", err.GoType, err.NativeType)
	}
	if err.Value != true {
		t.Errorf("Value = %v, want true", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected number, got bool" {
		t.Errorf("Detail = %q", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("UnknownType", func(t *testing.T) {
		err := UnknownType([]string{"params", "0"}, "ctypes.c_longlong")
		if err.Kind != KindUnknownType || err.Phase != PhaseResolve {
			t.Errorf("got %v/%v", err.Phase, err.Kind)
		}
		if !strings.Contains(err.Detail, "ctypes.c_longlong") {
			t.Errorf("Detail = %q, should name the tag", err.Detail)
		}
	})

	t.Run("InvalidUTF8", func(t *testing.T) {
		err := InvalidUTF8(PhaseEncode, []string{"args", "0"}, []byte{0xff, 0xfe})
		if err.Kind != KindInvalidUTF8 {
			t.Errorf("Kind = %v, want %v", err.Kind, KindInvalidUTF8)
		}
	})

	t.Run("Overflow", func(t *testing.T) {
		err := Overflow(PhaseEncode, []string{"args", "3"}, int64(1)<<40, "int32")
		if err.Kind != KindOverflow {
			t.Errorf("Kind = %v, want %v", err.Kind, KindOverflow)
		}
		if err.Value != int64(1)<<40 {
			t.Errorf("Value = %v", err.Value)
		}
	})

	t.Run("LibraryLoad", func(t *testing.T) {
		err := LibraryLoad("/opt/lib.so", errors.New("dlopen failed"))
		if err.Kind != KindLibraryLoad || err.Phase != PhaseLoad {
			t.Errorf("got %v/%v", err.Phase, err.Kind)
		}
	})

	t.Run("Malformed", func(t *testing.T) {
		err := Malformed("truncated request", nil)
		if err.Kind != KindMalformedRequest {
			t.Errorf("Kind = %v", err.Kind)
		}
	})

	t.Run("ResultParse", func(t *testing.T) {
		err := ResultParse("missing result frame", nil)
		if err.Kind != KindResultParse || err.Phase != PhaseDecode {
			t.Errorf("got %v/%v", err.Phase, err.Kind)
		}
	})
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"plain", errors.New("x"), ""},
		{"direct", &Error{Kind: KindTimedOut}, KindTimedOut},
		{"wrapped", fmt.Errorf("invoke: %w", &Error{Kind: KindCrashed}), KindCrashed},
		{"missing symbols", NewMissingSymbolsError("lib.so", []string{"tck_reach"}), KindLibraryLoad},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMissingSymbolsError(t *testing.T) {
	t.Run("lists symbols", func(t *testing.T) {
		err := NewMissingSymbolsError("./libtchecker.so", []string{"tck_reach", "free_string"})
		msg := err.Error()
		for _, s := range []string{"missing 2", "./libtchecker.so", "tck_reach", "free_string"} {
			if !strings.Contains(msg, s) {
				t.Errorf("message %q should contain %q", msg, s)
			}
		}
	})

	t.Run("empty", func(t *testing.T) {
		msg := NewMissingSymbolsError("lib.so", nil).Error()
		if !strings.Contains(msg, "no symbols specified") {
			t.Errorf("got %q", msg)
		}
	})

	t.Run("errors.Is", func(t *testing.T) {
		err := NewMissingSymbolsError("lib.so", []string{"f"})
		if !errors.Is(err, &MissingSymbolsError{}) {
			t.Error("errors.Is should match MissingSymbolsError")
		}
		if !errors.Is(err, &Error{Kind: KindLibraryLoad}) {
			t.Error("missing symbols should match library_load")
		}
	})
}

func TestDemangle(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"tck_reach", "tck_reach"},
		{"_ZN8tchecker3tck5reachE", "tchecker::tck::reach"},
		{"_ZN3foo", "foo"},
		{"_ZNxyz", "_ZNxyz"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := demangle(tt.input); got != tt.expected {
				t.Errorf("demangle(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
