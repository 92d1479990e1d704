//go:build unix

package invoke

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/wippyai/tck-bridge/internal/testlib"
	"github.com/wippyai/tck-bridge/native"
	"github.com/wippyai/tck-bridge/worker"
)

// nativeInvoker runs the real worker against a system library.
func nativeInvoker(t *testing.T, library string, opts ...Option) *Invoker {
	t.Helper()
	if !worker.Supported() {
		t.Skip("native calls not supported in this build")
	}
	return fakeInvoker(t, "real", append([]Option{func(iv *Invoker) { iv.library = library }}, opts...)...)
}

func skipUnloadable(t *testing.T, out *Outcome) {
	t.Helper()
	if out.Status == StatusLibraryLoad && out.Err != nil && strings.Contains(out.Err.Error(), "dlopen") {
		t.Skipf("library not loadable here: %v", out.Err)
	}
}

func TestNative_PutsOutputCaptured(t *testing.T) {
	iv := nativeInvoker(t, testlib.Libc(t))
	out, err := iv.Call(context.Background(), "puts", []string{"ctypes.c_char_p"}, "ctypes.c_int", []any{"REACHABLE true"})
	skipUnloadable(t, out)
	if err != nil {
		t.Fatalf("puts: %v (stderr %q)", err, out.Stderr)
	}
	if string(out.Output) != "REACHABLE true\n" {
		t.Errorf("Output = %q", out.Output)
	}
	if out.Value.Int < 0 {
		t.Errorf("puts returned %d", out.Value.Int)
	}
}

func TestNative_OutParameter(t *testing.T) {
	iv := nativeInvoker(t, testlib.Libm(t))
	out, err := iv.Call(context.Background(), "frexp", []string{"double", "out_int32_ptr"}, "double", []any{8.0, nil})
	skipUnloadable(t, out)
	if err != nil {
		t.Fatalf("frexp: %v", err)
	}
	if out.Value.Float != 0.5 {
		t.Errorf("mantissa = %v", out.Value.Float)
	}
	if exp, ok := out.OutParam(1); !ok || exp != 4 {
		t.Errorf("exponent = %d, %v", exp, ok)
	}
}

func TestNative_TextReturnWithRelease(t *testing.T) {
	iv := nativeInvoker(t, testlib.Libc(t), WithRelease("free"))
	out, err := iv.Call(context.Background(), "strdup", []string{"text"}, "text", []any{"tchecker"})
	skipUnloadable(t, out)
	if err != nil {
		t.Fatalf("strdup: %v", err)
	}
	if out.Value.Str != "tchecker" {
		t.Errorf("Value = %v", out.Value)
	}
}

func TestNative_NonASCIIRoundTrip(t *testing.T) {
	iv := nativeInvoker(t, testlib.Libc(t), WithRelease("free"))
	for _, text := range []string{"héllo 日本 ✓", "λx. x", "système:ad94 ∀"} {
		out, err := iv.Call(context.Background(), "strdup", []string{"text"}, "text", []any{text})
		skipUnloadable(t, out)
		if err != nil {
			t.Fatalf("strdup(%q): %v", text, err)
		}
		if out.Value.Str != text {
			t.Errorf("strdup(%q) = %q", text, out.Value.Str)
		}
		if len(out.Output) != 0 {
			t.Errorf("strdup(%q) wrote %q", text, out.Output)
		}
	}
}

func TestNative_OutputKeepsNewlines(t *testing.T) {
	iv := nativeInvoker(t, testlib.Libc(t))
	tests := []struct {
		arg  string
		want string
	}{
		{"line1\nλ line2\n\nlast", "line1\nλ line2\n\nlast\n"},
		{"", "\n"},
		{"42", "42\n"},
	}
	for _, tt := range tests {
		out, err := iv.Call(context.Background(), "puts", []string{"text"}, "int32", []any{tt.arg})
		skipUnloadable(t, out)
		if err != nil {
			t.Fatalf("puts(%q): %v", tt.arg, err)
		}
		if string(out.Output) != tt.want {
			t.Errorf("puts(%q) Output = %q, want %q", tt.arg, out.Output, tt.want)
		}
		if out.Value.Type != native.Int32 || out.Value.Int < 0 {
			t.Errorf("puts(%q) Value = %v", tt.arg, out.Value)
		}
	}

	out, err := iv.Call(context.Background(), "abs", []string{"int32"}, "int32", []any{-3})
	skipUnloadable(t, out)
	if err != nil {
		t.Fatalf("abs: %v", err)
	}
	if len(out.Output) != 0 {
		t.Errorf("abs Output = %q, want empty", out.Output)
	}
	if out.Value.Int != 3 {
		t.Errorf("abs Value = %v", out.Value)
	}
}

func TestNative_AbortIsCrash(t *testing.T) {
	iv := nativeInvoker(t, testlib.Libc(t))
	out, err := iv.Call(context.Background(), "abort", nil, "void", nil)
	skipUnloadable(t, out)
	if out.Status != StatusCrashed {
		t.Fatalf("status = %s, err = %v", out.Status, err)
	}

	next, err := iv.Call(context.Background(), "abs", []string{"int32"}, "int32", []any{-9})
	if err != nil || next.Value.Int != 9 {
		t.Errorf("call after crash: %v %v", next.Value, err)
	}
}

func TestNative_SleepTimesOut(t *testing.T) {
	iv := nativeInvoker(t, testlib.Libc(t))
	out, err := iv.Call(context.Background(), "sleep", []string{"int32"}, "int32", []any{30}, Timeout(500*time.Millisecond))
	skipUnloadable(t, out)
	if out.Status != StatusTimedOut {
		t.Fatalf("status = %s, err = %v", out.Status, err)
	}
	if out.Duration > 10*time.Second {
		t.Errorf("Duration = %s", out.Duration)
	}
}

func TestNative_MissingLibrary(t *testing.T) {
	iv := nativeInvoker(t, "/nonexistent/libtchecker.so")
	out, err := iv.Call(context.Background(), "tck_reach", []string{"text"}, "text", []any{"m"})
	if out.Status != StatusLibraryLoad || err == nil {
		t.Errorf("status = %s err = %v", out.Status, err)
	}
	if out.Status.Retryable() {
		t.Error("library_load_error should not be retryable")
	}
}

func TestNative_MissingSymbol(t *testing.T) {
	iv := nativeInvoker(t, testlib.Libc(t))
	out, err := iv.Call(context.Background(), "tck_reach", []string{"text"}, "text", []any{"m"})
	skipUnloadable(t, out)
	if out.Status != StatusLibraryLoad || !strings.Contains(err.Error(), "tck_reach") {
		t.Errorf("status = %s err = %v", out.Status, err)
	}
}
