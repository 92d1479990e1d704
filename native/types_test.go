package native

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	bridgeerrors "github.com/wippyai/tck-bridge/errors"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		tag  string
		want Type
	}{
		{"int32", Int32},
		{"double", Double},
		{"text", Text},
		{"out_int32_ptr", OutInt32Ptr},
		{"void", Void},
		{"ctypes.c_int", Int32},
		{"ctypes.c_char_p", Text},
		{"ctypes.POINTER(ctypes.c_int)", OutInt32Ptr},
		{"None", Void},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			got, err := Resolve(tt.tag)
			if err != nil {
				t.Fatalf("Resolve(%q) error: %v", tt.tag, err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %v, want %v", tt.tag, got, tt.want)
			}
		})
	}
}

func TestResolve_RejectsUnknown(t *testing.T) {
	for _, tag := range []string{
		"",
		"INT32",
		"ctypes.c_long",
		"__import__('os').system('id')",
		"ctypes.POINTER(ctypes.c_char_p)",
		" int32",
	} {
		t.Run(tag, func(t *testing.T) {
			_, err := Resolve(tag)
			if err == nil {
				t.Fatalf("Resolve(%q) should fail", tag)
			}
			if !errors.Is(err, &bridgeerrors.Error{Kind: bridgeerrors.KindUnknownType}) {
				t.Errorf("error kind = %v, want unknown_type", bridgeerrors.KindOf(err))
			}
		})
	}
}

func TestResolveAll_ReportsIndex(t *testing.T) {
	_, err := ResolveAll([]string{"text", "int32", "long double"})
	var be *bridgeerrors.Error
	if !errors.As(err, &be) {
		t.Fatalf("expected *errors.Error, got %v", err)
	}
	if len(be.Path) != 2 || be.Path[1] != "2" {
		t.Errorf("Path = %v, want [params 2]", be.Path)
	}
}

func TestType_Roles(t *testing.T) {
	if Void.IsParam() {
		t.Error("void must not be a parameter type")
	}
	if OutInt32Ptr.IsReturn() {
		t.Error("out_int32_ptr must not be a return type")
	}
	if !Text.LibraryOwned() || Int32.LibraryOwned() {
		t.Error("only text returns are library owned")
	}
	if Int32.Size() != 4 || Double.Size() != 8 {
		t.Errorf("sizes: int32=%d double=%d", Int32.Size(), Double.Size())
	}
}

func TestType_JSON(t *testing.T) {
	var got struct {
		Params  []Type `json:"params"`
		Returns Type   `json:"returns"`
	}
	if err := json.Unmarshal([]byte(`{"params":["text","ctypes.c_int"],"returns":"double"}`), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Params) != 2 || got.Params[0] != Text || got.Params[1] != Int32 || got.Returns != Double {
		t.Errorf("got %+v", got)
	}

	if err := json.Unmarshal([]byte(`{"returns":"float"}`), &got); err == nil {
		t.Error("unknown tag in JSON should fail")
	}

	b, err := json.Marshal(OutInt32Ptr)
	if err != nil || string(b) != `"out_int32_ptr"` {
		t.Errorf("marshal = %s, %v", b, err)
	}
}

func TestCoerceToInt32(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want int32
		fit  Fit
	}{
		{"int", 42, 42, FitOK},
		{"negative", int64(-7), -7, FitOK},
		{"json float", float64(3), 3, FitOK},
		{"json number", json.Number("-2147483648"), math.MinInt32, FitOK},
		{"max", int64(math.MaxInt32), math.MaxInt32, FitOK},
		{"above max", int64(math.MaxInt32) + 1, 0, FitOverflow},
		{"below min", int64(math.MinInt32) - 1, 0, FitOverflow},
		{"huge uint", uint64(math.MaxUint64), 0, FitOverflow},
		{"huge float", 1e20, 0, FitOverflow},
		{"inf", math.Inf(1), 0, FitOverflow},
		{"json number overflow", json.Number("99999999999"), 0, FitOverflow},
		{"fraction", 1.5, 0, FitMismatch},
		{"nan", math.NaN(), 0, FitMismatch},
		{"string", "12", 0, FitMismatch},
		{"bool", true, 0, FitMismatch},
		{"nil", nil, 0, FitMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, fit := CoerceToInt32(tt.in)
			if fit != tt.fit {
				t.Fatalf("fit = %v, want %v", fit, tt.fit)
			}
			if got != tt.want {
				t.Errorf("value = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCoerceToFloat64(t *testing.T) {
	if v, fit := CoerceToFloat64(int32(-3)); fit != FitOK || v != -3 {
		t.Errorf("int32: %v %v", v, fit)
	}
	if v, fit := CoerceToFloat64(json.Number("2.5e-3")); fit != FitOK || v != 2.5e-3 {
		t.Errorf("json.Number: %v %v", v, fit)
	}
	if _, fit := CoerceToFloat64(json.Number("1e400")); fit != FitOverflow {
		t.Errorf("1e400 fit = %v, want overflow", fit)
	}
	if _, fit := CoerceToFloat64("1.0"); fit != FitMismatch {
		t.Errorf("string fit = %v, want mismatch", fit)
	}
}

func TestValue_JSON(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"void", VoidValue, "null"},
		{"int", Value{Type: Int32, Int: -4}, "-4"},
		{"double", Value{Type: Double, Float: 0.5}, "0.5"},
		{"nan", Value{Type: Double, Float: math.NaN()}, `"NaN"`},
		{"text", Value{Type: Text, Str: "REACHABLE false"}, `"REACHABLE false"`},
		{"null text", Value{Type: Text, Null: true}, "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.v)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(b) != tt.want {
				t.Errorf("got %s, want %s", b, tt.want)
			}
		})
	}
}
