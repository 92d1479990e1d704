package native

import (
	"encoding/json"
	"math"
	"strconv"
)

// Value is a decoded native return value.
type Value struct {
	Str   string
	Float float64
	Int   int32
	Type  Type
	// Null is set for a Text return that was a NULL pointer.
	Null bool
}

// VoidValue is the result of a call declared to return void.
var VoidValue = Value{Type: Void}

// Interface returns v as a plain Go value: nil, int32, float64 or string.
func (v Value) Interface() any {
	switch v.Type {
	case Int32:
		return v.Int
	case Double:
		return v.Float
	case Text:
		if v.Null {
			return nil
		}
		return v.Str
	default:
		return nil
	}
}

// String formats v for logs and terminal output.
func (v Value) String() string {
	switch v.Type {
	case Int32:
		return strconv.FormatInt(int64(v.Int), 10)
	case Double:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case Text:
		if v.Null {
			return "NULL"
		}
		return strconv.Quote(v.Str)
	default:
		return "void"
	}
}

// MarshalJSON encodes v as its plain JSON form. Non-finite doubles have no
// JSON number form and are written as strings ("NaN", "+Inf", "-Inf").
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Type == Double && (math.IsNaN(v.Float) || math.IsInf(v.Float, 0)) {
		return json.Marshal(strconv.FormatFloat(v.Float, 'g', -1, 64))
	}
	return json.Marshal(v.Interface())
}
