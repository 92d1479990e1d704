package native

import (
	"encoding/json"
	"math"
	"strconv"
)

// Coercion outcome for a single value.
type Fit uint8

const (
	FitOK       Fit = iota // converted exactly
	FitMismatch            // not a number of the required shape
	FitOverflow            // a number, but outside the target range
)

// CoerceToInt32 handles JSON decoded numbers (float64, json.Number) and every
// Go integer type. Integral values outside int32 report FitOverflow; values
// that are not integers at all report FitMismatch.
func CoerceToInt32(value any) (int32, Fit) {
	switch v := value.(type) {
	case int32:
		return v, FitOK
	case int8:
		return int32(v), FitOK
	case int16:
		return int32(v), FitOK
	case uint8:
		return int32(v), FitOK
	case uint16:
		return int32(v), FitOK
	case int:
		return int64ToInt32(int64(v))
	case int64:
		return int64ToInt32(v)
	case uint:
		return uint64ToInt32(uint64(v))
	case uint32:
		return uint64ToInt32(uint64(v))
	case uint64:
		return uint64ToInt32(v)
	case float32:
		return floatToInt32(float64(v))
	case float64:
		return floatToInt32(v)
	case json.Number:
		if i, err := strconv.ParseInt(string(v), 10, 64); err == nil {
			return int64ToInt32(i)
		}
		f, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			// ParseFloat reports ErrRange for integers too large for float64
			if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
				return 0, FitOverflow
			}
			return 0, FitMismatch
		}
		return floatToInt32(f)
	}
	return 0, FitMismatch
}

// CoerceToFloat64 accepts any Go number or json.Number.
func CoerceToFloat64(value any) (float64, Fit) {
	switch v := value.(type) {
	case float64:
		return v, FitOK
	case float32:
		return float64(v), FitOK
	case int:
		return float64(v), FitOK
	case int8:
		return float64(v), FitOK
	case int16:
		return float64(v), FitOK
	case int32:
		return float64(v), FitOK
	case int64:
		return float64(v), FitOK
	case uint:
		return float64(v), FitOK
	case uint8:
		return float64(v), FitOK
	case uint16:
		return float64(v), FitOK
	case uint32:
		return float64(v), FitOK
	case uint64:
		return float64(v), FitOK
	case json.Number:
		f, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
				return 0, FitOverflow
			}
			return 0, FitMismatch
		}
		return f, FitOK
	}
	return 0, FitMismatch
}

func int64ToInt32(v int64) (int32, Fit) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, FitOverflow
	}
	return int32(v), FitOK
}

func uint64ToInt32(v uint64) (int32, Fit) {
	if v > math.MaxInt32 {
		return 0, FitOverflow
	}
	return int32(v), FitOK
}

func floatToInt32(v float64) (int32, Fit) {
	if math.IsNaN(v) || v != math.Trunc(v) {
		return 0, FitMismatch
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, FitOverflow
	}
	return int32(v), FitOK
}
