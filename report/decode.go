package report

import (
	"fmt"
	"math"
	"slices"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/wippyai/tck-bridge/errors"
	"github.com/wippyai/tck-bridge/internal/wire"
	"github.com/wippyai/tck-bridge/native"
)

// Parse decodes raw without checking the result against a declared type.
// The framing is strict: version first, at most one output frame, then
// exactly one terminal frame as the last field.
func Parse(raw []byte) (*Report, error) {
	fields, err := wire.Fields(raw)
	if err != nil {
		return nil, errors.ResultParse("report framing", err)
	}
	if len(fields) == 0 {
		return nil, errors.ResultParse("empty report", nil)
	}

	r := &Report{}
	for i, f := range fields {
		if r.Result != nil || r.Fault != nil {
			return nil, errors.ResultParse(fmt.Sprintf("field %d after terminal frame", f.Num), nil)
		}

		switch f.Num {
		case fieldVersion:
			if i != 0 {
				return nil, errors.ResultParse("version frame out of order", nil)
			}
			if err := f.Expect(protowire.VarintType); err != nil {
				return nil, errors.ResultParse("version", err)
			}
			if f.Varint != Version {
				return nil, errors.ResultParse(fmt.Sprintf("unsupported report version %d", f.Varint), nil)
			}
			r.Version = f.Varint
		case fieldOutput:
			if i != 1 {
				return nil, errors.ResultParse("output frame out of order", nil)
			}
			if err := f.Expect(protowire.BytesType); err != nil {
				return nil, errors.ResultParse("output", err)
			}
			r.Output = append([]byte{}, f.Bytes...)
		case fieldResult:
			if r.Version == 0 {
				return nil, errors.ResultParse("result before version", nil)
			}
			if err := f.Expect(protowire.BytesType); err != nil {
				return nil, errors.ResultParse("result", err)
			}
			res, err := parseResult(f.Bytes)
			if err != nil {
				return nil, err
			}
			r.Result = res
		case fieldFault:
			if r.Version == 0 {
				return nil, errors.ResultParse("fault before version", nil)
			}
			if err := f.Expect(protowire.BytesType); err != nil {
				return nil, errors.ResultParse("fault", err)
			}
			ft, err := parseFault(f.Bytes)
			if err != nil {
				return nil, err
			}
			r.Fault = ft
		default:
			return nil, errors.ResultParse(fmt.Sprintf("unknown report field %d", f.Num), nil)
		}
	}

	if r.Result == nil && r.Fault == nil {
		return nil, errors.ResultParse("report has no terminal frame", nil)
	}
	if r.Output == nil {
		r.Output = []byte{}
	}
	return r, nil
}

// Decode parses raw and checks a result frame against the declared return
// type. A fault report decodes without error; the caller inspects Fault.
func Decode(raw []byte, returns native.Type) (*Report, error) {
	r, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if r.Result != nil && r.Result.Value.Type != returns {
		return nil, errors.New(errors.PhaseDecode, errors.KindResultParse).
			NativeType(returns.String()).
			Detail("result is %s, declared %s", r.Result.Value.Type, returns).
			Build()
	}
	return r, nil
}

// CheckOutSlots verifies the result carries exactly one value for each
// output parameter index, in order.
func (r *Report) CheckOutSlots(slots []int) error {
	if r.Result == nil {
		return nil
	}
	got := make([]int, len(r.Result.Out))
	for i, o := range r.Result.Out {
		got[i] = o.Index
	}
	if !slices.Equal(got, slots) {
		return errors.ResultParse(fmt.Sprintf("output parameters %v, declared %v", got, slots), nil)
	}
	return nil
}

func parseResult(b []byte) (*Result, error) {
	fields, err := wire.Fields(b)
	if err != nil {
		return nil, errors.ResultParse("result framing", err)
	}

	var (
		res      Result
		haveType bool
		haveText bool
	)
	for _, f := range fields {
		switch f.Num {
		case resultType:
			if err := f.Expect(protowire.VarintType); err != nil {
				return nil, errors.ResultParse("result type", err)
			}
			t := native.Type(f.Varint)
			if f.Varint > math.MaxUint8 || !t.IsReturn() {
				return nil, errors.ResultParse(fmt.Sprintf("result type %d", f.Varint), nil)
			}
			res.Value.Type, haveType = t, true
		case resultInt:
			if err := f.Expect(protowire.VarintType); err != nil {
				return nil, errors.ResultParse("int result", err)
			}
			v := f.Sint()
			if v < math.MinInt32 || v > math.MaxInt32 {
				return nil, errors.ResultParse(fmt.Sprintf("int result %d out of range", v), nil)
			}
			res.Value.Int = int32(v)
		case resultFloat:
			if err := f.Expect(protowire.Fixed64Type); err != nil {
				return nil, errors.ResultParse("double result", err)
			}
			res.Value.Float = math.Float64frombits(f.Fixed64)
		case resultText:
			if err := f.Expect(protowire.BytesType); err != nil {
				return nil, errors.ResultParse("text result", err)
			}
			res.Value.Str, haveText = string(f.Bytes), true
		case resultNull:
			if err := f.Expect(protowire.VarintType); err != nil {
				return nil, errors.ResultParse("null flag", err)
			}
			res.Value.Null = f.Varint != 0
		case resultOut:
			if err := f.Expect(protowire.BytesType); err != nil {
				return nil, errors.ResultParse("output parameter", err)
			}
			o, err := parseOut(f.Bytes)
			if err != nil {
				return nil, err
			}
			res.Out = append(res.Out, o)
		default:
			return nil, errors.ResultParse(fmt.Sprintf("unknown result field %d", f.Num), nil)
		}
	}

	if !haveType {
		return nil, errors.ResultParse("result without type", nil)
	}
	if res.Value.Null && (res.Value.Type != native.Text || haveText) {
		return nil, errors.ResultParse("null flag on non-pointer result", nil)
	}
	return &res, nil
}

func parseOut(b []byte) (OutValue, error) {
	fields, err := wire.Fields(b)
	if err != nil {
		return OutValue{}, errors.ResultParse("output parameter framing", err)
	}

	var o OutValue
	for _, f := range fields {
		switch f.Num {
		case outIndex:
			if err := f.Expect(protowire.VarintType); err != nil {
				return OutValue{}, errors.ResultParse("output index", err)
			}
			if f.Varint > math.MaxInt32 {
				return OutValue{}, errors.ResultParse("output index out of range", nil)
			}
			o.Index = int(f.Varint)
		case outValue:
			if err := f.Expect(protowire.VarintType); err != nil {
				return OutValue{}, errors.ResultParse("output value", err)
			}
			v := f.Sint()
			if v < math.MinInt32 || v > math.MaxInt32 {
				return OutValue{}, errors.ResultParse("output value out of range", nil)
			}
			o.Value = int32(v)
		default:
			return OutValue{}, errors.ResultParse(fmt.Sprintf("unknown output field %d", f.Num), nil)
		}
	}
	return o, nil
}

func parseFault(b []byte) (*Fault, error) {
	fields, err := wire.Fields(b)
	if err != nil {
		return nil, errors.ResultParse("fault framing", err)
	}

	var ft Fault
	for _, f := range fields {
		if err := f.Expect(protowire.BytesType); err != nil {
			return nil, errors.ResultParse("fault", err)
		}
		switch f.Num {
		case faultPhase:
			ft.Phase = errors.Phase(f.Bytes)
		case faultKind:
			ft.Kind = errors.Kind(f.Bytes)
		case faultDetail:
			ft.Detail = string(f.Bytes)
		default:
			return nil, errors.ResultParse(fmt.Sprintf("unknown fault field %d", f.Num), nil)
		}
	}
	if ft.Kind == "" {
		return nil, errors.ResultParse("fault without kind", nil)
	}
	return &ft, nil
}
