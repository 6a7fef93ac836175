package mdsip

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/common"
)

// Value is a decoded answer. Exactly one of Ints, Floats, Complex or Text
// is set, depending on DType.
type Value struct {
	DType   DType
	Dims    []int32
	Ints    []int64
	Floats  []float64
	Complex []complex128
	Text    string
}

// Samples converts a numeric value to common.Samples.
func (v Value) Samples() (common.Samples, error) {
	switch {
	case v.Ints != nil:
		return common.IntSamples(v.Ints), nil
	case v.Floats != nil:
		return common.FloatSamples(v.Floats), nil
	case v.Complex != nil:
		return common.ComplexSamples(v.Complex), nil
	}
	return common.Samples{}, fmt.Errorf("%w: dtype %d is not numeric", ErrProtocol, v.DType)
}

// Int returns the first element of an integer value.
func (v Value) Int() (int64, error) {
	if len(v.Ints) == 0 {
		return 0, fmt.Errorf("%w: expected an integer, got dtype %d", ErrProtocol, v.DType)
	}
	return v.Ints[0], nil
}

// Float64s returns integer or float elements as float64.
func (v Value) Float64s() ([]float64, error) {
	if v.Floats != nil {
		return v.Floats, nil
	}
	if v.Ints != nil {
		out := make([]float64, len(v.Ints))
		for i, x := range v.Ints {
			out[i] = float64(x)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: expected real numbers, got dtype %d", ErrProtocol, v.DType)
}

func elementCount(m Message) int {
	if len(m.Dims) == 0 {
		if len(m.Body) == 0 {
			return 0
		}
		return 1
	}
	n := 1
	for _, d := range m.Dims {
		n *= int(d)
	}
	return n
}

func decodeValue(m Message) (Value, error) {
	v := Value{DType: m.DType, Dims: m.Dims}
	if m.DType == DTypeT {
		v.Text = string(m.Body)
		return v, nil
	}

	n := elementCount(m)
	size, ok := elementSize(m.DType)
	if !ok {
		return Value{}, fmt.Errorf("%w: unsupported dtype %d", ErrProtocol, m.DType)
	}
	if len(m.Body) != n*size {
		return Value{}, fmt.Errorf("%w: %d bytes for %d elements of dtype %d", ErrProtocol, len(m.Body), n, m.DType)
	}

	o, b := m.Order, m.Body
	switch m.DType {
	case DTypeBU, DTypeWU, DTypeLU, DTypeQU, DTypeB, DTypeW, DTypeL, DTypeQ:
		v.Ints = make([]int64, n)
		for i := range v.Ints {
			v.Ints[i] = decodeInt(m.DType, o, b[i*size:])
		}
	case DTypeF, DTypeFS:
		v.Floats = make([]float64, n)
		for i := range v.Floats {
			v.Floats[i] = float64(math.Float32frombits(o.Uint32(b[i*4:])))
		}
	case DTypeD, DTypeFT:
		v.Floats = make([]float64, n)
		for i := range v.Floats {
			v.Floats[i] = math.Float64frombits(o.Uint64(b[i*8:]))
		}
	case DTypeFC, DTypeFSC:
		v.Complex = make([]complex128, n)
		for i := range v.Complex {
			re := math.Float32frombits(o.Uint32(b[i*8:]))
			im := math.Float32frombits(o.Uint32(b[i*8+4:]))
			v.Complex[i] = complex(float64(re), float64(im))
		}
	case DTypeDC, DTypeFTC:
		v.Complex = make([]complex128, n)
		for i := range v.Complex {
			re := math.Float64frombits(o.Uint64(b[i*16:]))
			im := math.Float64frombits(o.Uint64(b[i*16+8:]))
			v.Complex[i] = complex(re, im)
		}
	}
	return v, nil
}

func elementSize(d DType) (int, bool) {
	switch d {
	case DTypeBU, DTypeB:
		return 1, true
	case DTypeWU, DTypeW:
		return 2, true
	case DTypeLU, DTypeL, DTypeF, DTypeFS:
		return 4, true
	case DTypeQU, DTypeQ, DTypeD, DTypeFT, DTypeFC, DTypeFSC:
		return 8, true
	case DTypeDC, DTypeFTC:
		return 16, true
	}
	return 0, false
}

func decodeInt(d DType, o binary.ByteOrder, b []byte) int64 {
	switch d {
	case DTypeBU:
		return int64(b[0])
	case DTypeB:
		return int64(int8(b[0]))
	case DTypeWU:
		return int64(o.Uint16(b))
	case DTypeW:
		return int64(int16(o.Uint16(b)))
	case DTypeLU:
		return int64(o.Uint32(b))
	case DTypeL:
		return int64(int32(o.Uint32(b)))
	case DTypeQU:
		return int64(o.Uint64(b))
	default:
		return int64(o.Uint64(b))
	}
}

// encodeArg turns a Go value into an argument message body.
func encodeArg(arg any, o binary.ByteOrder) (Message, error) {
	switch a := arg.(type) {
	case string:
		return Message{DType: DTypeT, Length: int16(len(a)), Body: []byte(a)}, nil
	case int32:
		b := make([]byte, 4)
		o.PutUint32(b, uint32(a))
		return Message{DType: DTypeL, Length: 4, Body: b}, nil
	case int:
		return encodeArg(int64(a), o)
	case int64:
		b := make([]byte, 8)
		o.PutUint64(b, uint64(a))
		return Message{DType: DTypeQ, Length: 8, Body: b}, nil
	case float64:
		b := make([]byte, 8)
		o.PutUint64(b, math.Float64bits(a))
		return Message{DType: DTypeFT, Length: 8, Body: b}, nil
	case []float64:
		b := make([]byte, 8*len(a))
		for i, x := range a {
			o.PutUint64(b[i*8:], math.Float64bits(x))
		}
		return Message{DType: DTypeFT, Length: 8, Dims: []int32{int32(len(a))}, Body: b}, nil
	}
	return Message{}, fmt.Errorf("%w: cannot send argument of type %T", ErrProtocol, arg)
}
