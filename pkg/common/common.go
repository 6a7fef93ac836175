package common

import "fmt"

// DType is the numeric element type of a sample array. The ordering matters:
// a larger value can represent every value of a smaller one.
type DType int

const (
	DTypeInt DType = iota
	DTypeFloat
	DTypeComplex
)

func (d DType) String() string {
	switch d {
	case DTypeInt:
		return "int"
	case DTypeFloat:
		return "float"
	case DTypeComplex:
		return "complex"
	default:
		return fmt.Sprintf("dtype(%d)", int(d))
	}
}

// ParseDType is the inverse of DType.String.
func ParseDType(s string) (DType, error) {
	switch s {
	case "int":
		return DTypeInt, nil
	case "float":
		return DTypeFloat, nil
	case "complex":
		return DTypeComplex, nil
	}
	return 0, fmt.Errorf("%w: unknown dtype %q", ErrFormat, s)
}

// Promote returns the smallest dtype able to hold values of both a and b.
func Promote(a, b DType) DType {
	if b > a {
		return b
	}
	return a
}

// Samples is a one-dimensional typed sample array. Exactly one of the value
// slices is in use, selected by DType.
type Samples struct {
	DType   DType
	Ints    []int64
	Floats  []float64
	Complex []complex128
}

// IntSamples wraps v without copying.
func IntSamples(v []int64) Samples {
	return Samples{DType: DTypeInt, Ints: v}
}

// FloatSamples wraps v without copying.
func FloatSamples(v []float64) Samples {
	return Samples{DType: DTypeFloat, Floats: v}
}

// ComplexSamples wraps v without copying.
func ComplexSamples(v []complex128) Samples {
	return Samples{DType: DTypeComplex, Complex: v}
}

// Len returns the number of samples.
func (s Samples) Len() int {
	switch s.DType {
	case DTypeInt:
		return len(s.Ints)
	case DTypeFloat:
		return len(s.Floats)
	default:
		return len(s.Complex)
	}
}

// Float64s returns the samples as float64. The imaginary part of complex
// samples is dropped.
func (s Samples) Float64s() []float64 {
	switch s.DType {
	case DTypeFloat:
		return s.Floats
	case DTypeInt:
		out := make([]float64, len(s.Ints))
		for i, v := range s.Ints {
			out[i] = float64(v)
		}
		return out
	default:
		out := make([]float64, len(s.Complex))
		for i, v := range s.Complex {
			out[i] = real(v)
		}
		return out
	}
}

// Complex128s returns the samples as complex128.
func (s Samples) Complex128s() []complex128 {
	switch s.DType {
	case DTypeComplex:
		return s.Complex
	case DTypeFloat:
		out := make([]complex128, len(s.Floats))
		for i, v := range s.Floats {
			out[i] = complex(v, 0)
		}
		return out
	default:
		out := make([]complex128, len(s.Ints))
		for i, v := range s.Ints {
			out[i] = complex(float64(v), 0)
		}
		return out
	}
}

// Cast converts the samples to dtype d. Casting to a smaller dtype truncates
// (complex to float drops the imaginary part, float to int rounds toward zero).
func (s Samples) Cast(d DType) Samples {
	if s.DType == d {
		return s
	}
	switch d {
	case DTypeComplex:
		return ComplexSamples(s.Complex128s())
	case DTypeFloat:
		return FloatSamples(s.Float64s())
	default:
		f := s.Float64s()
		out := make([]int64, len(f))
		for i, v := range f {
			out[i] = int64(v)
		}
		return IntSamples(out)
	}
}

// Slice returns samples [lo, hi). The result shares storage with s.
func (s Samples) Slice(lo, hi int) Samples {
	switch s.DType {
	case DTypeInt:
		return IntSamples(s.Ints[lo:hi])
	case DTypeFloat:
		return FloatSamples(s.Floats[lo:hi])
	default:
		return ComplexSamples(s.Complex[lo:hi])
	}
}

// Make allocates n zero samples of dtype d.
func Make(d DType, n int) Samples {
	switch d {
	case DTypeInt:
		return IntSamples(make([]int64, n))
	case DTypeFloat:
		return FloatSamples(make([]float64, n))
	default:
		return ComplexSamples(make([]complex128, n))
	}
}

// Set copies element j of src (which must have the same dtype) into index i.
func (s Samples) Set(i int, src Samples, j int) {
	switch s.DType {
	case DTypeInt:
		s.Ints[i] = src.Ints[j]
	case DTypeFloat:
		s.Floats[i] = src.Floats[j]
	default:
		s.Complex[i] = src.Complex[j]
	}
}

// TimeBase describes an equidistant sampling grid.
type TimeBase struct {
	Start float64 `json:"start"`
	Step  float64 `json:"step"`
	End   float64 `json:"end"`
}

// NodeSample is the raw content of one archive node: its samples and the
// time base they were recorded on. Values are never mutated after creation.
type NodeSample struct {
	Values Samples
	Time   TimeBase
}
