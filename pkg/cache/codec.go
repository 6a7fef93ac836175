package cache

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/common"
)

// record is the on-disk layout of one cached node. Valid must be true for
// the record to be accepted; files written by anything else decode with
// Valid == false.
type record struct {
	Valid bool      `cbor:"valid"`
	DType string    `cbor:"dtype"`
	Ints  []int64   `cbor:"ints,omitempty"`
	Real  []float64 `cbor:"real,omitempty"`
	Imag  []float64 `cbor:"imag,omitempty"`
	Start float64   `cbor:"start"`
	Step  float64   `cbor:"step"`
	End   float64   `cbor:"end"`
}

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil)
)

func encodeRecord(s common.NodeSample) ([]byte, error) {
	rec := record{
		Valid: true,
		DType: s.Values.DType.String(),
		Start: s.Time.Start,
		Step:  s.Time.Step,
		End:   s.Time.End,
	}
	switch s.Values.DType {
	case common.DTypeInt:
		rec.Ints = s.Values.Ints
	case common.DTypeFloat:
		rec.Real = s.Values.Floats
	case common.DTypeComplex:
		rec.Real = make([]float64, len(s.Values.Complex))
		rec.Imag = make([]float64, len(s.Values.Complex))
		for i, v := range s.Values.Complex {
			rec.Real[i] = real(v)
			rec.Imag[i] = imag(v)
		}
	}

	raw, err := cbor.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return encoder.EncodeAll(raw, nil), nil
}

func decodeRecord(data []byte) (common.NodeSample, error) {
	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return common.NodeSample{}, err
	}
	var rec record
	if err := cbor.Unmarshal(raw, &rec); err != nil {
		return common.NodeSample{}, err
	}
	if !rec.Valid {
		return common.NodeSample{}, fmt.Errorf("cache marker missing")
	}
	dtype, err := common.ParseDType(rec.DType)
	if err != nil {
		return common.NodeSample{}, err
	}

	var values common.Samples
	switch dtype {
	case common.DTypeInt:
		values = common.IntSamples(rec.Ints)
	case common.DTypeFloat:
		values = common.FloatSamples(rec.Real)
	default:
		if len(rec.Real) != len(rec.Imag) {
			return common.NodeSample{}, fmt.Errorf("real and imaginary parts differ in length: %d != %d",
				len(rec.Real), len(rec.Imag))
		}
		c := make([]complex128, len(rec.Real))
		for i := range c {
			c[i] = complex(rec.Real[i], rec.Imag[i])
		}
		values = common.ComplexSamples(c)
	}

	return common.NodeSample{
		Values: values,
		Time:   common.TimeBase{Start: rec.Start, Step: rec.Step, End: rec.End},
	}, nil
}
