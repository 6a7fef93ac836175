// Package dataobj is a minimal labeled n-dimensional array: a data array
// with coordinate descriptors that map array indices to physical values.
package dataobj

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/common"
)

// Unit names a quantity and its physical unit.
type Unit struct {
	Name string `json:"name,omitempty"`
	Unit string `json:"unit,omitempty"`
}

type CoordinateMode struct {
	Equidistant bool `json:"equidistant"`
}

// Coordinate describes one axis. Equidistant coordinates are Start+i*Step
// along their dimension; others carry explicit Values. Dimensions lists the
// data dimensions the coordinate changes along; empty means constant.
type Coordinate struct {
	Name       string         `json:"name"`
	Unit       Unit           `json:"unit"`
	Mode       CoordinateMode `json:"mode"`
	Start      float64        `json:"start"`
	Step       float64        `json:"step"`
	Values     []string       `json:"values,omitempty"`
	Dimensions []int          `json:"dimensions"`
}

// Along reports whether the coordinate changes along dimension dim.
func (c Coordinate) Along(dim int) bool {
	for _, d := range c.Dimensions {
		if d == dim {
			return true
		}
	}
	return false
}

// Array is a row-major n-dimensional sample array.
type Array struct {
	Shape  []int
	Values common.Samples
}

// Len returns the number of elements.
func (a Array) Len() int {
	return a.Values.Len()
}

// Validate checks that Shape matches the number of values.
func (a Array) Validate() error {
	n := 1
	for _, s := range a.Shape {
		n *= s
	}
	if n != a.Values.Len() {
		return fmt.Errorf("%w: shape %v holds %d elements, have %d", common.ErrShape, a.Shape, n, a.Values.Len())
	}
	return nil
}

// arrayWire is the serialized form of an Array, shared by JSON and CBOR.
// Complex values are split into real and imag.
type arrayWire struct {
	Shape []int     `json:"shape"`
	DType string    `json:"dtype"`
	Ints  []int64   `json:"ints,omitempty"`
	Real  []float64 `json:"real,omitempty"`
	Imag  []float64 `json:"imag,omitempty"`
}

func (a Array) wire() arrayWire {
	out := arrayWire{Shape: a.Shape, DType: a.Values.DType.String()}
	switch a.Values.DType {
	case common.DTypeInt:
		out.Ints = a.Values.Ints
	case common.DTypeFloat:
		out.Real = a.Values.Floats
	default:
		out.Real = make([]float64, len(a.Values.Complex))
		out.Imag = make([]float64, len(a.Values.Complex))
		for i, v := range a.Values.Complex {
			out.Real[i], out.Imag[i] = real(v), imag(v)
		}
	}
	return out
}

func (a *Array) fromWire(in arrayWire) error {
	d, err := common.ParseDType(in.DType)
	if err != nil {
		return err
	}
	a.Shape = in.Shape
	switch d {
	case common.DTypeInt:
		a.Values = common.IntSamples(in.Ints)
	case common.DTypeFloat:
		a.Values = common.FloatSamples(in.Real)
	default:
		if len(in.Real) != len(in.Imag) {
			return fmt.Errorf("%w: %d real and %d imaginary parts", common.ErrShape, len(in.Real), len(in.Imag))
		}
		c := make([]complex128, len(in.Real))
		for i := range c {
			c[i] = complex(in.Real[i], in.Imag[i])
		}
		a.Values = common.ComplexSamples(c)
	}
	return nil
}

func (a Array) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.wire())
}

func (a *Array) UnmarshalJSON(data []byte) error {
	var in arrayWire
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	return a.fromWire(in)
}

func (a Array) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(a.wire())
}

func (a *Array) UnmarshalCBOR(data []byte) error {
	var in arrayWire
	if err := cbor.Unmarshal(data, &in); err != nil {
		return err
	}
	return a.fromWire(in)
}

// DataObject is a data array with its coordinates and provenance.
type DataObject struct {
	Title       string       `json:"title"`
	Source      string       `json:"source"`
	ExpID       string       `json:"exp_id"`
	Unit        Unit         `json:"unit"`
	Data        Array        `json:"data"`
	Coordinates []Coordinate `json:"coordinates"`
}

// Coordinate returns the coordinate with the given name.
func (d *DataObject) Coordinate(name string) (Coordinate, bool) {
	for _, c := range d.Coordinates {
		if c.Name == name {
			return c, true
		}
	}
	return Coordinate{}, false
}
