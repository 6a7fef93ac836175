package dataobj

import (
	"fmt"
	"math"

	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/common"
)

// Range is an inclusive interval of coordinate values.
type Range struct {
	Coordinate string  `json:"coordinate" validate:"required"`
	Low        float64 `json:"low"`
	High       float64 `json:"high"`
}

// rounding slack for interval ends that fall exactly on a sample
const indexEpsilon = 1e-9

// SelectRange returns a copy of d restricted to the samples whose
// coordinate value lies within r. Only equidistant coordinates along
// dimension 0 can be selected on.
func (d *DataObject) SelectRange(r Range) (*DataObject, error) {
	c, ok := d.Coordinate(r.Coordinate)
	if !ok {
		return nil, fmt.Errorf("%w: no coordinate %q", common.ErrNotImplemented, r.Coordinate)
	}
	if !c.Mode.Equidistant || !c.Along(0) || len(d.Data.Shape) == 0 {
		return nil, fmt.Errorf("%w: cannot select on coordinate %q", common.ErrNotImplemented, r.Coordinate)
	}
	if c.Step <= 0 {
		return nil, fmt.Errorf("%w: coordinate %q has step %g", common.ErrFormat, c.Name, c.Step)
	}
	if r.High < r.Low {
		return nil, fmt.Errorf("%w: empty interval [%g, %g]", common.ErrFormat, r.Low, r.High)
	}

	n := d.Data.Shape[0]
	lo := int(math.Ceil((r.Low-c.Start)/c.Step - indexEpsilon))
	hi := int(math.Floor((r.High-c.Start)/c.Step+indexEpsilon)) + 1
	lo = max(lo, 0)
	hi = min(hi, n)
	if lo >= hi {
		return nil, fmt.Errorf("%w: no %s samples in [%g, %g]", common.ErrFormat, c.Name, r.Low, r.High)
	}
	return d.Slice(lo, hi)
}

// Slice returns a copy of d holding rows [lo, hi) of dimension 0.
// Equidistant coordinates along dimension 0 are shifted accordingly.
func (d *DataObject) Slice(lo, hi int) (*DataObject, error) {
	if len(d.Data.Shape) == 0 || lo < 0 || hi > d.Data.Shape[0] || lo > hi {
		return nil, fmt.Errorf("%w: rows [%d, %d) out of range", common.ErrShape, lo, hi)
	}
	row := 1
	for _, s := range d.Data.Shape[1:] {
		row *= s
	}

	out := *d
	out.Data.Shape = append([]int{hi - lo}, d.Data.Shape[1:]...)
	out.Data.Values = d.Data.Values.Slice(lo*row, hi*row)
	out.Coordinates = make([]Coordinate, len(d.Coordinates))
	for i, c := range d.Coordinates {
		if c.Mode.Equidistant && c.Along(0) {
			c.Start += float64(lo) * c.Step
		}
		out.Coordinates[i] = c
	}
	return &out, nil
}
