package assemble

import (
	"fmt"

	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/common"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/vnames"
)

// Rule says how the nodes of a plan become one signal.
type Rule int

const (
	// Passthrough uses the single node as is.
	Passthrough Rule = iota
	// ComplexCombine builds real + i*imag from two nodes.
	ComplexCombine
)

func (r Rule) String() string {
	switch r {
	case Passthrough:
		return "passthrough"
	case ComplexCombine:
		return "complex"
	}
	return fmt.Sprintf("rule(%d)", int(r))
}

// Plan lists the nodes to read for one output signal.
type Plan struct {
	Name string
	Rule Rule
	Refs []vnames.NodeRef
}

// PlanFor derives the fetch plan of a resolved signal.
func PlanFor(s vnames.Signal) (Plan, error) {
	switch ref := s.Ref.(type) {
	case vnames.NodeRef:
		return Plan{Name: s.Name, Rule: Passthrough, Refs: []vnames.NodeRef{ref}}, nil
	case vnames.CompositeRef:
		if ref.Kind == vnames.KindComplex && len(ref.Refs) == 2 {
			return Plan{Name: s.Name, Rule: ComplexCombine, Refs: ref.Refs}, nil
		}
		return Plan{}, fmt.Errorf("%w: %s = %s", common.ErrUnsupportedComposite, s.Name, ref)
	}
	return Plan{}, fmt.Errorf("%w: %s has no reference", common.ErrUnsupportedComposite, s.Name)
}

// combine applies the plan's rule to the samples of its nodes.
func (p Plan) combine(parts []common.Samples) (common.Samples, error) {
	switch p.Rule {
	case Passthrough:
		return parts[0], nil
	case ComplexCombine:
		re, im := parts[0].Complex128s(), parts[1].Complex128s()
		if len(re) != len(im) {
			return common.Samples{}, fmt.Errorf("%w: %s: real part has %d samples, imaginary part %d",
				common.ErrShape, p.Name, len(re), len(im))
		}
		out := make([]complex128, len(re))
		for i := range out {
			out[i] = re[i] + 1i*im[i]
		}
		return common.ComplexSamples(out), nil
	}
	return common.Samples{}, fmt.Errorf("%w: rule %s", common.ErrUnsupportedComposite, p.Rule)
}
