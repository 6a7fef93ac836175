package vnames

import (
	"fmt"
	"strings"

	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/common"
)

// KindComplex builds a complex signal from a real and an imaginary node.
const KindComplex = "complex"

// PhysicalRef is what a signal name resolves to: either a single NodeRef or
// a CompositeRef. The set of implementations is closed.
type PhysicalRef interface {
	physicalRef()
	String() string
}

// NodeRef is a single archive node path, "tree::node".
type NodeRef string

func (NodeRef) physicalRef() {}

func (r NodeRef) String() string { return string(r) }

// CompositeRef combines several nodes by a named rule. Kinds other than
// KindComplex are kept as parsed; interpreting them is up to the consumer.
type CompositeRef struct {
	Kind string
	Refs []NodeRef
}

func (CompositeRef) physicalRef() {}

func (r CompositeRef) String() string {
	parts := make([]string, len(r.Refs))
	for i, ref := range r.Refs {
		parts[i] = string(ref)
	}
	return r.Kind + "(" + strings.Join(parts, ",") + ")"
}

// ParseRef parses an entry value: "tree::node" or "kind(ref1,ref2,...)".
func ParseRef(value string) (PhysicalRef, error) {
	value = strings.TrimSpace(value)
	open := strings.IndexByte(value, '(')
	closing := strings.IndexByte(value, ')')
	if (open < 0) != (closing < 0) || closing < open {
		return nil, fmt.Errorf("%w: unbalanced parentheses in value %q", common.ErrFormat, value)
	}
	if open <= 0 {
		return NodeRef(value), nil
	}

	kind := strings.TrimSpace(value[:open])
	args := strings.Split(value[open+1:closing], ",")
	refs := make([]NodeRef, 0, len(args))
	for _, a := range args {
		a = strings.TrimSpace(a)
		if a == "" {
			return nil, fmt.Errorf("%w: empty reference in value %q", common.ErrFormat, value)
		}
		refs = append(refs, NodeRef(a))
	}
	if kind == KindComplex && len(refs) != 2 {
		return nil, fmt.Errorf("%w: %s() needs exactly two references, got %d in %q",
			common.ErrFormat, KindComplex, len(refs), value)
	}
	return CompositeRef{Kind: kind, Refs: refs}, nil
}
