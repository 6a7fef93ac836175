package vnames

import (
	"fmt"
	"path"
)

// Signal is one resolved request: the display name and what to read for it.
// Virtual is false when the requested name matched no table entry and is
// used directly as a node path.
type Signal struct {
	Name    string
	Virtual bool
	Ref     PhysicalRef
}

// Resolve expands the requested names against the table for one experiment.
//
// Entries whose range excludes exp are ignored. Each requested name may
// contain shell wildcards and yields all matching entries in table order;
// a name matching nothing passes through as a NodeRef. The result is
// ordered by requested name, then by table order. A nil table resolves
// every name to itself.
func Resolve(requested []string, exp ExpID, t *Table) ([]Signal, error) {
	var entries []Entry
	if t != nil {
		n := exp.Numeric()
		for _, e := range t.Entries {
			if e.Range.Contains(n) {
				entries = append(entries, e)
			}
		}
	}

	signals := make([]Signal, 0, len(requested))
	for _, req := range requested {
		matched := false
		for _, e := range entries {
			if !matchName(req, e.Name) {
				continue
			}
			ref, err := ParseRef(e.Value)
			if err != nil {
				return nil, fmt.Errorf("entry %s: %w", e.Name, err)
			}
			signals = append(signals, Signal{Name: e.Name, Virtual: true, Ref: ref})
			matched = true
		}
		if !matched {
			signals = append(signals, Signal{Name: req, Ref: NodeRef(req)})
		}
	}
	return signals, nil
}

// matchName reports whether name matches the shell pattern. A malformed
// pattern only matches itself.
func matchName(pattern, name string) bool {
	if pattern == name {
		return true
	}
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}
