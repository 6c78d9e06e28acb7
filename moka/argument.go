package moka

import (
	"sort"
	"strings"
)

// Argument is a reference to a value flowing through the IR: either a
// single Identifier or a Phi standing for the merge of several identifiers
// arriving from different control flow paths. A Phi with one member is
// always canonicalised back down to a plain Id.
type Argument struct {
	phi []Identifier // sorted, deduplicated; len==1 means "plain Id" and is never constructed directly
}

// ArgID builds a plain single-identifier Argument.
func ArgID(id Identifier) Argument {
	return Argument{phi: []Identifier{id}}
}

// IsPhi reports whether this Argument carries more than one identifier.
func (a Argument) IsPhi() bool {
	return len(a.phi) > 1
}

// Single returns the sole identifier of a non-phi Argument. It panics if
// called on a Phi; callers should check IsPhi first.
func (a Argument) Single() Identifier {
	if len(a.phi) != 1 {
		panic("moka: Single called on a Phi argument")
	}
	return a.phi[0]
}

// Identifiers returns the (sorted, deduplicated) identifiers this Argument
// ranges over. The returned slice must not be mutated.
func (a Argument) Identifiers() []Identifier {
	return a.phi
}

// Merge combines two Arguments arriving at the same program point,
// producing the join of their possible identities. Equal arguments merge
// to themselves; distinct ones merge to (or extend) a Phi. Merge is
// commutative, associative and idempotent, since it is implemented as set
// union over a sorted, deduplicated identifier list.
func (a Argument) Merge(b Argument) Argument {
	merged := make([]Identifier, 0, len(a.phi)+len(b.phi))
	merged = append(merged, a.phi...)
	merged = append(merged, b.phi...)
	sort.Slice(merged, func(i, j int) bool { return merged[i].Less(merged[j]) })

	dedup := merged[:0]
	for i, id := range merged {
		if i == 0 || !idEqual(dedup[len(dedup)-1], id) {
			dedup = append(dedup, id)
		}
	}
	return Argument{phi: dedup}
}

// Equal reports whether two Arguments range over the exact same set of
// identifiers.
func (a Argument) Equal(b Argument) bool {
	if len(a.phi) != len(b.phi) {
		return false
	}
	for i := range a.phi {
		if !idEqual(a.phi[i], b.phi[i]) {
			return false
		}
	}
	return true
}

func idEqual(a, b Identifier) bool {
	return a == b
}

func (a Argument) String() string {
	if !a.IsPhi() {
		return a.phi[0].String()
	}
	parts := make([]string, len(a.phi))
	for i, id := range a.phi {
		parts[i] = id.String()
	}
	return "Phi(" + strings.Join(parts, ", ") + ")"
}
