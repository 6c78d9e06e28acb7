package moka

import "cmp"

// affectedLocation is one successor produced by a transfer function: the
// location control can reach next and the fact that flows there.
type affectedLocation[L cmp.Ordered, F any] struct {
	Location L
	Fact     F
}

// fixedPointAnalysis is a generic worklist dataflow engine over a
// location type and a fact type. Transfer simulates one location and
// returns the locations its fact flows to; Merge joins two facts
// arriving at the same location; Equal detects that a merge changed
// nothing, which is what lets the iteration converge.
type fixedPointAnalysis[L cmp.Ordered, F any] struct {
	Transfer func(L, F) ([]affectedLocation[L, F], error)
	Merge    func(L, F, F) (F, error)
	Equal    func(F, F) bool
}

// Run iterates Transfer/Merge from the entry fact until no location's
// fact changes, and returns the converged fact at every reached
// location. Any error from Transfer or Merge aborts the analysis.
func (a fixedPointAnalysis[L, F]) Run(entry L, entryFact F) (map[L]F, error) {
	facts := map[L]F{entry: entryFact}
	dirty := map[L]struct{}{entry: {}}

	for len(dirty) > 0 {
		loc := popSmallest(dirty)
		successors, err := a.Transfer(loc, facts[loc])
		if err != nil {
			return nil, err
		}
		for _, s := range successors {
			current, seen := facts[s.Location]
			if !seen {
				facts[s.Location] = s.Fact
				dirty[s.Location] = struct{}{}
				continue
			}
			merged, err := a.Merge(s.Location, current, s.Fact)
			if err != nil {
				return nil, err
			}
			if !a.Equal(current, merged) {
				facts[s.Location] = merged
				dirty[s.Location] = struct{}{}
			}
		}
	}
	return facts, nil
}

// popSmallest removes and returns the smallest pending location. Any
// order would converge to the same fixed point; smallest-first visits
// straight-line code in program order, which keeps the iteration
// deterministic.
func popSmallest[L cmp.Ordered](pending map[L]struct{}) L {
	var min L
	first := true
	for loc := range pending {
		if first || loc < min {
			min = loc
			first = false
		}
	}
	delete(pending, min)
	return min
}
