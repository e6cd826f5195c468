// Package credset builds credible sets from posterior probability vectors.
// It is the single source of truth for "which variants are in a credible set
// at threshold X": both the observed set returned to callers and every
// simulated set inside the coverage correction go through Build.
package credset

import (
	"sort"
)

// NoCausal marks a build with no known causal variant
const NoCausal = -1

// Set is a credible set over variant indices (original input order)
type Set struct {
	Indices         []int
	ClaimedCoverage float64
	Size            int
	ContainsCausal  bool
	CausalKnown     bool
}

// Order returns variant indices sorted by posterior probability descending,
// with ties broken by original index order (stable).
func Order(pp []float64) []int {
	idx := make([]int, len(pp))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return pp[idx[a]] > pp[idx[b]]
	})
	return idx
}

// Build selects the smallest descending-probability prefix whose cumulative
// probability strictly exceeds threshold. If no prefix exceeds it (threshold at
// or above the total mass) the full set is returned. causal is the index of the
// known causal variant, or NoCausal when identity is unknown.
func Build(pp []float64, threshold float64, causal int) Set {
	order := Order(pp)

	cum := 0.0
	size := len(order)
	for k, i := range order {
		cum += pp[i]
		if cum > threshold {
			size = k + 1
			break
		}
	}

	claimed := 0.0
	indices := make([]int, size)
	contains := false
	for k := 0; k < size; k++ {
		indices[k] = order[k]
		claimed += pp[order[k]]
		if order[k] == causal {
			contains = true
		}
	}

	return Set{
		Indices:         indices,
		ClaimedCoverage: claimed,
		Size:            size,
		ContainsCausal:  contains,
		CausalKnown:     causal != NoCausal,
	}
}

// Contains reports whether the given variant index is in the set
func (s Set) Contains(idx int) bool {
	for _, i := range s.Indices {
		if i == idx {
			return true
		}
	}
	return false
}
