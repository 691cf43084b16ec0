package activity

import "nbcollab/internal/engine/graph"

// SectionSet is an unordered set of section ids.
type SectionSet map[graph.NodeID]struct{}

func NewSectionSet(ids ...graph.NodeID) SectionSet {
	s := make(SectionSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Jaccard returns |a∩b| / |a∪b|. Two empty sets agree perfectly.
func Jaccard(a, b SectionSet) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	inter := 0
	for id := range a {
		if _, ok := b[id]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// ListSimilarity pads the shorter sequence with empty sets and returns the mean
// pairwise Jaccard similarity.
func ListSimilarity(observed, ideal [][]graph.NodeID) float64 {
	n := len(observed)
	if len(ideal) > n {
		n = len(ideal)
	}
	if n == 0 {
		return 1.0
	}

	sum := 0.0
	for i := 0; i < n; i++ {
		var a, b SectionSet
		if i < len(observed) {
			a = NewSectionSet(observed[i]...)
		}
		if i < len(ideal) {
			b = NewSectionSet(ideal[i]...)
		}
		sum += Jaccard(a, b)
	}
	return sum / float64(n)
}
