package diag

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultBins is the histogram bin count used when none is configured.
const DefaultBins = 30

// Histogram holds equal-width bin counts.
type Histogram struct {
	// Edges has len(Counts)+1 entries.
	Edges  []float64
	Counts []float64
}

// NewHistogram bins x into equal-width bins spanning [min(x), max(x)].
// A degenerate range is widened by 0.5 on each side.
func NewHistogram(x []float64, bins int) (*Histogram, error) {
	if len(x) == 0 {
		return nil, ErrEmptySeries
	}
	if bins <= 0 {
		bins = DefaultBins
	}

	sorted := slices.Clone(x)
	slices.Sort(sorted)

	lo, hi := sorted[0], sorted[len(sorted)-1]
	if lo == hi {
		lo -= 0.5
		hi += 0.5
	}

	edges := floats.Span(make([]float64, bins+1), lo, hi)
	// stat.Histogram requires every value to be strictly below the last divider.
	dividers := slices.Clone(edges)
	dividers[bins] = math.Nextafter(hi, math.Inf(1))

	counts := stat.Histogram(nil, dividers, sorted, nil)
	return &Histogram{Edges: edges, Counts: counts}, nil
}

// Total returns the number of binned values.
func (h *Histogram) Total() float64 {
	return floats.Sum(h.Counts)
}
