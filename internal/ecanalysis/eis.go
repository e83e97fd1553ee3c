// Package ecanalysis computes per-technique scalar metrics over
// canonical EC tables, one file per technique.
package ecanalysis

import (
	"math"
	"sort"

	"github.com/echemlab/specimen/internal/dataset"
	"github.com/echemlab/specimen/internal/units"
)

// intercept finds the Re(Z) x-intercept of -Im(Z) after sorting by
// Re(Z) in the given direction, via linear interpolation across the
// first sign change; ascending=true is the high-frequency search,
// ascending=false the low-frequency search; the two searches are
// identical except for sort direction.
func intercept(t *dataset.Table, ascending bool) (float64, bool) {
	if !t.Has(units.ZRealOhm) || !t.Has(units.ZImagOhm) {
		return 0, false
	}
	reZ := append([]float64(nil), t.Col(units.ZRealOhm)...)
	imZ := t.Col(units.ZImagOhm)
	negImZ := make([]float64, len(imZ))
	for i, v := range imZ {
		negImZ[i] = -v
	}

	idx := make([]int, len(reZ))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool {
		if ascending {
			return reZ[idx[i]] < reZ[idx[j]]
		}
		return reZ[idx[i]] > reZ[idx[j]]
	})
	sortedRe := make([]float64, len(idx))
	sortedNegIm := make([]float64, len(idx))
	for i, j := range idx {
		sortedRe[i] = reZ[j]
		sortedNegIm[i] = negImZ[j]
	}

	for i := 0; i < len(sortedNegIm)-1; i++ {
		if sortedNegIm[i]*sortedNegIm[i+1] < 0 {
			frac := -sortedNegIm[i] / (sortedNegIm[i+1] - sortedNegIm[i])
			return sortedRe[i] + frac*(sortedRe[i+1]-sortedRe[i]), true
		}
	}

	if len(sortedNegIm) == 0 {
		return 0, false
	}
	minIdx := 0
	minAbs := math.Abs(sortedNegIm[0])
	for i, v := range sortedNegIm {
		if math.Abs(v) < minAbs {
			minAbs = math.Abs(v)
			minIdx = i
		}
	}
	if minAbs < 1.0 {
		return sortedRe[minIdx], true
	}
	return 0, false
}

// FindHFIntercept finds the high-frequency Nyquist x-intercept
// (solution resistance), ascending Re(Z) order.
func FindHFIntercept(t *dataset.Table) (float64, bool) {
	return intercept(t, true)
}

// FindLFIntercept finds the low-frequency Nyquist x-intercept (total
// resistance), descending Re(Z) order.
func FindLFIntercept(t *dataset.Table) (float64, bool) {
	return intercept(t, false)
}
