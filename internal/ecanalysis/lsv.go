package ecanalysis

import (
	"math"

	"github.com/echemlab/specimen/internal/dataset"
	"github.com/echemlab/specimen/internal/units"
)

// OnsetPotential finds the potential at the first sample whose |current|
// exceeds |thresholdCurrentA|.
func OnsetPotential(t *dataset.Table, thresholdCurrentA float64) (float64, bool) {
	if !t.Has(units.PotentialV) || !t.Has(units.CurrentA) {
		return 0, false
	}
	potential := t.Col(units.PotentialV)
	current := t.Col(units.CurrentA)
	threshold := math.Abs(thresholdCurrentA)

	for i, c := range current {
		if math.Abs(c) > threshold {
			return potential[i], true
		}
	}
	return 0, false
}

// LimitingCurrent averages current over the last windowFrac fraction of
// samples (at least one sample), for the plateau current of an LSV
// sweep.
func LimitingCurrent(t *dataset.Table, windowFrac float64) (float64, bool) {
	if !t.Has(units.CurrentA) {
		return 0, false
	}
	current := t.Col(units.CurrentA)
	if len(current) == 0 {
		return 0, false
	}
	n := int(float64(len(current)) * windowFrac)
	if n < 1 {
		n = 1
	}
	tail := current[len(current)-n:]
	var sum float64
	for _, v := range tail {
		sum += v
	}
	return sum / float64(len(tail)), true
}

// CurrentAtPotential extracts the current at the sample whose potential
// is nearest potentialV, failing if potentialV lies outside the sweep's
// observed range.
func CurrentAtPotential(t *dataset.Table, potentialV float64) (float64, bool) {
	if !t.Has(units.PotentialV) || !t.Has(units.CurrentA) {
		return 0, false
	}
	potential := t.Col(units.PotentialV)
	current := t.Col(units.CurrentA)
	if len(potential) == 0 {
		return 0, false
	}

	lo, hi := potential[0], potential[0]
	for _, p := range potential {
		if p < lo {
			lo = p
		}
		if p > hi {
			hi = p
		}
	}
	if potentialV < lo || potentialV > hi {
		return 0, false
	}

	idx := 0
	best := math.Abs(potential[0] - potentialV)
	for i, p := range potential {
		d := math.Abs(p - potentialV)
		if d < best {
			best = d
			idx = i
		}
	}
	return current[idx], true
}
