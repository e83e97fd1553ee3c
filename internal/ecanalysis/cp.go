package ecanalysis

import (
	"math"

	"github.com/echemlab/specimen/internal/dataset"
	"github.com/echemlab/specimen/internal/units"
)

// OverpotentialAtCurrent finds |potential - equilibrium| at the sample
// whose current is nearest targetCurrentA.
func OverpotentialAtCurrent(t *dataset.Table, targetCurrentA, equilibriumV float64) (float64, bool) {
	if !t.Has(units.PotentialV) || !t.Has(units.CurrentA) {
		return 0, false
	}
	current := t.Col(units.CurrentA)
	potential := t.Col(units.PotentialV)
	if len(current) == 0 {
		return 0, false
	}

	idx := 0
	best := math.Abs(current[0] - targetCurrentA)
	for i, c := range current {
		d := math.Abs(c - targetCurrentA)
		if d < best {
			best = d
			idx = i
		}
	}
	return math.Abs(potential[idx] - equilibriumV), true
}
