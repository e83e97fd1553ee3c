package ecanalysis

import (
	"github.com/echemlab/specimen/internal/dataset"
	"github.com/echemlab/specimen/internal/units"
)

// SteadyStatePotential averages potential over the last windowS seconds
// of the recording, the equilibrium OCV/OCP value.
func SteadyStatePotential(t *dataset.Table, windowS float64) (float64, bool) {
	if !t.Has(units.TimeS) || !t.Has(units.PotentialV) {
		return 0, false
	}
	time := t.Col(units.TimeS)
	potential := t.Col(units.PotentialV)
	if len(time) == 0 {
		return 0, false
	}

	tMax := time[0]
	for _, v := range time {
		if v > tMax {
			tMax = v
		}
	}
	tStart := tMax - windowS

	var sum float64
	var n int
	for i, tv := range time {
		if tv >= tStart {
			sum += potential[i]
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
