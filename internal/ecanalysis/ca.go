package ecanalysis

import (
	"gonum.org/v1/gonum/integrate"

	"github.com/echemlab/specimen/internal/dataset"
	"github.com/echemlab/specimen/internal/units"
)

// TimeAverage averages column over [tStart, tEnd] of the time column,
// used for CA/CP steady-state current or voltage.
func TimeAverage(t *dataset.Table, column string, tStart, tEnd float64) (float64, bool) {
	if !t.Has(units.TimeS) || !t.Has(column) {
		return 0, false
	}
	time := t.Col(units.TimeS)
	vals := t.Col(column)

	var sum float64
	var n int
	for i, tv := range time {
		if tv >= tStart && tv <= tEnd {
			sum += vals[i]
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// Charge integrates current over time via the trapezoidal rule,
// Q = the trapezoidal integral of current over time, via
// gonum's integrate.Trapezoidal.
func Charge(t *dataset.Table) (float64, bool) {
	if !t.Has(units.TimeS) || !t.Has(units.CurrentA) {
		return 0, false
	}
	time := t.Col(units.TimeS)
	current := t.Col(units.CurrentA)
	if len(time) < 2 {
		return 0, false
	}
	return integrate.Trapezoidal(time, current), true
}
