package ecanalysis

import (
	"testing"

	"github.com/echemlab/specimen/internal/dataset"
	"github.com/echemlab/specimen/internal/units"
	"github.com/stretchr/testify/require"
)

func tableOf(cols map[string][]float64) *dataset.Table {
	names := make([]string, 0, len(cols))
	for k := range cols {
		names = append(names, k)
	}
	return &dataset.Table{Columns: names, Data: cols}
}

func TestFindHFIntercept(t *testing.T) {
	tbl := tableOf(map[string][]float64{
		units.ZRealOhm: {10, 20, 30, 40},
		units.ZImagOhm: {5, -2, -10, -20},
	})
	v, ok := FindHFIntercept(tbl)
	require.True(t, ok)
	require.InDelta(t, 10+(5.0/7.0)*10, v, 1e-6)
}

func TestFindLFInterceptNoCrossing(t *testing.T) {
	tbl := tableOf(map[string][]float64{
		units.ZRealOhm: {10, 20, 30},
		units.ZImagOhm: {-5, -6, -7},
	})
	_, ok := FindLFIntercept(tbl)
	require.False(t, ok)
}

func TestTimeAverage(t *testing.T) {
	tbl := tableOf(map[string][]float64{
		units.TimeS:    {0, 1, 2, 3, 4},
		units.CurrentA: {1, 2, 3, 4, 5},
	})
	v, ok := TimeAverage(tbl, units.CurrentA, 1, 3)
	require.True(t, ok)
	require.InDelta(t, 3.0, v, 1e-9)
}

func TestCharge(t *testing.T) {
	tbl := tableOf(map[string][]float64{
		units.TimeS:    {0, 1, 2},
		units.CurrentA: {1, 1, 1},
	})
	v, ok := Charge(tbl)
	require.True(t, ok)
	require.InDelta(t, 2.0, v, 1e-9)
}

func TestOverpotentialAtCurrent(t *testing.T) {
	tbl := tableOf(map[string][]float64{
		units.CurrentA:   {0.001, 0.01, 0.1},
		units.PotentialV: {1.0, 1.2, 1.5},
	})
	v, ok := OverpotentialAtCurrent(tbl, 0.01, 1.0)
	require.True(t, ok)
	require.InDelta(t, 0.2, v, 1e-9)
}

func TestOnsetPotential(t *testing.T) {
	tbl := tableOf(map[string][]float64{
		units.PotentialV: {0.0, 0.1, 0.2, 0.3},
		units.CurrentA:   {0.0001, 0.0002, 0.005, 0.01},
	})
	v, ok := OnsetPotential(tbl, 0.001)
	require.True(t, ok)
	require.InDelta(t, 0.2, v, 1e-9)
}

func TestLimitingCurrent(t *testing.T) {
	tbl := tableOf(map[string][]float64{
		units.CurrentA: {1, 2, 3, 4, 10},
	})
	v, ok := LimitingCurrent(tbl, 0.2)
	require.True(t, ok)
	require.InDelta(t, 10.0, v, 1e-9)
}

func TestCurrentAtPotentialOutOfRange(t *testing.T) {
	tbl := tableOf(map[string][]float64{
		units.PotentialV: {0, 1, 2},
		units.CurrentA:   {0, 1, 2},
	})
	_, ok := CurrentAtPotential(tbl, 5)
	require.False(t, ok)
}

func TestSteadyStatePotential(t *testing.T) {
	tbl := tableOf(map[string][]float64{
		units.TimeS:      {0, 5, 10, 15, 20},
		units.PotentialV: {1.0, 1.0, 0.5, 0.5, 0.5},
	})
	v, ok := SteadyStatePotential(tbl, 10)
	require.True(t, ok)
	require.InDelta(t, 0.5, v, 1e-9)
}
