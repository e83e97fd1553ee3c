package peakfit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func syntheticD2(energy []float64, peaks []PeakParams) []float64 {
	return SumLorentzianD2(energy, peaks)
}

func linspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + step*float64(i)
	}
	return out
}

func TestSumLorentzianD2SinglePeakShape(t *testing.T) {
	energy := linspace(7100, 7140, 41)
	peaks := []PeakParams{{A: -10, X0: 7120, Gamma: 3}}
	d2 := syntheticD2(energy, peaks)

	// with A < 0 the centre is a local maximum of d2; the two equal
	// minima sit at x0 -/+ gamma and the first one found is 7117
	minIdx := 0
	for i, v := range d2 {
		if v < d2[minIdx] {
			minIdx = i
		}
	}
	require.InDelta(t, 7117, energy[minIdx], 1.0)
}

func TestFitPeaksRecoversSyntheticPeak(t *testing.T) {
	energy := linspace(7100, 7140, 81)
	truth := []PeakParams{{A: -8, X0: 7120, Gamma: 3}}
	d2 := syntheticD2(energy, truth)

	guesses := []PeakParams{{A: -6, X0: 7118, Gamma: 2}}
	result := FitPeaks(energy, d2, 1, guesses, [2]float64{7100, 7140})
	require.NoError(t, result.Err)
	require.True(t, result.Success)
	require.InDelta(t, 7120, result.Peaks["peak_1"].X0, 1.0)
	require.Greater(t, result.RSquared, 0.8)
}

func TestFitPeaksRejectsInvalidPeakCount(t *testing.T) {
	result := FitPeaks([]float64{1, 2, 3}, []float64{1, 2, 3}, 5, nil, [2]float64{0, 10})
	require.Error(t, result.Err)
	require.False(t, result.Success)
}

func TestFitPeaksRejectsMismatchedGuesses(t *testing.T) {
	result := FitPeaks([]float64{1, 2, 3}, []float64{1, 2, 3}, 2, []PeakParams{{A: 1}}, [2]float64{0, 10})
	require.Error(t, result.Err)
}

func TestFitPeaksRejectsTooFewPoints(t *testing.T) {
	result := FitPeaks([]float64{1, 2}, []float64{1, 2}, 1, []PeakParams{{A: 1, X0: 1, Gamma: 1}}, [2]float64{0, 10})
	require.Error(t, result.Err)
}

func TestEstimateInitialGuessesFindsMinimum(t *testing.T) {
	energy := linspace(7100, 7140, 41)
	truth := []PeakParams{{A: -10, X0: 7120, Gamma: 3}}
	d2 := syntheticD2(energy, truth)

	guesses := EstimateInitialGuesses(energy, d2, 1)
	require.Len(t, guesses, 1)
	// the global minimum of d2 for A < 0 is the first side lobe, x0 - gamma
	require.InDelta(t, 7117, guesses[0].X0, 1.0)
	require.True(t, guesses[0].A < 0)
}

func TestEstimateInitialGuessesMultiPeakSpacing(t *testing.T) {
	energy := linspace(7100, 7140, 41)
	truth := []PeakParams{{A: -10, X0: 7120, Gamma: 3}}
	d2 := syntheticD2(energy, truth)

	guesses := EstimateInitialGuesses(energy, d2, 3)
	require.Len(t, guesses, 3)
	require.InDelta(t, guesses[0].X0+5, guesses[1].X0, 1e-9)
	require.InDelta(t, guesses[0].X0+10, guesses[2].X0, 1e-9)
}

func TestSigmoidBoundsRoundTrip(t *testing.T) {
	v := toBounded(toUnconstrained(42.0, 0, 100), 0, 100)
	require.InDelta(t, 42.0, v, 1e-6)
	require.True(t, math.Abs(v-42.0) < 1e-6)
}
