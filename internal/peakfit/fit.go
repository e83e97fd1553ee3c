package peakfit

import (
	"fmt"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"

	"github.com/echemlab/specimen/internal/errs"
)

// PeakFitResult is the outcome of fitting n_peaks Lorentzian second
// derivatives to (energy, d2mu) data.
type PeakFitResult struct {
	Success   bool
	NPeaks    int
	Peaks     map[string]PeakParams // "peak_1", "peak_2", ...
	EnergyFit []float64
	FitCurve  []float64
	RSquared  float64
	Err       error
}

const maxFuncEvaluations = 5000

// FitPeaks fits n_peaks Lorentzian second derivatives within
// energyRange, starting from initialGuesses: a bounded nonlinear
// least-squares solve, with the box bounds folded in by the smooth
// reparameterization in bounds.go and the resulting unconstrained
// sum-of-squares objective minimized by a quasi-Newton (L-BFGS)
// descent with finite-difference gradients.
func FitPeaks(energy, d2mu []float64, nPeaks int, initialGuesses []PeakParams, energyRange [2]float64) *PeakFitResult {
	if nPeaks < 1 || nPeaks > 4 {
		return &PeakFitResult{NPeaks: nPeaks, Err: &errs.FitError{Detail: "n_peaks must be between 1 and 4"}}
	}
	if len(initialGuesses) != nPeaks {
		return &PeakFitResult{NPeaks: nPeaks, Err: &errs.FitError{Detail: fmt.Sprintf("expected %d initial guesses, got %d", nPeaks, len(initialGuesses))}}
	}

	var energyFit, d2muFit []float64
	for i, e := range energy {
		if e >= energyRange[0] && e <= energyRange[1] {
			energyFit = append(energyFit, e)
			d2muFit = append(d2muFit, d2mu[i])
		}
	}
	if len(energyFit) < 3*nPeaks {
		return &PeakFitResult{NPeaks: nPeaks, Err: &errs.FitError{Detail: "not enough data points in energy range for fitting"}}
	}

	eMin, eMax := energyFit[0], energyFit[0]
	for _, e := range energyFit {
		if e < eMin {
			eMin = e
		}
		if e > eMax {
			eMax = e
		}
	}
	bounds := peakBounds{X0Lo: eMin, X0Hi: eMax, GammaLo: defaultGammaLo, GammaHi: defaultGammaHi}

	theta0 := packTheta(initialGuesses, bounds)

	objective := func(theta []float64) float64 {
		peaks := unpackTheta(theta, bounds)
		fit := SumLorentzianD2(energyFit, peaks)
		var ssRes float64
		for i := range fit {
			d := d2muFit[i] - fit[i]
			ssRes += d * d
		}
		return ssRes
	}

	problem := optimize.Problem{
		Func: objective,
		Grad: func(grad, theta []float64) {
			fd.Gradient(grad, objective, theta, nil)
		},
	}
	result, err := optimize.Minimize(problem, theta0, &optimize.Settings{FuncEvaluations: maxFuncEvaluations}, &optimize.LBFGS{})
	if err != nil && result == nil {
		return &PeakFitResult{NPeaks: nPeaks, EnergyFit: energyFit, Err: &errs.FitError{Detail: err.Error()}}
	}

	peaks := unpackTheta(result.X, bounds)
	fitCurve := SumLorentzianD2(energyFit, peaks)

	var ssRes, mean float64
	for _, v := range d2muFit {
		mean += v
	}
	mean /= float64(len(d2muFit))
	var ssTot float64
	for i, v := range d2muFit {
		d := v - fitCurve[i]
		ssRes += d * d
		dm := v - mean
		ssTot += dm * dm
	}
	rSquared := 0.0
	if ssTot > 0 {
		rSquared = 1 - ssRes/ssTot
	}

	peakMap := make(map[string]PeakParams, nPeaks)
	for i, p := range peaks {
		peakMap[fmt.Sprintf("peak_%d", i+1)] = p
	}

	return &PeakFitResult{
		Success:   true,
		NPeaks:    nPeaks,
		Peaks:     peakMap,
		EnergyFit: energyFit,
		FitCurve:  fitCurve,
		RSquared:  rSquared,
	}
}
