package xasanalysis

import "github.com/echemlab/specimen/internal/errs"

// gradient approximates np.gradient(data, h) for a uniform scalar
// spacing h: central differences at interior points, one-sided
// differences at the boundary.
func gradient(data []float64, h float64) []float64 {
	n := len(data)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	if n == 1 {
		out[0] = 0
		return out
	}
	out[0] = (data[1] - data[0]) / h
	out[n-1] = (data[n-1] - data[n-2]) / h
	for i := 1; i < n-1; i++ {
		out[i] = (data[i+1] - data[i-1]) / (2 * h)
	}
	return out
}

// boxcarSame applies a moving-average kernel of the given window,
// matching np.convolve(data, ones(window)/window, mode="same"): the
// output has the same length as data, with implicit zero-padding at
// the boundaries.
func boxcarSame(data []float64, window int) []float64 {
	n := len(data)
	out := make([]float64, n)
	if window <= 1 {
		copy(out, data)
		return out
	}
	// full convolution has length n+window-1; "same" keeps the central
	// n samples, offset by (window-1)/2 from the full convolution start.
	offset := (window - 1) / 2
	for i := 0; i < n; i++ {
		var sum float64
		fullIdx := i + offset
		for k := 0; k < window; k++ {
			srcIdx := fullIdx - k
			if srcIdx >= 0 && srcIdx < n {
				sum += data[srcIdx]
			}
		}
		out[i] = sum / float64(window)
	}
	return out
}

// CalculateDerivative computes the order-1 or order-2 derivative of
// data with respect to energy, with optional boxcar smoothing.
// The energy step
// used is the mean of consecutive differences, applied uniformly (not
// per-point), matching np.gradient(data, dE) with a scalar dE.
func CalculateDerivative(energy, data []float64, order, smoothingWindow int) ([]float64, error) {
	if order != 1 && order != 2 {
		return nil, &errs.FitError{Detail: "derivative order must be 1 or 2"}
	}
	if len(energy) < 2 {
		return nil, &errs.FitError{Detail: "derivative requires at least two samples"}
	}

	var sumDiff float64
	for i := 1; i < len(energy); i++ {
		sumDiff += energy[i] - energy[i-1]
	}
	dE := sumDiff / float64(len(energy)-1)

	deriv := gradient(data, dE)
	if order == 2 {
		deriv = gradient(deriv, dE)
	}
	if smoothingWindow > 1 {
		deriv = boxcarSame(deriv, smoothingWindow)
	}
	return deriv, nil
}
