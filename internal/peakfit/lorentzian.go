// Package peakfit fits a sum of Lorentzian second derivatives to XAS
// second-derivative data.
package peakfit

// PeakParams is one Lorentzian peak's amplitude, center, and width.
type PeakParams struct {
	A     float64
	X0    float64
	Gamma float64
}

// lorentzianD2 evaluates the second derivative of a single Lorentzian
// peak L(x) = A*gamma^2/((x-x0)^2+gamma^2) at x.
func lorentzianD2(x float64, p PeakParams) float64 {
	diff := x - p.X0
	term := diff*diff + p.Gamma*p.Gamma
	numerator := 2 * p.A * p.Gamma * p.Gamma * (3*diff*diff - p.Gamma*p.Gamma)
	denominator := term * term * term
	return numerator / denominator
}

// SumLorentzianD2 evaluates the sum of peaks' second derivatives at
// each point in x.
func SumLorentzianD2(x []float64, peaks []PeakParams) []float64 {
	out := make([]float64, len(x))
	for i, xv := range x {
		var sum float64
		for _, p := range peaks {
			sum += lorentzianD2(xv, p)
		}
		out[i] = sum
	}
	return out
}
