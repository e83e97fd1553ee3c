package peakfit

// EstimateInitialGuesses proposes starting parameters for FitPeaks from
// the data itself: the primary peak at the global minimum of d2mu, its
// width estimated from the half-height crossing points, and any
// additional peaks spaced 5 eV apart with half the primary amplitude.
func EstimateInitialGuesses(energy, d2mu []float64, nPeaks int) []PeakParams {
	if len(d2mu) == 0 {
		return nil
	}

	minIdx := 0
	minA := d2mu[0]
	for i, v := range d2mu {
		if v < minA {
			minA = v
			minIdx = i
		}
	}
	minX0 := energy[minIdx]

	halfHeight := minA / 2
	gamma := 5.0
	leftIdx := 0
	for i := minIdx; i >= 0; i-- {
		if d2mu[i] > halfHeight {
			leftIdx = minIdx - i
			break
		}
	}
	rightIdx := 0
	for i := minIdx; i < len(d2mu); i++ {
		if d2mu[i] > halfHeight {
			rightIdx = i - minIdx
			break
		}
	}
	if leftIdx > 0 || rightIdx > 0 {
		loIdx := minIdx - leftIdx
		hiIdx := minIdx + rightIdx
		if loIdx >= 0 && hiIdx < len(energy) {
			fwhm := energy[hiIdx] - energy[loIdx]
			g := fwhm / 2
			if g > 1.0 {
				gamma = g
			} else {
				gamma = 1.0
			}
		}
	}

	guesses := []PeakParams{{A: minA, X0: minX0, Gamma: gamma}}
	for i := 1; i < nPeaks; i++ {
		offset := float64(i) * 5.0
		guesses = append(guesses, PeakParams{A: minA * 0.5, X0: minX0 + offset, Gamma: gamma})
	}
	return guesses
}
