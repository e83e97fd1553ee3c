package xasanalysis

import (
	"github.com/echemlab/specimen/internal/xasio"
)

// NormalizeOptions are the optional parameters of a single-scan
// normalization; nil fields request auto-selection downstream.
type NormalizeOptions struct {
	Pre1, Pre2    *float64
	Norm1, Norm2  *float64
	EnergyMinKeV  *float64
	EnergyMaxKeV  *float64
	EnergyShiftEV *float64
}

// NormalizeSingleScan reads one scan's energy/mu data and runs it
// through the pre-edge provider, optionally pre-aligning the energy
// axis by a calibration shift. When an energy shift is requested, E0 is
// first
// captured on the unshifted curve (e0_before_alignment) before the
// shift is applied and normalization is repeated on the shifted curve.
func NormalizeSingleScan(
	reader xasio.H5Reader,
	h5File, scanKey, numerator, denominator string,
	cfg xasio.BeamlineConfig,
	pre PreEdgeProvider,
	opts NormalizeOptions,
) (*NormalizedScan, error) {
	sd, err := xasio.ReadScanData(reader, h5File, scanKey, numerator, denominator, cfg, opts.EnergyMinKeV, opts.EnergyMaxKeV)
	if err != nil {
		return nil, err
	}

	energy := sd.EnergyEV
	mu := sd.Mu

	var e0BeforeAlignment *float64
	aligned := false
	shift := 0.0
	if opts.EnergyShiftEV != nil && *opts.EnergyShiftEV != 0 {
		pre1 := before(energy, mu, pre, opts)
		e0BeforeAlignment = &pre1
		shifted := make([]float64, len(energy))
		for i, e := range energy {
			shifted[i] = e + *opts.EnergyShiftEV
		}
		energy = shifted
		aligned = true
		shift = *opts.EnergyShiftEV
	}

	result, err := pre.PreEdge(energy, mu, opts.Pre1, opts.Pre2, opts.Norm1, opts.Norm2)
	if err != nil {
		return nil, err
	}

	return &NormalizedScan{
		Energy:             energy,
		Mu:                 mu,
		Norm:               result.Norm,
		E0:                 result.E0,
		EdgeStep:           result.EdgeStep,
		PreEdgeLine:        result.PreEdgeLine,
		PostEdgeLine:       result.PostEdgeLine,
		Pre1:               result.ActualPre1,
		Pre2:               result.ActualPre2,
		Norm1:              result.ActualNorm1,
		Norm2:              result.ActualNorm2,
		Aligned:            aligned,
		EnergyShiftApplied: shift,
		E0BeforeAlignment:  e0BeforeAlignment,
	}, nil
}

func before(energy, mu []float64, pre PreEdgeProvider, opts NormalizeOptions) float64 {
	r, err := pre.PreEdge(energy, mu, opts.Pre1, opts.Pre2, opts.Norm1, opts.Norm2)
	if err != nil {
		return 0
	}
	return r.E0
}
