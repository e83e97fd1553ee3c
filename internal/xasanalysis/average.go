package xasanalysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/echemlab/specimen/internal/xasio"
)

// meanAcross returns the per-index mean over a set of equal-length
// curves, via gonum/stat.Mean.
func meanAcross(curves [][]float64) []float64 {
	if len(curves) == 0 {
		return nil
	}
	n := len(curves[0])
	out := make([]float64, n)
	col := make([]float64, len(curves))
	for i := 0; i < n; i++ {
		for j, c := range curves {
			col[j] = c[i]
		}
		out[i] = stat.Mean(col, nil)
	}
	return out
}

// stddevAcross returns the per-index population standard deviation
// (ddof=0, matching np.std's default) over a set of equal-length
// curves.
func stddevAcross(curves [][]float64) []float64 {
	if len(curves) == 0 {
		return nil
	}
	n := len(curves[0])
	out := make([]float64, n)
	col := make([]float64, len(curves))
	for i := 0; i < n; i++ {
		for j, c := range curves {
			col[j] = c[i]
		}
		m := stat.Mean(col, nil)
		var ss float64
		for _, v := range col {
			d := v - m
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(len(col)))
	}
	return out
}

// AverageScansForDataset averages the 'good' scans of a dataset using
// per-scan saved normalization parameters. Returns nil if no scan has
// status "good". Scans that fail to normalize are skipped, not fatal.
func AverageScansForDataset(
	reader xasio.H5Reader,
	h5File string,
	scanParams map[string]ScanParams,
	numerator, denominator string,
	cfg xasio.BeamlineConfig,
	pre PreEdgeProvider,
	energyMinKeV, energyMaxKeV *float64,
) (*AveragedData, error) {
	var goodKeys []string
	for k, p := range scanParams {
		if p.Status == StatusGood {
			goodKeys = append(goodKeys, k)
		}
	}
	sort.Strings(goodKeys)
	if len(goodKeys) == 0 {
		return nil, nil
	}

	type normalized struct {
		key  string
		scan *NormalizedScan
	}
	var results []normalized
	for _, key := range goodKeys {
		p := scanParams[key]
		opts := NormalizeOptions{
			Pre1: p.Pre1, Pre2: p.Pre2,
			Norm1: p.Norm1, Norm2: p.Norm2,
			EnergyMinKeV: energyMinKeV, EnergyMaxKeV: energyMaxKeV,
			EnergyShiftEV: p.EnergyShiftEV,
		}
		scan, err := NormalizeSingleScan(reader, h5File, key, numerator, denominator, cfg, pre, opts)
		if err != nil {
			continue
		}
		results = append(results, normalized{key: key, scan: scan})
	}
	if len(results) == 0 {
		return nil, nil
	}

	avgEnergy := results[0].scan.Energy
	norms := make([][]float64, len(results))
	e0s := make([]float64, len(results))
	keys := make([]string, len(results))
	for i, r := range results {
		norms[i] = r.scan.Norm
		e0s[i] = r.scan.E0
		keys[i] = r.key
	}

	avgNorm := meanAcross(norms)
	var avgStd []float64
	if len(norms) > 1 {
		avgStd = stddevAcross(norms)
	} else {
		avgStd = make([]float64, len(avgNorm))
	}

	return &AveragedData{
		Energy:         avgEnergy,
		Norm:           avgNorm,
		Std:            avgStd,
		E0:             stat.Mean(e0s, nil),
		NScans:         len(results),
		ScanList:       keys,
		IndividualNorm: norms,
	}, nil
}
