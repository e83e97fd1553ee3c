// Package xasanalysis normalizes, averages, and differentiates XAS
// scans.
package xasanalysis

// PreEdgeResult is what an external pre-edge normalization provider
// yields for one (energy, mu) curve.
type PreEdgeResult struct {
	Norm         []float64
	E0           float64
	EdgeStep     float64
	PreEdgeLine  []float64
	PostEdgeLine []float64
	// ActualPre1/2, ActualNorm1/2 are the pre/post-edge ranges (relative
	// to E0, in eV) the provider actually used — it may auto-detect
	// these when the caller passes nil.
	ActualPre1  float64
	ActualPre2  float64
	ActualNorm1 float64
	ActualNorm2 float64
}

// PreEdgeProvider is the injected pre-edge normalization contract: the
// upstream implementation is opaque to this package, and any backend
// satisfying the interface can serve.
type PreEdgeProvider interface {
	PreEdge(energy, mu []float64, pre1, pre2, norm1, norm2 *float64) (*PreEdgeResult, error)
}

// NormalizedScan is the result of normalizing a single XAS scan,
// with the actual pre/post-edge windows the provider settled on.
type NormalizedScan struct {
	Energy             []float64
	Mu                 []float64
	Norm               []float64
	E0                 float64
	EdgeStep           float64
	PreEdgeLine        []float64
	PostEdgeLine       []float64
	Pre1, Pre2         float64
	Norm1, Norm2       float64
	Aligned            bool
	EnergyShiftApplied float64
	E0BeforeAlignment  *float64
}

// ScanStatus is the per-scan review state used to gate averaging.
type ScanStatus string

const (
	StatusGood       ScanStatus = "good"
	StatusIgnore     ScanStatus = "ignore"
	StatusUnreviewed ScanStatus = "unreviewed"
)

// ScanParams holds the saved normalization parameters and review status
// for one scan within a dataset.
type ScanParams struct {
	Status        ScanStatus
	Pre1, Pre2    *float64
	Norm1, Norm2  *float64
	EnergyShiftEV *float64
}

// AveragedData is the result of averaging multiple normalized scans,
// with per-bin mean and sample standard deviation.
type AveragedData struct {
	Energy         []float64
	Norm           []float64
	Std            []float64
	E0             float64
	NScans         int
	ScanList       []string
	IndividualNorm [][]float64
}

// MeanStd returns the mean standard deviation across all energy points.
func (a *AveragedData) MeanStd() float64 {
	return mean(a.Std)
}

// ScanContribution reports how much removing one scan would change the
// averaged standard deviation.
type ScanContribution struct {
	ScanKey        string
	MeanStdWithout float64
	Improvement    float64 // positive: removing this scan would reduce std
}

// ContributionAnalysis performs the leave-one-out variance analysis of
// leave-one-out analysis: for each scan, recompute the
// per-point stddev over every other scan and compare its mean against
// the full-set baseline.
func (a *AveragedData) ContributionAnalysis() []ScanContribution {
	if len(a.IndividualNorm) < 2 {
		return nil
	}
	baseline := a.MeanStd()
	out := make([]ScanContribution, 0, len(a.ScanList))
	for i, key := range a.ScanList {
		var others [][]float64
		for j, n := range a.IndividualNorm {
			if j != i {
				others = append(others, n)
			}
		}
		var meanStdWithout, improvement float64
		if len(others) > 0 {
			stdWithout := stddevAcross(others)
			meanStdWithout = mean(stdWithout)
			improvement = baseline - meanStdWithout
		}
		out = append(out, ScanContribution{
			ScanKey:        key,
			MeanStdWithout: meanStdWithout,
			Improvement:    improvement,
		})
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
