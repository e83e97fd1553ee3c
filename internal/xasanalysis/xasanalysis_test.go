package xasanalysis

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/echemlab/specimen/internal/xasio"
)

type fakePreEdge struct{ e0 float64 }

func (f *fakePreEdge) PreEdge(energy, mu []float64, pre1, pre2, norm1, norm2 *float64) (*PreEdgeResult, error) {
	norm := make([]float64, len(mu))
	for i, v := range mu {
		norm[i] = v / 2
	}
	return &PreEdgeResult{
		Norm: norm, E0: f.e0, EdgeStep: 1.0,
		PreEdgeLine: mu, PostEdgeLine: mu,
		ActualPre1: -30, ActualPre2: -10, ActualNorm1: 50, ActualNorm2: 150,
	}, nil
}

type fakeXASReader struct {
	energy map[string][]float64
	mu     map[string][]float64
}

func (f *fakeXASReader) ScanKeys(h5File string) ([]string, error) { return nil, nil }
func (f *fakeXASReader) ParentPaths(h5File, scanKey string) ([]string, error) {
	return []string{"instrument"}, nil
}
func (f *fakeXASReader) Channels(h5File, scanKey, parentPath string) ([]string, error) {
	return nil, nil
}
func (f *fakeXASReader) HasChannel(h5File, scanKey, parentPath, channelName string) bool {
	return true
}
func (f *fakeXASReader) ReadChannel(h5File, scanKey, parentPath, channelName string) (xasio.Value, error) {
	if channelName == "energy_enc" {
		return xasio.ArrayValue(f.energy[scanKey]), nil
	}
	return xasio.ArrayValue(f.mu[scanKey]), nil
}

func TestNormalizeSingleScanNoShift(t *testing.T) {
	reader := &fakeXASReader{
		energy: map[string][]float64{"1.1": {7.0, 7.1, 7.2}},
		mu:     map[string][]float64{"1.1": {2, 4, 6}},
	}
	cfg := xasio.BeamlineConfigs["BM23"]
	scan, err := NormalizeSingleScan(reader, "f.h5", "1.1", "Ir_Pt_corr", "", cfg, &fakePreEdge{e0: 7100}, NormalizeOptions{})
	require.NoError(t, err)
	require.False(t, scan.Aligned)
	require.Equal(t, []float64{7000, 7100, 7200}, scan.Energy)
	require.Equal(t, []float64{1, 2, 3}, scan.Norm)
	require.Equal(t, 7100.0, scan.E0)
}

func TestNormalizeSingleScanWithShift(t *testing.T) {
	reader := &fakeXASReader{
		energy: map[string][]float64{"1.1": {7.0, 7.1, 7.2}},
		mu:     map[string][]float64{"1.1": {2, 4, 6}},
	}
	cfg := xasio.BeamlineConfigs["BM23"]
	shift := 5.0
	scan, err := NormalizeSingleScan(reader, "f.h5", "1.1", "Ir_Pt_corr", "", cfg, &fakePreEdge{e0: 7100}, NormalizeOptions{EnergyShiftEV: &shift})
	require.NoError(t, err)
	require.True(t, scan.Aligned)
	require.NotNil(t, scan.E0BeforeAlignment)
	require.Equal(t, []float64{7005, 7105, 7205}, scan.Energy)
}

func TestAverageScansForDatasetNoGoodScans(t *testing.T) {
	reader := &fakeXASReader{}
	cfg := xasio.BeamlineConfigs["BM23"]
	avg, err := AverageScansForDataset(reader, "f.h5", map[string]ScanParams{"1.1": {Status: StatusIgnore}}, "Ir_Pt_corr", "", cfg, &fakePreEdge{}, nil, nil)
	require.NoError(t, err)
	require.Nil(t, avg)
}

func TestAverageScansForDatasetComputesStats(t *testing.T) {
	reader := &fakeXASReader{
		energy: map[string][]float64{
			"1.1": {7.0, 7.1},
			"1.2": {7.0, 7.1},
		},
		mu: map[string][]float64{
			"1.1": {2, 4},
			"1.2": {4, 8},
		},
	}
	cfg := xasio.BeamlineConfigs["BM23"]
	params := map[string]ScanParams{
		"1.1": {Status: StatusGood},
		"1.2": {Status: StatusGood},
	}
	avg, err := AverageScansForDataset(reader, "f.h5", params, "Ir_Pt_corr", "", cfg, &fakePreEdge{e0: 7100}, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, avg)
	require.Equal(t, 2, avg.NScans)
	require.InDelta(t, 1.5, avg.Norm[0], 1e-9)
	contributions := avg.ContributionAnalysis()
	require.Len(t, contributions, 2)
}

func TestCalculateDerivativeFirstOrderLinear(t *testing.T) {
	energy := []float64{0, 1, 2, 3, 4}
	data := []float64{0, 2, 4, 6, 8}
	deriv, err := CalculateDerivative(energy, data, 1, 1)
	require.NoError(t, err)
	for _, v := range deriv {
		require.InDelta(t, 2.0, v, 1e-9)
	}
}

func TestCalculateDerivativeInvalidOrder(t *testing.T) {
	_, err := CalculateDerivative([]float64{0, 1}, []float64{0, 1}, 3, 1)
	require.Error(t, err)
}
