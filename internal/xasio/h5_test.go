package xasio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	scanKeys map[string][]string
	parents  map[string][]string // h5File|scanKey -> parents
	channels map[string]Value    // h5File|scanKey|parent|channel -> value
}

func key(parts ...string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += "|" + p
	}
	return out
}

func (f *fakeReader) ScanKeys(h5File string) ([]string, error) {
	return f.scanKeys[h5File], nil
}

func (f *fakeReader) ParentPaths(h5File, scanKey string) ([]string, error) {
	return f.parents[key(h5File, scanKey)], nil
}

func (f *fakeReader) Channels(h5File, scanKey, parentPath string) ([]string, error) {
	var out []string
	prefix := key(h5File, scanKey, parentPath) + "|"
	for k := range f.channels {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, k[len(prefix):])
		}
	}
	return out, nil
}

func (f *fakeReader) HasChannel(h5File, scanKey, parentPath, channelName string) bool {
	_, ok := f.channels[key(h5File, scanKey, parentPath, channelName)]
	return ok
}

func (f *fakeReader) ReadChannel(h5File, scanKey, parentPath, channelName string) (Value, error) {
	v, ok := f.channels[key(h5File, scanKey, parentPath, channelName)]
	if !ok {
		return Value{}, os.ErrNotExist
	}
	return v, nil
}

func newFakeBM23() *fakeReader {
	return &fakeReader{
		scanKeys: map[string][]string{"f.h5": {"2.1", "1.1", "1.2"}},
		parents: map[string][]string{
			key("f.h5", "1.1"): {"instrument"},
			key("f.h5", "1.2"): {"instrument"},
			key("f.h5", "2.1"): {"instrument"},
		},
		channels: map[string]Value{
			key("f.h5", "1.1", "instrument", "energy_enc"):       ArrayValue([]float64{7.0, 7.1, 7.2}),
			key("f.h5", "1.1", "instrument", "I0"):               ArrayValue([]float64{10, 10, 10}),
			key("f.h5", "1.1", "instrument", "Ir_Pt_corr_det00"): ArrayValue([]float64{5, 6, 7}),
			key("f.h5", "1.2", "instrument", "energy_enc"):       ArrayValue([]float64{7.0, 7.1}),
			key("f.h5", "2.1", "instrument", "energy_enc"):       ArrayValue([]float64{7.0, 7.1}),
		},
	}
}

func TestFindValidScansNaturalSort(t *testing.T) {
	reader := newFakeBM23()
	cfg := BeamlineConfigs["BM23"]
	scans, err := FindValidScans(reader, "f.h5", cfg, "")
	require.NoError(t, err)
	require.Equal(t, []string{"1.1", "1.2", "2.1"}, scans)
}

func TestFindValidScansRequiresNumerator(t *testing.T) {
	reader := newFakeBM23()
	cfg := BeamlineConfigs["BM23"]
	scans, err := FindValidScans(reader, "f.h5", cfg, "Ir_Pt_corr")
	require.NoError(t, err)
	require.Equal(t, []string{"1.1"}, scans)
}

func TestReadScanDataConvertsKeVToEV(t *testing.T) {
	reader := newFakeBM23()
	cfg := BeamlineConfigs["BM23"]
	sd, err := ReadScanData(reader, "f.h5", "1.1", "Ir_Pt_corr", "I0", cfg, nil, nil)
	require.NoError(t, err)
	require.Equal(t, []float64{7000, 7100, 7200}, sd.EnergyEV)
	require.Equal(t, []float64{0.5, 0.6, 0.7}, sd.Mu)
}

func TestEvaluateChannelExpressionLoadsOnlyReferenced(t *testing.T) {
	reader := newFakeBM23()
	avail := []string{"instrument/energy_enc", "instrument/I0", "instrument/Ir_Pt_corr_det00"}
	v, err := EvaluateChannelExpression(reader, "f.h5", "1.1", "Ir_Pt_corr_det00 / I0", avail)
	require.NoError(t, err)
	require.InDelta(t, 0.5, v.Array[0], 1e-9)
}

func TestScanForDatasetsFindsH5Files(t *testing.T) {
	root := t.TempDir()
	dsDir := filepath.Join(root, "raw", "SampleA", "Dataset1")
	require.NoError(t, os.MkdirAll(dsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dsDir, "scan_001.h5"), []byte("x"), 0o644))

	found, err := ScanForDatasets(root, []string{"raw"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "SampleA", found[0].Sample)
	require.Equal(t, "Dataset1", found[0].Dataset)
	require.Len(t, found[0].H5Files, 1)
}
