package xasproject

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/echemlab/specimen/internal/errs"
	"github.com/echemlab/specimen/internal/xasanalysis"
	"github.com/stretchr/testify/require"
)

// makeProjectTree lays out sample/dataset/*.h5 under a temp dir.
func makeProjectTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, p := range []string{
		"SampleA/run1/scan_0001.h5",
		"SampleA/run1/scan_0002.h5",
		"SampleA/run2/scan_0001.h5",
		"SampleB/run1/scan_0001.h5",
	} {
		full := filepath.Join(root, p)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte("h5"), 0644))
	}
	return root
}

func TestOpenScansAndSeeds(t *testing.T) {
	root := makeProjectTree(t)
	p, err := Open(root, nil, nil)
	require.NoError(t, err)

	ds := p.Datasets()
	require.Len(t, ds, 3)
	require.Equal(t, "SampleA", ds[0].Sample)
	require.Equal(t, "run1", ds[0].Dataset)
	require.Len(t, ds[0].H5Files, 2)

	rois := p.ROIConfigs()
	require.NotEmpty(t, rois)

	// the document store landed on disk
	_, err = os.Stat(filepath.Join(root, DBFilename))
	require.NoError(t, err)
}

func TestReopenKeepsState(t *testing.T) {
	root := makeProjectTree(t)
	p, err := Open(root, nil, nil)
	require.NoError(t, err)

	require.NoError(t, p.SetValidScans("SampleA", "run1", []string{"1.1", "1.2"}))
	require.NoError(t, p.UpsertScan(ScanRecord{
		Sample: "SampleA", Dataset: "run1", ROI: "Ir_Pt", Scan: "1.1",
		Status: xasanalysis.StatusGood,
	}))

	p2, err := Open(root, nil, nil)
	require.NoError(t, err)
	rec, err := p2.Dataset("SampleA", "run1")
	require.NoError(t, err)
	require.Equal(t, []string{"1.1", "1.2"}, rec.ValidScans)
	sc, err := p2.Scan("SampleA", "run1", "Ir_Pt", "1.1")
	require.NoError(t, err)
	require.Equal(t, xasanalysis.StatusGood, sc.Status)
}

func TestUpsertScanKeyedByTuple(t *testing.T) {
	root := makeProjectTree(t)
	p, err := Open(root, nil, nil)
	require.NoError(t, err)

	require.NoError(t, p.UpsertScan(ScanRecord{Sample: "SampleA", Dataset: "run1", ROI: "Pt", Scan: "1.1"}))
	require.NoError(t, p.UpsertScan(ScanRecord{
		Sample: "SampleA", Dataset: "run1", ROI: "Pt", Scan: "1.1",
		Status: xasanalysis.StatusIgnore,
	}))
	scans := p.Scans("SampleA", "run1", "Pt")
	require.Len(t, scans, 1)
	require.Equal(t, xasanalysis.StatusIgnore, scans[0].Status)
}

func TestScanDefaultsUnreviewed(t *testing.T) {
	root := makeProjectTree(t)
	p, err := Open(root, nil, nil)
	require.NoError(t, err)
	require.NoError(t, p.UpsertScan(ScanRecord{Sample: "SampleA", Dataset: "run1", ROI: "Pt", Scan: "2.1"}))
	sc, err := p.Scan("SampleA", "run1", "Pt", "2.1")
	require.NoError(t, err)
	require.Equal(t, xasanalysis.StatusUnreviewed, sc.Status)
}

func TestDeleteROIInUse(t *testing.T) {
	root := makeProjectTree(t)
	p, err := Open(root, nil, nil)
	require.NoError(t, err)

	require.NoError(t, p.UpsertScan(ScanRecord{Sample: "SampleA", Dataset: "run1", ROI: "Ir_Pt", Scan: "1.1"}))
	err = p.DeleteROIConfig("Ir_Pt")
	var iu *errs.InUseError
	require.ErrorAs(t, err, &iu)
	require.Equal(t, 1, iu.Count)

	// unreferenced ROI deletes cleanly
	require.NoError(t, p.DeleteROIConfig("Pt"))
	_, err = p.ROIConfig("Pt")
	require.Error(t, err)
}

func TestDeleteReferenceInUse(t *testing.T) {
	root := makeProjectTree(t)
	p, err := Open(root, nil, nil)
	require.NoError(t, err)

	require.NoError(t, p.UpsertReference(ReferenceRecord{
		Name: "Pt-foil", Element: "Pt",
		SourceSample: "SampleB", SourceDataset: "run1",
		Scans: []string{"1.1"}, MeasuredE0: 11563.1, TargetE0: 11564.0, EnergyShift: 0.9,
	}))
	ref, err := p.Reference("Pt-foil")
	require.NoError(t, err)
	require.NotEmpty(t, ref.CreatedDate)

	require.NoError(t, p.UpsertScan(ScanRecord{
		Sample: "SampleA", Dataset: "run1", ROI: "Pt", Scan: "1.1",
		ReferenceName: "Pt-foil", EnergyShift: 0.9, Aligned: true,
	}))
	err = p.DeleteReference("Pt-foil")
	var iu *errs.InUseError
	require.ErrorAs(t, err, &iu)

	// unlink the scan, then deletion proceeds
	require.NoError(t, p.UpsertScan(ScanRecord{
		Sample: "SampleA", Dataset: "run1", ROI: "Pt", Scan: "1.1",
	}))
	require.NoError(t, p.DeleteReference("Pt-foil"))
}

func TestPeakFitUpsert(t *testing.T) {
	root := makeProjectTree(t)
	p, err := Open(root, nil, nil)
	require.NoError(t, err)

	require.NoError(t, p.UpsertPeakFit(PeakFitRecord{
		Sample: "SampleA", Dataset: "run1", ROI: "Pt",
		NPeaks: 2, Params: []float64{-1, 11564, 2, -0.5, 11569, 2},
		SavgolWindow: 7, SavgolPoly: 3,
		EnergyRange: [2]float64{11550, 11600}, RSquared: 0.98,
	}))
	require.NoError(t, p.UpsertPeakFit(PeakFitRecord{
		Sample: "SampleA", Dataset: "run1", ROI: "Pt",
		NPeaks: 1, Params: []float64{-1, 11564, 2},
		EnergyRange: [2]float64{11550, 11600}, RSquared: 0.91,
	}))
	fit, err := p.PeakFit("SampleA", "run1", "Pt")
	require.NoError(t, err)
	require.Equal(t, 1, fit.NPeaks)
	require.NotEmpty(t, fit.UpdatedDate)
}

func TestScanParamsFor(t *testing.T) {
	root := makeProjectTree(t)
	p, err := Open(root, nil, nil)
	require.NoError(t, err)

	pre1 := -150.0
	require.NoError(t, p.UpsertScan(ScanRecord{
		Sample: "SampleA", Dataset: "run1", ROI: "Pt", Scan: "1.1",
		Status: xasanalysis.StatusGood, Pre1: &pre1, EnergyShift: 1.5,
	}))
	params := p.ScanParamsFor("SampleA", "run1", "Pt")
	require.Len(t, params, 1)
	sp := params["1.1"]
	require.Equal(t, xasanalysis.StatusGood, sp.Status)
	require.Equal(t, -150.0, *sp.Pre1)
	require.Equal(t, 1.5, *sp.EnergyShiftEV)
}

func TestHolderSingleton(t *testing.T) {
	var h Holder
	_, err := h.Current()
	require.Error(t, err)

	rootA := makeProjectTree(t)
	pa, err := h.Open(rootA, nil, nil)
	require.NoError(t, err)
	cur, err := h.Current()
	require.NoError(t, err)
	require.Equal(t, pa, cur)

	rootB := makeProjectTree(t)
	pb, err := h.Open(rootB, nil, nil)
	require.NoError(t, err)
	cur, err = h.Current()
	require.NoError(t, err)
	require.Equal(t, pb, cur)
	require.NotEqual(t, pa.Path(), pb.Path())

	h.Close()
	_, err = h.Current()
	require.Error(t, err)
}
