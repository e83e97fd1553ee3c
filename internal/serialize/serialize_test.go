package serialize

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/echemlab/specimen/internal/dataset"
	"github.com/echemlab/specimen/internal/errs"
	"github.com/echemlab/specimen/internal/units"
	"github.com/stretchr/testify/require"
)

func sampleDataset() *dataset.Dataset {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	return &dataset.Dataset{
		Filename:  "CV_run_01.mpr",
		Technique: "CV",
		Label:     "CV run",
		Timestamp: &ts,
		Table: &dataset.Table{
			Columns: []string{units.PotentialV, units.CurrentA},
			Data: map[string][]float64{
				units.PotentialV: {0.1, 0.2, 0.3, 0.4},
				units.CurrentA:   {1e-3, 2e-3, 3e-3, 4e-3},
			},
			Cycle: []int64{1, 1, 2, 2},
		},
		Cycles:           []int64{1, 2},
		SourceFormat:     "biologic",
		OriginalFilename: "CV_run_01.mpr",
		UserMetadata:     map[string]string{},
	}
}

func zipNames(t *testing.T, content []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	require.NoError(t, err)
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func TestExportLayout(t *testing.T) {
	content, err := Export([]*dataset.Dataset{sampleDataset()}, ExportOptions{
		PlotsConfig: []PlotConfig{{"name": "nyquist", "x": "z_real_Ohm"}},
		PlotCodes:   map[string]string{"ny quist/1": "print('hi')"},
	})
	require.NoError(t, err)

	names := zipNames(t, content)
	require.Contains(t, names, "metadata.json")
	require.Contains(t, names, "data/CV_run_01.mpr.parquet")
	require.Contains(t, names, "plots/plots.json")
	require.Contains(t, names, "plots/ny_quist_1.py")
	require.Contains(t, names, "file_table.csv")
}

func TestRoundTrip(t *testing.T) {
	orig := sampleDataset()
	content, err := Export([]*dataset.Dataset{orig}, ExportOptions{
		FileMetadata: map[string]map[string]string{
			"CV_run_01.mpr": {"label": "renamed", "operator": "hc"},
		},
	})
	require.NoError(t, err)

	res, err := Import(content)
	require.NoError(t, err)
	require.Len(t, res.Datasets, 1)

	ds := res.Datasets[0]
	require.Equal(t, orig.Filename, ds.Filename)
	require.Equal(t, orig.Technique, ds.Technique)
	require.Equal(t, "renamed", ds.Label)
	require.Equal(t, orig.Cycles, ds.Cycles)
	require.Equal(t, orig.SourceFormat, ds.SourceFormat)
	require.Equal(t, orig.Table.Columns, ds.Table.Columns)
	require.Equal(t, orig.Table.Cycle, ds.Table.Cycle)
	for _, c := range orig.Table.Columns {
		require.InDeltaSlice(t, orig.Table.Data[c], ds.Table.Data[c], 0)
	}
	require.NotNil(t, ds.Timestamp)
	require.True(t, orig.Timestamp.Equal(*ds.Timestamp))

	require.Equal(t, "hc", res.FileMetadata["CV_run_01.mpr"]["operator"])
	require.Equal(t, "renamed", res.FileMetadata["CV_run_01.mpr"]["label"])
}

func TestCSVOnlyRoundTrip(t *testing.T) {
	orig := sampleDataset()
	content, err := Export([]*dataset.Dataset{orig}, ExportOptions{CSVOnly: true})
	require.NoError(t, err)

	names := zipNames(t, content)
	require.Contains(t, names, "data/CV_run_01.mpr.csv")
	require.NotContains(t, names, "data/CV_run_01.mpr.parquet")

	res, err := Import(content)
	require.NoError(t, err)
	require.Len(t, res.Datasets, 1)
	ds := res.Datasets[0]
	require.InDeltaSlice(t, orig.Table.Data[units.CurrentA], ds.Table.Data[units.CurrentA], 0)
	require.Equal(t, orig.Table.Cycle, ds.Table.Cycle)
}

func TestImportLegacyContainer(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.Create("metadata.csv")
	require.NoError(t, err)
	cw := csv.NewWriter(w)
	require.NoError(t, cw.Write([]string{"filename", "label", "technique", "timestamp"}))
	require.NoError(t, cw.Write([]string{"old.DTA", "old run", "LSV", "2023-01-15T08:00:00"}))
	cw.Flush()

	w, err = zw.Create("data/old.DTA.csv")
	require.NoError(t, err)
	_, err = w.Write([]byte("potential_V,current_A\n0.1,0.001\n0.2,0.002\n"))
	require.NoError(t, err)

	w, err = zw.Create("plot_settings.json")
	require.NoError(t, err)
	_, err = w.Write([]byte(`{"x_axis": "potential_V"}`))
	require.NoError(t, err)

	require.NoError(t, zw.Close())

	res, err := Import(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, res.Datasets, 1)
	ds := res.Datasets[0]
	require.Equal(t, "old.DTA", ds.Filename)
	require.Equal(t, "LSV", ds.Technique)
	require.Equal(t, 2, ds.Table.Len())
	require.NotNil(t, ds.Timestamp)
	require.Equal(t, "potential_V", res.UIState["x_axis"])
	require.Equal(t, "old run", res.FileMetadata["old.DTA"]["label"])
}

func TestImportLegacyFieldAliases(t *testing.T) {
	orig := sampleDataset()
	content, err := Export([]*dataset.Dataset{orig}, ExportOptions{})
	require.NoError(t, err)

	// rewrite metadata.json to use the v1 parquet_path alias and the
	// legacy source field
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	require.NoError(t, err)
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		payload, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		if f.Name == "metadata.json" {
			var meta map[string]interface{}
			require.NoError(t, json.Unmarshal(payload, &meta))
			files := meta["files"].([]interface{})
			entry := files[0].(map[string]interface{})
			entry["parquet_path"] = entry["data_path"]
			delete(entry, "data_path")
			entry["source"] = "biologic"
			delete(entry, "source_format")
			payload, err = json.Marshal(meta)
			require.NoError(t, err)
		}
		w, err := zw.Create(f.Name)
		require.NoError(t, err)
		_, err = w.Write(payload)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	res, err := Import(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, res.Datasets, 1)
	require.Equal(t, "biologic", res.Datasets[0].SourceFormat)
	require.Equal(t, 4, res.Datasets[0].Table.Len())
}

func TestImportMissingRegistry(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("readme.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("nothing here"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = Import(buf.Bytes())
	var fe *errs.FormatError
	require.ErrorAs(t, err, &fe)
}

func TestImportNotAZip(t *testing.T) {
	_, err := Import([]byte("plainly not a zip"))
	var fe *errs.FormatError
	require.ErrorAs(t, err, &fe)
}

func TestParseTimestampTolerant(t *testing.T) {
	require.NotNil(t, parseTimestamp("2024-03-01T12:30:00Z"))
	require.NotNil(t, parseTimestamp("2024-03-01T12:30:00"))
	require.NotNil(t, parseTimestamp("2024-03-01"))
	require.Nil(t, parseTimestamp("not-a-time"))
	require.Nil(t, parseTimestamp(""))
}
