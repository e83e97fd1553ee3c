package serialize

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"sort"
	"time"

	"github.com/klauspost/compress/flate"

	"github.com/echemlab/specimen/internal/dataset"
)

// ExportOptions controls what lands in the container beyond the data
// files themselves.
type ExportOptions struct {
	// IncludeCSV also writes a CSV sibling next to each Parquet file.
	IncludeCSV bool
	// CSVOnly writes CSV data files instead of Parquet (the
	// Excel-friendly export flavor).
	CSVOnly bool
	// PlotsConfig, when non-empty, is written to plots/plots.json.
	PlotsConfig []PlotConfig
	// PlotCodes maps plot name -> generated script, written under
	// plots/ with sanitized names.
	PlotCodes map[string]string
	// PlotSettings is the legacy single-plot UI state; written as
	// ui_state.json only when PlotsConfig is empty.
	PlotSettings map[string]interface{}
	// FileMetadata maps filename -> custom column values; a "label"
	// key overrides the dataset's label in the registry.
	FileMetadata map[string]map[string]string
}

// newZipWriter returns a zip writer with a faster DEFLATE than the
// stdlib default.
func newZipWriter(buf *bytes.Buffer) *zip.Writer {
	zw := zip.NewWriter(buf)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})
	return zw
}

func writeZipFile(zw *zip.Writer, name string, content []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(content)
	return err
}

// sanitizePlotName keeps alphanumerics, dash, and underscore; anything
// else becomes an underscore.
func sanitizePlotName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// Export writes datasets and their registry into a schema-2 zip
// container and returns the container bytes.
func Export(datasets []*dataset.Dataset, opts ExportOptions) ([]byte, error) {
	var buf bytes.Buffer
	zw := newZipWriter(&buf)

	meta := Metadata{
		SchemaVersion: SchemaVersion,
		Format:        FormatName,
		ExportedAt:    time.Now().UTC().Format(time.RFC3339),
	}

	for _, ds := range datasets {
		var dataPath string
		if opts.CSVOnly {
			dataPath = "data/" + ds.Filename + ".csv"
			content, err := encodeCSV(ds.Table)
			if err != nil {
				return nil, err
			}
			if err = writeZipFile(zw, dataPath, content); err != nil {
				return nil, err
			}
		} else {
			dataPath = "data/" + ds.Filename + ".parquet"
			content, err := encodeParquet(ds.Table)
			if err != nil {
				return nil, err
			}
			if err = writeZipFile(zw, dataPath, content); err != nil {
				return nil, err
			}
			if opts.IncludeCSV {
				csvContent, err := encodeCSV(ds.Table)
				if err != nil {
					return nil, err
				}
				if err = writeZipFile(zw, "data/"+ds.Filename+".csv", csvContent); err != nil {
					return nil, err
				}
			}
		}

		label := ds.Label
		custom := map[string]string{}
		for k, v := range opts.FileMetadata[ds.Filename] {
			if k == "label" {
				label = v
				continue
			}
			custom[k] = v
		}

		entry := FileEntry{
			Filename:     ds.Filename,
			DataPath:     dataPath,
			Technique:    ds.Technique,
			SourceFormat: ds.SourceFormat,
			Columns:      dataColumns(ds.Table),
			Cycles:       ds.Cycles,
			Label:        label,
			Custom:       custom,
		}
		if ds.Timestamp != nil {
			entry.Timestamp = ds.Timestamp.UTC().Format(time.RFC3339)
		}
		if ds.OriginalFilename != "" || ds.FileHash != "" {
			entry.Provenance = &Provenance{
				OriginalFilename: ds.OriginalFilename,
				FileHash:         ds.FileHash,
			}
		}
		meta.Files = append(meta.Files, entry)
	}

	metaContent, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return nil, err
	}
	if err = writeZipFile(zw, "metadata.json", metaContent); err != nil {
		return nil, err
	}

	if len(opts.PlotsConfig) > 0 {
		plotsContent, err := json.MarshalIndent(&plotsDocument{Plots: opts.PlotsConfig}, "", "  ")
		if err != nil {
			return nil, err
		}
		if err = writeZipFile(zw, "plots/plots.json", plotsContent); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(opts.PlotCodes))
	for name := range opts.PlotCodes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err = writeZipFile(zw, "plots/"+sanitizePlotName(name)+".py", []byte(opts.PlotCodes[name])); err != nil {
			return nil, err
		}
	}

	if len(opts.PlotSettings) > 0 && len(opts.PlotsConfig) == 0 {
		uiContent, err := json.MarshalIndent(opts.PlotSettings, "", "  ")
		if err != nil {
			return nil, err
		}
		if err = writeZipFile(zw, "ui_state.json", uiContent); err != nil {
			return nil, err
		}
	}

	if len(meta.Files) > 0 {
		ftContent, err := fileTableCSV(meta.Files)
		if err != nil {
			return nil, err
		}
		if err = writeZipFile(zw, "file_table.csv", ftContent); err != nil {
			return nil, err
		}
	}

	if err = zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// fileTableCSV renders the registry as a flat table: the fixed identity
// columns plus the sorted union of all custom keys.
func fileTableCSV(files []FileEntry) ([]byte, error) {
	customKeys := map[string]struct{}{}
	for _, f := range files {
		for k := range f.Custom {
			customKeys[k] = struct{}{}
		}
	}
	extra := make([]string, 0, len(customKeys))
	for k := range customKeys {
		extra = append(extra, k)
	}
	sort.Strings(extra)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := append([]string{"filename", "label", "technique", "timestamp"}, extra...)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, f := range files {
		rec := []string{f.Filename, f.Label, f.Technique, f.Timestamp}
		for _, k := range extra {
			rec = append(rec, f.Custom[k])
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
