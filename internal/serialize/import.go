package serialize

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"strings"

	"github.com/echemlab/specimen/internal/dataset"
	"github.com/echemlab/specimen/internal/errs"
)

// ImportResult carries everything reconstructed from a container.
type ImportResult struct {
	Datasets     []*dataset.Dataset
	UIState      map[string]interface{}
	PlotsConfig  []PlotConfig
	FileMetadata map[string]map[string]string
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	f, err := zr.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func zipHas(zr *zip.Reader, name string) bool {
	for _, f := range zr.File {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Import reads a session container, accepting the current schema-2
// layout (metadata.json) and the legacy layout (metadata.csv). Format
// discrimination is at the container level; the schema version string
// is advisory only.
func Import(content []byte) (*ImportResult, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, &errs.FormatError{Detail: "not a zip archive: " + err.Error()}
	}
	switch {
	case zipHas(zr, "metadata.json"):
		return importNative(zr)
	case zipHas(zr, "metadata.csv"):
		return importLegacy(zr)
	default:
		return nil, &errs.FormatError{Detail: "missing metadata.json or metadata.csv"}
	}
}

// resolveDataPath applies the fallback chain: explicit data_path, legacy
// parquet_path/parquet_name, then heuristic data/<filename> paths.
func resolveDataPath(zr *zip.Reader, entry FileEntry) string {
	for _, candidate := range []string{entry.DataPath, entry.ParquetPath, entry.ParquetName} {
		if candidate != "" && zipHas(zr, candidate) {
			return candidate
		}
	}
	for _, candidate := range []string{
		"data/" + entry.Filename + ".parquet",
		"data/" + entry.Filename + ".csv",
	} {
		if zipHas(zr, candidate) {
			return candidate
		}
	}
	return ""
}

func importNative(zr *zip.Reader) (*ImportResult, error) {
	metaContent, err := readZipFile(zr, "metadata.json")
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err = json.Unmarshal(metaContent, &meta); err != nil {
		return nil, &errs.FormatError{Detail: "bad metadata.json: " + err.Error()}
	}

	res := &ImportResult{FileMetadata: map[string]map[string]string{}}

	if zipHas(zr, "plots/plots.json") {
		plotsContent, err := readZipFile(zr, "plots/plots.json")
		if err != nil {
			return nil, err
		}
		var doc plotsDocument
		if err = json.Unmarshal(plotsContent, &doc); err == nil {
			res.PlotsConfig = doc.Plots
		}
	}
	if zipHas(zr, "ui_state.json") {
		uiContent, err := readZipFile(zr, "ui_state.json")
		if err != nil {
			return nil, err
		}
		_ = json.Unmarshal(uiContent, &res.UIState)
	} else if meta.UIState != nil {
		res.UIState = meta.UIState
	}

	for _, entry := range meta.Files {
		dataPath := resolveDataPath(zr, entry)
		if dataPath == "" {
			continue
		}
		payload, err := readZipFile(zr, dataPath)
		if err != nil {
			return nil, err
		}
		var table *dataset.Table
		if strings.HasSuffix(dataPath, ".parquet") {
			table, err = decodeParquet(payload, entry.Columns)
		} else {
			table, err = decodeCSV(payload)
		}
		if err != nil {
			return nil, &errs.ParseError{File: dataPath, Detail: err.Error()}
		}

		sourceFormat := entry.SourceFormat
		if sourceFormat == "" && entry.Provenance != nil {
			sourceFormat = entry.Provenance.SourceFormat
		}
		if sourceFormat == "" {
			sourceFormat = entry.Source
		}

		ds := &dataset.Dataset{
			Filename:     entry.Filename,
			Table:        table,
			Technique:    entry.Technique,
			Label:        entry.Label,
			Timestamp:    parseTimestamp(entry.Timestamp),
			Cycles:       entry.Cycles,
			SourceFormat: sourceFormat,
			UserMetadata: map[string]string{},
		}
		if entry.Provenance != nil {
			ds.OriginalFilename = entry.Provenance.OriginalFilename
			ds.FileHash = entry.Provenance.FileHash
		}
		res.Datasets = append(res.Datasets, ds)

		custom := map[string]string{}
		for k, v := range entry.Custom {
			custom[k] = v
		}
		if entry.Label != "" {
			custom["label"] = entry.Label
		}
		if len(custom) > 0 {
			res.FileMetadata[entry.Filename] = custom
		}
	}
	return res, nil
}

// importLegacy reads the v1 layout: a metadata.csv registry, CSV data
// files under data/, and an optional plot_settings.json.
func importLegacy(zr *zip.Reader) (*ImportResult, error) {
	metaContent, err := readZipFile(zr, "metadata.csv")
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(bytes.NewReader(metaContent))
	header, err := r.Read()
	if err != nil {
		return nil, &errs.FormatError{Detail: "empty metadata.csv"}
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	res := &ImportResult{FileMetadata: map[string]map[string]string{}}

	if zipHas(zr, "plot_settings.json") {
		uiContent, err := readZipFile(zr, "plot_settings.json")
		if err != nil {
			return nil, err
		}
		_ = json.Unmarshal(uiContent, &res.UIState)
	}

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		filename := field(rec, "filename")
		if filename == "" {
			continue
		}
		csvPath := "data/" + filename + ".csv"
		if !zipHas(zr, csvPath) {
			continue
		}
		payload, err := readZipFile(zr, csvPath)
		if err != nil {
			return nil, err
		}
		table, err := decodeCSV(payload)
		if err != nil {
			return nil, &errs.ParseError{File: csvPath, Detail: err.Error()}
		}
		label := field(rec, "label")
		ds := &dataset.Dataset{
			Filename:     filename,
			Table:        table,
			Technique:    field(rec, "technique"),
			Label:        label,
			Timestamp:    parseTimestamp(field(rec, "timestamp")),
			Cycles:       dataset.SortedUniqueCycles(table.Cycle),
			UserMetadata: map[string]string{},
		}
		res.Datasets = append(res.Datasets, ds)
		if label == "" {
			label = filename
		}
		res.FileMetadata[filename] = map[string]string{"label": label}
	}
	return res, nil
}
