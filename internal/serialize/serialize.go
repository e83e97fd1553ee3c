// Package serialize implements the versioned session container: a zip
// holding a central file registry (metadata.json), per-dataset Parquet
// or CSV data, optional plot bundles, and a convenience file table.
// The importer accepts the current schema-2 layout and the legacy v1
// layout (metadata.csv + data/*.csv).
package serialize

import (
	"time"
)

const (
	// SchemaVersion identifies the current container layout.
	SchemaVersion = "2.0.0"
	// FormatName tags the container's producing application.
	FormatName = "echem-viewer-export"
)

// Provenance carries the original upload identity of a dataset.
type Provenance struct {
	OriginalFilename string `json:"original_filename,omitempty"`
	FileHash         string `json:"file_hash,omitempty"`
	// SourceFormat appears under provenance in some legacy exports.
	SourceFormat string `json:"source_format,omitempty"`
}

// FileEntry is one record of the central file registry. The legacy
// fields parquet_path/parquet_name/source are accepted on import and
// never written.
type FileEntry struct {
	Filename     string            `json:"filename"`
	DataPath     string            `json:"data_path,omitempty"`
	Technique    string            `json:"technique,omitempty"`
	Timestamp    string            `json:"timestamp,omitempty"`
	SourceFormat string            `json:"source_format,omitempty"`
	Columns      []string          `json:"columns"`
	Cycles       []int64           `json:"cycles"`
	Label        string            `json:"label,omitempty"`
	Custom       map[string]string `json:"custom,omitempty"`
	Provenance   *Provenance       `json:"provenance,omitempty"`

	// legacy aliases
	ParquetPath string `json:"parquet_path,omitempty"`
	ParquetName string `json:"parquet_name,omitempty"`
	Source      string `json:"source,omitempty"`
}

// Metadata is the authoritative registry at the container root.
type Metadata struct {
	SchemaVersion string                 `json:"schema_version"`
	Format        string                 `json:"format"`
	ExportedAt    string                 `json:"exported_at"`
	Files         []FileEntry            `json:"files"`
	UIState       map[string]interface{} `json:"ui_state,omitempty"` // legacy embedded form
}

// PlotConfig is a free-form plot description carried through export and
// import untouched.
type PlotConfig map[string]interface{}

type plotsDocument struct {
	Plots []PlotConfig `json:"plots"`
}

// timestampLayouts are tried in order when importing; anything that
// fails all of them imports as no timestamp.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
