package api

import (
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/echemlab/specimen/internal/dataset"
	"github.com/echemlab/specimen/internal/ecanalysis"
	"github.com/echemlab/specimen/internal/ecparse/biologic"
	"github.com/echemlab/specimen/internal/ecparse/gamry"
	"github.com/echemlab/specimen/internal/errs"
	"github.com/echemlab/specimen/internal/serialize"
	"github.com/echemlab/specimen/internal/session"
	"github.com/echemlab/specimen/internal/transforms"
	"github.com/echemlab/specimen/internal/units"
)

// uploadResult is one per-file record of a batch upload; failures are
// reported per file and never abort the batch.
type uploadResult struct {
	Filename string `json:"filename"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) parseUpload(raw []byte, filename string) (*dataset.Dataset, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mpr":
		if s.decoder == nil {
			return nil, &errs.ParseError{File: filename, Detail: "no .mpr decoder configured"}
		}
		return biologic.ParseBytes(s.decoder, raw, filename)
	case ".dta":
		return gamry.ParseBytes(raw, filename)
	default:
		return nil, &errs.ParseError{File: filename, Detail: "unsupported extension"}
	}
}

func (s *Server) addUpload(sess *session.Session, raw []byte, filename string, results []uploadResult) []uploadResult {
	maxBytes := s.cfg.Global.Max_File_Size_MB * 1024 * 1024
	if int64(len(raw)) > maxBytes {
		err := &errs.QuotaError{
			ResourceKind: "file_size",
			Want:         float64(s.cfg.Global.Max_File_Size_MB),
			Have:         float64(len(raw)) / (1024 * 1024),
		}
		return append(results, uploadResult{Filename: filename, Error: err.Error()})
	}
	if strings.EqualFold(filepath.Ext(filename), ".zip") {
		res, err := serialize.Import(raw)
		if err != nil {
			return append(results, uploadResult{Filename: filename, Error: err.Error()})
		}
		for _, ds := range res.Datasets {
			if err := sess.AddDataset(ds); err != nil {
				results = append(results, uploadResult{Filename: ds.Filename, Error: err.Error()})
				continue
			}
			if custom, ok := res.FileMetadata[ds.Filename]; ok {
				patch := make(map[string]*string, len(custom))
				for k := range custom {
					v := custom[k]
					patch[k] = &v
				}
				_ = sess.UpdateMetadata(ds.Filename, patch)
			}
			results = append(results, uploadResult{Filename: ds.Filename, OK: true})
		}
		return results
	}
	ds, err := s.parseUpload(raw, filename)
	if err != nil {
		return append(results, uploadResult{Filename: filename, Error: err.Error()})
	}
	if err := sess.AddDataset(ds); err != nil {
		return append(results, uploadResult{Filename: filename, Error: err.Error()})
	}
	return append(results, uploadResult{Filename: filename, OK: true})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(w, r)
	if err := r.ParseMultipartForm(s.cfg.Global.Max_File_Size_MB * 1024 * 1024); err != nil {
		s.writeError(w, &errs.ParseError{File: "(upload)", Detail: err.Error()})
		return
	}
	var results []uploadResult
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			results = append(results, uploadResult{Filename: fh.Filename, Error: err.Error()})
			continue
		}
		raw, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			results = append(results, uploadResult{Filename: fh.Filename, Error: err.Error()})
			continue
		}
		results = s.addUpload(sess, raw, fh.Filename, results)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

// fileInfo is the list view of one dataset.
type fileInfo struct {
	Filename     string            `json:"filename"`
	Label        string            `json:"label"`
	Technique    string            `json:"technique,omitempty"`
	Columns      []string          `json:"columns"`
	Cycles       []int64           `json:"cycles,omitempty"`
	Rows         int               `json:"rows"`
	SourceFormat string            `json:"source_format,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(w, r)
	datasets := sess.Datasets()
	out := make([]fileInfo, 0, len(datasets))
	for _, ds := range datasets {
		out = append(out, fileInfo{
			Filename:     ds.Filename,
			Label:        ds.Label,
			Technique:    ds.Technique,
			Columns:      ds.Columns(),
			Cycles:       ds.Cycles,
			Rows:         ds.Table.Len(),
			SourceFormat: ds.SourceFormat,
			Metadata:     sess.Metadata(ds.Filename),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"files": out})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(w, r)
	sess.RemoveDataset(r.PathValue("filename"))
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func (s *Server) handleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(w, r)
	var patch map[string]*string
	if err := decodeBody(r, &patch); err != nil {
		s.writeError(w, err)
		return
	}
	if err := sess.UpdateMetadata(r.PathValue("filename"), patch); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func queryFloat(r *http.Request, name string, def float64) float64 {
	if v := r.URL.Query().Get(name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// handleAnalysis runs one named kernel over a dataset's table,
// filtering by cycle first when requested. A kernel that reports "not
// applicable" surfaces as a null value, not an error.
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(w, r)
	ds, err := sess.Dataset(r.PathValue("filename"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if v := r.URL.Query().Get("cycle"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			ds = transforms.FilterByCycle(ds, n)
		}
	}
	t := ds.Table

	var (
		value float64
		ok    bool
	)
	kind := r.URL.Query().Get("kind")
	switch kind {
	case "hf_intercept":
		value, ok = ecanalysis.FindHFIntercept(t)
	case "lf_intercept":
		value, ok = ecanalysis.FindLFIntercept(t)
	case "time_average":
		column := r.URL.Query().Get("column")
		if column == "" {
			column = units.CurrentA
		}
		value, ok = ecanalysis.TimeAverage(t, column, queryFloat(r, "t_start", 0), queryFloat(r, "t_end", 0))
	case "charge":
		value, ok = ecanalysis.Charge(t)
	case "overpotential":
		value, ok = ecanalysis.OverpotentialAtCurrent(t, queryFloat(r, "i_target", 0), queryFloat(r, "e_eq", 0))
	case "onset_potential":
		value, ok = ecanalysis.OnsetPotential(t, queryFloat(r, "threshold", 0))
	case "limiting_current":
		value, ok = ecanalysis.LimitingCurrent(t, queryFloat(r, "window_frac", 0.1))
	case "current_at_potential":
		value, ok = ecanalysis.CurrentAtPotential(t, queryFloat(r, "e_target", 0))
	case "steady_state_potential":
		value, ok = ecanalysis.SteadyStatePotential(t, queryFloat(r, "window_s", 60))
	default:
		s.writeError(w, &errs.NotFoundError{ResourceKind: "analysis", ID: kind})
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"kind": kind, "value": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"kind": kind, "value": value})
}

// transformRequest names a transform and its single numeric or string
// argument.
type transformRequest struct {
	Op        string  `json:"op"`
	FromRef   string  `json:"from_ref,omitempty"`
	ToRef     string  `json:"to_ref,omitempty"`
	Column    string  `json:"column,omitempty"`
	Value     float64 `json:"value,omitempty"`
	Cycle     int64   `json:"cycle,omitempty"`
	MaxPoints int     `json:"max_points,omitempty"`
}

func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(w, r)
	ds, err := sess.Dataset(r.PathValue("filename"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req transformRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	var out *dataset.Dataset
	switch req.Op {
	case "convert_reference":
		out, err = transforms.ConvertReference(ds, req.FromRef, req.ToRef, req.Column)
	case "ir_compensate":
		out, err = transforms.IRCompensate(ds, req.Value)
	case "normalize_by_area":
		out, err = transforms.NormalizeByArea(ds, req.Value)
	case "normalize_by_mass":
		out, err = transforms.NormalizeByMass(ds, req.Value)
	case "filter_by_cycle":
		out = transforms.FilterByCycle(ds, req.Cycle)
	case "downsample":
		out = transforms.Downsample(ds, req.MaxPoints)
	default:
		s.writeError(w, &errs.NotFoundError{ResourceKind: "transform", ID: req.Op})
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err = sess.ReplaceDataset(out); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"columns": out.Columns(),
		"rows":    out.Table.Len(),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(w, r)
	datasets := sess.Datasets()
	ordered := make([]*dataset.Dataset, 0, len(datasets))
	for _, ds := range datasets {
		ordered = append(ordered, ds)
	}
	sortDatasets(ordered)

	opts := serialize.ExportOptions{
		CSVOnly:      r.URL.Query().Get("format") == "csv",
		IncludeCSV:   r.URL.Query().Get("include_csv") == "1",
		FileMetadata: sess.AllMetadata(),
	}
	content, err := serialize.Export(ordered, opts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="session_export.zip"`)
	_, _ = w.Write(content)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(w, r)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	results := s.addUpload(sess, raw, "import.zip", nil)
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}
