package api

import (
	"net/http"
	"path/filepath"

	"github.com/echemlab/specimen/internal/codegen"
	"github.com/echemlab/specimen/internal/errs"
	"github.com/echemlab/specimen/internal/peakfit"
	"github.com/echemlab/specimen/internal/xasanalysis"
	"github.com/echemlab/specimen/internal/xasio"
	"github.com/echemlab/specimen/internal/xasproject"
)

func (s *Server) beamline() xasio.BeamlineConfig {
	if cfg, ok := xasio.BeamlineConfigs[s.cfg.Global.Beamline_Preset]; ok {
		return cfg
	}
	return xasio.BeamlineConfigs["BM23"]
}

func (s *Server) currentProject(w http.ResponseWriter) *xasproject.Project {
	p, err := s.project.Current()
	if err != nil {
		s.writeError(w, err)
		return nil
	}
	return p
}

func (s *Server) handleProjectOpen(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	p, err := s.project.Open(req.Path, s.cfg.Global.Raw_Data_Folder, s.lg)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"path":     p.Path(),
		"datasets": p.Datasets(),
	})
}

// handleXASDatasets lists the indexed datasets; with discover=1 and a
// (sample, dataset) pair it also runs valid-scan discovery over the
// dataset's H5 files and persists the result.
func (s *Server) handleXASDatasets(w http.ResponseWriter, r *http.Request) {
	p := s.currentProject(w)
	if p == nil {
		return
	}
	q := r.URL.Query()
	if q.Get("discover") == "1" {
		sample, ds := q.Get("sample"), q.Get("dataset")
		rec, err := p.Dataset(sample, ds)
		if err != nil {
			s.writeError(w, err)
			return
		}
		numerator := q.Get("numerator")
		var scans []string
		for _, h5 := range rec.H5Files {
			found, err := xasio.FindValidScans(s.reader, filepath.Join(p.Path(), h5), s.beamline(), numerator)
			if err != nil {
				continue
			}
			scans = append(scans, found...)
		}
		if err = p.SetValidScans(sample, ds, scans); err != nil {
			s.writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"datasets": p.Datasets()})
}

func (s *Server) handleROIList(w http.ResponseWriter, r *http.Request) {
	p := s.currentProject(w)
	if p == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rois": p.ROIConfigs()})
}

func (s *Server) handleROIUpsert(w http.ResponseWriter, r *http.Request) {
	p := s.currentProject(w)
	if p == nil {
		return
	}
	var cfg xasproject.ROIConfig
	if err := decodeBody(r, &cfg); err != nil {
		s.writeError(w, err)
		return
	}
	if cfg.Name == "" || cfg.Numerator == "" {
		s.writeError(w, &errs.FormatError{Detail: "roi requires name and numerator"})
		return
	}
	if err := p.UpsertROIConfig(cfg); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func (s *Server) handleROIDelete(w http.ResponseWriter, r *http.Request) {
	p := s.currentProject(w)
	if p == nil {
		return
	}
	if err := p.DeleteROIConfig(r.PathValue("name")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func (s *Server) handleScanUpsert(w http.ResponseWriter, r *http.Request) {
	p := s.currentProject(w)
	if p == nil {
		return
	}
	var rec xasproject.ScanRecord
	if err := decodeBody(r, &rec); err != nil {
		s.writeError(w, err)
		return
	}
	if err := p.UpsertScan(rec); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func (s *Server) handleScanList(w http.ResponseWriter, r *http.Request) {
	p := s.currentProject(w)
	if p == nil {
		return
	}
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"scans": p.Scans(q.Get("sample"), q.Get("dataset"), q.Get("roi")),
	})
}

func (s *Server) handleReferenceList(w http.ResponseWriter, r *http.Request) {
	p := s.currentProject(w)
	if p == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"references": p.References()})
}

func (s *Server) handleReferenceUpsert(w http.ResponseWriter, r *http.Request) {
	p := s.currentProject(w)
	if p == nil {
		return
	}
	var rec xasproject.ReferenceRecord
	if err := decodeBody(r, &rec); err != nil {
		s.writeError(w, err)
		return
	}
	if rec.Name == "" {
		s.writeError(w, &errs.FormatError{Detail: "reference requires a name"})
		return
	}
	if err := p.UpsertReference(rec); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func (s *Server) handleReferenceDelete(w http.ResponseWriter, r *http.Request) {
	p := s.currentProject(w)
	if p == nil {
		return
	}
	if err := p.DeleteReference(r.PathValue("name")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func queryFloatPtr(r *http.Request, name string) *float64 {
	if v := r.URL.Query().Get(name); v != "" {
		f := queryFloat(r, name, 0)
		return &f
	}
	return nil
}

// handleNormalize runs a single-scan pre-edge normalization using the
// ROI's channels and the scan's stored parameters; query parameters
// override stored ones.
func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	p := s.currentProject(w)
	if p == nil {
		return
	}
	q := r.URL.Query()
	sample, ds, roiName, scanKey := q.Get("sample"), q.Get("dataset"), q.Get("roi"), q.Get("scan")
	roi, err := p.ROIConfig(roiName)
	if err != nil {
		s.writeError(w, err)
		return
	}
	rec, err := p.Dataset(sample, ds)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(rec.H5Files) == 0 {
		s.writeError(w, &errs.NotFoundError{ResourceKind: "scan", ID: scanKey})
		return
	}

	opts := xasanalysis.NormalizeOptions{
		Pre1: queryFloatPtr(r, "pre1"), Pre2: queryFloatPtr(r, "pre2"),
		Norm1: queryFloatPtr(r, "norm1"), Norm2: queryFloatPtr(r, "norm2"),
		EnergyMinKeV:  roi.EnergyMin,
		EnergyMaxKeV:  roi.EnergyMax,
		EnergyShiftEV: queryFloatPtr(r, "energy_shift"),
	}
	if stored, err := p.Scan(sample, ds, roiName, scanKey); err == nil {
		if opts.Pre1 == nil {
			opts.Pre1 = stored.Pre1
		}
		if opts.Pre2 == nil {
			opts.Pre2 = stored.Pre2
		}
		if opts.Norm1 == nil {
			opts.Norm1 = stored.Norm1
		}
		if opts.Norm2 == nil {
			opts.Norm2 = stored.Norm2
		}
		if opts.EnergyShiftEV == nil && stored.EnergyShift != 0 {
			shift := stored.EnergyShift
			opts.EnergyShiftEV = &shift
		}
	}

	var scan *xasanalysis.NormalizedScan
	for _, h5 := range rec.H5Files {
		scan, err = xasanalysis.NormalizeSingleScan(s.reader, filepath.Join(p.Path(), h5),
			scanKey, roi.Numerator, roi.Denominator, s.beamline(), s.preEdge, opts)
		if err == nil {
			break
		}
	}
	if scan == nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scan)
}

// handleAverage averages all good scans of (sample, dataset, roi) and
// reports mean sigma plus the leave-one-out contribution list; order>0
// additionally returns a smoothed derivative of the averaged curve.
func (s *Server) handleAverage(w http.ResponseWriter, r *http.Request) {
	p := s.currentProject(w)
	if p == nil {
		return
	}
	q := r.URL.Query()
	sample, ds, roiName := q.Get("sample"), q.Get("dataset"), q.Get("roi")
	roi, err := p.ROIConfig(roiName)
	if err != nil {
		s.writeError(w, err)
		return
	}
	rec, err := p.Dataset(sample, ds)
	if err != nil {
		s.writeError(w, err)
		return
	}
	params := p.ScanParamsFor(sample, ds, roiName)

	var avg *xasanalysis.AveragedData
	for _, h5 := range rec.H5Files {
		avg, err = xasanalysis.AverageScansForDataset(s.reader, filepath.Join(p.Path(), h5),
			params, roi.Numerator, roi.Denominator, s.beamline(), s.preEdge,
			roi.EnergyMin, roi.EnergyMax)
		if err == nil && avg != nil {
			break
		}
	}
	if avg == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"average": nil})
		return
	}

	out := map[string]interface{}{
		"average":       avg,
		"mean_std":      avg.MeanStd(),
		"contributions": avg.ContributionAnalysis(),
	}
	if order := int(queryFloat(r, "order", 0)); order > 0 {
		window := int(queryFloat(r, "smoothing_window", 1))
		deriv, err := xasanalysis.CalculateDerivative(avg.Energy, avg.Norm, order, window)
		if err != nil {
			s.writeError(w, err)
			return
		}
		out["derivative"] = deriv
	}
	writeJSON(w, http.StatusOK, out)
}

// peakFitRequest is the fit endpoint's body; initial guesses are
// estimated when omitted.
type peakFitRequest struct {
	Energy      []float64            `json:"energy"`
	D2Mu        []float64            `json:"d2mu"`
	NPeaks      int                  `json:"n_peaks"`
	Guesses     []peakfit.PeakParams `json:"initial_guesses,omitempty"`
	EnergyRange [2]float64           `json:"energy_range"`
}

func (s *Server) handlePeakFit(w http.ResponseWriter, r *http.Request) {
	var req peakFitRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	guesses := req.Guesses
	if len(guesses) == 0 {
		guesses = peakfit.EstimateInitialGuesses(req.Energy, req.D2Mu, req.NPeaks)
	}
	result := peakfit.FitPeaks(req.Energy, req.D2Mu, req.NPeaks, guesses, req.EnergyRange)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePeakFitSave(w http.ResponseWriter, r *http.Request) {
	p := s.currentProject(w)
	if p == nil {
		return
	}
	var rec xasproject.PeakFitRecord
	if err := decodeBody(r, &rec); err != nil {
		s.writeError(w, err)
		return
	}
	if err := p.UpsertPeakFit(rec); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// handleXASCodegen emits the reproducible normalization script for
// (sample, dataset, roi).
func (s *Server) handleXASCodegen(w http.ResponseWriter, r *http.Request) {
	p := s.currentProject(w)
	if p == nil {
		return
	}
	q := r.URL.Query()
	sample, ds, roiName := q.Get("sample"), q.Get("dataset"), q.Get("roi")
	roi, err := p.ROIConfig(roiName)
	if err != nil {
		s.writeError(w, err)
		return
	}
	rec, err := p.Dataset(sample, ds)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var scans []codegen.ScanSetting
	for _, sr := range p.Scans(sample, ds, roiName) {
		if sr.Status != xasanalysis.StatusGood {
			continue
		}
		scans = append(scans, codegen.ScanSetting{
			Scan: sr.Scan,
			Pre1: sr.Pre1, Pre2: sr.Pre2,
			Norm1: sr.Norm1, Norm2: sr.Norm2,
			EnergyShift: sr.EnergyShift,
		})
	}

	bl := s.beamline()
	script, err := codegen.GenerateNormalizationScript(codegen.NormalizationSpec{
		Sample:      sample,
		Dataset:     ds,
		ROI:         roiName,
		Numerator:   roi.Numerator,
		Denominator: roi.Denominator,
		H5Files:     rec.H5Files,
		Scans:       scans,
		H5Paths:     bl.H5Paths,
		ParentPath:  bl.ParentPath,
		Backend:     q.Get("backend"),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/x-python")
	_, _ = w.Write([]byte(script))
}
