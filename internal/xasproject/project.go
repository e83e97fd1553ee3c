// Package xasproject is the persisted index of an XAS project folder:
// samples, datasets, ROI configurations, per-scan review state,
// energy-calibration references, and saved peak fits. The store is a
// single JSON document in the project folder, upsert-keyed per
// collection; the process holds at most one open project at a time.
package xasproject

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/echemlab/specimen/internal/errs"
	"github.com/echemlab/specimen/internal/logx"
	"github.com/echemlab/specimen/internal/xasanalysis"
	"github.com/echemlab/specimen/internal/xasio"
)

// DBFilename is the document store's on-disk name within the project
// folder.
const DBFilename = "xas_project.json"

// DatasetRecord indexes one sample/dataset folder and its H5 files.
type DatasetRecord struct {
	Sample     string   `json:"sample"`
	Dataset    string   `json:"dataset"`
	H5Files    []string `json:"h5_files"`
	ValidScans []string `json:"valid_scans,omitempty"`
}

// ROIConfig names a numerator/denominator channel combination with an
// optional element tag and energy window (keV).
type ROIConfig struct {
	Name        string   `json:"name"`
	Numerator   string   `json:"numerator"`
	Denominator string   `json:"denominator,omitempty"`
	Element     string   `json:"element,omitempty"`
	EnergyMin   *float64 `json:"energy_min,omitempty"`
	EnergyMax   *float64 `json:"energy_max,omitempty"`
}

// ScanRecord stores the review status and normalization parameters of
// one scan, keyed by (sample, dataset, roi, scan).
type ScanRecord struct {
	Sample        string                 `json:"sample"`
	Dataset       string                 `json:"dataset"`
	ROI           string                 `json:"roi"`
	Scan          string                 `json:"scan"`
	Pre1          *float64               `json:"pre1,omitempty"`
	Pre2          *float64               `json:"pre2,omitempty"`
	Norm1         *float64               `json:"norm1,omitempty"`
	Norm2         *float64               `json:"norm2,omitempty"`
	Status        xasanalysis.ScanStatus `json:"status"`
	Aligned       bool                   `json:"aligned"`
	ReferenceName string                 `json:"reference_name,omitempty"`
	EnergyShift   float64                `json:"energy_shift"`
}

// ReferenceRecord ties a measured edge energy to a known target via an
// energy shift.
type ReferenceRecord struct {
	Name          string   `json:"name"`
	Element       string   `json:"element"`
	SourceSample  string   `json:"source_sample"`
	SourceDataset string   `json:"source_dataset"`
	Scans         []string `json:"scans"`
	MeasuredE0    float64  `json:"measured_E0"`
	MeasuredE0Std float64  `json:"measured_E0_std"`
	TargetE0      float64  `json:"target_E0"`
	EnergyShift   float64  `json:"energy_shift"`
	CreatedDate   string   `json:"created_date"`
}

// PeakFitRecord stores a saved fit, keyed by (sample, dataset, roi).
type PeakFitRecord struct {
	Sample       string     `json:"sample"`
	Dataset      string     `json:"dataset"`
	ROI          string     `json:"roi"`
	NPeaks       int        `json:"n_peaks"`
	Params       []float64  `json:"params"`
	SavgolWindow int        `json:"savgol_window"`
	SavgolPoly   int        `json:"savgol_polyorder"`
	EnergyRange  [2]float64 `json:"energy_range"`
	RSquared     float64    `json:"r_squared"`
	Notes        string     `json:"notes,omitempty"`
	UpdatedDate  string     `json:"updated_date"`
}

type document struct {
	Datasets   []DatasetRecord   `json:"datasets"`
	ROIConfigs []ROIConfig       `json:"roi_configs"`
	Scans      []ScanRecord      `json:"scans"`
	References []ReferenceRecord `json:"references"`
	PeakFits   []PeakFitRecord   `json:"peak_fits"`
}

// Project is an open project folder and its document store.
type Project struct {
	mtx  sync.Mutex
	path string
	doc  document
	lg   *logx.Logger
	now  func() time.Time
}

// defaultROIs seeds an empty roi_configs collection with the BM23
// transmission/fluorescence channels.
func defaultROIs() []ROIConfig {
	return []ROIConfig{
		{Name: "Ir_Pt", Numerator: "Ir_Pt_corr", Denominator: "I0", Element: "Ir"},
		{Name: "Pt", Numerator: "Pt_corr", Denominator: "I0", Element: "Pt"},
		{Name: "mu_roi", Numerator: "mu_roi"},
	}
}

// Open loads (or initializes) the document store under projectPath,
// rescans the raw-data tree for sample/dataset folders, and upserts the
// datasets collection. An empty roi_configs collection is seeded with
// defaults.
func Open(projectPath string, rawDataFolders []string, lg *logx.Logger) (*Project, error) {
	if lg == nil {
		lg = logx.NewDiscard()
	}
	p := &Project{path: projectPath, lg: lg, now: time.Now}
	dbPath := filepath.Join(projectPath, DBFilename)
	if content, err := os.ReadFile(dbPath); err == nil {
		if err = json.Unmarshal(content, &p.doc); err != nil {
			return nil, &errs.FormatError{Detail: "corrupt project database: " + err.Error()}
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	infos, err := xasio.ScanForDatasets(projectPath, rawDataFolders)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		p.upsertDatasetLocked(DatasetRecord{
			Sample:  info.Sample,
			Dataset: info.Dataset,
			H5Files: info.H5Files,
		})
	}
	if len(p.doc.ROIConfigs) == 0 {
		p.doc.ROIConfigs = defaultROIs()
	}
	if err := p.saveLocked(); err != nil {
		return nil, err
	}
	lg.Info("opened XAS project %s: %d dataset(s), %d ROI config(s)",
		projectPath, len(p.doc.Datasets), len(p.doc.ROIConfigs))
	return p, nil
}

// Path returns the project folder.
func (p *Project) Path() string { return p.path }

func (p *Project) saveLocked() error {
	content, err := json.MarshalIndent(&p.doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(p.path, DBFilename+".tmp")
	if err := os.WriteFile(tmp, content, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(p.path, DBFilename))
}

// upsertDatasetLocked keeps existing valid_scans when re-upserting a
// known (sample, dataset) pair.
func (p *Project) upsertDatasetLocked(rec DatasetRecord) {
	for i, d := range p.doc.Datasets {
		if d.Sample == rec.Sample && d.Dataset == rec.Dataset {
			if rec.ValidScans == nil {
				rec.ValidScans = d.ValidScans
			}
			p.doc.Datasets[i] = rec
			return
		}
	}
	p.doc.Datasets = append(p.doc.Datasets, rec)
	sort.Slice(p.doc.Datasets, func(i, j int) bool {
		a, b := p.doc.Datasets[i], p.doc.Datasets[j]
		if a.Sample != b.Sample {
			return a.Sample < b.Sample
		}
		return a.Dataset < b.Dataset
	})
}

// Datasets returns a snapshot of the datasets collection.
func (p *Project) Datasets() []DatasetRecord {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return append([]DatasetRecord(nil), p.doc.Datasets...)
}

// Dataset looks a dataset up by its (sample, dataset) key.
func (p *Project) Dataset(sample, ds string) (DatasetRecord, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	for _, d := range p.doc.Datasets {
		if d.Sample == sample && d.Dataset == ds {
			return d, nil
		}
	}
	return DatasetRecord{}, &errs.NotFoundError{ResourceKind: "dataset", ID: sample + "/" + ds}
}

// SetValidScans records the discovered scan keys for a dataset.
func (p *Project) SetValidScans(sample, ds string, scans []string) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	for i, d := range p.doc.Datasets {
		if d.Sample == sample && d.Dataset == ds {
			p.doc.Datasets[i].ValidScans = scans
			return p.saveLocked()
		}
	}
	return &errs.NotFoundError{ResourceKind: "dataset", ID: sample + "/" + ds}
}

// ROIConfigs returns a snapshot of the roi_configs collection.
func (p *Project) ROIConfigs() []ROIConfig {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return append([]ROIConfig(nil), p.doc.ROIConfigs...)
}

// ROIConfig looks an ROI up by name.
func (p *Project) ROIConfig(name string) (ROIConfig, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	for _, r := range p.doc.ROIConfigs {
		if r.Name == name {
			return r, nil
		}
	}
	return ROIConfig{}, &errs.NotFoundError{ResourceKind: "roi", ID: name}
}

// UpsertROIConfig inserts or replaces an ROI config by name.
func (p *Project) UpsertROIConfig(cfg ROIConfig) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	for i, r := range p.doc.ROIConfigs {
		if r.Name == cfg.Name {
			p.doc.ROIConfigs[i] = cfg
			return p.saveLocked()
		}
	}
	p.doc.ROIConfigs = append(p.doc.ROIConfigs, cfg)
	return p.saveLocked()
}

// DeleteROIConfig removes an ROI config; refused while any scan record
// still references it.
func (p *Project) DeleteROIConfig(name string) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	var n int
	for _, s := range p.doc.Scans {
		if s.ROI == name {
			n++
		}
	}
	if n > 0 {
		return &errs.InUseError{ResourceKind: "roi", ID: name, Count: n}
	}
	for i, r := range p.doc.ROIConfigs {
		if r.Name == name {
			p.doc.ROIConfigs = append(p.doc.ROIConfigs[:i], p.doc.ROIConfigs[i+1:]...)
			return p.saveLocked()
		}
	}
	return &errs.NotFoundError{ResourceKind: "roi", ID: name}
}

// UpsertScan inserts or replaces a scan record by its 4-tuple key.
func (p *Project) UpsertScan(rec ScanRecord) error {
	if rec.Status == "" {
		rec.Status = xasanalysis.StatusUnreviewed
	}
	p.mtx.Lock()
	defer p.mtx.Unlock()
	for i, s := range p.doc.Scans {
		if s.Sample == rec.Sample && s.Dataset == rec.Dataset && s.ROI == rec.ROI && s.Scan == rec.Scan {
			p.doc.Scans[i] = rec
			return p.saveLocked()
		}
	}
	p.doc.Scans = append(p.doc.Scans, rec)
	return p.saveLocked()
}

// Scan looks a scan record up by its 4-tuple key.
func (p *Project) Scan(sample, ds, roi, scan string) (ScanRecord, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	for _, s := range p.doc.Scans {
		if s.Sample == sample && s.Dataset == ds && s.ROI == roi && s.Scan == scan {
			return s, nil
		}
	}
	return ScanRecord{}, &errs.NotFoundError{ResourceKind: "scan", ID: sample + "/" + ds + "/" + roi + "/" + scan}
}

// Scans returns all scan records for (sample, dataset, roi), in stored
// order.
func (p *Project) Scans(sample, ds, roi string) []ScanRecord {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	var out []ScanRecord
	for _, s := range p.doc.Scans {
		if s.Sample == sample && s.Dataset == ds && s.ROI == roi {
			out = append(out, s)
		}
	}
	return out
}

// ScanParamsFor converts the stored scan records of (sample, dataset,
// roi) into the per-scan parameter map the averaging kernel consumes.
func (p *Project) ScanParamsFor(sample, ds, roi string) map[string]xasanalysis.ScanParams {
	recs := p.Scans(sample, ds, roi)
	out := make(map[string]xasanalysis.ScanParams, len(recs))
	for _, r := range recs {
		sp := xasanalysis.ScanParams{
			Status: r.Status,
			Pre1:   r.Pre1, Pre2: r.Pre2,
			Norm1: r.Norm1, Norm2: r.Norm2,
		}
		if r.EnergyShift != 0 {
			shift := r.EnergyShift
			sp.EnergyShiftEV = &shift
		}
		out[r.Scan] = sp
	}
	return out
}

// UpsertReference inserts or replaces a reference by name.
func (p *Project) UpsertReference(rec ReferenceRecord) error {
	if rec.CreatedDate == "" {
		rec.CreatedDate = p.now().UTC().Format(time.RFC3339)
	}
	p.mtx.Lock()
	defer p.mtx.Unlock()
	for i, r := range p.doc.References {
		if r.Name == rec.Name {
			p.doc.References[i] = rec
			return p.saveLocked()
		}
	}
	p.doc.References = append(p.doc.References, rec)
	return p.saveLocked()
}

// Reference looks a reference up by name.
func (p *Project) Reference(name string) (ReferenceRecord, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	for _, r := range p.doc.References {
		if r.Name == name {
			return r, nil
		}
	}
	return ReferenceRecord{}, &errs.NotFoundError{ResourceKind: "reference", ID: name}
}

// References returns a snapshot of the references collection.
func (p *Project) References() []ReferenceRecord {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return append([]ReferenceRecord(nil), p.doc.References...)
}

// DeleteReference removes a reference; refused while any scan record
// still points at it.
func (p *Project) DeleteReference(name string) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	var n int
	for _, s := range p.doc.Scans {
		if s.ReferenceName == name {
			n++
		}
	}
	if n > 0 {
		return &errs.InUseError{ResourceKind: "reference", ID: name, Count: n}
	}
	for i, r := range p.doc.References {
		if r.Name == name {
			p.doc.References = append(p.doc.References[:i], p.doc.References[i+1:]...)
			return p.saveLocked()
		}
	}
	return &errs.NotFoundError{ResourceKind: "reference", ID: name}
}

// UpsertPeakFit inserts or replaces a saved fit by its 3-tuple key.
func (p *Project) UpsertPeakFit(rec PeakFitRecord) error {
	if rec.UpdatedDate == "" {
		rec.UpdatedDate = p.now().UTC().Format(time.RFC3339)
	}
	p.mtx.Lock()
	defer p.mtx.Unlock()
	for i, f := range p.doc.PeakFits {
		if f.Sample == rec.Sample && f.Dataset == rec.Dataset && f.ROI == rec.ROI {
			p.doc.PeakFits[i] = rec
			return p.saveLocked()
		}
	}
	p.doc.PeakFits = append(p.doc.PeakFits, rec)
	return p.saveLocked()
}

// PeakFit looks a saved fit up by its 3-tuple key.
func (p *Project) PeakFit(sample, ds, roi string) (PeakFitRecord, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	for _, f := range p.doc.PeakFits {
		if f.Sample == sample && f.Dataset == ds && f.ROI == roi {
			return f, nil
		}
	}
	return PeakFitRecord{}, &errs.NotFoundError{ResourceKind: "peak_fit", ID: sample + "/" + ds + "/" + roi}
}
