// Package xasio reads XAS H5 measurement archives through an injected
// reader contract — the concrete H5 library is supplied by the caller —
// and evaluates whitelisted channel-math expressions against it.
package xasio

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/echemlab/specimen/internal/errs"
)

// H5Reader is the contract an external H5 binding must satisfy. Every
// method names the H5 file; all but ScanKeys also name a scan group, and
// parent paths and channel names are relative to that group.
type H5Reader interface {
	// ScanKeys returns the top-level group keys of an H5 file (scan IDs
	// plus any non-scan groups the caller filters out).
	ScanKeys(h5File string) ([]string, error)
	// ParentPaths returns the group keys nested directly under scanKey.
	ParentPaths(h5File, scanKey string) ([]string, error)
	// Channels returns the channel names available under parentPath.
	Channels(h5File, scanKey, parentPath string) ([]string, error)
	// HasChannel reports whether channelName exists under parentPath.
	HasChannel(h5File, scanKey, parentPath, channelName string) bool
	// ReadChannel reads a channel's data (scalar or array) from under
	// parentPath.
	ReadChannel(h5File, scanKey, parentPath, channelName string) (Value, error)
}

// DatasetInfo describes one sample/dataset folder discovered while
// scanning a project tree.
type DatasetInfo struct {
	Sample     string
	Dataset    string
	H5Files    []string // relative to the project root
	ValidScans []string // nil until populated on demand
}

// BeamlineConfig pairs a channel-name -> H5-path mapping with the parent
// group path those channels live under.
type BeamlineConfig struct {
	H5Paths    map[string]string
	ParentPath string
}

// BM23H5Paths is the default channel mapping for ESRF BM23.
var BM23H5Paths = map[string]string{
	"energy":     "energy_enc",
	"I0":         "I0",
	"Ir_Pt_corr": "Ir_Pt_corr_det00",
	"Pt_corr":    "Pt_corr_det00",
	"Ir2_corr":   "Ir2_corr_det00",
	"Mn_corr":    "Mn_corr_det00",
	"mu_roi":     "mu_roi",
	"Co2_corr":   "Co2_corr_det00",
}

// BeamlineConfigs is the closed set of beamline presets.
var BeamlineConfigs = map[string]BeamlineConfig{
	"BM23": {H5Paths: BM23H5Paths, ParentPath: "instrument"},
}

// ScanForDatasets walks projectPath (or projectPath/folder for each name
// in rawDataFolders) two levels deep — sample, then dataset — collecting
// every folder that directly contains one or more *.h5 files.
func ScanForDatasets(projectPath string, rawDataFolders []string) ([]DatasetInfo, error) {
	var roots []string
	if len(rawDataFolders) > 0 {
		for _, f := range rawDataFolders {
			roots = append(roots, filepath.Join(projectPath, f))
		}
	} else {
		roots = []string{projectPath}
	}

	var out []DatasetInfo
	for _, root := range roots {
		sampleEntries, err := os.ReadDir(root)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		sort.Slice(sampleEntries, func(i, j int) bool { return sampleEntries[i].Name() < sampleEntries[j].Name() })
		for _, sampleEnt := range sampleEntries {
			if !sampleEnt.IsDir() {
				continue
			}
			samplePath := filepath.Join(root, sampleEnt.Name())
			datasetEntries, err := os.ReadDir(samplePath)
			if err != nil {
				continue
			}
			sort.Slice(datasetEntries, func(i, j int) bool { return datasetEntries[i].Name() < datasetEntries[j].Name() })
			for _, dsEnt := range datasetEntries {
				if !dsEnt.IsDir() {
					continue
				}
				dsPath := filepath.Join(samplePath, dsEnt.Name())
				files, err := filepath.Glob(filepath.Join(dsPath, "*.h5"))
				if err != nil || len(files) == 0 {
					continue
				}
				sort.Strings(files)
				rel := make([]string, len(files))
				for i, f := range files {
					r, err := filepath.Rel(projectPath, f)
					if err != nil {
						r = f
					}
					rel[i] = r
				}
				out = append(out, DatasetInfo{
					Sample:  sampleEnt.Name(),
					Dataset: dsEnt.Name(),
					H5Files: rel,
				})
			}
		}
	}
	return out, nil
}

// scanSortKey implements the natural "1.1, 1.2, ..., 2.1" ordering used
// for scan IDs; malformed IDs sort last.
func scanSortKey(s string) (int, int, bool) {
	parts := strings.SplitN(s, ".", 2)
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 999, 0, false
	}
	minor := 0
	if len(parts) > 1 {
		minor, err = strconv.Atoi(parts[1])
		if err != nil {
			return 999, 0, false
		}
	}
	return major, minor, true
}

// FindValidScans returns the scan IDs in h5File that expose the
// beamline's energy channel (and, if numerator names a channel in
// cfg.H5Paths, that channel too; a numerator missing from cfg.H5Paths
// adds no check), naturally sorted.
func FindValidScans(reader H5Reader, h5File string, cfg BeamlineConfig, numerator string) ([]string, error) {
	keys, err := reader.ScanKeys(h5File)
	if err != nil {
		return nil, err
	}
	energyPath, ok := cfg.H5Paths["energy"]
	if !ok {
		return nil, &errs.FormatError{Detail: "beamline config missing energy channel"}
	}
	var numPath string
	if numerator != "" {
		numPath, ok = cfg.H5Paths[numerator]
		if !ok {
			numPath = ""
		}
	}

	var valid []string
	for _, key := range keys {
		parents, err := reader.ParentPaths(h5File, key)
		if err != nil {
			continue
		}
		if !containsStr(parents, cfg.ParentPath) {
			continue
		}
		if !reader.HasChannel(h5File, key, cfg.ParentPath, energyPath) {
			continue
		}
		if numPath != "" && !reader.HasChannel(h5File, key, cfg.ParentPath, numPath) {
			continue
		}
		valid = append(valid, key)
	}

	sort.Slice(valid, func(i, j int) bool {
		ma, mia, _ := scanSortKey(valid[i])
		mb, mib, _ := scanSortKey(valid[j])
		if ma != mb {
			return ma < mb
		}
		return mia < mib
	})
	return valid, nil
}

func containsStr(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// ScanData is a raw (energy_eV, mu) pair read from one scan, pre-any
// normalization.
type ScanData struct {
	EnergyEV []float64
	Mu       []float64
}

// ReadScanData reads the beamline-configured energy channel (converted
// keV -> eV) and a numerator, optionally divided by a denominator, with
// optional energy-window filtering (energy bounds given in keV).
func ReadScanData(reader H5Reader, h5File, scanKey, numerator, denominator string, cfg BeamlineConfig, energyMinKeV, energyMaxKeV *float64) (*ScanData, error) {
	energyPath, ok := cfg.H5Paths["energy"]
	if !ok {
		return nil, &errs.FormatError{Detail: "beamline config missing energy channel"}
	}
	numPath, ok := cfg.H5Paths[numerator]
	if !ok {
		return nil, &errs.NotFoundError{ResourceKind: "channel", ID: numerator}
	}

	energyVal, err := reader.ReadChannel(h5File, scanKey, cfg.ParentPath, energyPath)
	if err != nil {
		return nil, err
	}
	numVal, err := reader.ReadChannel(h5File, scanKey, cfg.ParentPath, numPath)
	if err != nil {
		return nil, err
	}

	mu := numVal
	if denominator != "" {
		denPath, ok := cfg.H5Paths[denominator]
		if !ok {
			return nil, &errs.NotFoundError{ResourceKind: "channel", ID: denominator}
		}
		denVal, err := reader.ReadChannel(h5File, scanKey, cfg.ParentPath, denPath)
		if err != nil {
			return nil, err
		}
		mu, err = divV(numVal, denVal)
		if err != nil {
			return nil, err
		}
	}

	energyKeV := energyVal.Array
	muRaw := mu.Array
	if energyMinKeV != nil || energyMaxKeV != nil {
		var fe, fm []float64
		for i, ev := range energyKeV {
			if energyMinKeV != nil && ev < *energyMinKeV {
				continue
			}
			if energyMaxKeV != nil && ev > *energyMaxKeV {
				continue
			}
			fe = append(fe, ev)
			fm = append(fm, muRaw[i])
		}
		energyKeV, muRaw = fe, fm
	}

	energyEV := make([]float64, len(energyKeV))
	for i, v := range energyKeV {
		energyEV[i] = v * 1000
	}
	return &ScanData{EnergyEV: energyEV, Mu: muRaw}, nil
}

// EvaluateChannelExpression evaluates expr against the channels of one
// scan, loading only the channels the expression actually references
// (only channels the expression references are loaded).
// availableChannels lists full "parent/channel" paths.
func EvaluateChannelExpression(reader H5Reader, h5File, scanKey, expr string, availableChannels []string) (Value, error) {
	avail := make(map[string]struct{}, len(availableChannels))
	for _, c := range availableChannels {
		avail[c] = struct{}{}
	}
	referenced, err := ExtractChannelPaths(expr, avail)
	if err != nil {
		return Value{}, err
	}
	if len(referenced) == 0 {
		return Value{}, &errs.EvalError{Expression: expr, Detail: "no valid channel names found"}
	}

	namespace := make(map[string]Value, len(referenced))
	for _, chPath := range referenced {
		parent, name, found := strings.Cut(chPath, "/")
		if !found {
			name = chPath
			parent = ""
			parents, err := reader.ParentPaths(h5File, scanKey)
			if err != nil {
				return Value{}, err
			}
			for _, p := range parents {
				if reader.HasChannel(h5File, scanKey, p, name) {
					parent = p
					break
				}
			}
			if parent == "" {
				return Value{}, &errs.EvalError{Expression: expr, Detail: "channel '" + name + "' not found in any parent path"}
			}
		}
		if !reader.HasChannel(h5File, scanKey, parent, name) {
			return Value{}, &errs.EvalError{Expression: expr, Detail: "channel '" + chPath + "' not found"}
		}
		v, err := reader.ReadChannel(h5File, scanKey, parent, name)
		if err != nil {
			return Value{}, err
		}
		exprName := strings.ReplaceAll(chPath, "/", "__")
		namespace[exprName] = v
		if _, taken := namespace[name]; !taken {
			namespace[name] = v
		}
	}

	return Evaluate(expr, namespace)
}
