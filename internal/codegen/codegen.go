// Package codegen emits self-contained Python scripts that reproduce a
// plot or an XAS normalization from data files alone. Generators are
// pure functions of their inputs; emitted scripts read data as siblings
// of themselves and perform no network calls.
package codegen

import (
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// PlotFile pairs a data path inside the export container with its
// display label.
type PlotFile struct {
	Path  string
	Label string
}

// PlotSettings is the subset of a plot config the generated script
// needs to rebuild the figure.
type PlotSettings struct {
	Title   string
	XColumn string
	YColumn string
	XLabel  string
	YLabel  string
	LogX    bool
	LogY    bool
	// Backend selects the plotting library: "matplotlib" (default) or
	// "plotly".
	Backend string
}

const backendPlotly = "plotly"

func pyStr(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(s) + `"`
}

func pyFloat(f *float64) string {
	if f == nil {
		return "None"
	}
	return fmt.Sprintf("%g", *f)
}

var plotTemplate = template.Must(template.New("plot").Funcs(template.FuncMap{
	"pystr": pyStr,
}).Parse(`#!/usr/bin/env python3
"""Reproduces the exported plot from the data files in this archive.

Run from the directory containing this script; data files are resolved
relative to it.
"""

from pathlib import Path

import polars as pl
{{if .Plotly}}import plotly.graph_objects as go{{else}}import matplotlib.pyplot as plt{{end}}

HERE = Path(__file__).resolve().parent

FILES = [
{{- range .Files}}
    ({{pystr .Path}}, {{pystr .Label}}),
{{- end}}
]

X_COLUMN = {{pystr .Settings.XColumn}}
Y_COLUMN = {{pystr .Settings.YColumn}}


def load(path):
    p = HERE / path
    if p.suffix == ".parquet":
        return pl.read_parquet(p)
    return pl.read_csv(p)


def main():
{{- if .Plotly}}
    fig = go.Figure()
    for path, label in FILES:
        df = load(path)
        fig.add_trace(go.Scatter(x=df[X_COLUMN], y=df[Y_COLUMN], mode="lines", name=label))
    fig.update_layout(
        title={{pystr .Settings.Title}},
        xaxis_title={{pystr .Settings.XLabel}},
        yaxis_title={{pystr .Settings.YLabel}},
{{- if .Settings.LogX}}
        xaxis_type="log",
{{- end}}
{{- if .Settings.LogY}}
        yaxis_type="log",
{{- end}}
    )
    fig.show()
{{- else}}
    fig, ax = plt.subplots()
    for path, label in FILES:
        df = load(path)
        ax.plot(df[X_COLUMN], df[Y_COLUMN], label=label)
    ax.set_title({{pystr .Settings.Title}})
    ax.set_xlabel({{pystr .Settings.XLabel}})
    ax.set_ylabel({{pystr .Settings.YLabel}})
{{- if .Settings.LogX}}
    ax.set_xscale("log")
{{- end}}
{{- if .Settings.LogY}}
    ax.set_yscale("log")
{{- end}}
    ax.legend()
    plt.show()
{{- end}}


if __name__ == "__main__":
    main()
`))

// GeneratePlotScript renders a script that rebuilds one plot from the
// given files. Axis labels default to the column names.
func GeneratePlotScript(settings PlotSettings, files []PlotFile) (string, error) {
	if settings.XLabel == "" {
		settings.XLabel = settings.XColumn
	}
	if settings.YLabel == "" {
		settings.YLabel = settings.YColumn
	}
	var sb strings.Builder
	err := plotTemplate.Execute(&sb, struct {
		Settings PlotSettings
		Files    []PlotFile
		Plotly   bool
	}{settings, files, settings.Backend == backendPlotly})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

// ScanSetting is one scan's stored normalization parameters as they
// appear in the generated script.
type ScanSetting struct {
	Scan        string
	Pre1        *float64
	Pre2        *float64
	Norm1       *float64
	Norm2       *float64
	EnergyShift float64
}

// NormalizationSpec is everything the XAS reproduction script needs:
// the dataset identity, the per-scan parameters, the beamline channel
// layout, and the channel expression in play.
type NormalizationSpec struct {
	Sample      string
	Dataset     string
	ROI         string
	Numerator   string
	Denominator string
	H5Files     []string
	Scans       []ScanSetting
	// H5Paths maps channel name -> path fragment under the parent
	// group, copied from the beamline preset.
	H5Paths    map[string]string
	ParentPath string
	// Backend optionally adds a plotting section: "matplotlib" or
	// "plotly"; empty emits no plot.
	Backend string
}

var normTemplate = template.Must(template.New("norm").Funcs(template.FuncMap{
	"pystr":   pyStr,
	"pyfloat": pyFloat,
}).Parse(`#!/usr/bin/env python3
"""Reproduces the {{.Sample}}/{{.Dataset}} ({{.ROI}}) normalization.

Reads the raw H5 files listed below from this script's directory and
re-runs the pre-edge normalization with the exact stored parameters.
"""

from pathlib import Path

import h5py
import numpy as np
from larch.xafs import pre_edge
from larch import Group

HERE = Path(__file__).resolve().parent

SAMPLE = {{pystr .Sample}}
DATASET = {{pystr .Dataset}}
ROI = {{pystr .ROI}}
NUMERATOR = {{pystr .Numerator}}
DENOMINATOR = {{pystr .Denominator}}
PARENT_PATH = {{pystr .ParentPath}}

H5_FILES = [
{{- range .H5Files}}
    {{pystr .}},
{{- end}}
]

H5_PATHS = {
{{- range $k, $v := .H5Paths}}
    {{pystr $k}}: {{pystr $v}},
{{- end}}
}

# scan -> (pre1, pre2, norm1, norm2, energy_shift_eV)
SCAN_PARAMS = {
{{- range .Scans}}
    {{pystr .Scan}}: ({{pyfloat .Pre1}}, {{pyfloat .Pre2}}, {{pyfloat .Norm1}}, {{pyfloat .Norm2}}, {{printf "%g" .EnergyShift}}),
{{- end}}
}


def read_channel(h5, scan, channel):
    path = f"{scan}/{PARENT_PATH}/{H5_PATHS[channel]}/data"
    return np.asarray(h5[path])


def normalize_scan(h5, scan, pre1, pre2, norm1, norm2, shift):
    energy = read_channel(h5, scan, "energy") * 1000.0
    mu = read_channel(h5, scan, NUMERATOR)
    if DENOMINATOR:
        mu = mu / read_channel(h5, scan, DENOMINATOR)
    energy = energy + shift
    g = Group(energy=energy, mu=mu)
    pre_edge(g, group=g, pre1=pre1, pre2=pre2, norm1=norm1, norm2=norm2)
    return energy, g.norm


def main():
    curves = {}
    for h5_name in H5_FILES:
        with h5py.File(HERE / h5_name, "r") as h5:
            for scan, params in SCAN_PARAMS.items():
                if scan not in h5:
                    continue
                curves[scan] = normalize_scan(h5, scan, *params)

    if not curves:
        raise SystemExit("no scans found in the listed H5 files")

    energy = next(iter(curves.values()))[0]
    stack = np.vstack([norm for _, norm in curves.values()])
    avg = stack.mean(axis=0)
    std = stack.std(axis=0, ddof=1) if len(curves) > 1 else np.zeros_like(avg)
    np.savetxt(
        HERE / f"{SAMPLE}_{DATASET}_{ROI}_normalized.csv",
        np.column_stack([energy, avg, std]),
        delimiter=",",
        header="energy_eV,norm,std",
        comments="",
    )
{{- if eq .Backend "plotly"}}

    import plotly.graph_objects as go

    fig = go.Figure()
    for scan, (e, norm) in curves.items():
        fig.add_trace(go.Scatter(x=e, y=norm, mode="lines", name=scan, opacity=0.4))
    fig.add_trace(go.Scatter(x=energy, y=avg, mode="lines", name="average"))
    fig.update_layout(title=f"{SAMPLE}/{DATASET} ({ROI})", xaxis_title="Energy (eV)", yaxis_title="Normalized mu")
    fig.show()
{{- else if eq .Backend "matplotlib"}}

    import matplotlib.pyplot as plt

    fig, ax = plt.subplots()
    for scan, (e, norm) in curves.items():
        ax.plot(e, norm, alpha=0.4, label=scan)
    ax.plot(energy, avg, label="average", linewidth=2)
    ax.set_title(f"{SAMPLE}/{DATASET} ({ROI})")
    ax.set_xlabel("Energy (eV)")
    ax.set_ylabel("Normalized mu")
    ax.legend()
    plt.show()
{{- end}}


if __name__ == "__main__":
    main()
`))

// GenerateNormalizationScript renders the XAS reproduction script. Scan
// entries are sorted by scan ID so output is deterministic.
func GenerateNormalizationScript(spec NormalizationSpec) (string, error) {
	scans := append([]ScanSetting(nil), spec.Scans...)
	sort.Slice(scans, func(i, j int) bool { return scans[i].Scan < scans[j].Scan })
	spec.Scans = scans
	if spec.ParentPath == "" {
		spec.ParentPath = "instrument"
	}
	var sb strings.Builder
	if err := normTemplate.Execute(&sb, spec); err != nil {
		return "", err
	}
	return sb.String(), nil
}
