// Package transforms derives new datasets from existing ones and never
// overwrites inputs. The column transforms return a new dataset with one
// added column; FilterByCycle and Downsample return a row subset, or the
// input dataset itself when there is no cycle column or the table
// already fits.
package transforms

import (
	"strings"

	"github.com/echemlab/specimen/internal/dataset"
	"github.com/echemlab/specimen/internal/errs"
	"github.com/echemlab/specimen/internal/units"
)

// ReferenceElectrodes holds offsets in V vs SHE at 25 degC.
var ReferenceElectrodes = map[string]float64{
	"SHE":                    0.0,
	"Ag/AgCl (sat. KCl)":     0.197,
	"Ag/AgCl (3M KCl)":       0.210,
	"Ag/AgCl (3M NaCl)":      0.209,
	"SCE":                    0.244,
	"Hg/HgO (1M NaOH)":       0.140,
	"Hg/HgO (1M KOH)":        0.098,
	"Hg/Hg2SO4 (sat. K2SO4)": 0.654,
}

// ReferenceColumnName builds the canonical derived column name
// potential_vs_<ref>_V, with spaces collapsed and parens stripped the
// way the original naming scheme does.
func ReferenceColumnName(toRef string) string {
	r := strings.NewReplacer(" ", "_", "(", "", ")", "")
	return "potential_vs_" + r.Replace(toRef) + "_V"
}

// ConvertReference re-expresses a potential column against a different
// reference electrode. The offset is E(from vs SHE) - E(to vs SHE).
func ConvertReference(d *dataset.Dataset, fromRef, toRef, column string) (*dataset.Dataset, error) {
	if column == "" {
		column = units.PotentialV
	}
	fromV, ok := ReferenceElectrodes[fromRef]
	if !ok {
		return nil, &errs.NotFoundError{ResourceKind: "reference electrode", ID: fromRef}
	}
	toV, ok := ReferenceElectrodes[toRef]
	if !ok {
		return nil, &errs.NotFoundError{ResourceKind: "reference electrode", ID: toRef}
	}
	src := d.Table.Col(column)
	if src == nil {
		return nil, &errs.NotFoundError{ResourceKind: "column", ID: column}
	}
	offset := fromV - toV
	out := make([]float64, len(src))
	for i, v := range src {
		out[i] = v + offset
	}
	return d.WithTable(d.Table.WithColumn(ReferenceColumnName(toRef), out)), nil
}

// IRCompensate adds potential_ir_corrected_V = potential_V - current_A * R.
func IRCompensate(d *dataset.Dataset, resistanceOhm float64) (*dataset.Dataset, error) {
	pot := d.Table.Col(units.PotentialV)
	cur := d.Table.Col(units.CurrentA)
	if pot == nil {
		return nil, &errs.NotFoundError{ResourceKind: "column", ID: units.PotentialV}
	}
	if cur == nil {
		return nil, &errs.NotFoundError{ResourceKind: "column", ID: units.CurrentA}
	}
	out := make([]float64, len(pot))
	for i := range pot {
		out[i] = pot[i] - cur[i]*resistanceOhm
	}
	return d.WithTable(d.Table.WithColumn(units.PotentialIRV, out)), nil
}

// NormalizeByArea adds current_density_A_cm2 = current_A / area.
func NormalizeByArea(d *dataset.Dataset, areaCm2 float64) (*dataset.Dataset, error) {
	cur := d.Table.Col(units.CurrentA)
	if cur == nil {
		return nil, &errs.NotFoundError{ResourceKind: "column", ID: units.CurrentA}
	}
	out := make([]float64, len(cur))
	for i, v := range cur {
		out[i] = v / areaCm2
	}
	return d.WithTable(d.Table.WithColumn(units.CurrentDensA, out)), nil
}

// NormalizeByMass adds current_A_g = current_A / mass.
func NormalizeByMass(d *dataset.Dataset, massG float64) (*dataset.Dataset, error) {
	cur := d.Table.Col(units.CurrentA)
	if cur == nil {
		return nil, &errs.NotFoundError{ResourceKind: "column", ID: units.CurrentA}
	}
	out := make([]float64, len(cur))
	for i, v := range cur {
		out[i] = v / massG
	}
	return d.WithTable(d.Table.WithColumn(units.CurrentPerMass, out)), nil
}

// FilterByCycle selects rows where cycle == n; no-op when the dataset
// carries no cycle column.
func FilterByCycle(d *dataset.Dataset, n int64) *dataset.Dataset {
	return d.FilterByCycle(n)
}

// Downsample keeps every step-th row so at most maxPoints remain.
// Identity when the table already fits.
func Downsample(d *dataset.Dataset, maxPoints int) *dataset.Dataset {
	n := d.Table.Len()
	if maxPoints <= 0 || n <= maxPoints {
		return d
	}
	step := (n + maxPoints - 1) / maxPoints
	kept := d.Table.FilterRows(func(row int) bool { return row%step == 0 })
	return d.WithTable(kept)
}
