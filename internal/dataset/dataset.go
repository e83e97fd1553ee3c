// Package dataset holds the canonical tabular model shared by every
// parser, analysis kernel, and transform: a struct-of-arrays table of
// float64 columns plus an optional integer cycle column, with identity
// and provenance alongside.
package dataset

import (
	"sort"
	"time"
)

// Table is a rectangular, column-oriented set of float64 columns plus one
// optional integer cycle column. Row order is the instrument's native
// acquisition order and is semantically meaningful for time-series
// techniques.
type Table struct {
	Columns []string
	Data    map[string][]float64
	// Cycle holds the integer-valued cycle column when present; nil
	// otherwise. When non-nil its length matches every other column.
	Cycle []int64
}

// NewTable builds an empty table with the given column order.
func NewTable(columns []string) *Table {
	t := &Table{
		Columns: append([]string(nil), columns...),
		Data:    make(map[string][]float64, len(columns)),
	}
	for _, c := range columns {
		t.Data[c] = nil
	}
	return t
}

// Len returns the row count, or 0 for an empty table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	for _, c := range t.Columns {
		return len(t.Data[c])
	}
	if t.Cycle != nil {
		return len(t.Cycle)
	}
	return 0
}

// Has reports whether column name exists.
func (t *Table) Has(name string) bool {
	if t == nil {
		return false
	}
	_, ok := t.Data[name]
	return ok
}

// Col returns the column's values, or nil if absent.
func (t *Table) Col(name string) []float64 {
	if t == nil {
		return nil
	}
	return t.Data[name]
}

// WithColumn returns a shallow copy of the table with an additional
// column appended. It never mutates t or any of its existing columns,
// so transforms stay non-destructive.
func (t *Table) WithColumn(name string, values []float64) *Table {
	nt := &Table{
		Columns: append(append([]string(nil), t.Columns...), name),
		Data:    make(map[string][]float64, len(t.Data)+1),
		Cycle:   t.Cycle,
	}
	for k, v := range t.Data {
		nt.Data[k] = v
	}
	nt.Data[name] = values
	return nt
}

// FilterRows returns a new table containing only the rows for which keep
// is true, preserving column order and the cycle column.
func (t *Table) FilterRows(keep func(row int) bool) *Table {
	n := t.Len()
	idx := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if keep(i) {
			idx = append(idx, i)
		}
	}
	return t.selectRows(idx)
}

func (t *Table) selectRows(idx []int) *Table {
	nt := &Table{
		Columns: append([]string(nil), t.Columns...),
		Data:    make(map[string][]float64, len(t.Data)),
	}
	for _, c := range t.Columns {
		src := t.Data[c]
		dst := make([]float64, len(idx))
		for i, j := range idx {
			dst[i] = src[j]
		}
		nt.Data[c] = dst
	}
	if t.Cycle != nil {
		dst := make([]int64, len(idx))
		for i, j := range idx {
			dst[i] = t.Cycle[j]
		}
		nt.Cycle = dst
	}
	return nt
}

// SortedUniqueCycles computes cycles = sort(unique(cycle)).
func SortedUniqueCycles(cycle []int64) []int64 {
	if len(cycle) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(cycle))
	out := make([]int64, 0, len(cycle))
	for _, v := range cycle {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Dataset is the universal tabular unit: a canonical
// table plus identity, provenance, and display metadata.
type Dataset struct {
	Filename         string
	Table            *Table
	Technique        string // abbreviation from the closed set, or ""
	Label            string
	Timestamp        *time.Time
	Cycles           []int64
	SourceFormat     string // "biologic", "gamry", or "" for XAS
	OriginalFilename string
	FileHash         string
	UserMetadata     map[string]string
}

// Columns returns the dataset's canonical column list.
func (d *Dataset) Columns() []string {
	if d.Table == nil {
		return nil
	}
	return d.Table.Columns
}

// WithTable returns a shallow copy of d pointing at a new table, used by
// transforms to produce a non-destructive derivative dataset.
func (d *Dataset) WithTable(t *Table) *Dataset {
	nd := *d
	nd.Table = t
	return &nd
}

// FilterByCycle selects rows matching cycle n; if the dataset has no
// cycle column it returns d itself, unchanged.
func (d *Dataset) FilterByCycle(n int64) *Dataset {
	if d.Table == nil || d.Table.Cycle == nil {
		return d
	}
	filtered := d.Table.FilterRows(func(row int) bool { return d.Table.Cycle[row] == n })
	return d.WithTable(filtered)
}
