package serialize

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/echemlab/specimen/internal/dataset"
	"github.com/echemlab/specimen/internal/errs"
	"github.com/echemlab/specimen/internal/units"
)

// dataColumns returns the on-wire column order for a table: the float
// columns in canonical order, then the cycle column when present.
func dataColumns(t *dataset.Table) []string {
	cols := append([]string(nil), t.Columns...)
	if t.Cycle != nil {
		cols = append(cols, units.Cycle)
	}
	return cols
}

// encodeParquet writes the table as one Parquet row group with DOUBLE
// columns plus an INT64 cycle column when present.
func encodeParquet(t *dataset.Table) ([]byte, error) {
	group := parquet.Group{}
	for _, c := range t.Columns {
		group[c] = parquet.Leaf(parquet.DoubleType)
	}
	if t.Cycle != nil {
		group[units.Cycle] = parquet.Leaf(parquet.Int64Type)
	}
	schema := parquet.NewSchema("dataset", group)

	n := t.Len()
	rows := make([]map[string]interface{}, n)
	for i := 0; i < n; i++ {
		row := make(map[string]interface{}, len(t.Columns)+1)
		for _, c := range t.Columns {
			row[c] = t.Data[c][i]
		}
		if t.Cycle != nil {
			row[units.Cycle] = t.Cycle[i]
		}
		rows[i] = row
	}

	var buf bytes.Buffer
	if err := parquet.Write[map[string]interface{}](&buf, rows, schema); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeParquet reads a Parquet payload back into a table. Column order
// follows wantColumns when given (the registry's record), else the
// file's own field order.
func decodeParquet(content []byte, wantColumns []string) (*dataset.Table, error) {
	f, err := parquet.OpenFile(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}
	rows, err := parquet.Read[map[string]interface{}](bytes.NewReader(content), int64(len(content)), f.Schema())
	if err != nil {
		return nil, err
	}
	return tableFromRows(rows, wantColumns)
}

func tableFromRows(rows []map[string]interface{}, wantColumns []string) (*dataset.Table, error) {
	var order []string
	if len(wantColumns) > 0 {
		order = wantColumns
	} else if len(rows) > 0 {
		for k := range rows[0] {
			order = append(order, k)
		}
	}

	t := &dataset.Table{Data: make(map[string][]float64)}
	for _, c := range order {
		if c == units.Cycle {
			continue
		}
		t.Columns = append(t.Columns, c)
		t.Data[c] = make([]float64, 0, len(rows))
	}
	hasCycle := false
	for _, c := range order {
		if c == units.Cycle {
			hasCycle = true
		}
	}
	if hasCycle {
		t.Cycle = make([]int64, 0, len(rows))
	}

	for _, row := range rows {
		for _, c := range t.Columns {
			v, ok := row[c]
			if !ok {
				return nil, fmt.Errorf("row missing column %q", c)
			}
			f, err := toFloat(v)
			if err != nil {
				return nil, err
			}
			t.Data[c] = append(t.Data[c], f)
		}
		if hasCycle {
			v, ok := row[units.Cycle]
			if !ok {
				return nil, fmt.Errorf("row missing column %q", units.Cycle)
			}
			f, err := toFloat(v)
			if err != nil {
				return nil, err
			}
			t.Cycle = append(t.Cycle, int64(f))
		}
	}
	return t, nil
}

func toFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int:
		return float64(x), nil
	default:
		return 0, fmt.Errorf("unsupported cell type %T", v)
	}
}

// encodeCSV writes the table as headered CSV, floats in shortest
// round-trippable form.
func encodeCSV(t *dataset.Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(dataColumns(t)); err != nil {
		return nil, err
	}
	n := t.Len()
	rec := make([]string, 0, len(t.Columns)+1)
	for i := 0; i < n; i++ {
		rec = rec[:0]
		for _, c := range t.Columns {
			rec = append(rec, strconv.FormatFloat(t.Data[c][i], 'g', -1, 64))
		}
		if t.Cycle != nil {
			rec = append(rec, strconv.FormatInt(t.Cycle[i], 10))
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// decodeCSV reads a headered CSV payload back into a table.
func decodeCSV(content []byte) (*dataset.Table, error) {
	r := csv.NewReader(bytes.NewReader(content))
	header, err := r.Read()
	if err != nil {
		return nil, &errs.FormatError{Detail: "empty data file"}
	}
	t := &dataset.Table{Data: make(map[string][]float64)}
	cycleIdx := -1
	for i, c := range header {
		c = strings.TrimSpace(c)
		header[i] = c
		if c == units.Cycle {
			cycleIdx = i
			t.Cycle = []int64{}
			continue
		}
		t.Columns = append(t.Columns, c)
		t.Data[c] = []float64{}
	}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		for i, c := range header {
			if i >= len(rec) {
				break
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
			if err != nil {
				return nil, fmt.Errorf("bad value %q in column %q", rec[i], c)
			}
			if i == cycleIdx {
				t.Cycle = append(t.Cycle, int64(v))
			} else {
				t.Data[c] = append(t.Data[c], v)
			}
		}
	}
	return t, nil
}
