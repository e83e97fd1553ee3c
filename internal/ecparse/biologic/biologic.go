// Package biologic decodes BioLogic .mpr files into canonical datasets.
// The proprietary binary decode itself is delegated to an injected
// Decoder; this package handles renaming, rescaling, and the filename
// heuristics for technique and label.
package biologic

import (
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/echemlab/specimen/internal/dataset"
	"github.com/echemlab/specimen/internal/errs"
	"github.com/echemlab/specimen/internal/units"
)

// DecodedFile is what an external .mpr binary decoder yields: a column
// dictionary (source column name -> raw values) and an optional
// acquisition timestamp.
type DecodedFile struct {
	Columns   map[string][]float64
	Timestamp *time.Time
}

// Decoder is the injected binary-format reader. Production wiring
// supplies a concrete .mpr decoder; tests supply a fake.
type Decoder interface {
	Decode(path string) (*DecodedFile, error)
}

var (
	reTrailingCycle = regexp.MustCompile(`_C\d+$`)
	reMultiScanTech = regexp.MustCompile(`_(\d{2})_([A-Z]+)$`)
	reTrailingMulti = regexp.MustCompile(`_\d{2}_[A-Z]+$`)
)

// ExtractTechnique applies the filename heuristic:
// strip a trailing _C\d+ cycle suffix, then try the multi-scan
// _NN_TECHNIQUE suffix, then a leading-or-sole abbreviation, then any
// underscore-separated part.
func ExtractTechnique(filename string) string {
	base := strings.TrimSuffix(filename, ".mpr")
	base = reTrailingCycle.ReplaceAllString(base, "")

	if m := reMultiScanTech.FindStringSubmatch(base); m != nil {
		if units.IsKnownTechnique(m[2]) {
			return m[2]
		}
	}
	for _, t := range units.KnownTechniques {
		abbr := string(t)
		if base == abbr || strings.HasPrefix(base, abbr+"_") {
			return abbr
		}
	}
	for _, part := range strings.Split(base, "_") {
		if units.IsKnownTechnique(part) {
			return part
		}
	}
	return ""
}

// ExtractLabel strips the trailing _C\d+ and _\d{2}_[A-Z]+ segments from
// the filename stem.
func ExtractLabel(filename string) string {
	base := strings.TrimSuffix(filename, ".mpr")
	label := reTrailingCycle.ReplaceAllString(base, "")
	label = reTrailingMulti.ReplaceAllString(label, "")
	return label
}

// Standardize renames/rescales a decoded column dictionary onto the
// canonical column set via the BioLogic column map. When several
// source columns map to the same canonical name, the first occurrence
// (in the sequence given by order) wins and later duplicates are
// dropped; source columns not listed in order are ignored.
func Standardize(columns map[string][]float64, order []string) *dataset.Table {
	seen := make(map[string]bool)
	var canonicalOrder []string
	data := make(map[string][]float64)

	for _, src := range order {
		raw, ok := columns[src]
		if !ok {
			continue
		}
		sc, mapped := units.BioLogicColumnMap[src]
		if !mapped {
			continue
		}
		if seen[sc.Canonical] {
			continue
		}
		seen[sc.Canonical] = true
		canonicalOrder = append(canonicalOrder, sc.Canonical)
		if sc.Factor == 1 {
			data[sc.Canonical] = raw
		} else {
			scaled := make([]float64, len(raw))
			for i, v := range raw {
				scaled[i] = v * sc.Factor
			}
			data[sc.Canonical] = scaled
		}
	}

	t := &dataset.Table{Columns: canonicalOrder, Data: data}
	if cyc, ok := data[units.Cycle]; ok {
		t.Cycle = make([]int64, len(cyc))
		for i, v := range cyc {
			t.Cycle[i] = int64(v)
		}
		delete(t.Data, units.Cycle)
		out := make([]string, 0, len(t.Columns))
		for _, c := range t.Columns {
			if c != units.Cycle {
				out = append(out, c)
			}
		}
		t.Columns = out
	}
	return t
}

// sourcePriority fixes the column order a decoded map standardizes in:
// the registry's known columns in their conventional acquisition order,
// then anything else sorted by name.
var sourcePriority = []string{
	"time/s", "Ewe/V", "<I>/mA", "freq/Hz",
	"Re(Z)/Ohm", "-Im(Z)/Ohm", "|Z|/Ohm", "Phase(Z)/deg",
	"cycle number",
}

func decodedOrder(columns map[string][]float64) []string {
	var order []string
	taken := make(map[string]bool, len(columns))
	for _, src := range sourcePriority {
		if _, ok := columns[src]; ok {
			order = append(order, src)
			taken[src] = true
		}
	}
	var rest []string
	for k := range columns {
		if !taken[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(order, rest...)
}

// Parse decodes file at path via dec and produces a canonical dataset.
func Parse(dec Decoder, path, filename string) (*dataset.Dataset, error) {
	decoded, err := dec.Decode(path)
	if err != nil {
		return nil, &errs.ParseError{File: filename, Detail: err.Error()}
	}
	if len(decoded.Columns) == 0 {
		return nil, &errs.ParseError{File: filename, Detail: "decoder returned no columns"}
	}

	table := Standardize(decoded.Columns, decodedOrder(decoded.Columns))
	technique := ExtractTechnique(filename)

	return &dataset.Dataset{
		Filename:         filename,
		Table:            table,
		Technique:        technique,
		Label:            ExtractLabel(filename),
		Timestamp:        decoded.Timestamp,
		Cycles:           dataset.SortedUniqueCycles(table.Cycle),
		SourceFormat:     "biologic",
		OriginalFilename: filename,
		UserMetadata:     map[string]string{},
	}, nil
}

// ParseBytes writes raw to a scoped temporary file and decodes it via
// Parse; the decoder contract is path-based. The temp file is released
// on every exit path.
func ParseBytes(dec Decoder, raw []byte, filename string) (*dataset.Dataset, error) {
	tmp, err := os.CreateTemp("", "specimen-*.mpr")
	if err != nil {
		return nil, &errs.ParseError{File: filename, Detail: "temp file: " + err.Error()}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err = tmp.Write(raw); err != nil {
		tmp.Close()
		return nil, &errs.ParseError{File: filename, Detail: "temp file write: " + err.Error()}
	}
	if err = tmp.Close(); err != nil {
		return nil, &errs.ParseError{File: filename, Detail: "temp file close: " + err.Error()}
	}
	return Parse(dec, tmpPath, filename)
}
