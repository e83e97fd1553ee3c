// Package gamry parses Gamry .DTA text files into canonical datasets.
// The format is a tab-delimited header section of KEY\tTYPE\tVALUE rows
// followed by one or more "*CURVE\d* TABLE" data blocks (e.g. "CURVE
// TABLE", "CURVE1 TABLE", "OCVCURVE TABLE"), each a marker line, a
// column-header line, a units line, then tab-delimited numeric rows.
package gamry

import (
	"bufio"
	"bytes"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/echemlab/specimen/internal/dataset"
	"github.com/echemlab/specimen/internal/errs"
	"github.com/echemlab/specimen/internal/units"
)

// tagTechniqueMap maps the Gamry TAG header field to a canonical
// technique abbreviation. Tags absent here fall back to the
// filename heuristic.
var tagTechniqueMap = map[string]units.Technique{
	"CV":      units.TechCV,
	"LSV":     units.TechLSV,
	"CHRONOA": units.TechCA,
	"CHRONOP": units.TechCP,
	"CORPOT":  units.TechOCP,
	"EISPOT":  units.TechPEIS,
	"EISGALV": units.TechGEIS,
}

// reCurveMarker locates data-block markers: an optional word prefix,
// CURVE, an optional numeric suffix, whitespace, TABLE.
var reCurveMarker = regexp.MustCompile(`^(\w*CURVE)(\d*)\s+TABLE`)

// curveMarker reports whether line starts a data block, and the cycle
// number carried by the marker's numeric suffix (0 when absent).
func curveMarker(line string) (int64, bool) {
	m := reCurveMarker.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return 0, false
	}
	var n int64
	if m[2] != "" {
		n, _ = strconv.ParseInt(m[2], 10, 64)
	}
	return n, true
}

var (
	reTrailingCycle = regexp.MustCompile(`_C\d+$`)
	reMultiScanTech = regexp.MustCompile(`_(\d{2})_([A-Z]+)$`)
	reTrailingMulti = regexp.MustCompile(`_\d{2}_[A-Z]+$`)
)

// filenameTechnique applies the same filename heuristic used for
// BioLogic files to a Gamry filename stem, used only when the TAG
// header field is absent or unrecognized.
func filenameTechnique(filename string) string {
	base := strings.TrimSuffix(strings.TrimSuffix(filename, ".DTA"), ".dta")
	base = reTrailingCycle.ReplaceAllString(base, "")
	if m := reMultiScanTech.FindStringSubmatch(base); m != nil && units.IsKnownTechnique(m[2]) {
		return m[2]
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

func filenameLabel(filename string) string {
	base := strings.TrimSuffix(strings.TrimSuffix(filename, ".DTA"), ".dta")
	label := reTrailingCycle.ReplaceAllString(base, "")
	label = reTrailingMulti.ReplaceAllString(label, "")
	return label
}

// ParseFile reads a Gamry .DTA file from disk.
func ParseFile(path, filename string) (*dataset.Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &errs.ParseError{File: filename, Detail: err.Error()}
	}
	return ParseBytes(raw, filename)
}

// ParseBytes parses .DTA content already resident in memory, used for
// in-memory uploads as well as direct unit tests.
func ParseBytes(raw []byte, filename string) (*dataset.Dataset, error) {
	lines := splitLines(raw)
	if len(lines) == 0 {
		return nil, &errs.ParseError{File: filename, Detail: "empty file"}
	}

	headerTags := make(map[string]string)
	type marker struct {
		idx   int
		cycle int64
	}
	var markers []marker
	for i, line := range lines {
		if cyc, ok := curveMarker(line); ok {
			markers = append(markers, marker{idx: i, cycle: cyc})
			continue
		}
		if len(markers) > 0 {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) >= 3 {
			headerTags[fields[0]] = fields[2]
		} else if len(fields) == 2 {
			headerTags[fields[0]] = fields[1]
		}
	}
	if len(markers) == 0 {
		return nil, &errs.ParseError{File: filename, Detail: "no CURVE TABLE block found"}
	}

	columnData := make(map[string][]float64)
	var columnOrder []string
	var cycleVals []int64

	for mi, mk := range markers {
		headerLine := mk.idx + 1
		if headerLine >= len(lines) {
			continue
		}
		cols := strings.Split(lines[headerLine], "\t")
		dataStart := mk.idx + 3
		dataEnd := len(lines)
		if mi+1 < len(markers) {
			dataEnd = markers[mi+1].idx
		}
		if dataStart >= dataEnd {
			continue
		}
		for li := dataStart; li < dataEnd; li++ {
			row := strings.Split(lines[li], "\t")
			if len(row) < len(cols) {
				continue
			}
			for ci, cname := range cols {
				cname = strings.TrimSpace(cname)
				if cname == "" {
					continue
				}
				v, err := strconv.ParseFloat(strings.TrimSpace(row[ci]), 64)
				if err != nil {
					continue
				}
				if _, ok := columnData[cname]; !ok {
					columnOrder = append(columnOrder, cname)
				}
				columnData[cname] = append(columnData[cname], v)
			}
			cycleVals = append(cycleVals, mk.cycle)
		}
	}

	table := standardize(columnData, columnOrder)
	if cyc, ok := table.Data[units.Cycle]; ok {
		// the curve body carried its own Cycle column; it wins over
		// the marker-suffix synthesis
		table.Cycle = make([]int64, len(cyc))
		for i, v := range cyc {
			table.Cycle[i] = int64(v)
		}
		delete(table.Data, units.Cycle)
		kept := make([]string, 0, len(table.Columns))
		for _, c := range table.Columns {
			if c != units.Cycle {
				kept = append(kept, c)
			}
		}
		table.Columns = kept
	} else {
		table.Cycle = cycleVals
	}

	technique := ""
	if tag, ok := headerTags["TAG"]; ok {
		if t, ok := tagTechniqueMap[strings.TrimSpace(tag)]; ok {
			technique = string(t)
		}
	}
	if technique == "" {
		technique = filenameTechnique(filename)
	}

	return &dataset.Dataset{
		Filename:         filename,
		Table:            table,
		Technique:        technique,
		Label:            filenameLabel(filename),
		Cycles:           dataset.SortedUniqueCycles(table.Cycle),
		SourceFormat:     "gamry",
		OriginalFilename: filename,
		UserMetadata:     map[string]string{},
	}, nil
}

func standardize(columnData map[string][]float64, order []string) *dataset.Table {
	seen := make(map[string]bool)
	var canonicalOrder []string
	data := make(map[string][]float64)

	for _, src := range order {
		raw := columnData[src]
		sc, mapped := units.GamryColumnMap[src]
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
	return &dataset.Table{Columns: canonicalOrder, Data: data}
}

func splitLines(raw []byte) []string {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}
