package api

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/echemlab/specimen/internal/dataset"
	"github.com/echemlab/specimen/internal/errs"
)

// decodeBody reads a JSON request body; malformed input maps to a
// FormatError so the client sees a kind, not a decoder trace.
func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &errs.FormatError{Detail: "bad request body: " + err.Error()}
	}
	return nil
}

// sortDatasets orders by filename so exports are deterministic.
func sortDatasets(ds []*dataset.Dataset) {
	sort.Slice(ds, func(i, j int) bool { return ds[i].Filename < ds[j].Filename })
}
