// Package session holds per-user in-memory state: parsed datasets,
// editable file metadata, quotas, and TTL-based expiry. For per-session
// work the manager's map lock is held only to resolve a session
// reference (the expiry sweep and Stats hold it throughout); per-session
// mutations take the session's own lock.
package session

import (
	"sync"
	"time"

	"github.com/echemlab/specimen/internal/dataset"
	"github.com/echemlab/specimen/internal/errs"
)

// Default limits, overridable through Limits.
const (
	DefaultMaxFilesPerSession  = 100
	DefaultMaxFileSizeMB       = 50
	DefaultMaxSessionMemoryMB  = 500
	DefaultSessionTTLHours     = 24
	DefaultCleanupIntervalMins = 30
)

// Limits bounds a single session's resource usage.
type Limits struct {
	MaxFiles      int
	MaxFileSizeMB int64
	MaxMemoryMB   int64
	TTL           time.Duration
}

// DefaultLimits returns the stock quota set.
func DefaultLimits() Limits {
	return Limits{
		MaxFiles:      DefaultMaxFilesPerSession,
		MaxFileSizeMB: DefaultMaxFileSizeMB,
		MaxMemoryMB:   DefaultMaxSessionMemoryMB,
		TTL:           DefaultSessionTTLHours * time.Hour,
	}
}

// Session is one user's isolation boundary.
type Session struct {
	mtx sync.Mutex

	ID           string
	CreatedAt    time.Time
	lastAccessed time.Time

	datasets     map[string]*dataset.Dataset
	fileMetadata map[string]map[string]string

	limits Limits
	now    func() time.Time
}

func newSession(id string, limits Limits, now func() time.Time) *Session {
	t := now()
	return &Session{
		ID:           id,
		CreatedAt:    t,
		lastAccessed: t,
		datasets:     make(map[string]*dataset.Dataset),
		fileMetadata: make(map[string]map[string]string),
		limits:       limits,
		now:          now,
	}
}

func (s *Session) touch() {
	s.lastAccessed = s.now()
}

// LastAccessed returns the instant of the most recent read or write.
func (s *Session) LastAccessed() time.Time {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.lastAccessed
}

// expiredLocked reports whether the session's idle time exceeds the TTL.
// A session idle for exactly the TTL is treated as expired.
func (s *Session) expiredLocked(now time.Time) bool {
	return !now.Before(s.lastAccessed.Add(s.limits.TTL))
}

// Expired reports whether the session is past its TTL.
func (s *Session) Expired() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.expiredLocked(s.now())
}

// estimateMB approximates a dataset's memory footprint as
// rows x columns x 8 bytes, matching the original estimator.
func estimateMB(d *dataset.Dataset) float64 {
	if d.Table == nil {
		return 0
	}
	rows := d.Table.Len()
	cols := len(d.Table.Columns)
	if d.Table.Cycle != nil {
		cols++
	}
	return float64(rows*cols*8) / (1024 * 1024)
}

// MemoryMB estimates the aggregate memory held by the session's datasets.
func (s *Session) MemoryMB() float64 {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.memoryMBLocked()
}

func (s *Session) memoryMBLocked() float64 {
	var total float64
	for _, d := range s.datasets {
		total += estimateMB(d)
	}
	return total
}

// FileCount returns the number of datasets in the session.
func (s *Session) FileCount() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.datasets)
}

// AddDataset inserts a dataset, enforcing the file-count and aggregate
// memory quotas atomically with the insertion.
func (s *Session) AddDataset(d *dataset.Dataset) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.touch()
	if len(s.datasets) >= s.limits.MaxFiles {
		return &errs.QuotaError{
			ResourceKind: "files",
			Want:         float64(s.limits.MaxFiles),
			Have:         float64(len(s.datasets) + 1),
		}
	}
	addMB := estimateMB(d)
	if have := s.memoryMBLocked() + addMB; have > float64(s.limits.MaxMemoryMB) {
		return &errs.QuotaError{
			ResourceKind: "memory",
			Want:         float64(s.limits.MaxMemoryMB),
			Have:         have,
		}
	}
	s.datasets[d.Filename] = d
	label := d.Label
	if label == "" {
		label = d.Filename
	}
	s.fileMetadata[d.Filename] = map[string]string{"label": label}
	return nil
}

// Dataset returns the dataset stored under filename.
func (s *Session) Dataset(filename string) (*dataset.Dataset, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.touch()
	d, ok := s.datasets[filename]
	if !ok {
		return nil, &errs.NotFoundError{ResourceKind: "filename", ID: filename}
	}
	return d, nil
}

// Datasets returns a snapshot copy of the filename -> dataset map.
func (s *Session) Datasets() map[string]*dataset.Dataset {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.touch()
	out := make(map[string]*dataset.Dataset, len(s.datasets))
	for k, v := range s.datasets {
		out[k] = v
	}
	return out
}

// ReplaceDataset swaps the dataset stored under filename, used when a
// transform produces a derived table for the same file identity.
func (s *Session) ReplaceDataset(d *dataset.Dataset) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.touch()
	if _, ok := s.datasets[d.Filename]; !ok {
		return &errs.NotFoundError{ResourceKind: "filename", ID: d.Filename}
	}
	s.datasets[d.Filename] = d
	return nil
}

// RemoveDataset drops a dataset and its metadata.
func (s *Session) RemoveDataset(filename string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.touch()
	delete(s.datasets, filename)
	delete(s.fileMetadata, filename)
}

// Metadata returns a copy of the per-file metadata map for filename.
func (s *Session) Metadata(filename string) map[string]string {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.touch()
	src := s.fileMetadata[filename]
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// AllMetadata returns a deep copy of the full metadata map.
func (s *Session) AllMetadata() map[string]map[string]string {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.touch()
	out := make(map[string]map[string]string, len(s.fileMetadata))
	for fn, m := range s.fileMetadata {
		mm := make(map[string]string, len(m))
		for k, v := range m {
			mm[k] = v
		}
		out[fn] = mm
	}
	return out
}

// UpdateMetadata applies a patch to a file's metadata. A nil value
// pointer deletes its key.
func (s *Session) UpdateMetadata(filename string, patch map[string]*string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.touch()
	m, ok := s.fileMetadata[filename]
	if !ok {
		return &errs.NotFoundError{ResourceKind: "filename", ID: filename}
	}
	for k, v := range patch {
		if v == nil {
			delete(m, k)
		} else {
			m[k] = *v
		}
	}
	return nil
}

// Clear drops all datasets and metadata.
func (s *Session) Clear() {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.touch()
	s.datasets = make(map[string]*dataset.Dataset)
	s.fileMetadata = make(map[string]map[string]string)
}
