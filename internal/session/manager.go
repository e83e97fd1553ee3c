package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/echemlab/specimen/internal/errs"
	"github.com/echemlab/specimen/internal/logx"
)

// Manager owns the process-wide session map. Per-session calls hold the
// map lock only long enough to resolve, insert or remove a session
// reference; CleanupExpired and Stats hold it for their whole sweep.
type Manager struct {
	mtx      sync.Mutex
	sessions map[string]*Session
	limits   Limits
	lg       *logx.Logger
	now      func() time.Time

	reaperDone chan struct{}
	reaperWG   sync.WaitGroup
}

// NewManager builds a manager with the given limits; a nil logger
// discards.
func NewManager(limits Limits, lg *logx.Logger) *Manager {
	if lg == nil {
		lg = logx.NewDiscard()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		limits:   limits,
		lg:       lg,
		now:      time.Now,
	}
}

// Create allocates a new UUID-keyed session.
func (m *Manager) Create() *Session {
	s := newSession(uuid.New().String(), m.limits, m.now)
	m.mtx.Lock()
	m.sessions[s.ID] = s
	m.mtx.Unlock()
	return s
}

// Get resolves a session by id. Expired sessions are dropped on access
// and reported as not found.
func (m *Manager) Get(id string) (*Session, error) {
	m.mtx.Lock()
	s, ok := m.sessions[id]
	if ok && s.Expired() {
		delete(m.sessions, id)
		ok = false
	}
	m.mtx.Unlock()
	if !ok {
		return nil, &errs.NotFoundError{ResourceKind: "session", ID: id}
	}
	s.mtx.Lock()
	s.touch()
	s.mtx.Unlock()
	return s, nil
}

// GetOrCreate returns the session for id when it exists and has not
// expired; otherwise it creates a fresh one.
func (m *Manager) GetOrCreate(id string) *Session {
	if id != "" {
		if s, err := m.Get(id); err == nil {
			return s
		}
	}
	return m.Create()
}

// Delete removes a session; its prior id becomes unreachable.
func (m *Manager) Delete(id string) {
	m.mtx.Lock()
	delete(m.sessions, id)
	m.mtx.Unlock()
}

// CleanupExpired removes every session past its TTL and returns the
// count removed.
func (m *Manager) CleanupExpired() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	var removed int
	for id, s := range m.sessions {
		if s.Expired() {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Stats summarizes all live sessions.
type Stats struct {
	ActiveSessions int
	TotalFiles     int
	TotalMemoryMB  float64
}

// Stats reports aggregate counts without touching session access times.
func (m *Manager) Stats() Stats {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	var st Stats
	st.ActiveSessions = len(m.sessions)
	for _, s := range m.sessions {
		s.mtx.Lock()
		st.TotalFiles += len(s.datasets)
		st.TotalMemoryMB += s.memoryMBLocked()
		s.mtx.Unlock()
	}
	return st
}

// StartReaper launches the single background cleanup task. Calling it
// twice is an error in the caller; the manager guards with a token so a
// second loop never starts.
func (m *Manager) StartReaper(interval time.Duration) {
	m.mtx.Lock()
	if m.reaperDone != nil {
		m.mtx.Unlock()
		return
	}
	done := make(chan struct{})
	m.reaperDone = done
	m.mtx.Unlock()

	m.reaperWG.Add(1)
	go func() {
		defer m.reaperWG.Done()
		tkr := time.NewTicker(interval)
		defer tkr.Stop()
		for {
			select {
			case <-done:
				return
			case <-tkr.C:
				if n := m.CleanupExpired(); n > 0 {
					m.lg.Info("session reaper removed %d expired session(s)", n)
				}
			}
		}
	}()
}

// StopReaper shuts the cleanup task down and waits for it to exit.
func (m *Manager) StopReaper() {
	m.mtx.Lock()
	done := m.reaperDone
	m.reaperDone = nil
	m.mtx.Unlock()
	if done == nil {
		return
	}
	close(done)
	m.reaperWG.Wait()
}
