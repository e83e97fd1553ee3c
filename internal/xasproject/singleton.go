package xasproject

import (
	"sync"

	"github.com/echemlab/specimen/internal/errs"
	"github.com/echemlab/specimen/internal/logx"
)

// Holder owns the process's single open project. Opening a new project
// implicitly closes the previous one.
type Holder struct {
	mtx     sync.Mutex
	current *Project
}

// Open opens projectPath and makes it the current project.
func (h *Holder) Open(projectPath string, rawDataFolders []string, lg *logx.Logger) (*Project, error) {
	p, err := Open(projectPath, rawDataFolders, lg)
	if err != nil {
		return nil, err
	}
	h.mtx.Lock()
	h.current = p
	h.mtx.Unlock()
	return p, nil
}

// Current returns the open project, or a NotFound error when no project
// has been opened.
func (h *Holder) Current() (*Project, error) {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	if h.current == nil {
		return nil, &errs.NotFoundError{ResourceKind: "project", ID: "(none open)"}
	}
	return h.current, nil
}

// Close drops the current project handle. The document store is already
// durable on disk; nothing is flushed here.
func (h *Holder) Close() {
	h.mtx.Lock()
	h.current = nil
	h.mtx.Unlock()
}
