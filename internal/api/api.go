// Package api is the thin HTTP adapter over the core: session cookie
// wiring, upload fan-out to the parsers, kernel endpoints, and the
// export/import container. It holds no logic of its own beyond request
// decoding and error mapping.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/echemlab/specimen/internal/config"
	"github.com/echemlab/specimen/internal/ecparse/biologic"
	"github.com/echemlab/specimen/internal/errs"
	"github.com/echemlab/specimen/internal/logx"
	"github.com/echemlab/specimen/internal/session"
	"github.com/echemlab/specimen/internal/xasanalysis"
	"github.com/echemlab/specimen/internal/xasio"
	"github.com/echemlab/specimen/internal/xasproject"
)

// SessionCookie is the opaque session identity cookie.
const SessionCookie = "specimen_session"

// Server wires the core subsystems behind an http.Handler.
type Server struct {
	cfg     *config.Config
	mgr     *session.Manager
	project *xasproject.Holder
	decoder biologic.Decoder
	reader  xasio.H5Reader
	preEdge xasanalysis.PreEdgeProvider
	lg      *logx.Logger
	mux     *http.ServeMux
}

// NewServer builds the façade. decoder, reader, and preEdge are the
// injected external providers; any may be nil, disabling the endpoints
// that need it.
func NewServer(cfg *config.Config, mgr *session.Manager, project *xasproject.Holder,
	decoder biologic.Decoder, reader xasio.H5Reader, preEdge xasanalysis.PreEdgeProvider,
	lg *logx.Logger) *Server {
	if lg == nil {
		lg = logx.NewDiscard()
	}
	s := &Server{
		cfg:     cfg,
		mgr:     mgr,
		project: project,
		decoder: decoder,
		reader:  reader,
		preEdge: preEdge,
		lg:      lg,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/session", s.handleSessionInfo)
	s.mux.HandleFunc("POST /api/upload", s.handleUpload)
	s.mux.HandleFunc("GET /api/files", s.handleListFiles)
	s.mux.HandleFunc("DELETE /api/files/{filename}", s.handleDeleteFile)
	s.mux.HandleFunc("PATCH /api/files/{filename}/metadata", s.handleUpdateMetadata)
	s.mux.HandleFunc("GET /api/files/{filename}/analysis", s.handleAnalysis)
	s.mux.HandleFunc("POST /api/files/{filename}/transform", s.handleTransform)
	s.mux.HandleFunc("GET /api/session/export", s.handleExport)
	s.mux.HandleFunc("POST /api/session/import", s.handleImport)

	s.mux.HandleFunc("POST /api/xas/project/open", s.handleProjectOpen)
	s.mux.HandleFunc("GET /api/xas/datasets", s.handleXASDatasets)
	s.mux.HandleFunc("GET /api/xas/rois", s.handleROIList)
	s.mux.HandleFunc("POST /api/xas/rois", s.handleROIUpsert)
	s.mux.HandleFunc("DELETE /api/xas/rois/{name}", s.handleROIDelete)
	s.mux.HandleFunc("POST /api/xas/scans", s.handleScanUpsert)
	s.mux.HandleFunc("GET /api/xas/scans", s.handleScanList)
	s.mux.HandleFunc("GET /api/xas/references", s.handleReferenceList)
	s.mux.HandleFunc("POST /api/xas/references", s.handleReferenceUpsert)
	s.mux.HandleFunc("DELETE /api/xas/references/{name}", s.handleReferenceDelete)
	s.mux.HandleFunc("GET /api/xas/normalize", s.handleNormalize)
	s.mux.HandleFunc("GET /api/xas/average", s.handleAverage)
	s.mux.HandleFunc("POST /api/xas/peakfit", s.handlePeakFit)
	s.mux.HandleFunc("POST /api/xas/peakfit/save", s.handlePeakFitSave)
	s.mux.HandleFunc("GET /api/xas/codegen", s.handleXASCodegen)
}

// ServeHTTP dispatches through the internal mux.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// sessionFor resolves the request's session cookie, creating a new
// session (and issuing a fresh cookie) when none is presented or the
// presented one is unknown or expired.
func (s *Server) sessionFor(w http.ResponseWriter, r *http.Request) *session.Session {
	var id string
	if c, err := r.Cookie(SessionCookie); err == nil {
		id = c.Value
	}
	sess := s.mgr.GetOrCreate(id)
	if sess.ID != id {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    sess.ID,
			Path:     "/",
			MaxAge:   int(s.cfg.TTL().Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return sess
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorBody is the uniform error shape: the kind plus a short detail
// string, never a stack trace.
type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// writeError maps the core's typed errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		pe *errs.ParseError
		qe *errs.QuotaError
		nf *errs.NotFoundError
		iu *errs.InUseError
		ee *errs.EvalError
		fe *errs.FitError
		me *errs.FormatError
	)
	switch {
	case errors.As(err, &nf):
		writeJSON(w, http.StatusNotFound, errorBody{Error: string(errs.KindNotFound), Detail: nf.Error()})
	case errors.As(err, &qe):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: string(errs.KindQuota), Detail: qe.Error()})
	case errors.As(err, &iu):
		writeJSON(w, http.StatusConflict, errorBody{Error: string(errs.KindInUse), Detail: iu.Error()})
	case errors.As(err, &pe):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: string(errs.KindParse), Detail: pe.Error()})
	case errors.As(err, &ee):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: string(errs.KindEval), Detail: ee.Error()})
	case errors.As(err, &fe):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: string(errs.KindFit), Detail: fe.Error()})
	case errors.As(err, &me):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: string(errs.KindFormat), Detail: me.Error()})
	default:
		s.lg.Error("internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "InternalError"})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.mgr.Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"active_sessions": st.ActiveSessions,
		"total_files":     st.TotalFiles,
		"total_memory_mb": st.TotalMemoryMB,
	})
}

func (s *Server) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(w, r)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sess.ID,
		"file_count": sess.FileCount(),
		"memory_mb":  sess.MemoryMB(),
	})
}
