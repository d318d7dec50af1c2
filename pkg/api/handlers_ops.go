package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/emanuelteklu/cc-sidecar/pkg/ops"
)

// addTaskRequest is the body of POST /api/overnight.
type addTaskRequest struct {
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

type addTaskResponse struct {
	OK          bool     `json:"ok"`
	Task        ops.Task `json:"task"`
	QueueLength int      `json:"queue_length"`
}

func (s *Server) requireWorkspace(w http.ResponseWriter) bool {
	if s.workspace == nil {
		writeError(w, http.StatusServiceUnavailable, "workspace not configured")
		return false
	}
	return true
}

func (s *Server) handleListOvernight(w http.ResponseWriter, r *http.Request) {
	if !s.requireWorkspace(w) {
		return
	}
	raw, err := s.workspace.Queue.List()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeRawJSON(w, http.StatusOK, raw)
}

func (s *Server) handleAddOvernight(w http.ResponseWriter, r *http.Request) {
	if !s.requireWorkspace(w) {
		return
	}
	var req addTaskRequest
	if err := decodeJSONBody(w, r, &req, maxBodyBytesSmall); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	task, n, err := s.workspace.Queue.Append(req.Description, req.Priority)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.logger.WithContext(r.Context()).Info("overnight task queued",
		"priority", task.Priority,
		"queue_length", n,
	)
	writeJSON(w, http.StatusOK, addTaskResponse{OK: true, Task: task, QueueLength: n})
}

func (s *Server) handleListResearch(w http.ResponseWriter, r *http.Request) {
	if !s.requireWorkspace(w) {
		return
	}
	briefs, err := s.workspace.Library.List()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, briefs)
}

// handleGetResearch serves /api/research/{slug}. The slug is everything after
// the prefix, so "../../etc/passwd" arrives whole and is rejected.
func (s *Server) handleGetResearch(w http.ResponseWriter, r *http.Request) {
	if !s.requireWorkspace(w) {
		return
	}
	brief, err := s.workspace.Library.Get(chi.URLParam(r, "*"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, brief)
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	if !s.requireWorkspace(w) {
		return
	}
	raw, err := s.workspace.Usage.Get()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeRawJSON(w, http.StatusOK, raw)
}
