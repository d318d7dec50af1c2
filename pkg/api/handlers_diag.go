package api

import (
	"net/http"

	"github.com/emanuelteklu/cc-sidecar/pkg/diag"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, diag.Health{Status: "ok"})
		return
	}
	writeJSON(w, http.StatusOK, s.health.Check(r.Context()))
}

type signalsResponse struct {
	Commits []diag.Commit `json:"commits"`
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	commits := []diag.Commit{}
	if s.signals != nil {
		commits = s.signals.Scan(r.Context())
	}
	writeJSON(w, http.StatusOK, signalsResponse{Commits: commits})
}
