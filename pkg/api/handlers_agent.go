package api

import (
	"net/http"
	"time"

	"github.com/emanuelteklu/cc-sidecar/pkg/agent"
	"github.com/emanuelteklu/cc-sidecar/pkg/stream"
)

// runRequest is the body of POST /api/agent/run.
type runRequest struct {
	Messages     []agent.ChatMessage `json:"messages"`
	ExtraContext string              `json:"extra_context"`
}

// handleAgentRun streams one agent run as server-sent events. Request
// problems are answered as plain JSON errors; once the stream has started
// every failure arrives as an error event instead.
func (s *Server) handleAgentRun(w http.ResponseWriter, r *http.Request) {
	if s.agent == nil {
		writeError(w, http.StatusServiceUnavailable, "agent not configured")
		return
	}

	var req runRequest
	if err := decodeJSONBody(w, r, &req, 0); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if err := agent.ValidateMessages(req.Messages); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	ctx := r.Context()
	log := s.logger.WithContext(ctx)
	events := s.agent.Stream(ctx, req.Messages, req.ExtraContext)

	sw := stream.NewWriter(w)
	if err := sw.Start(); err != nil {
		log.Debug("agent stream: start failed", "error", err)
		return
	}

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	// Returning cancels ctx, which stops the run and releases upstream.
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sw.Heartbeat(); err != nil {
				log.Debug("agent stream: heartbeat failed", "error", err)
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := sw.Send(ev); err != nil {
				log.Debug("agent stream: client went away", "error", err)
				return
			}
		}
	}
}
