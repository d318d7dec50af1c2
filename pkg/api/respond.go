package api

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"

	"github.com/emanuelteklu/cc-sidecar/pkg/errors"
)

const maxBodyBytesSmall int64 = 64 << 10

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeRawJSON(w http.ResponseWriter, status int, raw json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeAppError answers with the status and client message carried by err.
// Internal details stay in the log.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	msg := http.StatusText(status)
	if appErr, ok := errors.As(err); ok {
		msg = appErr.ClientMessage()
	}
	if status >= http.StatusInternalServerError {
		s.logger.WithContext(r.Context()).Error("request failed",
			"path", r.URL.Path,
			"status", status,
			"error", err.Error(),
		)
	}
	writeError(w, status, msg)
}

// decodeJSONBody decodes one JSON value from the request body. maxBytes <= 0
// leaves the body unbounded.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, maxBytes int64) error {
	if r.Body == nil {
		return errors.New(errors.ErrCodeInvalidInput, "request body required")
	}
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case stderrors.As(err, &maxErr):
			return errors.Wrap(err, errors.ErrCodeInvalidInput, "request body too large").
				WithUserMessage(fmt.Sprintf("request body too large (max %d bytes)", maxBytes))
		case stderrors.Is(err, io.EOF):
			return errors.New(errors.ErrCodeInvalidInput, "request body required")
		default:
			return errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request body").
				WithUserMessage("invalid request body: " + err.Error())
		}
	}
	return nil
}
