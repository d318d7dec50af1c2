package stream

import (
	"io"
	"net/http"
)

// Writer writes frames to an HTTP response and flushes after each one.
type Writer struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func NewWriter(w http.ResponseWriter) *Writer {
	return &Writer{w: w, rc: http.NewResponseController(w)}
}

// Start commits the response as an event stream.
func (sw *Writer) Start() error {
	if sw.started {
		return nil
	}
	sw.started = true

	h := sw.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // Disable nginx buffering
	sw.w.WriteHeader(http.StatusOK)
	return sw.flush()
}

// Send writes one event frame.
func (sw *Writer) Send(ev Event) error {
	if err := sw.Start(); err != nil {
		return err
	}
	if _, err := io.WriteString(sw.w, Encode(ev)); err != nil {
		return err
	}
	return sw.flush()
}

// Heartbeat writes an SSE comment line, which clients ignore.
func (sw *Writer) Heartbeat() error {
	if err := sw.Start(); err != nil {
		return err
	}
	if _, err := io.WriteString(sw.w, ": ping\n\n"); err != nil {
		return err
	}
	return sw.flush()
}

func (sw *Writer) flush() error {
	err := sw.rc.Flush()
	if err == http.ErrNotSupported {
		return nil
	}
	return err
}
