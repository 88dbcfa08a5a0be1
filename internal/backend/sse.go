package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const doneSentinel = "[DONE]"

// eventWriter writes content frames understood by transport.Client.
type eventWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newEventWriter(w http.ResponseWriter) (*eventWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	return &eventWriter{w: w, flusher: flusher}, nil
}

func (s *eventWriter) writeData(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *eventWriter) writeContent(text string) error {
	return s.writeData(map[string]string{"content": text})
}

// writeError reports a failure after streaming started. Clients skip frames
// without content.
func (s *eventWriter) writeError(message string) {
	s.writeData(map[string]string{"error": message}) //nolint:errcheck
}

func (s *eventWriter) writeDone() error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", doneSentinel); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
