// Package sse encodes and decodes the data-only event stream sent to chat clients.
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var ErrStreamingUnsupported = errors.New("response writer does not support flushing")

// Writer sends one "data: <json>\n\n" frame per event and flushes it.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	return &Writer{w: w, flusher: flusher}, nil
}

// Open writes the stream headers and the 200 status line.
func (s *Writer) Open() {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.flusher.Flush()
}

func (s *Writer) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	frame := make([]byte, 0, len(data)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, data...)
	frame = append(frame, '\n', '\n')

	if _, err := s.w.Write(frame); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	s.flusher.Flush()
	return nil
}
