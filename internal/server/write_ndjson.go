package server

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"example.com/evt3gate/internal/evt3"
)

// NDJSONWriter streams newline-delimited JSON objects to the underlying writer.
type NDJSONWriter struct {
	mu      sync.Mutex
	writer  *bufio.Writer
	enc     *json.Encoder
	flusher http.Flusher
}

// NewNDJSONWriter wraps the provided ResponseWriter with a helper that writes
// newline-delimited JSON. If the writer supports http.Flusher, Flush will be
// invoked after every batch to push bytes to the client promptly.
func NewNDJSONWriter(w http.ResponseWriter) *NDJSONWriter {
	var flusher http.Flusher
	if f, ok := w.(http.Flusher); ok {
		flusher = f
	}
	return newNDJSONWriter(w, flusher)
}

func newNDJSONWriter(w io.Writer, flusher http.Flusher) *NDJSONWriter {
	bw := bufio.NewWriter(w)
	return &NDJSONWriter{writer: bw, enc: json.NewEncoder(bw), flusher: flusher}
}

// WriteEvents writes each event as its own record and flushes once.
func (w *NDJSONWriter) WriteEvents(events []evt3.Event) error {
	if w == nil || len(events) == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range events {
		if err := w.enc.Encode(events[i]); err != nil {
			return err
		}
	}
	return w.flushLocked()
}

// WriteObject marshals the provided value to JSON, writes it followed by a
// newline and flushes the response.
func (w *NDJSONWriter) WriteObject(v any) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(v); err != nil {
		return err
	}
	return w.flushLocked()
}

func (w *NDJSONWriter) flushLocked() error {
	if err := w.writer.Flush(); err != nil {
		return err
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}
