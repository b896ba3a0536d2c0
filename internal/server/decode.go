package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"example.com/evt3gate/internal/common"
	"example.com/evt3gate/internal/evt3"
	"example.com/evt3gate/internal/export"
	"example.com/evt3gate/internal/report"
	"example.com/evt3gate/internal/store"
)

// parseRange reads the optional strict from/to bounds of a query. A bound
// that is absent stays open.
func parseRange(q url.Values) (evt3.Window, error) {
	var w evt3.Window
	for _, p := range []struct {
		key string
		dst *uint64
		has *bool
	}{{"from", &w.From, &w.HasFrom}, {"to", &w.To, &w.HasTo}} {
		raw := strings.TrimSpace(q.Get(p.key))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return w, fmt.Errorf("invalid %s: %w", p.key, err)
		}
		*p.dst = v
		*p.has = true
	}
	return w, w.Validate()
}

func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, evt3.ErrFormat), errors.Is(err, evt3.ErrGeometry):
		return http.StatusUnprocessableEntity
	case errors.Is(err, evt3.ErrInvalidRange), errors.Is(err, errNoRecording):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

type decodeResponse struct {
	Type      string               `json:"type,omitempty"`
	Summary   report.Summary       `json:"summary"`
	Returned  int                  `json:"returned"`
	Recording *store.RecordingInfo `json:"recording,omitempty"`
	Artifacts []ArtifactRef        `json:"artifacts,omitempty"`
}

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	window, err := parseRange(q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	name, path, err := s.receiveRecording(w, r)
	if err != nil {
		http.Error(w, fmt.Sprintf("receive recording: %v", err), statusFor(err))
		return
	}
	defer os.Remove(path)

	if q.Get("stream") == "true" {
		s.streamDecode(w, name, path, window)
		return
	}

	m := common.NewMetrics()
	m.Start()
	rec, err := evt3.DecodeFile(path, s.decodeOpts, m)
	m.Stop()
	if err != nil {
		http.Error(w, fmt.Sprintf("decode: %v", err), statusFor(err))
		return
	}
	rec.Path = name
	snap := m.Snapshot()
	common.Logf("decoded %s: %d events, %s in %s (%.0f events/s)", name, len(rec.Events), common.FormatBytes(snap.Bytes), snap.Duration, snap.EventsPerSecond())

	sum := report.BuildSummary(rec, 0)
	if err := sum.AttachDigest(path); err != nil {
		http.Error(w, fmt.Sprintf("digest: %v", err), http.StatusInternalServerError)
		return
	}
	resp := decodeResponse{Summary: sum}

	if s.store != nil && q.Get("store") != "false" {
		info, err := s.store.SaveRecording(r.Context(), name, rec)
		if err != nil {
			http.Error(w, fmt.Sprintf("store recording: %v", err), http.StatusInternalServerError)
			return
		}
		resp.Recording = &info
	}

	events, err := window.Filter(rec.Events)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	resp.Returned = len(events)

	eventsPath, err := s.tempPath("events-*.ndjson")
	if err != nil {
		http.Error(w, fmt.Sprintf("events temp: %v", err), http.StatusInternalServerError)
		return
	}
	if err := export.Save(eventsPath, events); err != nil {
		http.Error(w, fmt.Sprintf("write events: %v", err), http.StatusInternalServerError)
		return
	}
	summaryPath, err := s.tempPath("summary-*.json")
	if err != nil {
		http.Error(w, fmt.Sprintf("summary temp: %v", err), http.StatusInternalServerError)
		return
	}
	if err := report.SaveSummaryJSON(sum, summaryPath); err != nil {
		http.Error(w, fmt.Sprintf("write summary: %v", err), http.StatusInternalServerError)
		return
	}
	eventsArt, err := s.addArtifact(eventsPath, "events.ndjson", "application/x-ndjson", "events")
	if err != nil {
		http.Error(w, fmt.Sprintf("register events: %v", err), http.StatusInternalServerError)
		return
	}
	summaryArt, err := s.addArtifact(summaryPath, "summary.json", "application/json", "summary")
	if err != nil {
		http.Error(w, fmt.Sprintf("register summary: %v", err), http.StatusInternalServerError)
		return
	}
	resp.Artifacts = []ArtifactRef{toRef(eventsArt), toRef(summaryArt)}
	writeJSON(w, http.StatusOK, resp)
}

// streamDecode writes events chunk by chunk and finishes with a summary
// record. Failures after the first byte are reported as an error record.
func (s *Server) streamDecode(w http.ResponseWriter, name, path string, window evt3.Window) {
	rd, err := evt3.Open(path, s.decodeOpts)
	if err != nil {
		http.Error(w, fmt.Sprintf("decode: %v", err), statusFor(err))
		return
	}
	defer rd.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	writer := NewNDJSONWriter(w)
	returned := 0
	for {
		chunk, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = writer.WriteObject(map[string]any{"type": "error", "error": err.Error()})
			return
		}
		chunk, err = window.Filter(chunk)
		if err != nil {
			_ = writer.WriteObject(map[string]any{"type": "error", "error": err.Error()})
			return
		}
		returned += len(chunk)
		if err := writer.WriteEvents(chunk); err != nil {
			common.Logf("stream %s: client write failed: %v", name, err)
			return
		}
	}
	rec := evt3.Recording{Path: name, Header: rd.Header(), Metadata: rd.Metadata(), Stats: rd.Stats()}
	sum := report.BuildSummary(rec, 0)
	_ = writer.WriteObject(decodeResponse{Type: "summary", Summary: sum, Returned: returned})
}

func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		http.Error(w, "event store disabled", http.StatusServiceUnavailable)
		return
	}
	list, err := s.store.ListRecordings(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("list recordings: %v", err), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []store.RecordingInfo{}
	}
	writeJSON(w, http.StatusOK, list)
}

// handleRecordingEvents serves /recordings/{id} and /recordings/{id}/events.
func (s *Server) handleRecordingEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		http.Error(w, "event store disabled", http.StatusServiceUnavailable)
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/recordings/"), "/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	switch sub {
	case "":
		info, err := s.store.GetRecording(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		writeJSON(w, http.StatusOK, info)
	case "events":
		window, err := parseRange(r.URL.Query())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		events, err := s.store.EventsInWindow(r.Context(), id, window)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		if err := NewNDJSONWriter(w).WriteEvents(events); err != nil {
			common.Logf("recording %s: client write failed: %v", id, err)
		}
	default:
		http.NotFound(w, r)
	}
}
