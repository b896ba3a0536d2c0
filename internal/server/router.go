package server

import "net/http"

// NewRouter wires HTTP routes to the server's handlers.
func NewRouter(s *Server) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/decode", s.handleDecode)
	mux.HandleFunc("/recordings", s.handleRecordings)
	mux.HandleFunc("/recordings/", s.handleRecordingEvents)
	mux.HandleFunc("/artifacts", s.handleArtifacts)
	mux.HandleFunc("/artifacts/", s.handleArtifacts)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}
