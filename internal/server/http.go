package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leonj1/scribe/internal/config"
	"github.com/leonj1/scribe/internal/metrics"
	"github.com/leonj1/scribe/internal/session"
	"github.com/leonj1/scribe/internal/store"
	"github.com/leonj1/scribe/internal/transcription"
)

// StatsProvider reports transcription client statistics for /stats.
type StatsProvider interface {
	GetStats() transcription.Stats
}

// Server is the HTTP API server for recording sessions.
type Server struct {
	server   *http.Server
	logger   *slog.Logger
	sessions *session.Manager
	stats    StatsProvider
	metrics  *metrics.Metrics

	jwtSecret     []byte
	maxChunkBytes int64
	startTime     time.Time
}

// New creates the HTTP API server with all routes configured.
func New(cfg config.HTTPConfig, jwtSecret string, sessions *session.Manager,
	stats StatsProvider, m *metrics.Metrics, logger *slog.Logger) *Server {

	s := &Server{
		logger:        logger,
		sessions:      sessions,
		stats:         stats,
		metrics:       m,
		jwtSecret:     []byte(jwtSecret),
		maxChunkBytes: cfg.MaxChunkBytes,
		startTime:     time.Now(),
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  cfg.GetReadTimeout(),
		WriteTimeout: cfg.GetWriteTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures HTTP API routes
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Recording session lifecycle
	mux.HandleFunc("POST /recordings", s.withMetrics("/recordings", s.requireAuth(s.handleCreate)))
	mux.HandleFunc("GET /recordings", s.withMetrics("/recordings", s.requireAuth(s.handleList)))
	mux.HandleFunc("GET /recordings/{id}", s.withMetrics("/recordings/{id}", s.requireAuth(s.handleGet)))
	mux.HandleFunc("DELETE /recordings/{id}", s.withMetrics("/recordings/{id}", s.requireAuth(s.handleDelete)))
	mux.HandleFunc("POST /recordings/{id}/chunks", s.withMetrics("/recordings/{id}/chunks", s.requireAuth(s.handleAppendChunk)))
	mux.HandleFunc("PATCH /recordings/{id}/pause", s.withMetrics("/recordings/{id}/pause", s.requireAuth(s.handlePause)))
	mux.HandleFunc("POST /recordings/{id}/resume", s.withMetrics("/recordings/{id}/resume", s.requireAuth(s.handleResume)))
	mux.HandleFunc("POST /recordings/{id}/finish", s.withMetrics("/recordings/{id}/finish", s.requireAuth(s.handleFinish)))
	mux.HandleFunc("PATCH /recordings/{id}/notes", s.withMetrics("/recordings/{id}/notes", s.requireAuth(s.handleUpdateNotes)))

	// Monitoring endpoints are unauthenticated
	mux.HandleFunc("GET /health", s.withMetrics("/health", s.handleHealth))
	mux.HandleFunc("GET /stats", s.withMetrics("/stats", s.handleStats))
	mux.Handle("GET /metrics", promhttp.Handler())
}

// withMetrics wraps an HTTP handler with metrics collection
func (s *Server) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		if s.metrics == nil {
			return
		}

		duration := time.Since(startTime).Seconds()
		statusCode := strconv.Itoa(ww.statusCode)

		s.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			s.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP API server",
		slog.String("address", s.server.Addr),
	)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP API server...")

	return s.server.Shutdown(ctx)
}

// Handler returns the configured handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// sessionResponse is the JSON shape of a session in API responses. The
// transcript field carries plaintext when decryption succeeded, otherwise
// the stored ciphertext with transcript_decrypted=false.
type sessionResponse struct {
	ID                  string  `json:"id"`
	State               string  `json:"state"`
	Provider            string  `json:"provider"`
	Notes               string  `json:"notes,omitempty"`
	Transcript          string  `json:"transcript,omitempty"`
	TranscriptDecrypted bool    `json:"transcript_decrypted"`
	DurationSeconds     float64 `json:"duration_seconds"`
	CreatedAt           string  `json:"created_at"`
	UpdatedAt           string  `json:"updated_at"`
}

func sessionJSON(sess *store.Session) sessionResponse {
	return sessionResponse{
		ID:              sess.ID,
		State:           string(sess.State),
		Provider:        sess.Provider,
		Notes:           sess.Notes,
		DurationSeconds: sess.DurationSeconds,
		CreatedAt:       sess.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       sess.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func viewJSON(v *session.View) sessionResponse {
	resp := sessionJSON(v.Session)
	resp.Transcript = v.Transcript
	resp.TranscriptDecrypted = v.TranscriptDecrypted
	return resp
}

// handleCreate implements POST /recordings
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Provider string `json:"provider"`
	}
	if r.Body != nil {
		// An empty body means default provider; a malformed one is rejected
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
			s.writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	sess, err := s.sessions.Create(r.Context(), ownerFromContext(r.Context()), body.Provider)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, sessionJSON(sess))
}

// handleList implements GET /recordings
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	views, err := s.sessions.List(r.Context(), ownerFromContext(r.Context()))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	items := make([]sessionResponse, len(views))
	for i, v := range views {
		items[i] = viewJSON(v)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":      len(items),
		"recordings": items,
	})
}

// handleGet implements GET /recordings/{id}
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	view, err := s.sessions.Get(r.Context(), ownerFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, viewJSON(view))
}

// handleAppendChunk implements POST /recordings/{id}/chunks. The request is
// multipart form data with a chunk_index field and an audio_chunk file part.
func (s *Server) handleAppendChunk(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxChunkBytes)

	if err := r.ParseMultipartForm(s.maxChunkBytes); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}

	index, err := strconv.Atoi(r.FormValue("chunk_index"))
	if err != nil || index < 0 {
		s.writeJSONError(w, http.StatusBadRequest, "chunk_index must be a non-negative integer")
		return
	}

	file, _, err := r.FormFile("audio_chunk")
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "audio_chunk file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "failed to read audio_chunk")
		return
	}
	if len(data) == 0 {
		s.writeJSONError(w, http.StatusBadRequest, "audio_chunk cannot be empty")
		return
	}

	chunk, err := s.sessions.AppendChunk(r.Context(), ownerFromContext(r.Context()), r.PathValue("id"), index, data)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	resp := map[string]interface{}{
		"id":          chunk.ID,
		"session_id":  chunk.SessionID,
		"chunk_index": chunk.Index,
		"uploaded_at": chunk.UploadedAt.UTC().Format(time.RFC3339),
	}
	if chunk.DurationSeconds != nil {
		resp["duration_seconds"] = *chunk.DurationSeconds
	}

	s.writeJSON(w, http.StatusCreated, resp)
}

// handlePause implements PATCH /recordings/{id}/pause
func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Pause(r.Context(), ownerFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, sessionJSON(sess))
}

// handleResume implements POST /recordings/{id}/resume
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Resume(r.Context(), ownerFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, sessionJSON(sess))
}

// handleFinish implements POST /recordings/{id}/finish. The response carries
// the plaintext transcript; this is the only place it crosses the API.
func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	result, err := s.sessions.Finish(r.Context(), ownerFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	resp := sessionJSON(result.Session)
	resp.Transcript = result.Transcript
	resp.TranscriptDecrypted = true

	s.writeJSON(w, http.StatusOK, resp)
}

// handleUpdateNotes implements PATCH /recordings/{id}/notes
func (s *Server) handleUpdateNotes(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := s.sessions.UpdateNotes(r.Context(), ownerFromContext(r.Context()), r.PathValue("id"), body.Notes)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, sessionJSON(sess))
}

// handleDelete implements DELETE /recordings/{id}
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.Context(), ownerFromContext(r.Context()), r.PathValue("id")); err != nil {
		s.writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleHealth implements the /health endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.startTime).String(),
		"service": map[string]interface{}{
			"name":    "scribe",
			"version": "1.0.0",
		},
	}

	s.writeJSON(w, http.StatusOK, health)
}

// handleStats implements the /stats endpoint
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"uptime":    time.Since(s.startTime).String(),
		"timestamp": time.Now().UTC(),
	}
	if s.stats != nil {
		stats["transcription"] = s.stats.GetStats()
	}

	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response", slog.String("error", err.Error()))
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps session package errors onto HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		s.writeJSONError(w, http.StatusNotFound, "recording not found")
	case errors.Is(err, session.ErrUnauthorized):
		s.writeJSONError(w, http.StatusForbidden, "recording belongs to another user")
	case errors.Is(err, session.ErrInvalidState):
		s.writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrNoChunks):
		s.writeJSONError(w, http.StatusBadRequest, "recording has no chunks")
	case errors.Is(err, session.ErrDuplicateChunk):
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrTranscriptionFailed):
		s.writeJSONError(w, http.StatusBadGateway, "transcription failed, try again")
	default:
		s.logger.Error("Request failed", slog.String("error", err.Error()))
		s.writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}
