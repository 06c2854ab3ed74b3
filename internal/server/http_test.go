package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/leonj1/scribe/internal/audio"
	"github.com/leonj1/scribe/internal/config"
	"github.com/leonj1/scribe/internal/crypto"
	"github.com/leonj1/scribe/internal/session"
	"github.com/leonj1/scribe/internal/storage"
	"github.com/leonj1/scribe/internal/store"
	"github.com/leonj1/scribe/internal/transcription"
)

const testJWTSecret = "server-test-jwt-secret"

type staticTranscriber struct {
	text string
}

func (s *staticTranscriber) Transcribe(ctx context.Context, req *transcription.Request) (*transcription.Response, error) {
	return &transcription.Response{Text: s.text, ProcessedAt: time.Now()}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	dir := t.TempDir()

	st, err := store.Open(filepath.Join(dir, "scribe.sqlite"))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	objects, err := storage.NewFS(filepath.Join(dir, "objects"))
	if err != nil {
		t.Fatalf("storage.NewFS failed: %v", err)
	}

	cryptoSvc, err := crypto.NewService("server-test-secret")
	if err != nil {
		t.Fatalf("crypto.NewService failed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sessions, err := session.NewManager(session.Config{
		Store:       st,
		Objects:     objects,
		Crypto:      cryptoSvc,
		Transcriber: &staticTranscriber{text: "hello from the api test"},
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("session.NewManager failed: %v", err)
	}

	cfg := config.HTTPConfig{
		Port:          8080,
		Address:       "127.0.0.1",
		ReadTimeout:   10,
		WriteTimeout:  10,
		MaxChunkBytes: 10 << 20,
	}

	return New(cfg, testJWTSecret, sessions, nil, nil, logger)
}

func mintToken(t *testing.T, ownerID string) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": ownerID,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func doRequest(t *testing.T, s *Server, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

func createRecording(t *testing.T, s *Server, token string) string {
	t.Helper()

	rec := doRequest(t, s, http.MethodPost, "/recordings", token,
		bytes.NewBufferString(`{"provider":"whisper"}`), "application/json")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create returned %d: %s", rec.Code, rec.Body.String())
	}

	id, _ := decodeBody(t, rec)["id"].(string)
	if id == "" {
		t.Fatal("create response missing id")
	}
	return id
}

func chunkUpload(t *testing.T, index int, samples int) (*bytes.Buffer, string) {
	t.Helper()

	pcm := make([]int16, samples)
	data, err := audio.EncodeWAV(pcm, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("chunk_index", fmt.Sprintf("%d", index)); err != nil {
		t.Fatalf("WriteField failed: %v", err)
	}
	part, err := mw.CreateFormFile("audio_chunk", fmt.Sprintf("chunk_%d.wav", index))
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("writing chunk data failed: %v", err)
	}
	mw.Close()

	return &buf, mw.FormDataContentType()
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"garbage token", "not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodGet, "/recordings", tt.token, nil, "")
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestWrongSigningKeyRejected(t *testing.T) {
	s := newTestServer(t)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "owner-1",
	}).SignedString([]byte("a-different-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	rec := doRequest(t, s, http.MethodGet, "/recordings", token, nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for wrong signing key, got %d", rec.Code)
	}
}

func TestRecordingLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	token := mintToken(t, "owner-1")

	id := createRecording(t, s, token)

	// Upload two chunks
	for i := 0; i < 2; i++ {
		body, contentType := chunkUpload(t, i, 100)
		rec := doRequest(t, s, http.MethodPost, "/recordings/"+id+"/chunks", token, body, contentType)
		if rec.Code != http.StatusCreated {
			t.Fatalf("chunk upload %d returned %d: %s", i, rec.Code, rec.Body.String())
		}
	}

	// Pause and resume
	if rec := doRequest(t, s, http.MethodPatch, "/recordings/"+id+"/pause", token, nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("pause returned %d", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodPost, "/recordings/"+id+"/resume", token, nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("resume returned %d", rec.Code)
	}

	// Finish, transcript comes back in plaintext
	rec := doRequest(t, s, http.MethodPost, "/recordings/"+id+"/finish", token, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("finish returned %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["state"] != "ended" {
		t.Errorf("expected ended state, got %v", body["state"])
	}
	if body["transcript"] != "hello from the api test" {
		t.Errorf("unexpected transcript: %v", body["transcript"])
	}

	// The read path decrypts the stored transcript
	rec = doRequest(t, s, http.MethodGet, "/recordings/"+id, token, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get returned %d", rec.Code)
	}
	body = decodeBody(t, rec)
	if body["transcript"] != "hello from the api test" || body["transcript_decrypted"] != true {
		t.Errorf("unexpected get response: %v", body)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	s := newTestServer(t)
	owner := mintToken(t, "owner-1")
	intruder := mintToken(t, "owner-2")

	id := createRecording(t, s, owner)

	// Missing recording -> 404
	if rec := doRequest(t, s, http.MethodGet, "/recordings/no-such-id", owner, nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	// Someone else's recording -> 403
	if rec := doRequest(t, s, http.MethodGet, "/recordings/"+id, intruder, nil, ""); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}

	// Finish with no chunks -> 400
	if rec := doRequest(t, s, http.MethodPost, "/recordings/"+id+"/finish", owner, nil, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for no chunks, got %d", rec.Code)
	}

	// Duplicate chunk index -> 400
	body, contentType := chunkUpload(t, 0, 50)
	if rec := doRequest(t, s, http.MethodPost, "/recordings/"+id+"/chunks", owner, body, contentType); rec.Code != http.StatusCreated {
		t.Fatalf("first chunk upload failed: %d", rec.Code)
	}
	body, contentType = chunkUpload(t, 0, 50)
	if rec := doRequest(t, s, http.MethodPost, "/recordings/"+id+"/chunks", owner, body, contentType); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for duplicate index, got %d", rec.Code)
	}

	// Resume an active session -> 409
	if rec := doRequest(t, s, http.MethodPost, "/recordings/"+id+"/resume", owner, nil, ""); rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}

	// Append after finish -> 409
	if rec := doRequest(t, s, http.MethodPost, "/recordings/"+id+"/finish", owner, nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("finish failed: %d", rec.Code)
	}
	body, contentType = chunkUpload(t, 1, 50)
	if rec := doRequest(t, s, http.MethodPost, "/recordings/"+id+"/chunks", owner, body, contentType); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for append after finish, got %d", rec.Code)
	}
}

func TestChunkUploadValidation(t *testing.T) {
	s := newTestServer(t)
	token := mintToken(t, "owner-1")
	id := createRecording(t, s, token)

	// Not multipart
	rec := doRequest(t, s, http.MethodPost, "/recordings/"+id+"/chunks", token,
		bytes.NewBufferString("raw bytes"), "application/octet-stream")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-multipart body, got %d", rec.Code)
	}

	// Negative index
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("chunk_index", "-1")
	part, _ := mw.CreateFormFile("audio_chunk", "chunk.wav")
	part.Write([]byte("data"))
	mw.Close()

	rec = doRequest(t, s, http.MethodPost, "/recordings/"+id+"/chunks", token, &buf, mw.FormDataContentType())
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative index, got %d", rec.Code)
	}
}

func TestNotesAndDelete(t *testing.T) {
	s := newTestServer(t)
	token := mintToken(t, "owner-1")
	id := createRecording(t, s, token)

	rec := doRequest(t, s, http.MethodPatch, "/recordings/"+id+"/notes", token,
		bytes.NewBufferString(`{"notes":"standup recording"}`), "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("notes update returned %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["notes"] != "standup recording" {
		t.Errorf("notes not updated: %v", body["notes"])
	}

	if rec := doRequest(t, s, http.MethodDelete, "/recordings/"+id, token, nil, ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete returned %d", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodGet, "/recordings/"+id, token, nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestListScopedToOwner(t *testing.T) {
	s := newTestServer(t)
	owner := mintToken(t, "owner-1")
	other := mintToken(t, "owner-2")

	createRecording(t, s, owner)
	createRecording(t, s, owner)
	createRecording(t, s, other)

	rec := doRequest(t, s, http.MethodGet, "/recordings", owner, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list returned %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["total"] != float64(2) {
		t.Errorf("expected 2 recordings, got %v", body["total"])
	}
}

func TestHealthUnauthenticated(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/health", "", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health returned %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["status"] != "healthy" {
		t.Errorf("unexpected health body: %v", body)
	}
}
