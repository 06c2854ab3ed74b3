package transcription

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig(endpoint string) Config {
	return Config{
		Endpoint:      endpoint,
		APIKey:        "test-key",
		Timeout:       5 * time.Second,
		MaxRetries:    2,
		MaxConcurrent: 4,
	}
}

func TestTranscribeSuccess(t *testing.T) {
	var gotAuth, gotSessionID string
	var gotAudio []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")

		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("ParseMultipartForm failed: %v", err)
		}
		gotSessionID = r.FormValue("session_id")

		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile failed: %v", err)
		} else {
			buf := make([]byte, 16)
			n, _ := file.Read(buf)
			gotAudio = buf[:n]
			file.Close()
		}

		json.NewEncoder(w).Encode(Response{Text: "hello world", Language: "en"})
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	resp, err := client.Transcribe(context.Background(), &Request{
		SessionID: "sess-1",
		AudioData: []byte("RIFF-fake-wav"),
		Duration:  12.5,
	})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if resp.Text != "hello world" {
		t.Errorf("expected transcript %q, got %q", "hello world", resp.Text)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("unexpected auth header: %q", gotAuth)
	}
	if gotSessionID != "sess-1" {
		t.Errorf("unexpected session_id field: %q", gotSessionID)
	}
	if !strings.HasPrefix(string(gotAudio), "RIFF") {
		t.Errorf("audio payload not forwarded: %q", gotAudio)
	}

	stats := client.GetStats()
	if stats.SuccessRequests != 1 || stats.TotalRequests != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestTranscribeRetriesServerErrors(t *testing.T) {
	var calls int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(Response{Text: "eventually"})
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	resp, err := client.Transcribe(context.Background(), &Request{SessionID: "s", AudioData: []byte("x")})
	if err != nil {
		t.Fatalf("Transcribe failed after retries: %v", err)
	}

	if resp.Text != "eventually" {
		t.Errorf("unexpected transcript: %q", resp.Text)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestTranscribeDoesNotRetryClientErrors(t *testing.T) {
	var calls int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad audio", http.StatusBadRequest)
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if _, err := client.Transcribe(context.Background(), &Request{SessionID: "s", AudioData: []byte("x")}); err == nil {
		t.Fatal("expected error for 400 response")
	}

	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected 1 attempt for non-retryable error, got %d", calls)
	}
}

func TestTranscribeEmptyTranscript(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Response{Text: ""})
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if _, err := client.Transcribe(context.Background(), &Request{SessionID: "s", AudioData: []byte("x")}); err == nil {
		t.Fatal("expected error for empty transcript")
	}
}

func TestTranscribeCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(Response{Text: "late"})
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := client.Transcribe(ctx, &Request{SessionID: "s", AudioData: []byte("x")}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{APIKey: "k"}); err == nil {
		t.Error("expected error for missing endpoint")
	}
	if _, err := NewClient(Config{Endpoint: "http://x"}); err == nil {
		t.Error("expected error for missing API key")
	}
}
