package transcription

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skypro1111/whisper-stream-service/internal/audio"
	"github.com/skypro1111/whisper-stream-service/internal/segment"
)

func testConfig(endpoint string) Config {
	return Config{
		Endpoint:      endpoint,
		APIKey:        "test-key",
		Language:      "en",
		Threads:       2,
		Timeout:       5 * time.Second,
		MaxRetries:    2,
		MaxConcurrent: 4,
		SampleRate:    16000,
	}
}

func testSamples(n int) []float32 {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = 0.1
	}
	return samples
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{APIKey: "k"}); err == nil {
		t.Error("Expected error for missing endpoint")
	}

	if _, err := NewClient(Config{Endpoint: "http://localhost"}); err == nil {
		t.Error("Expected error for missing API key")
	}
}

func TestTranscribeSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Expected bearer auth, got %q", got)
		}

		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Fatalf("Failed to parse multipart form: %v", err)
		}

		// The engine parameters must arrive as form fields.
		if got := r.FormValue("language"); got != "en" {
			t.Errorf("Expected language 'en', got %q", got)
		}
		if got := r.FormValue("threads"); got != "2" {
			t.Errorf("Expected threads '2', got %q", got)
		}
		if got := r.FormValue("no_context"); got != "true" {
			t.Errorf("Expected no_context 'true', got %q", got)
		}

		// The upload must be a decodable WAV file.
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("Missing audio file: %v", err)
		}
		defer file.Close()

		wavData, err := io.ReadAll(file)
		if err != nil {
			t.Fatalf("Failed to read upload: %v", err)
		}
		samples, sampleRate, err := audio.DecodeWAV(wavData)
		if err != nil {
			t.Fatalf("Uploaded audio is not valid WAV: %v", err)
		}
		if sampleRate != 16000 {
			t.Errorf("Expected 16 kHz upload, got %d", sampleRate)
		}
		if len(samples) != 1600 {
			t.Errorf("Expected 1600 samples, got %d", len(samples))
		}

		json.NewEncoder(w).Encode(Response{
			Duration: 0.1,
			Segments: []Segment{
				{Start: 0, End: 0.05, Text: "hello"},
				{Start: 0.05, End: 0.1, Text: " world"},
			},
		})
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	texts, err := client.Transcribe(context.Background(), testSamples(1600), segment.Options{NoContext: true})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if len(texts) != 2 || texts[0] != "hello" || texts[1] != " world" {
		t.Errorf("Expected segment texts in order, got %v", texts)
	}

	stats := client.GetStats()
	if stats.TotalRequests != 1 || stats.SuccessRequests != 1 {
		t.Errorf("Expected 1 successful request, got %+v", stats)
	}
}

func TestTranscribeRetriesServerErrors(t *testing.T) {
	var attempts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
			return
		}

		json.NewEncoder(w).Encode(Response{
			Segments: []Segment{{Text: "recovered"}},
		})
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	texts, err := client.Transcribe(context.Background(), testSamples(1600), segment.Options{})
	if err != nil {
		t.Fatalf("Transcribe failed after retry: %v", err)
	}

	if len(texts) != 1 || texts[0] != "recovered" {
		t.Errorf("Expected recovered text, got %v", texts)
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Errorf("Expected 2 attempts, got %d", got)
	}

	stats := client.GetStats()
	if stats.TotalRetries != 1 {
		t.Errorf("Expected 1 retry recorded, got %d", stats.TotalRetries)
	}
}

func TestTranscribeDoesNotRetryClientErrors(t *testing.T) {
	var attempts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if _, err := client.Transcribe(context.Background(), testSamples(1600), segment.Options{}); err == nil {
		t.Fatal("Expected error for 400 response")
	}

	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("Client errors must not be retried, got %d attempts", got)
	}

	stats := client.GetStats()
	if stats.FailedRequests != 1 {
		t.Errorf("Expected 1 failed request, got %d", stats.FailedRequests)
	}
}

func TestTranscribeExhaustsRetries(t *testing.T) {
	var attempts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		http.Error(w, "broken", http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.MaxRetries = 1
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if _, err := client.Transcribe(context.Background(), testSamples(1600), segment.Options{}); err == nil {
		t.Fatal("Expected error after exhausting retries")
	}

	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Errorf("Expected initial attempt plus 1 retry, got %d attempts", got)
	}
}

func TestTranscribeContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "broken", http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	// Cancel during the backoff between attempts.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = client.Transcribe(ctx, testSamples(1600), segment.Options{})
	if err == nil {
		t.Fatal("Expected error")
	}

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Cancellation should interrupt the backoff, took %v", elapsed)
	}
}
