// Command fake-engine is a stand-in for the whisper engine API. It accepts
// the same multipart upload the real engine does, logs the request, and
// returns canned segments, which makes end-to-end testing of the service
// possible without a GPU.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

type segmentResponse struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type engineResponse struct {
	Language string            `json:"language"`
	Duration float64           `json:"duration"`
	Segments []segmentResponse `json:"segments"`
}

var (
	delay     = flag.Duration("delay", 200*time.Millisecond, "simulated decode time per request")
	emptyText = flag.Bool("empty", false, "return an empty segment list, as the engine does for pure silence")
)

func transcribeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	audioData, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	log.Printf("transcription request: file=%s size=%d language=%s threads=%s no_context=%s translate=%s",
		header.Filename,
		len(audioData),
		r.FormValue("language"),
		r.FormValue("threads"),
		r.FormValue("no_context"),
		r.FormValue("translate"),
	)

	time.Sleep(*delay)

	// 44-byte WAV header, 2 bytes per sample, 16 kHz.
	durationSec := float64(len(audioData)-44) / 2.0 / 16000.0
	if durationSec < 0 {
		durationSec = 0
	}

	resp := engineResponse{
		Language: r.FormValue("language"),
		Duration: durationSec,
	}

	if !*emptyText {
		resp.Segments = []segmentResponse{
			{Start: 0, End: durationSec / 2, Text: "this is a test transcription"},
			{Start: durationSec / 2, End: durationSec, Text: " of the uploaded segment"},
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)

	log.Printf("transcription response sent: segments=%d duration=%.2fs", len(resp.Segments), durationSec)
}

func main() {
	port := flag.Int("port", 9000, "listen port")
	flag.Parse()

	http.HandleFunc("/transcribe", transcribeHandler)

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("fake whisper engine starting on %s", addr)
	log.Printf("endpoint: http://localhost%s/transcribe", addr)

	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
