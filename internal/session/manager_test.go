package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/skypro1111/whisper-stream-service/internal/audio"
	"github.com/skypro1111/whisper-stream-service/internal/metrics"
	"github.com/skypro1111/whisper-stream-service/internal/protocol"
	"github.com/skypro1111/whisper-stream-service/internal/segment"
)

// Prometheus collectors register globally, so every test shares one set.
var testMetrics = metrics.NewMetrics()

// stubTranscriber returns fixed text and counts calls.
type stubTranscriber struct {
	mu    sync.Mutex
	calls int
	texts []string
}

func (s *stubTranscriber) Transcribe(ctx context.Context, samples []float32, opts segment.Options) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.texts, nil
}

func (s *stubTranscriber) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testManagerConfig() ManagerConfig {
	return ManagerConfig{
		SampleRate:          16000,
		EnergyRatio:         10.0,
		FreqThreshold:       0,
		KeepMs:              200,
		MaxTalking:          10 * time.Minute,
		DefaultMinSilenceMs: 700,
		DefaultMaxSilenceMs: 3000,
		MaxChunkGap:         20,
		QueueSize:           16,
		MaxSessions:         4,
		SessionTimeout:      time.Hour,
		ProcessTimeout:      5 * time.Second,
	}
}

func helloPayload(clientID, language string, mode uint8) *protocol.HelloPayload {
	p := &protocol.HelloPayload{Mode: mode, Timestamp: uint32(time.Now().Unix())}
	copy(p.ClientID[:], clientID)
	copy(p.Language[:], language)
	return p
}

func newTestManager(t *testing.T, tr segment.Transcriber) *Manager {
	t.Helper()

	m, err := NewManager(testManagerConfig(), tr, testMetrics, nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(m.Stop)

	return m
}

// waitFor polls until cond returns true or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Condition not met before timeout")
}

// tonePCM builds n samples of a constant mid-level value as PCM-16 bytes.
func tonePCM(n int) []byte {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = 0.3
	}
	return audio.PCM16FromSamples(samples)
}

func TestManagerSessionLifecycle(t *testing.T) {
	tr := &stubTranscriber{texts: []string{"hello world"}}
	m := newTestManager(t, tr)

	sess, err := m.HandleHello(1, helloPayload("client-a", "en", protocol.ModeStreaming))
	if err != nil {
		t.Fatalf("HandleHello failed: %v", err)
	}
	if sess.ClientID != "client-a" || sess.Language != "en" {
		t.Errorf("Session metadata wrong: %+v", sess)
	}
	if m.GetActiveSessionCount() != 1 {
		t.Errorf("Expected 1 active session, got %d", m.GetActiveSessionCount())
	}

	// An explicit flush pushes the chunk straight to the engine.
	header := &protocol.Header{PacketType: protocol.PacketTypeAudio, SessionID: 1, Flags: protocol.FlagFlush}
	payload := &protocol.AudioPayload{
		Sequence:     1,
		MinSilenceMs: 700,
		MaxSilenceMs: 3000,
		AudioData:    tonePCM(1600),
	}

	if err := m.HandleAudio(1, header, payload); err != nil {
		t.Fatalf("HandleAudio failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return len(sess.Transcripts()) == 1
	})

	transcripts := sess.Transcripts()
	if transcripts[0].Text != "hello world" {
		t.Errorf("Expected transcript 'hello world', got %q", transcripts[0].Text)
	}

	if err := m.HandleBye(1); err != nil {
		t.Fatalf("HandleBye failed: %v", err)
	}
	if m.GetActiveSessionCount() != 0 {
		t.Errorf("Expected 0 active sessions after bye, got %d", m.GetActiveSessionCount())
	}
}

func TestManagerDuplicateHello(t *testing.T) {
	tr := &stubTranscriber{}
	m := newTestManager(t, tr)

	first, err := m.HandleHello(7, helloPayload("client-a", "en", protocol.ModeStreaming))
	if err != nil {
		t.Fatalf("First HandleHello failed: %v", err)
	}

	second, err := m.HandleHello(7, helloPayload("client-b", "uk", protocol.ModeStreaming))
	if err != nil {
		t.Fatalf("Duplicate HandleHello failed: %v", err)
	}

	if first != second {
		t.Error("Duplicate hello must return the existing session")
	}
	if m.GetActiveSessionCount() != 1 {
		t.Errorf("Expected 1 session, got %d", m.GetActiveSessionCount())
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager(testManagerConfig(), nil, testMetrics, nil); err == nil {
		t.Error("Expected error for missing transcriber")
	}

	if _, err := NewManager(testManagerConfig(), &stubTranscriber{}, nil, nil); err == nil {
		t.Error("Expected error for missing metrics registry")
	}
}

func TestManagerUnknownSession(t *testing.T) {
	m := newTestManager(t, &stubTranscriber{})

	header := &protocol.Header{PacketType: protocol.PacketTypeAudio, SessionID: 99}
	payload := &protocol.AudioPayload{Sequence: 1, AudioData: tonePCM(100)}

	if err := m.HandleAudio(99, header, payload); err == nil {
		t.Error("Expected error for audio to unknown session")
	}

	if err := m.HandleBye(99); err == nil {
		t.Error("Expected error for bye to unknown session")
	}
}

func TestManagerSessionLimit(t *testing.T) {
	m := newTestManager(t, &stubTranscriber{})

	for id := uint32(1); id <= 4; id++ {
		if _, err := m.HandleHello(id, helloPayload("client", "en", protocol.ModeStreaming)); err != nil {
			t.Fatalf("HandleHello(%d) failed: %v", id, err)
		}
	}

	if _, err := m.HandleHello(5, helloPayload("client", "en", protocol.ModeStreaming)); err == nil {
		t.Error("Expected error when session limit is reached")
	}
}

func TestManagerChunkedMode(t *testing.T) {
	// Chunked sessions transcribe every chunk, no flush flag needed, and
	// deliver even empty results.
	tr := &stubTranscriber{texts: nil}
	m := newTestManager(t, tr)

	sess, err := m.HandleHello(3, helloPayload("client-c", "en", protocol.ModeChunked))
	if err != nil {
		t.Fatalf("HandleHello failed: %v", err)
	}

	header := &protocol.Header{PacketType: protocol.PacketTypeAudio, SessionID: 3}
	payload := &protocol.AudioPayload{Sequence: 1, AudioData: tonePCM(1600)}

	if err := m.HandleAudio(3, header, payload); err != nil {
		t.Fatalf("HandleAudio failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return len(sess.Transcripts()) == 1
	})

	if got := sess.Transcripts()[0].Text; got != "" {
		t.Errorf("Expected empty transcript for silent engine result, got %q", got)
	}
	if tr.callCount() != 1 {
		t.Errorf("Expected 1 engine call, got %d", tr.callCount())
	}
}

func TestManagerFinalizesBufferedAudioOnBye(t *testing.T) {
	tr := &stubTranscriber{texts: []string{"tail"}}
	m := newTestManager(t, tr)

	sess, err := m.HandleHello(4, helloPayload("client-d", "en", protocol.ModeStreaming))
	if err != nil {
		t.Fatalf("HandleHello failed: %v", err)
	}

	// Speech accumulates without any flush trigger.
	header := &protocol.Header{PacketType: protocol.PacketTypeAudio, SessionID: 4}
	payload := &protocol.AudioPayload{
		Sequence:     1,
		MinSilenceMs: 700,
		MaxSilenceMs: 3000,
		AudioData:    tonePCM(1600),
	}
	if err := m.HandleAudio(4, header, payload); err != nil {
		t.Fatalf("HandleAudio failed: %v", err)
	}

	// Bye drains the queue and flushes the remainder.
	if err := m.HandleBye(4); err != nil {
		t.Fatalf("HandleBye failed: %v", err)
	}

	transcripts := sess.Transcripts()
	if len(transcripts) != 1 || transcripts[0].Text != "tail" {
		t.Errorf("Expected buffered audio flushed on bye, got %v", transcripts)
	}
}

func TestManagerOutOfOrderAudio(t *testing.T) {
	tr := &stubTranscriber{texts: []string{"ordered"}}
	m := newTestManager(t, tr)

	sess, err := m.HandleHello(5, helloPayload("client-e", "en", protocol.ModeChunked))
	if err != nil {
		t.Fatalf("HandleHello failed: %v", err)
	}

	header := &protocol.Header{PacketType: protocol.PacketTypeAudio, SessionID: 5}

	// The first chunk anchors the sequence space, then chunk 3 arrives
	// before chunk 2 and must wait for it.
	if err := m.HandleAudio(5, header, &protocol.AudioPayload{Sequence: 1, AudioData: tonePCM(800)}); err != nil {
		t.Fatalf("HandleAudio(seq 1) failed: %v", err)
	}
	if err := m.HandleAudio(5, header, &protocol.AudioPayload{Sequence: 3, AudioData: tonePCM(800)}); err != nil {
		t.Fatalf("HandleAudio(seq 3) failed: %v", err)
	}
	if err := m.HandleAudio(5, header, &protocol.AudioPayload{Sequence: 2, AudioData: tonePCM(800)}); err != nil {
		t.Fatalf("HandleAudio(seq 2) failed: %v", err)
	}

	// All three chunks are transcribed once order is restored.
	waitFor(t, 2*time.Second, func() bool {
		return len(sess.Transcripts()) == 3
	})

	info := sess.GetInfo()
	if info.ChunksProcessed != 3 {
		t.Errorf("Expected 3 processed chunks, got %d", info.ChunksProcessed)
	}
}

func TestManagerRejectsInvalidAudio(t *testing.T) {
	m := newTestManager(t, &stubTranscriber{})

	if _, err := m.HandleHello(6, helloPayload("client-f", "en", protocol.ModeStreaming)); err != nil {
		t.Fatalf("HandleHello failed: %v", err)
	}

	header := &protocol.Header{PacketType: protocol.PacketTypeAudio, SessionID: 6}
	payload := &protocol.AudioPayload{Sequence: 1, AudioData: []byte{0x01}} // odd length

	if err := m.HandleAudio(6, header, payload); err == nil {
		t.Error("Expected error for malformed PCM payload")
	}
}
