package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skypro1111/whisper-stream-service/internal/audio"
	"github.com/skypro1111/whisper-stream-service/internal/metrics"
	"github.com/skypro1111/whisper-stream-service/internal/protocol"
	"github.com/skypro1111/whisper-stream-service/internal/segment"
	"github.com/skypro1111/whisper-stream-service/internal/vad"
)

// finalizeTimeout bounds the last transcription attempt during teardown.
const finalizeTimeout = 60 * time.Second

// Transcript is one completed segment of recognized text.
type Transcript struct {
	Index int       `json:"index"`
	Text  string    `json:"text"`
	Time  time.Time `json:"time"`
}

// Session is one client's transcription session. All pipeline state lives
// behind a single worker goroutine; the rest of the service only enqueues
// chunks and reads snapshots.
type Session struct {
	ID        uint32
	ClientID  string
	Language  string
	Mode      uint8
	StartTime time.Time

	reorderer *audio.Reorderer
	detector  *vad.Detector
	segmenter *segment.Segmenter

	chunks    chan *audio.Chunk
	closeOnce sync.Once
	wg        sync.WaitGroup

	logger  *slog.Logger
	metrics *metrics.Metrics

	mu           sync.RWMutex
	lastActivity time.Time
	transcripts  []Transcript

	chunksReceived  uint64
	chunksProcessed uint64
	processErrors   uint64
}

// Info is a monitoring snapshot of one session.
type Info struct {
	SessionID    uint32    `json:"session_id"`
	ClientID     string    `json:"client_id"`
	Language     string    `json:"language"`
	Mode         string    `json:"mode"`
	StartTime    time.Time `json:"start_time"`
	LastActivity time.Time `json:"last_activity"`
	Duration     float64   `json:"duration_seconds"`
	Transcripts  int       `json:"transcripts"`

	ChunksReceived  uint64 `json:"chunks_received"`
	ChunksProcessed uint64 `json:"chunks_processed"`
	ProcessErrors   uint64 `json:"process_errors"`

	VAD       vad.Stats            `json:"vad"`
	Segmenter segment.Stats        `json:"segmenter"`
	Reorder   audio.ReordererStats `json:"reorder"`
}

// newSession builds the per-session pipeline and starts its worker.
func newSession(id uint32, hello *protocol.HelloPayload, cfg ManagerConfig, transcriber segment.Transcriber, m *metrics.Metrics, logger *slog.Logger) (*Session, error) {
	sessionLogger := logger.With(
		slog.Uint64("session_id", uint64(id)),
		slog.String("client_id", hello.GetClientID()),
	)

	detector, err := vad.NewDetector(cfg.SampleRate, cfg.EnergyRatio, cfg.FreqThreshold, m, sessionLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create voice detector: %w", err)
	}

	now := time.Now()
	s := &Session{
		ID:           id,
		ClientID:     hello.GetClientID(),
		Language:     hello.GetLanguage(),
		Mode:         hello.Mode,
		StartTime:    now,
		lastActivity: now,
		reorderer:    audio.NewReorderer(cfg.MaxChunkGap),
		detector:     detector,
		chunks:       make(chan *audio.Chunk, cfg.QueueSize),
		logger:       sessionLogger,
		metrics:      m,
	}

	segmenter, err := segment.NewSegmenter(segment.Config{
		KeepMs:     cfg.KeepMs,
		MaxTalking: cfg.MaxTalking,
	}, detector, transcriber, s.appendTranscript, m, sessionLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create segmenter: %w", err)
	}
	s.segmenter = segmenter

	s.wg.Add(1)
	go s.run(cfg)

	return s, nil
}

// Enqueue hands one decoded chunk to the session worker. It never blocks: a
// full queue drops the chunk and reports the overflow to the caller.
func (s *Session) Enqueue(chunk *audio.Chunk) error {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.chunksReceived++
	s.mu.Unlock()

	select {
	case s.chunks <- chunk:
		return nil
	default:
		return fmt.Errorf("session %d queue full, dropping chunk seq=%d", s.ID, chunk.Sequence)
	}
}

// close stops the worker. The worker drains queued chunks and flushes the
// remaining buffered audio before exiting.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.chunks)
	})
	s.wg.Wait()
}

// run is the session worker loop. It is the only goroutine that touches the
// reorderer, detector, and segmenter.
func (s *Session) run(cfg ManagerConfig) {
	defer s.wg.Done()

	for chunk := range s.chunks {
		s.handleChunk(chunk, cfg)
	}

	// Channel closed: the session is ending, flush whatever is buffered.
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	if err := s.segmenter.Finalize(ctx); err != nil {
		s.logger.Error("Final flush failed on session end",
			slog.String("error", err.Error()),
		)
	}
}

// handleChunk pushes one chunk through the reorder queue and feeds every
// chunk that became deliverable into the segmenter.
func (s *Session) handleChunk(chunk *audio.Chunk, cfg ManagerConfig) {
	lostBefore := s.reorderer.Stats().LostChunks

	ordered, err := s.reorderer.Add(chunk)
	if err != nil {
		s.logger.Debug("Chunk rejected by reorder queue",
			slog.Uint64("sequence", uint64(chunk.Sequence)),
			slog.String("error", err.Error()),
		)
		return
	}

	if lost := s.reorderer.Stats().LostChunks - lostBefore; lost > 0 {
		s.metrics.RecordChunksLost(int(lost))
		s.logger.Warn("Declared chunks lost",
			slog.Uint64("lost", lost),
			slog.Uint64("sequence", uint64(chunk.Sequence)),
		)
	}

	for _, c := range ordered {
		if err := s.process(c, cfg); err != nil {
			s.mu.Lock()
			s.processErrors++
			s.mu.Unlock()

			s.logger.Error("Chunk processing failed",
				slog.Uint64("sequence", uint64(c.Sequence)),
				slog.String("error", err.Error()),
			)
			continue
		}

		s.mu.Lock()
		s.chunksProcessed++
		s.mu.Unlock()
	}
}

// process feeds one in-order chunk into the mode-appropriate pipeline.
func (s *Session) process(chunk *audio.Chunk, cfg ManagerConfig) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ProcessTimeout)
	defer cancel()

	if s.Mode == protocol.ModeChunked {
		return s.segmenter.ProcessChunk(ctx, chunk.Samples)
	}

	minSilence := chunk.MinSilenceMs
	if minSilence == 0 {
		minSilence = cfg.DefaultMinSilenceMs
	}

	maxSilence := chunk.MaxSilenceMs
	if maxSilence == 0 {
		maxSilence = cfg.DefaultMaxSilenceMs
	}

	return s.segmenter.ProcessStream(ctx, chunk.Samples, chunk.Flush, minSilence, maxSilence)
}

// appendTranscript is the segmenter callback. It runs on the session worker
// goroutine.
func (s *Session) appendTranscript(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transcripts = append(s.transcripts, Transcript{
		Index: len(s.transcripts),
		Text:  text,
		Time:  time.Now(),
	})
}

// Transcripts returns a copy of the recognized text so far.
func (s *Session) Transcripts() []Transcript {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Transcript, len(s.transcripts))
	copy(out, s.transcripts)
	return out
}

// LastActivity returns the time of the most recent enqueued chunk.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// GetInfo returns a monitoring snapshot of the session. The pipeline stats
// are gathered after the session lock is released: the worker invokes the
// transcript callback while inside the segmenter, so holding both locks here
// would invert that ordering.
func (s *Session) GetInfo() Info {
	mode := "streaming"
	if s.Mode == protocol.ModeChunked {
		mode = "chunked"
	}

	s.mu.RLock()
	info := Info{
		SessionID:    s.ID,
		ClientID:     s.ClientID,
		Language:     s.Language,
		Mode:         mode,
		StartTime:    s.StartTime,
		LastActivity: s.lastActivity,
		Duration:     time.Since(s.StartTime).Seconds(),
		Transcripts:  len(s.transcripts),

		ChunksReceived:  s.chunksReceived,
		ChunksProcessed: s.chunksProcessed,
		ProcessErrors:   s.processErrors,
	}
	s.mu.RUnlock()

	info.VAD = s.detector.GetStats()
	info.Segmenter = s.segmenter.GetStats()
	info.Reorder = s.reorderer.Stats()

	return info
}
