package segment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/skypro1111/whisper-stream-service/internal/metrics"
)

// SampleRate is fixed by the whisper engine contract. All buffers and
// millisecond conversions in this package assume it.
const SampleRate = 16000

const (
	// DefaultMaxTalking bounds the voice buffer: continuous speech longer
	// than this forces a flush regardless of voice activity.
	DefaultMaxTalking = 10 * time.Minute

	// forcedKeep is the minimum retained context after a forced flush, so
	// that consecutive forced segments always overlap.
	forcedKeep = 2 * time.Second
)

// ErrNotReady is returned when audio is fed before a transcriber is attached.
var ErrNotReady = errors.New("segment: transcriber not configured")

// FlushReason labels what triggered a segment flush.
type FlushReason string

const (
	FlushExplicit FlushReason = "explicit" // caller set the flush flag
	FlushSilence  FlushReason = "silence"  // first silence after speech
	FlushForced   FlushReason = "forced"   // voice buffer hit the hard cap
)

// Options carries per-call hints for the transcription engine.
type Options struct {
	// NoContext asks the engine to ignore its own internal continuity state.
	// Set on forced flushes, where the segment boundary is arbitrary.
	NoContext bool
}

// Transcriber is the external transcription collaborator. It returns the
// ordered text segments the engine produced for the given audio.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, opts Options) ([]string, error)
}

// VoiceDetector classifies the trailing lastMs of a window as speech.
type VoiceDetector interface {
	Detect(window []float32, lastMs int) bool
}

// Callback receives the concatenated text of one completed segment.
type Callback func(text string)

// Config holds the immutable per-session segmentation parameters.
type Config struct {
	KeepMs     int           // retained context carried across segment boundaries
	MaxTalking time.Duration // voice buffer hard cap, defaults to DefaultMaxTalking
}

// Stats represents segmenter counters for monitoring
type Stats struct {
	VoiceSamples    int    `json:"voice_samples"`
	RetainedSamples int    `json:"retained_samples"`
	Speaking        bool   `json:"speaking"`
	FlushesExplicit uint64 `json:"flushes_explicit"`
	FlushesSilence  uint64 `json:"flushes_silence"`
	FlushesForced   uint64 `json:"flushes_forced"`
	Compactions     uint64 `json:"compactions"`
}

// Segmenter converts a sequence of chunk arrivals plus VAD verdicts into
// discrete flush decisions. One session feeds it one chunk at a time, and
// every call runs to completion synchronously, including the transcription
// invocation. GetStats may be called from other goroutines.
type Segmenter struct {
	cfg         Config
	detector    VoiceDetector
	transcriber Transcriber
	callback    Callback
	logger      *slog.Logger
	metrics     *metrics.Metrics

	retained []float32 // trailing context carried across segment boundaries
	voice    []float32 // current utterance accumulated since the last flush

	// speaking latches once the detector reports voice. idleSince marks
	// when the current hysteresis window started, not when speech was last
	// heard: it only moves on the speaking-to-idle transition and after
	// compaction, matching the observable flush schedule of the engine's
	// reference streaming loop.
	speaking  bool
	idleSince time.Time

	now func() time.Time

	flushesExplicit uint64
	flushesSilence  uint64
	flushesForced   uint64
	compactions     uint64

	mu sync.RWMutex
}

// NewSegmenter creates a segmenter for one session. m may be nil to skip
// metrics recording.
func NewSegmenter(cfg Config, detector VoiceDetector, transcriber Transcriber, callback Callback, m *metrics.Metrics, logger *slog.Logger) (*Segmenter, error) {
	if cfg.KeepMs < 0 {
		return nil, fmt.Errorf("keep_ms cannot be negative, got %d", cfg.KeepMs)
	}

	if cfg.MaxTalking <= 0 {
		cfg.MaxTalking = DefaultMaxTalking
	}

	if detector == nil {
		return nil, fmt.Errorf("voice detector is required")
	}

	if logger == nil {
		logger = slog.Default()
	}

	s := &Segmenter{
		cfg:         cfg,
		detector:    detector,
		transcriber: transcriber,
		callback:    callback,
		logger:      logger,
		metrics:     m,
		now:         time.Now,
	}
	s.idleSince = s.now()

	return s, nil
}

// ProcessStream feeds one chunk of samples through the streaming state
// machine. flushCmd requests an explicit flush after this chunk.
// minSilenceMs is the trailing silence span that ends an utterance;
// maxSilenceMs is the idle span after which accumulated silence is
// compacted instead of growing the voice buffer.
//
// A transcription failure is returned to the caller for that call only: the
// buffers keep the audio, the session stays usable, and the next chunk may
// retry the flush.
func (s *Segmenter) ProcessStream(ctx context.Context, samples []float32, flushCmd bool, minSilenceMs, maxSilenceMs int) error {
	if s.transcriber == nil {
		return ErrNotReady
	}

	if len(samples) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.voice = append(s.voice, samples...)

	doFlush := flushCmd
	reason := FlushSilence
	if flushCmd {
		reason = FlushExplicit
	}

	if s.detector.Detect(s.voice, minSilenceMs) {
		// idleSince deliberately stays put while speaking: the hysteresis
		// window is measured from the moment speech ended.
		s.speaking = true
	} else if s.speaking {
		// First silence after speech ends the utterance.
		doFlush = true
		s.speaking = false
		s.idleSince = now
	} else if maxSilenceMs > 0 && now.Sub(s.idleSince) > time.Duration(maxSilenceMs)*time.Millisecond {
		s.compact(minSilenceMs, now)
	}

	forced := false
	if len(s.voice) > s.samplesFor(s.cfg.MaxTalking) {
		doFlush = true
		forced = true
		reason = FlushForced
	}

	if doFlush {
		return s.flush(ctx, now, reason, forced)
	}

	// No flush: carry the trailing keep window into the retained context
	// without clearing the voice buffer. Compaction empties the voice buffer
	// and leaves its own retained span, which must survive.
	if len(s.voice) > 0 {
		s.retained = trailing(s.voice, s.keepSamples())
	}

	return nil
}

// ProcessChunk is the non-streaming mode: it merges the retained context
// with the incoming chunk, transcribes unconditionally, and always delivers
// the result, even when the engine returned no text.
func (s *Segmenter) ProcessChunk(ctx context.Context, samples []float32) error {
	if s.transcriber == nil {
		return ErrNotReady
	}

	if len(samples) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	keep := s.keepSamples()
	take := len(s.retained)
	if take > keep {
		take = keep
	}

	merged := make([]float32, 0, take+len(samples))
	merged = append(merged, s.retained[len(s.retained)-take:]...)
	merged = append(merged, samples...)

	// Candidate context for the next call, committed only after the engine
	// succeeds so a failed call loses nothing.
	nextRetained := trailing(merged, keep)

	texts, err := s.transcriber.Transcribe(ctx, merged, Options{})
	if err != nil {
		return fmt.Errorf("chunk transcription failed: %w", err)
	}

	s.retained = nextRetained

	if s.callback != nil {
		s.callback(strings.Join(texts, ""))
	}

	return nil
}

// Finalize flushes the audio still waiting in the voice buffer. Sessions
// call it once on teardown. Retained context alone does not count as pending:
// it is the tail of a segment the engine already transcribed, so with an
// empty voice buffer the call is a no-op.
func (s *Segmenter) Finalize(ctx context.Context) error {
	if s.transcriber == nil {
		return ErrNotReady
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.voice) == 0 {
		return nil
	}

	return s.flush(ctx, s.now(), FlushExplicit, false)
}

// flush sends retained context plus the voice buffer to the engine and, on
// success, rotates the buffers. The next state is computed before the engine
// call and committed only afterwards, so a failure leaves every buffer
// exactly as it was.
func (s *Segmenter) flush(ctx context.Context, now time.Time, reason FlushReason, forced bool) error {
	merged := make([]float32, 0, len(s.retained)+len(s.voice))
	merged = append(merged, s.retained...)
	merged = append(merged, s.voice...)

	if len(merged) == 0 {
		return nil
	}

	keep := s.keepSamples()
	if forced && keep < s.samplesFor(forcedKeep) {
		keep = s.samplesFor(forcedKeep)
	}
	nextRetained := trailing(s.voice, keep)

	texts, err := s.transcriber.Transcribe(ctx, merged, Options{NoContext: forced})
	if err != nil {
		return fmt.Errorf("segment transcription failed: %w", err)
	}

	s.retained = nextRetained
	s.voice = nil
	s.speaking = false
	s.idleSince = now

	switch reason {
	case FlushExplicit:
		s.flushesExplicit++
	case FlushForced:
		s.flushesForced++
	default:
		s.flushesSilence++
	}

	if s.metrics != nil {
		s.metrics.RecordSegmentFlushed(string(reason), float64(len(merged))/SampleRate, len(merged))
	}

	text := strings.Join(texts, "")

	s.logger.Debug("Segment flushed",
		slog.String("reason", string(reason)),
		slog.Int("samples", len(merged)),
		slog.Int("retained_samples", len(s.retained)),
		slog.Int("text_len", len(text)),
	)

	if text != "" && s.callback != nil {
		s.callback(text)
	}

	return nil
}

// compact discards accumulated silence once the session has been idle past
// the caller's max-silence span, keeping only the trailing min-silence span
// as context.
func (s *Segmenter) compact(minSilenceMs int, now time.Time) {
	keep := (SampleRate * minSilenceMs) / 1000
	s.retained = trailing(s.voice, keep)
	s.voice = nil
	s.idleSince = now
	s.compactions++

	if s.metrics != nil {
		s.metrics.RecordSilenceCompaction()
	}
}

// GetStats returns current segmenter counters
func (s *Segmenter) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		VoiceSamples:    len(s.voice),
		RetainedSamples: len(s.retained),
		Speaking:        s.speaking,
		FlushesExplicit: s.flushesExplicit,
		FlushesSilence:  s.flushesSilence,
		FlushesForced:   s.flushesForced,
		Compactions:     s.compactions,
	}
}

func (s *Segmenter) keepSamples() int {
	return (SampleRate * s.cfg.KeepMs) / 1000
}

func (s *Segmenter) samplesFor(d time.Duration) int {
	return int(d.Milliseconds()) * SampleRate / 1000
}

// trailing returns a copy of at most n trailing samples of buf.
func trailing(buf []float32, n int) []float32 {
	if n <= 0 || len(buf) == 0 {
		return nil
	}

	if n > len(buf) {
		n = len(buf)
	}

	out := make([]float32, n)
	copy(out, buf[len(buf)-n:])
	return out
}
