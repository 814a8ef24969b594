package vad

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skypro1111/whisper-stream-service/internal/audio"
	"github.com/skypro1111/whisper-stream-service/internal/metrics"
)

const (
	// noiseFloorAlpha is the smoothing constant for the exponential noise
	// floor update applied on each silence verdict.
	noiseFloorAlpha = 0.01

	// noiseFloorMin is the lower clamp for the adaptive noise floor. Letting
	// the floor collapse to zero would make the detector hypersensitive to
	// residual noise.
	noiseFloorMin = 0.1
)

// Detector classifies audio windows as speech or silence using the ratio of
// trailing-span energy to overall energy. The adaptive noise floor evolves
// across calls, so a Detector is stateful and must be owned by exactly one
// session.
type Detector struct {
	sampleRate    int
	energyRatio   float32 // silence when energyLast < reference/energyRatio
	freqThreshold float32 // high-pass cutoff, 0 disables pre-filtering
	noiseFloor    float32
	logger        *slog.Logger
	metrics       *metrics.Metrics

	// Statistics
	totalWindows  uint64
	speechWindows uint64

	mu sync.RWMutex
}

// Stats represents detector statistics for monitoring
type Stats struct {
	TotalWindows     uint64  `json:"total_windows"`
	SpeechWindows    uint64  `json:"speech_windows"`
	SpeechPercentage float64 `json:"speech_percentage"`
	NoiseFloor       float32 `json:"noise_floor"`
}

// NewDetector creates a voice activity detector for one session. m may be
// nil to skip metrics recording.
func NewDetector(sampleRate int, energyRatio, freqThreshold float32, m *metrics.Metrics, logger *slog.Logger) (*Detector, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	if energyRatio <= 0 {
		return nil, fmt.Errorf("energy ratio threshold must be positive, got %f", energyRatio)
	}

	if freqThreshold < 0 {
		return nil, fmt.Errorf("frequency threshold cannot be negative, got %f", freqThreshold)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Detector{
		sampleRate:    sampleRate,
		energyRatio:   energyRatio,
		freqThreshold: freqThreshold,
		logger:        logger,
		metrics:       m,
	}, nil
}

// Detect reports whether the trailing lastMs of window contains speech.
//
// The call fails open: a window too short to carry both an analysis span and
// preceding history cannot be assessed and is reported as speech, since
// truncating a genuine utterance is worse than transcribing noise.
func (d *Detector) Detect(window []float32, lastMs int) bool {
	nSamplesLast := (d.sampleRate * lastMs) / 1000

	if len(window) == 0 || nSamplesLast >= len(window) {
		return true
	}

	start := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.totalWindows++

	// The pre-filter runs on a private copy so the audio forwarded to the
	// transcription engine stays untouched.
	analyzed := window
	if d.freqThreshold > 0 {
		analyzed = make([]float32, len(window))
		copy(analyzed, window)
		audio.HighPassFilter(analyzed, d.freqThreshold, float32(d.sampleRate))
	}

	split := len(analyzed) - nSamplesLast
	energyAll := audio.RMS(analyzed[:split])
	energyLast := audio.RMS(analyzed[split:])

	reference := energyAll
	if d.noiseFloor > reference {
		reference = d.noiseFloor
	}

	silent := energyLast < reference/d.energyRatio

	if d.metrics != nil {
		d.metrics.RecordVADWindow(!silent, time.Since(start).Seconds())
	}

	if silent {
		d.noiseFloor = noiseFloorAlpha*energyAll + (1-noiseFloorAlpha)*d.noiseFloor
		if d.noiseFloor < noiseFloorMin {
			d.noiseFloor = noiseFloorMin
		}

		d.logger.Debug("Silence detected",
			slog.Float64("energy_all", float64(energyAll)),
			slog.Float64("energy_last", float64(energyLast)),
			slog.Float64("noise_floor", float64(d.noiseFloor)),
		)

		return false
	}

	d.speechWindows++
	return true
}

// NoiseFloor returns the current adaptive noise floor estimate.
func (d *Detector) NoiseFloor() float32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.noiseFloor
}

// GetStats returns current detector statistics
func (d *Detector) GetStats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	speechPercentage := float64(0)
	if d.totalWindows > 0 {
		speechPercentage = float64(d.speechWindows) / float64(d.totalWindows) * 100
	}

	return Stats{
		TotalWindows:     d.totalWindows,
		SpeechWindows:    d.speechWindows,
		SpeechPercentage: speechPercentage,
		NoiseFloor:       d.noiseFloor,
	}
}
