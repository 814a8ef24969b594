package vad

import (
	"math"
	"testing"
)

const testSampleRate = 16000

func newTestDetector(t *testing.T, energyRatio, freqThreshold float32) *Detector {
	t.Helper()

	d, err := NewDetector(testSampleRate, energyRatio, freqThreshold, nil, nil)
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}
	return d
}

// loudThenQuiet builds a window whose leading part carries a sine of the
// given amplitude and whose trailing lastMs are near-silent.
func loudThenQuiet(amplitude float64, totalMs, lastMs int) []float32 {
	total := testSampleRate * totalMs / 1000
	last := testSampleRate * lastMs / 1000

	window := make([]float32, total)
	for i := 0; i < total-last; i++ {
		window[i] = float32(amplitude * math.Sin(2*math.Pi*440*float64(i)/testSampleRate))
	}
	for i := total - last; i < total; i++ {
		window[i] = float32(0.001 * math.Sin(2*math.Pi*440*float64(i)/testSampleRate))
	}

	return window
}

func constantTone(amplitude float64, totalMs int) []float32 {
	total := testSampleRate * totalMs / 1000

	window := make([]float32, total)
	for i := range window {
		window[i] = float32(amplitude * math.Sin(2*math.Pi*440*float64(i)/testSampleRate))
	}

	return window
}

func TestDetectorNewDetectorValidation(t *testing.T) {
	tests := []struct {
		name          string
		sampleRate    int
		energyRatio   float32
		freqThreshold float32
		expectError   bool
	}{
		{"valid", 16000, 10, 100, false},
		{"valid without prefilter", 16000, 10, 0, false},
		{"zero sample rate", 0, 10, 100, true},
		{"zero energy ratio", 16000, 0, 100, true},
		{"negative freq threshold", 16000, 10, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDetector(tt.sampleRate, tt.energyRatio, tt.freqThreshold, nil, nil)

			if tt.expectError && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestDetectorSilenceAfterSpeech(t *testing.T) {
	d := newTestDetector(t, 10, 100)

	window := loudThenQuiet(0.5, 3000, 700)

	if d.Detect(window, 700) {
		t.Error("Quiet trailing span after loud speech should be classified as silence")
	}
}

func TestDetectorOngoingSpeech(t *testing.T) {
	d := newTestDetector(t, 10, 100)

	window := constantTone(0.5, 3000)

	if !d.Detect(window, 700) {
		t.Error("Constant tone should be classified as speech")
	}
}

func TestDetectorFailsOpen(t *testing.T) {
	d := newTestDetector(t, 10, 100)

	tests := []struct {
		name   string
		window []float32
		lastMs int
	}{
		{"empty window", nil, 700},
		{"window shorter than span", make([]float32, 100), 700},
		{"window exactly the span", make([]float32, testSampleRate*700/1000), 700},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !d.Detect(tt.window, tt.lastMs) {
				t.Error("Degenerate window must be reported as speech")
			}
		})
	}
}

func TestDetectorNoiseFloorRisesOnSilence(t *testing.T) {
	d := newTestDetector(t, 10, 0)

	if d.NoiseFloor() != 0 {
		t.Fatalf("Noise floor should start at zero, got %f", d.NoiseFloor())
	}

	window := loudThenQuiet(0.5, 3000, 700)
	if d.Detect(window, 700) {
		t.Fatal("Expected a silence verdict")
	}

	// The first silence verdict clamps the floor up to the minimum.
	if d.NoiseFloor() < 0.1 {
		t.Errorf("Noise floor should be clamped to at least 0.1, got %f", d.NoiseFloor())
	}
}

func TestDetectorNoiseFloorStableDuringSpeech(t *testing.T) {
	d := newTestDetector(t, 10, 0)

	window := constantTone(0.5, 3000)

	for i := 0; i < 5; i++ {
		if !d.Detect(window, 700) {
			t.Fatal("Expected a speech verdict")
		}
	}

	if d.NoiseFloor() != 0 {
		t.Errorf("Noise floor must not move on speech verdicts, got %f", d.NoiseFloor())
	}
}

func TestDetectorInputNotModified(t *testing.T) {
	d := newTestDetector(t, 10, 100)

	window := constantTone(0.5, 3000)
	original := make([]float32, len(window))
	copy(original, window)

	d.Detect(window, 700)

	for i := range window {
		if window[i] != original[i] {
			t.Fatalf("Detect must not modify the caller's samples, sample %d changed", i)
		}
	}
}

func TestDetectorStats(t *testing.T) {
	d := newTestDetector(t, 10, 0)

	speech := constantTone(0.5, 3000)
	silence := loudThenQuiet(0.5, 3000, 700)

	d.Detect(speech, 700)
	d.Detect(speech, 700)
	d.Detect(silence, 700)

	stats := d.GetStats()
	if stats.TotalWindows != 3 {
		t.Errorf("Expected 3 total windows, got %d", stats.TotalWindows)
	}
	if stats.SpeechWindows != 2 {
		t.Errorf("Expected 2 speech windows, got %d", stats.SpeechWindows)
	}
	if math.Abs(stats.SpeechPercentage-200.0/3.0) > 0.01 {
		t.Errorf("Expected speech percentage ~66.7, got %f", stats.SpeechPercentage)
	}
}
