package audio

import (
	"math"
	"testing"
)

func TestEncodeWAV(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 0.25}

	data, err := EncodeWAV(samples, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	expectedSize := 44 + len(samples)*2
	if len(data) != expectedSize {
		t.Errorf("Expected %d bytes, got %d", expectedSize, len(data))
	}

	if string(data[0:4]) != "RIFF" {
		t.Errorf("Missing RIFF magic, got %q", data[0:4])
	}

	if string(data[8:12]) != "WAVE" {
		t.Errorf("Missing WAVE format, got %q", data[8:12])
	}
}

func TestEncodeWAVErrors(t *testing.T) {
	if _, err := EncodeWAV(nil, 16000); err == nil {
		t.Error("Expected error for empty samples")
	}

	if _, err := EncodeWAV([]float32{0.1}, 0); err == nil {
		t.Error("Expected error for zero sample rate")
	}
}

func TestWAVRoundTrip(t *testing.T) {
	original := make([]float32, 320)
	for i := range original {
		original[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 16000))
	}

	data, err := EncodeWAV(original, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	decoded, sampleRate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}

	if sampleRate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", sampleRate)
	}

	if len(decoded) != len(original) {
		t.Fatalf("Expected %d samples, got %d", len(original), len(decoded))
	}

	for i := range decoded {
		if math.Abs(float64(decoded[i]-original[i])) > 1.0/32768.0 {
			t.Errorf("Sample %d: expected %f, got %f", i, original[i], decoded[i])
		}
	}
}

func TestDecodeWAVErrors(t *testing.T) {
	valid, err := EncodeWAV([]float32{0.1, 0.2}, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{
			name:   "too short",
			mutate: func(d []byte) []byte { return d[:20] },
		},
		{
			name: "bad RIFF magic",
			mutate: func(d []byte) []byte {
				d[0] = 'X'
				return d
			},
		},
		{
			name: "bad WAVE format",
			mutate: func(d []byte) []byte {
				d[8] = 'X'
				return d
			},
		},
		{
			name: "non-PCM format",
			mutate: func(d []byte) []byte {
				d[20] = 3 // AudioFormat
				return d
			},
		},
		{
			name: "stereo",
			mutate: func(d []byte) []byte {
				d[22] = 2 // NumChannels
				return d
			},
		},
		{
			name: "8-bit depth",
			mutate: func(d []byte) []byte {
				d[34] = 8 // BitsPerSample
				return d
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make([]byte, len(valid))
			copy(data, valid)

			if _, _, err := DecodeWAV(tt.mutate(data)); err == nil {
				t.Error("Expected error but got none")
			}
		})
	}
}
