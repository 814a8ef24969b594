package audio

import "fmt"

// pcm16Scale maps the int16 range onto [-1, 1) float32 amplitudes.
const pcm16Scale = 32768.0

// SamplesFromPCM16 converts little-endian 16-bit PCM bytes into normalized
// float32 samples in [-1, 1).
func SamplesFromPCM16(data []byte) ([]float32, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("PCM-16 data length must be even, got %d bytes", len(data))
	}

	samples := make([]float32, len(data)/2)
	for i := range samples {
		raw := int16(data[i*2]) | int16(data[i*2+1])<<8
		samples[i] = float32(raw) / pcm16Scale
	}

	return samples, nil
}

// PCM16FromSamples converts normalized float32 samples into little-endian
// 16-bit PCM bytes, clipping amplitudes outside [-1, 1).
func PCM16FromSamples(samples []float32) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := s * pcm16Scale
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		raw := int16(v)
		data[i*2] = byte(raw)
		data[i*2+1] = byte(raw >> 8)
	}

	return data
}
