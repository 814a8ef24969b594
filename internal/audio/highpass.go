package audio

import "math"

// HighPassFilter applies a single-pole IIR high-pass filter to samples in
// place, attenuating content below cutoff Hz. The first sample seeds the
// filter and passes through unmodified.
//
// A cutoff outside (0, sampleRate/2) cannot be realized by this filter, so
// the call is a silent no-op rather than an error: callers treat the filter
// as best-effort signal conditioning.
func HighPassFilter(samples []float32, cutoff, sampleRate float32) {
	if len(samples) == 0 {
		return
	}
	if cutoff <= 0 || cutoff >= sampleRate/2 {
		return
	}

	rc := 1.0 / (2.0 * math.Pi * float64(cutoff))
	dt := 1.0 / float64(sampleRate)
	alpha := float32(rc / (rc + dt))

	prevInput := samples[0]
	for i := 1; i < len(samples); i++ {
		input := samples[i]
		samples[i] = alpha * (samples[i-1] + input - prevInput)
		prevInput = input
	}
}

// RMS computes the root-mean-square energy of samples. Empty input yields 0.
func RMS(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}

	return float32(math.Sqrt(sum / float64(len(samples))))
}
