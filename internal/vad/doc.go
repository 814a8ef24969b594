// Package vad provides energy-ratio voice activity detection with an
// adaptive noise floor. The detector compares the RMS energy of the trailing
// analysis span of a window against the energy of the preceding audio and a
// slowly-adapting ambient noise estimate. The noise floor is per-detector
// state: concurrent sessions each own their detector and never share it.
package vad
