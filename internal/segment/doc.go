// Package segment implements the streaming segmentation engine: the state
// machine that turns a raw sample stream plus voice-activity verdicts into
// bounded utterance segments handed to a transcription engine. It owns the
// retained-context and voice buffers, the speaking/idle hysteresis, the
// silence compaction policy, and the forced-flush safety valve that bounds
// memory on endless speech. A simpler chunked mode transcribes every call
// unconditionally with a sliding context window and no VAD gating.
package segment
