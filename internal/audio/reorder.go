package audio

import (
	"fmt"
	"sync"
	"time"
)

// Chunk is one ingestion call worth of audio: the decoded samples plus the
// per-call segmentation parameters carried on the wire.
type Chunk struct {
	Sequence     uint32
	Samples      []float32
	Flush        bool // caller requested an explicit flush after this chunk
	MinSilenceMs int  // silence span that ends an utterance
	MaxSilenceMs int  // idle span after which buffers are compacted
	Received     time.Time
}

// Reorderer restores chunk order for a single session. UDP delivery may
// reorder or drop packets; the segmentation state machine requires a
// time-ordered stream, so chunks pass through here before reaching the
// session worker. A gap larger than maxGap chunks is declared lost and
// skipped rather than waited for.
type Reorderer struct {
	started bool
	nextSeq uint32
	pending map[uint32]*Chunk
	maxGap  uint32

	totalChunks uint64
	lostChunks  uint64

	mu sync.Mutex
}

// ReordererStats represents reorder queue statistics for monitoring
type ReordererStats struct {
	TotalChunks   uint64 `json:"total_chunks"`
	LostChunks    uint64 `json:"lost_chunks"`
	PendingChunks int    `json:"pending_chunks"`
	NextSequence  uint32 `json:"next_sequence"`
}

// NewReorderer creates a reorder queue that waits for at most maxGap missing
// chunks before declaring them lost.
func NewReorderer(maxGap uint32) *Reorderer {
	if maxGap == 0 {
		maxGap = 20
	}

	return &Reorderer{
		pending: make(map[uint32]*Chunk),
		maxGap:  maxGap,
	}
}

// Add accepts a chunk and returns every chunk that is now deliverable in
// order. Old or duplicate chunks are rejected with an error and nothing is
// delivered for them.
func (r *Reorderer) Add(chunk *Chunk) ([]*Chunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// First chunk anchors the sequence space.
	if !r.started {
		r.started = true
		r.nextSeq = chunk.Sequence
	}

	r.totalChunks++

	switch {
	case chunk.Sequence == r.nextSeq:
		ready := []*Chunk{chunk}
		r.nextSeq++
		ready = append(ready, r.drainPending()...)
		return ready, nil

	case chunk.Sequence > r.nextSeq:
		r.pending[chunk.Sequence] = chunk

		// Too far ahead: give up waiting on the gap. Chunks already in hand
		// below the new anchor are still delivered in order; only the
		// sequences genuinely absent count as lost.
		if chunk.Sequence-r.nextSeq > r.maxGap {
			var ready []*Chunk
			for seq := r.nextSeq; seq != chunk.Sequence; seq++ {
				if buffered, ok := r.pending[seq]; ok {
					delete(r.pending, seq)
					ready = append(ready, buffered)
				} else {
					r.lostChunks++
				}
			}
			r.nextSeq = chunk.Sequence
			return append(ready, r.drainPending()...), nil
		}

		return nil, nil

	default:
		return nil, fmt.Errorf("ignoring old/duplicate chunk: seq=%d, next=%d", chunk.Sequence, r.nextSeq)
	}
}

// drainPending pops consecutive buffered chunks starting at nextSeq.
// Caller must hold r.mu.
func (r *Reorderer) drainPending() []*Chunk {
	var ready []*Chunk
	for {
		chunk, ok := r.pending[r.nextSeq]
		if !ok {
			return ready
		}

		delete(r.pending, r.nextSeq)
		ready = append(ready, chunk)
		r.nextSeq++
	}
}

// Stats returns current reorder queue statistics
func (r *Reorderer) Stats() ReordererStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return ReordererStats{
		TotalChunks:   r.totalChunks,
		LostChunks:    r.lostChunks,
		PendingChunks: len(r.pending),
		NextSequence:  r.nextSeq,
	}
}
