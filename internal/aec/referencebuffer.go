// Package aec implements the time-synchronized echo canceller (C3): a
// wall-clock-addressed ring buffer of everything the client has rendered,
// and per-frame cancellation that delegates the actual signal subtraction
// to a fixed-frame-size Engine (an NLMS adaptive filter, by default).
package aec

import (
	"sync"
	"time"

	"github.com/lokutor-ai/lokutor-edge/internal/resample"
)

// ReferenceBuffer is the AEC's exclusive memory of what is being played.
// It is a circular int16 buffer addressed by wall-clock offset since
// playback_start_wall_time, per §4.3's registration protocol.
type ReferenceBuffer struct {
	mu sync.Mutex

	buf      []int16
	capacity int
	rate     int

	writePos     int
	totalWritten int64

	playbackStartWallTime *time.Time
	playbackStartSample   int64
	pendingStartSample    int64

	now func() time.Time
}

// NewReferenceBuffer creates a ring buffer of capacitySamples at rate Hz.
func NewReferenceBuffer(capacitySamples, rate int) *ReferenceBuffer {
	if capacitySamples < 1 {
		capacitySamples = 1
	}
	return &ReferenceBuffer{
		buf:      make([]int16, capacitySamples),
		capacity: capacitySamples,
		rate:     rate,
		now:      time.Now,
	}
}

// BeginRegistration clears the ring buffer and the pending_start_sample
// cursor. It does NOT touch playback_start_wall_time: a previous playback
// may still be draining and must remain cancellable by the AEC until
// EndPlayback is called explicitly.
func (r *ReferenceBuffer) BeginRegistration() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beginRegistrationLocked()
}

func (r *ReferenceBuffer) beginRegistrationLocked() {
	for i := range r.buf {
		r.buf[i] = 0
	}
	r.writePos = 0
	r.totalWritten = 0
	r.pendingStartSample = 0
}

// Register resamples samples to the buffer's rate if needed and appends
// them. On the first chunk of a streaming playback it implicitly performs
// BeginRegistration; if autoStart is set and playback is not yet timed,
// it starts timing on this first chunk.
func (r *ReferenceBuffer) Register(samples []int16, srcRate int, isFirstChunk, autoStart bool) {
	if srcRate != 0 && srcRate != r.rate {
		samples = resample.Int16(samples, srcRate, r.rate)
	}

	r.mu.Lock()
	if isFirstChunk {
		r.beginRegistrationLocked()
	}
	for _, s := range samples {
		r.buf[r.writePos] = s
		r.writePos = (r.writePos + 1) % r.capacity
		r.totalWritten++
	}
	shouldStart := autoStart && r.playbackStartWallTime == nil
	r.mu.Unlock()

	if shouldStart {
		r.StartPlayback()
	}
}

// StartPlayback explicitly latches playback_start_wall_time = now and
// playback_start_sample = pending_start_sample. Whole-file playback
// registers the full buffer first, then calls StartPlayback immediately
// before handing bytes to the sink.
func (r *ReferenceBuffer) StartPlayback() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.playbackStartWallTime = &now
	r.playbackStartSample = r.pendingStartSample
}

// EndPlayback clears playback_start_wall_time; the AEC becomes a
// pass-through until the next StartPlayback.
func (r *ReferenceBuffer) EndPlayback() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playbackStartWallTime = nil
}

// Rate reports the buffer's sample rate, so callers that need to resample
// before feeding it a parallel signal (the energy guard) don't have to
// duplicate the configured AEC rate.
func (r *ReferenceBuffer) Rate() int {
	return r.rate
}

// Active reports whether playback is currently timed (initialized and
// playback_start_wall_time is non-null).
func (r *ReferenceBuffer) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playbackStartWallTime != nil
}

// window computes the target logical position for "now" and returns a
// zero-padded reference window of length n ending at target+frameSize-1,
// i.e. starting at target-(n-frameSize). ok is false when playback is
// inactive or the target position is at/past total_written (exhausted).
func (r *ReferenceBuffer) window(frameSize, tapLen int, delaySamples int) (out []int16, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.playbackStartWallTime == nil {
		return nil, false
	}

	elapsed := r.now().Sub(*r.playbackStartWallTime)
	sElapsed := int64(elapsed.Seconds()*float64(r.rate)) - int64(delaySamples)
	if sElapsed < 0 {
		// Acoustic path hasn't reached the mic yet: pass through with a
		// zero reference frame.
		return make([]int16, frameSize+tapLen-1), true
	}

	target := r.playbackStartSample + sElapsed
	if target >= r.totalWritten {
		return nil, false
	}

	n := frameSize + tapLen - 1
	out = make([]int16, n)
	start := target - int64(tapLen-1)
	for i := 0; i < n; i++ {
		pos := start + int64(i)
		if pos < 0 || pos >= r.totalWritten {
			continue // zero-padded: before any reference existed, or not yet written
		}
		idx := mod(pos, int64(r.capacity))
		// Only the most recent `capacity` samples are retrievable; older
		// positions that have been overwritten read as the (stale) ring
		// contents rather than failing — callers keep the ring large
		// enough (per config) that this never matters in practice.
		out[i] = r.buf[idx]
	}
	return out, true
}

func mod(a, n int64) int64 {
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}

// ReadRecent returns the most recent n samples written, in order, for
// ring-buffer-wrap testing (invariant 5). If fewer than n samples have
// ever been written, it returns all of them.
func (r *ReferenceBuffer) ReadRecent(n int) []int16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int64(n) > r.totalWritten {
		n = int(r.totalWritten)
	}
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		pos := r.totalWritten - int64(n) + int64(i)
		idx := mod(pos, int64(r.capacity))
		out[i] = r.buf[idx]
	}
	return out
}
