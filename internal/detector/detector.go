// Package detector implements the two-state speech detector (C4): it
// turns a stream of (frame, is_speech) observations into STARTED,
// CONTINUING, and ENDED events, with pre-roll flush on speech onset and a
// grace period before declaring end-of-utterance. The hysteresis shape is
// inherited from the consecutive-frame confirmation and silence-streak
// counting idiom used for VAD turn-taking elsewhere in this codebase, but
// is restructured here into the exact (mode, is_speech) state machine the
// pipeline depends on, kept separate from VAD probability classification.
package detector

import (
	"time"

	"github.com/lokutor-ai/lokutor-edge/internal/audioframe"
)

type Mode int

const (
	IDLE Mode = iota
	SPEAKING
)

type EventType int

const (
	STARTED EventType = iota
	CONTINUING
	ENDED
)

// Event is emitted on every Observe call once the detector has a mode
// transition or in-speech frame to report.
type Event struct {
	Type      EventType
	Chunks    []audioframe.Frame // populated for STARTED and CONTINUING
	Duration  time.Duration      // populated for ENDED
	ChunksSent int               // populated for ENDED
}

// State mirrors the spec's SpeechDetectorState for introspection/testing.
type State struct {
	Mode            Mode
	SilenceStreak   int
	ChunksSent      int
	SpeechStartedAt time.Time
	LastSpeechEndedAt time.Time
}

// Detector is the C4 state machine. Not safe for concurrent use; the
// capture task is the sole caller per the coordinator's single-threaded
// VAD/detector discipline.
type Detector struct {
	preRoll          *audioframe.PreRollBuffer
	preRollChunks    int
	maxSilenceChunks int

	state State

	now func() time.Time
}

// Params derives pre_roll_chunks / max_silence_chunks from frame/config
// durations per §4.4's formulas.
type Params struct {
	ChunkMs           float64
	PreBufferMs       int
	SilenceDurationMs int
}

func New(p Params) *Detector {
	preRollChunks := roundDiv(p.PreBufferMs, p.ChunkMs)
	maxSilenceChunks := roundDiv(p.SilenceDurationMs, p.ChunkMs)
	return &Detector{
		preRoll:          audioframe.NewPreRollBuffer(preRollChunks),
		preRollChunks:    preRollChunks,
		maxSilenceChunks: maxSilenceChunks,
		now:              time.Now,
	}
}

func roundDiv(ms int, chunkMs float64) int {
	if chunkMs <= 0 {
		return 1
	}
	n := int(float64(ms)/chunkMs + 0.5)
	if n < 1 {
		return 1
	}
	return n
}

// Observe feeds one post-VAD frame and its speech classification into the
// state machine, returning the event produced, if any.
func (d *Detector) Observe(frame audioframe.Frame, isSpeech bool) *Event {
	switch d.state.Mode {
	case IDLE:
		if !isSpeech {
			d.preRoll.Append(frame)
			return nil
		}
		chunks := d.preRoll.Flush()
		chunks = append(chunks, frame)
		d.state.Mode = SPEAKING
		d.state.SilenceStreak = 0
		d.state.ChunksSent = len(chunks)
		d.state.SpeechStartedAt = d.now()
		return &Event{Type: STARTED, Chunks: chunks}

	case SPEAKING:
		if isSpeech {
			d.state.SilenceStreak = 0
			d.state.ChunksSent++
			return &Event{Type: CONTINUING, Chunks: []audioframe.Frame{frame}}
		}
		d.state.SilenceStreak++
		if d.state.SilenceStreak < d.maxSilenceChunks {
			d.state.ChunksSent++
			return &Event{Type: CONTINUING, Chunks: []audioframe.Frame{frame}}
		}
		d.state.LastSpeechEndedAt = d.now()
		ev := &Event{
			Type:       ENDED,
			Duration:   d.state.LastSpeechEndedAt.Sub(d.state.SpeechStartedAt),
			ChunksSent: d.state.ChunksSent,
		}
		d.resetToIdle()
		return ev
	}
	return nil
}

// resetToIdle returns to IDLE with silence_streak/chunks_sent cleared,
// but preserves last_speech_ended_at: it names the most recent
// utterance's end, which callers (TTFA logging) still need to reference
// after the state machine has moved on, not just within the ENDED event.
func (d *Detector) resetToIdle() {
	d.state = State{Mode: IDLE, LastSpeechEndedAt: d.state.LastSpeechEndedAt}
}

// Reset drops all state and buffers, used after disconnect so a new
// session starts with a state equal to a freshly constructed detector.
func (d *Detector) Reset() {
	d.preRoll.Reset()
	d.state = State{Mode: IDLE}
}

// State returns a copy of the current detector state, for tests/logging.
func (d *Detector) State() State { return d.state }

// ClearLastSpeechEndedAt zeroes the recorded end-of-utterance timestamp
// once a caller (TTFA logging) has consumed it, so a later response
// doesn't report a stale duration against an utterance that already had
// its turn.
func (d *Detector) ClearLastSpeechEndedAt() {
	d.state.LastSpeechEndedAt = time.Time{}
}

// PreRollChunks reports the configured pre-roll window, for tests.
func (d *Detector) PreRollChunks() int { return d.preRollChunks }

// MaxSilenceChunks reports the configured silence hangover, for tests.
func (d *Detector) MaxSilenceChunks() int { return d.maxSilenceChunks }
