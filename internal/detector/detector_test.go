package detector

import (
	"testing"

	"github.com/lokutor-ai/lokutor-edge/internal/audioframe"
)

func frame(tag int16) audioframe.Frame {
	return audioframe.Frame{Samples: []int16{tag}, SampleRate: 16000}
}

func newTestDetector() *Detector {
	// chunk_ms=30, pre_buffer_ms=300 -> pre_roll_chunks=10
	// silence_duration_ms=900 -> max_silence_chunks=30
	return New(Params{ChunkMs: 30, PreBufferMs: 300, SilenceDurationMs: 900})
}

// S1 — quiet boot: idle frames never emit and stay bounded.
func TestQuietBootStaysIdle(t *testing.T) {
	d := newTestDetector()
	for i := int16(0); i < 100; i++ {
		if ev := d.Observe(frame(i), false); ev != nil {
			t.Fatalf("expected no event while idle, got %+v", ev)
		}
	}
	if d.State().Mode != IDLE {
		t.Errorf("expected IDLE mode, got %v", d.State().Mode)
	}
	if d.preRoll.Len() != d.PreRollChunks() {
		t.Errorf("expected pre-roll bounded to %d, got %d", d.PreRollChunks(), d.preRoll.Len())
	}
}

// Invariant 1 — pre-roll flush ordering.
func TestPreRollFlushOrdering(t *testing.T) {
	d := newTestDetector()
	for i := int16(0); i < 20; i++ {
		d.Observe(frame(i), false)
	}
	ev := d.Observe(frame(100), true)
	if ev == nil || ev.Type != STARTED {
		t.Fatalf("expected STARTED event, got %+v", ev)
	}
	wantLen := d.PreRollChunks() + 1
	if len(ev.Chunks) != wantLen {
		t.Fatalf("expected %d chunks, got %d", wantLen, len(ev.Chunks))
	}
	// last 10 idle frames were tags 10..19, then triggering frame 100.
	for i := 0; i < 10; i++ {
		want := int16(10 + i)
		if ev.Chunks[i].Samples[0] != want {
			t.Errorf("chunk %d: expected tag %d, got %d", i, want, ev.Chunks[i].Samples[0])
		}
	}
	if ev.Chunks[10].Samples[0] != 100 {
		t.Errorf("expected triggering frame last, got %d", ev.Chunks[10].Samples[0])
	}
}

// S2 — single utterance.
func TestSingleUtterance(t *testing.T) {
	d := newTestDetector()

	// S2 runs after S1: a quiet boot fills the pre-roll first.
	for i := int16(0); i < 100; i++ {
		d.Observe(frame(i), false)
	}

	started := d.Observe(frame(0), true)
	if started == nil || started.Type != STARTED {
		t.Fatalf("expected STARTED, got %+v", started)
	}
	if len(started.Chunks) != d.PreRollChunks()+1 {
		t.Fatalf("expected %d chunks in STARTED, got %d", d.PreRollChunks()+1, len(started.Chunks))
	}

	continuing := 0
	for i := 0; i < 19; i++ {
		ev := d.Observe(frame(1), true)
		if ev == nil || ev.Type != CONTINUING {
			t.Fatalf("expected CONTINUING at iteration %d, got %+v", i, ev)
		}
		continuing++
	}
	if continuing != 19 {
		t.Fatalf("expected 19 continuing events, got %d", continuing)
	}

	grace := 0
	var ended *Event
	for i := 0; i < 35; i++ {
		ev := d.Observe(frame(0), false)
		if ev.Type == CONTINUING {
			grace++
			continue
		}
		ended = ev
		break
	}
	if grace != 29 {
		t.Fatalf("expected 29 grace CONTINUING events before ENDED, got %d", grace)
	}
	if ended == nil || ended.Type != ENDED {
		t.Fatalf("expected ENDED event, got %+v", ended)
	}
	if d.State().Mode != IDLE {
		t.Errorf("expected detector reset to IDLE after ENDED")
	}
}

func TestResetMatchesFreshDetector(t *testing.T) {
	d := newTestDetector()
	for i := int16(0); i < 50; i++ {
		d.Observe(frame(i), i%2 == 0)
	}
	d.Reset()

	fresh := newTestDetector()
	if d.State().Mode != fresh.State().Mode {
		t.Errorf("expected reset mode to equal fresh detector mode")
	}
	if d.State().SilenceStreak != fresh.State().SilenceStreak {
		t.Errorf("expected reset silence streak to equal fresh detector")
	}
	if d.preRoll.Len() != 0 {
		t.Errorf("expected pre-roll cleared on reset, got len %d", d.preRoll.Len())
	}
}
