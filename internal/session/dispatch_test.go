package session

import (
	"sync"
	"testing"

	"github.com/lokutor-ai/lokutor-edge/internal/audioframe"
	"github.com/lokutor-ai/lokutor-edge/internal/logging"
	"github.com/lokutor-ai/lokutor-edge/internal/playback"
	"github.com/lokutor-ai/lokutor-edge/internal/wire"
)

// fakePlayer is a minimal playerAPI recording calls for assertions, used
// in place of a real *playback.Player so dispatch tests don't spawn an
// audio sink subprocess. Mirrors the fakeRef idiom in
// internal/playback/fake_ref_test.go.
type fakePlayer struct {
	mu               sync.Mutex
	blockingCalls    int
	lastBlockingData []byte
}

func (f *fakePlayer) StartPcm(kind string, rate, channels int, tempo float64) (*playback.PcmStream, error) {
	return nil, nil
}

func (f *fakePlayer) PlayWavBlocking(wav []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockingCalls++
	f.lastBlockingData = wav
	return nil
}

func (f *fakePlayer) PlayWavBackground(wav []byte) (*playback.WavHandle, error) {
	return nil, nil
}

func (f *fakePlayer) DuckVolume(percent int) {}

func (f *fakePlayer) RestoreVolume() {}

func TestRecordFirstTTSChunkLogsOnceAndClearsTimestamp(t *testing.T) {
	c := newTestCoordinator(t)
	c.log = logging.NoOpLogger{}

	// Drive the detector through one utterance so last_speech_ended_at is set.
	for i := 0; i < 10; i++ {
		c.sd.Observe(audioframe.Frame{}, true)
	}
	for i := 0; i < c.sd.MaxSilenceChunks(); i++ {
		c.sd.Observe(audioframe.Frame{}, false)
	}
	if c.sd.State().LastSpeechEndedAt.IsZero() {
		t.Fatal("setup: expected an ENDED transition to set LastSpeechEndedAt")
	}

	c.recordFirstTTSChunk()
	if !c.ttsFirstChunkSeen {
		t.Fatal("expected ttsFirstChunkSeen to be set after the first tts chunk")
	}
	if !c.sd.State().LastSpeechEndedAt.IsZero() {
		t.Fatal("expected LastSpeechEndedAt to be cleared once consumed by TTFA logging")
	}

	// A later call must be a no-op: ttsFirstChunkSeen already latched, so a
	// second "first chunk" in the same response never re-logs.
	c.recordFirstTTSChunk()
}

func TestHandleResponseCompleteMarksPendingWithNoLoadingHandle(t *testing.T) {
	c := newTestCoordinator(t)
	c.log = logging.NoOpLogger{}

	c.handleResponseComplete()
	if !c.pendingResponseComplete {
		t.Fatal("expected pendingResponseComplete to be set")
	}
	if h := c.takeLoadingHandle(); h != nil {
		t.Fatal("expected no loading handle when none was ever set")
	}
}

// TestHandleSentenceKeepsPlaybackActiveAcrossMultiSentenceResponse covers
// §4.6's AudioSentence gating: playback_active must survive every
// non-final sentence of a response and clear only on the final sentence,
// and only once ResponseComplete has actually been observed.
func TestHandleSentenceKeepsPlaybackActiveAcrossMultiSentenceResponse(t *testing.T) {
	c := newTestCoordinator(t)
	c.log = logging.NoOpLogger{}
	fp := &fakePlayer{}
	c.player = fp

	sentence := func(index, total int) *wire.ServerMessage {
		return &wire.ServerMessage{
			Type:           wire.TypeAudioSentence,
			SentenceIndex:  index,
			TotalSentences: total,
		}
	}

	// Sentence 1 of 3: starts playback, stays active regardless of any
	// pending-complete state (there is none yet).
	if err := c.handleSentence(sentence(1, 3)); err != nil {
		t.Fatalf("sentence 1: unexpected error: %v", err)
	}
	if !c.isPlaybackActive() {
		t.Fatal("expected playback_active after the first sentence")
	}

	// The server finishes generating before the last sentence finishes
	// playing: ResponseComplete arrives between sentences 2 and 3.
	if err := c.handleSentence(sentence(2, 3)); err != nil {
		t.Fatalf("sentence 2: unexpected error: %v", err)
	}
	if !c.isPlaybackActive() {
		t.Fatal("expected playback_active to remain set after a non-final sentence")
	}

	c.handleResponseComplete()
	if !c.pendingResponseComplete {
		t.Fatal("setup: expected pendingResponseComplete after handleResponseComplete")
	}

	if err := c.handleSentence(sentence(3, 3)); err != nil {
		t.Fatalf("sentence 3: unexpected error: %v", err)
	}
	if c.isPlaybackActive() {
		t.Fatal("expected playback_active cleared after the final sentence once response_complete was observed")
	}
	if c.pendingResponseComplete {
		t.Fatal("expected pendingResponseComplete to be consumed (cleared) once used")
	}

	if fp.blockingCalls != 3 {
		t.Fatalf("expected 3 blocking plays, got %d", fp.blockingCalls)
	}
}

// TestHandleSentenceFinalSentenceWithoutResponseCompleteStaysActive covers
// the other half of the same gate: a final sentence arriving before
// ResponseComplete must not clear playback_active, since the response
// dispatch table only fires that clear when both conditions hold.
func TestHandleSentenceFinalSentenceWithoutResponseCompleteStaysActive(t *testing.T) {
	c := newTestCoordinator(t)
	c.log = logging.NoOpLogger{}
	c.player = &fakePlayer{}

	msg := &wire.ServerMessage{
		Type:           wire.TypeAudioSentence,
		SentenceIndex:  2,
		TotalSentences: 2,
	}
	if err := c.handleSentence(msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.isPlaybackActive() {
		t.Fatal("expected playback_active to remain set: final sentence arrived before response_complete")
	}
}
