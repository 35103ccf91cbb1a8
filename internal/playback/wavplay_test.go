package playback

import (
	"testing"
	"time"
)

func withFakeWavSink(t *testing.T) {
	t.Helper()
	orig := startWavSink
	startWavSink = func() (*sink, error) {
		return startSink("cat >/dev/null")
	}
	t.Cleanup(func() { startWavSink = orig })
}

func testWav(t *testing.T) []byte {
	t.Helper()
	pcm := make([]byte, 320) // 160 int16 samples
	return EncodeWAV(pcm, 16000, 1)
}

func TestPlayWavRegistersStartsAndEndsPlayback(t *testing.T) {
	withFakeWavSink(t)
	ref := &fakeRef{}

	if err := PlayWav(testWav(t), ref); err != nil {
		t.Fatalf("PlayWav: %v", err)
	}

	begin, register, start, end := ref.snapshot()
	if begin != 1 {
		t.Errorf("expected 1 BeginRegistration, got %d", begin)
	}
	if register != 1 {
		t.Errorf("expected 1 Register call, got %d", register)
	}
	if start != 1 {
		t.Errorf("expected 1 StartPlayback call, got %d", start)
	}
	if end != 1 {
		t.Errorf("expected 1 EndPlayback call, got %d", end)
	}
	if len(ref.lastSamples) != 160 {
		t.Errorf("expected 160 registered samples, got %d", len(ref.lastSamples))
	}
}

func TestPlayWavRejectsMalformedBuffer(t *testing.T) {
	withFakeWavSink(t)
	if err := PlayWav([]byte("not a wav"), nil); err == nil {
		t.Fatal("expected error for malformed WAV")
	}
}

func TestPlayWavAsyncStopTerminatesPromptly(t *testing.T) {
	orig := startWavSink
	startWavSink = func() (*sink, error) {
		return startSink("sleep 5")
	}
	t.Cleanup(func() { startWavSink = orig })

	ref := &fakeRef{}
	h, err := PlayWavAsync(testWav(t), ref)
	if err != nil {
		t.Fatalf("PlayWavAsync: %v", err)
	}

	h.Stop()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("expected async playback to finish promptly after Stop")
	}

	_, _, _, end := ref.snapshot()
	if end < 1 {
		t.Errorf("expected EndPlayback called at least once, got %d", end)
	}
}
