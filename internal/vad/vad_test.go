package vad

import (
	"testing"

	"github.com/streamer45/silero-vad-go/speech"
)

// fakeModel lets tests drive Probability without loading an ONNX model.
type fakeModel struct {
	speechAtWindow map[int]bool // keyed by window ordinal (0 = first window scanned)
	calls          int
}

func (f *fakeModel) Detect(samples []float32) ([]speech.Segment, error) {
	f.calls++
	if f.speechAtWindow[f.calls-1] {
		return []speech.Segment{{SpeechStartAt: 0, SpeechEndAt: 1}}, nil
	}
	return nil, nil
}
func (f *fakeModel) Reset() error   { return nil }
func (f *fakeModel) Destroy() error { return nil }

func TestProbabilityShortFrameReturnsZero(t *testing.T) {
	d := NewWithModel(&fakeModel{})
	p, err := d.Probability(make([]float32, WindowSamples-1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != 0 {
		t.Errorf("expected 0 for short frame, got %v", p)
	}
}

func TestProbabilityDetectsSpeechInAnyWindow(t *testing.T) {
	fm := &fakeModel{speechAtWindow: map[int]bool{1: true}}
	d := NewWithModel(fm)
	frame := make([]float32, WindowSamples*2)
	p, err := d.Probability(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != 1.0 {
		t.Errorf("expected probability 1.0, got %v", p)
	}
}

func TestProbabilityEarlyExit(t *testing.T) {
	fm := &fakeModel{speechAtWindow: map[int]bool{0: true}}
	d := NewWithModel(fm)
	frame := make([]float32, WindowSamples*10)
	_, err := d.Probability(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fm.calls != 1 {
		t.Errorf("expected early exit after 1 call, got %d calls", fm.calls)
	}
}

func TestProbabilityNoSpeech(t *testing.T) {
	d := NewWithModel(&fakeModel{})
	frame := make([]float32, WindowSamples*3)
	p, err := d.Probability(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != 0 {
		t.Errorf("expected 0 probability, got %v", p)
	}
}
