// Package vad wraps the Silero neural voice-activity model behind the
// exact-512-sample, 50%-overlap windowing contract the rest of the
// pipeline depends on. The underlying model only classifies fixed-size
// windows; arbitrary-length scanning and the early-exit policy live here.
package vad

import (
	"fmt"

	"github.com/streamer45/silero-vad-go/speech"
)

const (
	// WindowSamples is the model's required inference window at 16kHz.
	WindowSamples = 512
	// EarlyExitThreshold stops scanning a frame once any window exceeds it.
	EarlyExitThreshold = 0.9
)

// Model is the minimal surface this package needs from a Silero detector,
// narrowed so tests can substitute a fake without loading an ONNX model.
type Model interface {
	// Detect classifies exactly WindowSamples of 16kHz float32 audio,
	// returning any speech segments found inside the window. A non-empty
	// result is treated as "this window is speech" (probability 1.0);
	// an empty result is treated as non-speech (probability 0.0). The
	// upstream detector does not expose a raw per-window probability, so
	// this is the closest faithful signal obtainable from it.
	Detect(samples []float32) ([]speech.Segment, error)
	Reset() error
	Destroy() error
}

// Detector manages windowed scanning over arbitrarily sized 16kHz frames.
type Detector struct {
	model Model
}

// Config mirrors the parameters the underlying Silero detector needs.
type Config struct {
	ModelPath            string
	Threshold            float32
	MinSilenceDurationMs int
	SpeechPadMs          int
}

// New constructs a Detector backed by a real Silero ONNX model.
func New(cfg Config) (*Detector, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("vad: model path is required")
	}
	if cfg.MinSilenceDurationMs <= 0 {
		cfg.MinSilenceDurationMs = 1200
	}
	if cfg.SpeechPadMs <= 0 {
		cfg.SpeechPadMs = 100
	}
	d, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:            cfg.ModelPath,
		SampleRate:           16000,
		Threshold:            cfg.Threshold,
		MinSilenceDurationMs: cfg.MinSilenceDurationMs,
		SpeechPadMs:          cfg.SpeechPadMs,
	})
	if err != nil {
		return nil, fmt.Errorf("vad: create detector: %w", err)
	}
	return &Detector{model: d}, nil
}

// NewWithModel builds a Detector over a caller-supplied Model, for tests.
func NewWithModel(m Model) *Detector {
	return &Detector{model: m}
}

// Probability scans a 16kHz float32 frame of arbitrary length as a set of
// 50%-overlapping WindowSamples-length windows and returns the maximum
// speech probability observed, exiting early once a window exceeds
// EarlyExitThreshold. A frame shorter than one window returns 0.
func (d *Detector) Probability(frame []float32) (float64, error) {
	if len(frame) < WindowSamples {
		return 0, nil
	}

	hop := WindowSamples / 2
	max := 0.0
	for start := 0; start+WindowSamples <= len(frame); start += hop {
		window := frame[start : start+WindowSamples]
		segs, err := d.model.Detect(window)
		if err != nil {
			return 0, fmt.Errorf("vad: inference failed: %w", err)
		}
		p := 0.0
		if len(segs) > 0 {
			p = 1.0
		}
		if p > max {
			max = p
		}
		if max > EarlyExitThreshold {
			break
		}
	}
	return max, nil
}

// Reset clears the underlying model's internal state between sessions.
func (d *Detector) Reset() error {
	return d.model.Reset()
}

// Close releases the underlying model's resources.
func (d *Detector) Close() error {
	return d.model.Destroy()
}
