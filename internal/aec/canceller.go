package aec

import "github.com/lokutor-ai/lokutor-edge/internal/resample"

// Canceller is the C3 component: it owns a ReferenceBuffer and an Engine
// and exposes the registration lifecycle plus CancelEcho, the per-frame
// entry point used by the capture task. Guard is the secondary
// correlation-based signal the session coordinator consults (not part of
// cancellation itself) to tell likely residual echo apart from genuine
// barge-in speech when deciding whether to arm ducking.
type Canceller struct {
	Ref    *ReferenceBuffer
	Engine Engine
	Guard  *EnergyGuard

	frameSize    int
	delaySamples int
}

// Config mirrors the aec.* config section.
type Config struct {
	Rate                  int
	FrameSize             int
	TapLen                int
	Step                  float64
	BufferCapacitySamples int
	DelaySamples          int
	GuardWindowMs         int
	GuardThreshold        float64
}

// New constructs a Canceller with a fresh ReferenceBuffer, NLMSEngine and
// EnergyGuard.
func New(cfg Config) *Canceller {
	guardWindowMs := cfg.GuardWindowMs
	if guardWindowMs <= 0 {
		guardWindowMs = 1200
	}
	return &Canceller{
		Ref:          NewReferenceBuffer(cfg.BufferCapacitySamples, cfg.Rate),
		Engine:       NewNLMSEngine(cfg.TapLen, cfg.Step),
		Guard:        NewEnergyGuard(guardWindowMs*cfg.Rate/1000, cfg.GuardThreshold),
		frameSize:    cfg.FrameSize,
		delaySamples: cfg.DelaySamples,
	}
}

// CancelEcho implements §4.3's cancel_echo(mic_bytes). If the canceller
// is not active (no timed playback), mic is returned unchanged. Otherwise
// mic is partitioned into frames of FrameSize and each is cancelled
// independently against the time-appropriate reference window; a trailing
// short frame is padded for the engine call and truncated back afterward.
func (c *Canceller) CancelEcho(mic []int16) []int16 {
	if !c.Ref.Active() {
		return append([]int16(nil), mic...)
	}

	out := make([]int16, 0, len(mic))
	for start := 0; start < len(mic); start += c.frameSize {
		end := start + c.frameSize
		if end > len(mic) {
			end = len(mic)
		}
		frame := mic[start:end]
		out = append(out, c.cancelFrame(frame)...)
	}
	return out
}

func (c *Canceller) cancelFrame(frame []int16) []int16 {
	tapLen := c.Engine.TapLen()

	padded := frame
	short := len(frame) < c.frameSize
	if short {
		padded = make([]int16, c.frameSize)
		copy(padded, frame)
	}

	ref, ok := c.Ref.window(c.frameSize, tapLen, c.delaySamples)
	if !ok {
		// Reference exhausted or not yet timed: pass through unmodified.
		return append([]int16(nil), frame...)
	}

	cancelled := func() (res []int16) {
		defer func() {
			if r := recover(); r != nil {
				// Engine failure on a single frame: pass through, never
				// propagate a panic out of the capture path.
				res = append([]int16(nil), padded...)
			}
		}()
		return c.Engine.Cancel(padded, ref)
	}()

	if short {
		return cancelled[:len(frame)]
	}
	return cancelled
}

// BeginRegistration, Register, StartPlayback and EndPlayback forward to
// the owned ReferenceBuffer so callers (the playback dispatcher) only
// ever hold a non-owning ReferenceSink view of the canceller. Register
// also feeds the same (rate-matched) samples to Guard, which keeps only
// its own short rolling window of them; Guard is cleared by EndPlayback,
// not by BeginRegistration or a first chunk.
func (c *Canceller) BeginRegistration() { c.Ref.BeginRegistration() }
func (c *Canceller) Register(samples []int16, srcRate int, isFirstChunk, autoStart bool) {
	c.Ref.Register(samples, srcRate, isFirstChunk, autoStart)
	if c.Guard == nil {
		return
	}
	matched := samples
	if srcRate != 0 && srcRate != c.Ref.Rate() {
		matched = resample.Int16(samples, srcRate, c.Ref.Rate())
	}
	c.Guard.RecordPlayed(matched)
}
func (c *Canceller) StartPlayback() { c.Ref.StartPlayback() }
func (c *Canceller) EndPlayback() {
	c.Ref.EndPlayback()
	if c.Guard != nil {
		c.Guard.Clear()
	}
}

// Correlates reports whether mic strongly correlates with recently
// rendered playback, per Guard's secondary echo-suspicion signal.
func (c *Canceller) Correlates(mic []int16) bool {
	if c.Guard == nil {
		return false
	}
	return c.Guard.Correlates(mic)
}

// ReferenceSink is the non-owning capability the Playback subsystem holds
// to register rendered audio into the AEC without touching cancel_echo.
type ReferenceSink interface {
	BeginRegistration()
	Register(samples []int16, srcRate int, isFirstChunk, autoStart bool)
	StartPlayback()
	EndPlayback()
}
