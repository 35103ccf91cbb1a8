package aec

import "math"

// EnergyGuard is a secondary, optional correlation-based signal used by
// the session coordinator's playback-gating policy to decide when to arm
// volume ducking — not part of the cancellation path itself, which is
// entirely the ReferenceBuffer + Engine above. It tracks a short rolling
// history of recently rendered audio and answers "does this capture
// frame correlate with something we just played?"
type EnergyGuard struct {
	recent   []int16
	maxLen   int
	threshold float64
}

// NewEnergyGuard builds a guard retaining maxLenSamples of recent
// playback history (typically ~1.2s at the AEC rate).
func NewEnergyGuard(maxLenSamples int, threshold float64) *EnergyGuard {
	if threshold <= 0 {
		threshold = 0.55
	}
	return &EnergyGuard{maxLen: maxLenSamples, threshold: threshold}
}

// RecordPlayed appends chunk to the rolling history, trimming the oldest
// samples once the history exceeds maxLen.
func (g *EnergyGuard) RecordPlayed(chunk []int16) {
	g.recent = append(g.recent, chunk...)
	if len(g.recent) > g.maxLen {
		g.recent = g.recent[len(g.recent)-g.maxLen:]
	}
}

// Clear drops all recorded playback history, used on interruption.
func (g *EnergyGuard) Clear() {
	g.recent = g.recent[:0]
}

// Correlates reports whether input correlates strongly enough with the
// tail of recently played audio to be suspected echo rather than fresh
// speech.
func (g *EnergyGuard) Correlates(input []int16) bool {
	if len(g.recent) == 0 || len(input) == 0 {
		return false
	}
	return g.correlation(input) > g.threshold
}

// correlation computes normalized cross-correlation between input and the
// tail of the recorded playback history matching input's length.
func (g *EnergyGuard) correlation(input []int16) float64 {
	refLen := len(input)
	if refLen > len(g.recent) {
		refLen = len(g.recent)
	}
	ref := g.recent[len(g.recent)-refLen:]
	in := input[len(input)-refLen:]

	var dot, refEnergy, inEnergy float64
	for i := 0; i < refLen; i++ {
		r := float64(ref[i])
		x := float64(in[i])
		dot += r * x
		refEnergy += r * r
		inEnergy += x * x
	}
	denom := math.Sqrt(refEnergy * inEnergy)
	if denom < 1e-9 {
		return 0
	}
	return math.Abs(dot / denom)
}
