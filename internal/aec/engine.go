package aec

// Engine is the fixed-frame-size cancellation algorithm plugged into the
// ReferenceBuffer. Per spec, the canceller "delegates the per-frame
// cancellation to an external fixed-size-frame echo canceller" rather
// than implementing AEC from first principles; Engine is that seam.
type Engine interface {
	// Cancel returns mic with the estimated echo removed. ref must be
	// exactly len(mic)+TapLen()-1 samples, with ref[TapLen()-1+i] time-
	// aligned to mic[i].
	Cancel(mic, ref []int16) []int16
	TapLen() int
}

// NLMSEngine is a Normalized Least Mean Squares adaptive filter, the
// standard lightweight choice for acoustic echo cancellation when no
// hardware loopback reference is available.
type NLMSEngine struct {
	weights []float64
	tapLen  int
	step    float64
}

// NewNLMSEngine builds a filter with the given tap count and step size.
// tapLen is typically derived from aec.filter_length_ms * rate / 1000;
// step (mu) should be in (0, 2), smaller is more stable but slower to
// converge.
func NewNLMSEngine(tapLen int, step float64) *NLMSEngine {
	if tapLen < 1 {
		tapLen = 1
	}
	if step <= 0 {
		step = 0.1
	}
	return &NLMSEngine{
		weights: make([]float64, tapLen),
		tapLen:  tapLen,
		step:    step,
	}
}

func (n *NLMSEngine) TapLen() int { return n.tapLen }

// Cancel runs a sample-by-sample NLMS update, mirroring the adaptive
// filter discipline: output[i] = near_end[i] - sum(w[k]*ref[i+tapLen-1-k]),
// with a normalized step proportional to e / (||x||^2 + eps).
func (n *NLMSEngine) Cancel(mic, ref []int16) []int16 {
	out := make([]int16, len(mic))
	for i := range mic {
		refBase := i + n.tapLen - 1

		var y, powerSum float64
		for k := 0; k < n.tapLen; k++ {
			x := float64(ref[refBase-k])
			y += n.weights[k] * x
			powerSum += x * x
		}

		e := float64(mic[i]) - y

		if powerSum > 1e-10 {
			step := n.step * e / powerSum
			for k := 0; k < n.tapLen; k++ {
				n.weights[k] += step * float64(ref[refBase-k])
			}
		}

		out[i] = clipInt16(e)
	}
	return out
}

// Reset zeroes the adaptive filter weights so the filter adapts from
// scratch. Nothing in this package calls it; the weights otherwise carry
// over across playbacks.
func (n *NLMSEngine) Reset() {
	for i := range n.weights {
		n.weights[i] = 0
	}
}

func clipInt16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
