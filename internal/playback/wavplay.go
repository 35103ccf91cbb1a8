package playback

import (
	"time"

	"github.com/lokutor-ai/lokutor-edge/internal/aec"
)

// blockingTimeout bounds play_wav; expiry kills the sink and reports but
// does not propagate further (the playback subprocess failure policy).
const blockingTimeout = 30 * time.Second

// startWavSink is a variable so tests can substitute a sink that doesn't
// depend on aplay being installed.
var startWavSink = func() (*sink, error) {
	return startSink(wavSinkCommand())
}

// PlayWav pipes a complete WAV buffer to a sink and blocks until it
// finishes playing or blockingTimeout elapses. Per the two-phase
// registration protocol, the WAV's PCM is registered with the AEC and
// StartPlayback is latched immediately before the bytes are handed to
// the sink — not before, since whole-file playback fills the OS sink's
// buffer instantly and the wall-clock timing must match when sound
// actually begins emerging.
func PlayWav(wav []byte, ref aec.ReferenceSink) error {
	info, err := DecodeWAV(wav)
	if err != nil {
		return err
	}

	if ref != nil {
		frame := decodeInt16LE(info.PCM)
		ref.BeginRegistration()
		ref.Register(frame, info.SampleRate, true, false)
	}

	s, err := startWavSink()
	if err != nil {
		return err
	}

	if ref != nil {
		ref.StartPlayback()
	}

	if err := s.Write(wav); err != nil {
		s.CloseStdin()
		if ref != nil {
			ref.EndPlayback()
		}
		return err
	}
	s.CloseStdin()
	err = s.Wait(blockingTimeout)
	if ref != nil {
		ref.EndPlayback()
	}
	return err
}

// WavHandle controls a backgrounded WavAsync playback.
type WavHandle struct {
	sink *sink
	ref  aec.ReferenceSink
	done chan struct{}
}

// Stop terminates the background playback promptly.
func (h *WavHandle) Stop() {
	h.sink.Kill()
	if h.ref != nil {
		h.ref.EndPlayback()
	}
}

// Done signals when playback has finished (naturally or via Stop).
func (h *WavHandle) Done() <-chan struct{} { return h.done }

// PlayWavAsync is PlayWav run on a background goroutine, returning a
// Handle whose Stop terminates it promptly.
func PlayWavAsync(wav []byte, ref aec.ReferenceSink) (*WavHandle, error) {
	info, err := DecodeWAV(wav)
	if err != nil {
		return nil, err
	}
	if ref != nil {
		frame := decodeInt16LE(info.PCM)
		ref.BeginRegistration()
		ref.Register(frame, info.SampleRate, true, false)
	}

	s, err := startWavSink()
	if err != nil {
		return nil, err
	}
	if ref != nil {
		ref.StartPlayback()
	}

	h := &WavHandle{sink: s, ref: ref, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		if err := s.Write(wav); err == nil {
			s.CloseStdin()
			s.Wait(blockingTimeout)
		}
		if ref != nil {
			ref.EndPlayback()
		}
	}()
	return h, nil
}

func decodeInt16LE(b []byte) []int16 {
	n := len(b) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(uint16(b[2*i]) | uint16(b[2*i+1])<<8)
	}
	return out
}
