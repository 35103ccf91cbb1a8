package playback

import (
	"os/exec"
	"strconv"
	"sync"

	"github.com/lokutor-ai/lokutor-edge/internal/aec"
)

// active is satisfied by both PcmStream and WavHandle, letting Player hold
// whichever of those two primitives is currently running behind one field.
// A blocking PlayWavBlocking call is never held here, so StopCurrent does
// not stop it.
type active interface {
	Stop()
	Done() <-chan struct{}
}

// Player is the Audio I/O playback orchestrator: it owns "what is
// currently playing" for the whole process and implements stop_current's
// preemption guarantee — a new stream never starts until the old one has
// been told to stop, so at most one subprocess sink ever has stdin open.
type Player struct {
	mu      sync.Mutex
	current active

	ref aec.ReferenceSink

	duckMu   sync.Mutex
	ducked   bool
}

// New builds a Player bound to the AEC's reference sink capability.
func New(ref aec.ReferenceSink) *Player {
	return &Player{ref: ref}
}

// StopCurrent preempts whatever is playing, if anything, and waits for the
// subprocess to be reaped before returning. Safe to call when nothing is
// playing.
func (p *Player) StopCurrent() {
	p.mu.Lock()
	cur := p.current
	p.current = nil
	p.mu.Unlock()

	if cur == nil {
		return
	}
	cur.Stop()
	<-cur.Done()
}

// StartPcm preempts any current stream and starts a new PcmStream.
func (p *Player) StartPcm(kind string, rate, channels int, tempo float64) (*PcmStream, error) {
	p.StopCurrent()
	s, err := StartStream(kind, rate, channels, tempo, p.ref)
	if err != nil {
		return nil, err
	}
	p.setCurrent(s)
	return s, nil
}

// PlayWavBlocking preempts any current stream and blocks until the WAV
// finishes or times out.
func (p *Player) PlayWavBlocking(wav []byte) error {
	p.StopCurrent()
	return PlayWav(wav, p.ref)
}

// PlayWavBackground preempts any current stream and starts a cancellable
// background WAV playback.
func (p *Player) PlayWavBackground(wav []byte) (*WavHandle, error) {
	p.StopCurrent()
	h, err := PlayWavAsync(wav, p.ref)
	if err != nil {
		return nil, err
	}
	p.setCurrent(h)
	return h, nil
}

func (p *Player) setCurrent(a active) {
	p.mu.Lock()
	p.current = a
	p.mu.Unlock()
}

// DuckVolume and RestoreVolume are best-effort side channels: failures are
// swallowed since ducking is a nicety, not a correctness requirement, and
// neither amixer nor pactl may exist on a given host.
func (p *Player) DuckVolume(percent int) {
	p.duckMu.Lock()
	defer p.duckMu.Unlock()
	if p.ducked {
		return
	}
	p.ducked = true
	runBestEffort("amixer", "-q", "sset", "Master", percentArg(percent))
	runBestEffort("pactl", "set-sink-volume", "@DEFAULT_SINK@", percentArg(percent))
}

func (p *Player) RestoreVolume() {
	p.duckMu.Lock()
	defer p.duckMu.Unlock()
	if !p.ducked {
		return
	}
	p.ducked = false
	runBestEffort("amixer", "-q", "sset", "Master", "100%")
	runBestEffort("pactl", "set-sink-volume", "@DEFAULT_SINK@", "100%")
}

func percentArg(percent int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return strconv.Itoa(percent) + "%"
}

func runBestEffort(name string, args ...string) {
	cmd := exec.Command(name, args...)
	_ = cmd.Run()
}
