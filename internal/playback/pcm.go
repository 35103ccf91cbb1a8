package playback

import (
	"time"

	"github.com/lokutor-ai/lokutor-edge/internal/aec"
	"github.com/lokutor-ai/lokutor-edge/internal/audioframe"
)

const (
	queueCapacity = 128
	enqueueWait   = 250 * time.Millisecond
)

// startPcmSink is a variable so tests can substitute a sink that doesn't
// depend on aplay/ffmpeg being installed.
var startPcmSink = func(rate, channels int, tempo float64) (*sink, error) {
	return startSink(pcmSinkCommand(rate, channels, tempo))
}

// PcmStream is a long-running audio sink fed raw PCM chunks through a
// bounded, back-pressured queue. Kind is an advisory label ("loading" or
// "tts") carried for logging/metrics purposes only.
type PcmStream struct {
	Kind string

	sink  *sink
	queue chan []byte
	ref   aec.ReferenceSink
	rate  int

	firstChunk bool
	done       chan struct{}
}

// StartStream launches a PCM sink at the given format. ref is the
// ReferenceBuffer's registration capability; every chunk written is also
// registered with it so the AEC has an accurate reference signal.
func StartStream(kind string, rate, channels int, tempo float64, ref aec.ReferenceSink) (*PcmStream, error) {
	s, err := startPcmSink(rate, channels, tempo)
	if err != nil {
		return nil, err
	}
	p := &PcmStream{
		Kind:       kind,
		sink:       s,
		queue:      make(chan []byte, queueCapacity),
		ref:        ref,
		rate:       rate,
		firstChunk: true,
		done:       make(chan struct{}),
	}
	go p.writerLoop()
	return p, nil
}

func (p *PcmStream) writerLoop() {
	defer close(p.done)
	for {
		select {
		case chunk := <-p.queue:
			if chunk == nil {
				p.sink.CloseStdin()
				return
			}
			p.sink.Write(chunk)
		case <-p.sink.Done():
			// Killed out from under us (Stop, or the subprocess died on its
			// own): stop servicing the queue.
			return
		}
	}
}

// WriteStream enqueues a chunk of raw PCM, blocking at most enqueueWait
// for queue space. Returns false if the chunk was dropped. The chunk is
// registered with the AEC reference buffer before being queued, auto-
// starting playback timing on the first chunk.
func (p *PcmStream) WriteStream(chunk []byte) bool {
	if p.ref != nil {
		frame := audioframe.FrameFromBytes(chunk, p.rate)
		p.ref.Register(frame.Samples, p.rate, p.firstChunk, true)
		p.firstChunk = false
	}

	select {
	case p.queue <- chunk:
		return true
	case <-time.After(enqueueWait):
		return false
	}
}

// EndStream submits a sentinel and closes the sink's stdin, but does not
// abandon the process reference — Stop can still kill a stream that is
// draining.
func (p *PcmStream) EndStream() {
	select {
	case p.queue <- nil:
	default:
		// Queue is saturated; the writer will reach the sentinel once it
		// drains, or Stop() will terminate the sink outright.
		go func() { p.queue <- nil }()
	}
	if p.ref != nil {
		p.ref.EndPlayback()
	}
}

// Stop kills the sink immediately, terminating even a draining stream.
func (p *PcmStream) Stop() {
	p.sink.Kill()
	if p.ref != nil {
		p.ref.EndPlayback()
	}
}

// Done reports when the sink's writer goroutine has exited.
func (p *PcmStream) Done() <-chan struct{} { return p.done }
