// Package session implements the Session Coordinator (C5): the
// reconnecting websocket client that ties capture, the echo canceller,
// the speech detector, playback, and the prompt cache together into the
// two concurrent per-connection tasks described in §4.5.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lokutor-ai/lokutor-edge/internal/aec"
	"github.com/lokutor-ai/lokutor-edge/internal/audioframe"
	"github.com/lokutor-ai/lokutor-edge/internal/cache"
	"github.com/lokutor-ai/lokutor-edge/internal/capture"
	"github.com/lokutor-ai/lokutor-edge/internal/config"
	"github.com/lokutor-ai/lokutor-edge/internal/detector"
	"github.com/lokutor-ai/lokutor-edge/internal/logging"
	"github.com/lokutor-ai/lokutor-edge/internal/playback"
	"github.com/lokutor-ai/lokutor-edge/internal/resample"
	"github.com/lokutor-ai/lokutor-edge/internal/vad"
	"github.com/lokutor-ai/lokutor-edge/internal/wire"
)

// playerAPI is the subset of *playback.Player the coordinator drives. As
// an interface (rather than the concrete type) it lets dispatch tests
// substitute a fake that doesn't spawn a real audio sink subprocess.
type playerAPI interface {
	StartPcm(kind string, rate, channels int, tempo float64) (*playback.PcmStream, error)
	PlayWavBlocking(wav []byte) error
	PlayWavBackground(wav []byte) (*playback.WavHandle, error)
	DuckVolume(percent int)
	RestoreVolume()
}

// Coordinator owns every long-lived collaborator for the process and
// drives the reconnect loop. Capture, the canceller, and the speech
// detector live for the whole process; the websocket connection and its
// two per-session goroutines are recreated on every (re)connect.
type Coordinator struct {
	cfg    *config.Config
	log    logging.Logger
	cap    *capture.Stream
	canc   *aec.Canceller
	vadM   *vad.Detector
	sd     *detector.Detector
	player playerAPI
	cacheStore *cache.Store

	conn *Conn
	ctx  context.Context // valid only for the duration of one runSession call

	streamMu     sync.Mutex
	activeStrm   *playback.PcmStream

	playbackMu     sync.Mutex
	playbackActive bool
	duckArmed      int

	// triggerStreak/restoreArmed implement §4.5's AEC barge-in ducking
	// policy: duck only once speech has persisted for >=3 consecutive
	// frames, restore only after >=5 consecutive non-trigger frames, so a
	// single noisy frame can't flap the side channel.
	triggerStreak   int
	restoreArmed    int
	duckedByTrigger bool

	// Per-session message-dispatch state (§4.5 "Session state reset"):
	// pendingResponseComplete and ttsFirstChunkSeen, plus the handle for
	// any async (looped) cache playback currently driving playback_active
	// with no natural "stream end" message to pair against.
	pendingResponseComplete bool
	ttsFirstChunkSeen       bool
	loadingHandle           *playback.WavHandle
}

const (
	duckTriggerFrames  = 3
	duckRestoreFrames  = 5
)

// Deps bundles every collaborator the coordinator needs, each already
// constructed and owned for the process lifetime.
type Deps struct {
	Config     *config.Config
	Logger     logging.Logger
	Capture    *capture.Stream
	Canceller  *aec.Canceller
	VAD        *vad.Detector
	Detector   *detector.Detector
	Player     playerAPI
	CacheStore *cache.Store
}

func New(d Deps) *Coordinator {
	return &Coordinator{
		cfg:        d.Config,
		log:        d.Logger,
		cap:        d.Capture,
		canc:       d.Canceller,
		vadM:       d.VAD,
		sd:         d.Detector,
		player:     d.Player,
		cacheStore: d.CacheStore,
	}
}

// Run drives connect -> run session -> classify error -> delay -> retry
// until ctx is cancelled or a fatal error (capture.ErrAudioStall) occurs.
func (c *Coordinator) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, err := Dial(ctx, c.cfg.Server.Host, c.cfg.Server.Port)
		if err != nil {
			c.log.Warn("connect failed", "err", err)
			if !c.sleepBeforeRetry(ctx) {
				return ctx.Err()
			}
			continue
		}

		c.resetSessionState()
		err = c.runSession(ctx, conn)
		conn.Close()

		if errors.Is(err, capture.ErrAudioStall) {
			c.log.Error("audio stall, exiting for supervisor restart", "err", err)
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("session ended, reconnecting", "err", err)
		if !c.sleepBeforeRetry(ctx) {
			return ctx.Err()
		}
	}
}

func (c *Coordinator) sleepBeforeRetry(ctx context.Context) bool {
	select {
	case <-time.After(c.cfg.Network.ReconnectDelay()):
		return true
	case <-ctx.Done():
		return false
	}
}

// resetSessionState restores every per-session collaborator to the state
// of a freshly constructed one, per §4.5's explicit reset-ordering
// requirement: detector and AEC first, then playback gating flags.
func (c *Coordinator) resetSessionState() {
	c.sd.Reset()
	c.canc.EndPlayback()
	c.setActiveStream(nil)
	if h := c.takeLoadingHandle(); h != nil {
		h.Stop()
	}
	c.playbackMu.Lock()
	c.playbackActive = false
	c.duckArmed = 0
	c.triggerStreak = 0
	c.restoreArmed = 0
	c.duckedByTrigger = false
	c.pendingResponseComplete = false
	c.ttsFirstChunkSeen = false
	c.playbackMu.Unlock()
}

func (c *Coordinator) setLoadingHandle(h *playback.WavHandle) {
	c.playbackMu.Lock()
	c.loadingHandle = h
	c.playbackMu.Unlock()
}

// takeLoadingHandle clears and returns the current async loading handle,
// if one is set; the caller is responsible for stopping it.
func (c *Coordinator) takeLoadingHandle() *playback.WavHandle {
	c.playbackMu.Lock()
	h := c.loadingHandle
	c.loadingHandle = nil
	c.playbackMu.Unlock()
	return h
}

// runSession runs the two concurrent per-connection tasks until either
// exits, then cancels the other and returns the first error observed.
func (c *Coordinator) runSession(ctx context.Context, conn *Conn) error {
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.conn = conn
	c.ctx = sessCtx
	defer func() { c.conn = nil; c.ctx = nil }()

	errs := make(chan error, 2)
	go func() { errs <- c.captureLoop(sessCtx, conn) }()
	go func() { errs <- c.receiveLoop(sessCtx, conn) }()

	first := <-errs
	cancel()
	<-errs
	return first
}

// noAECPauseInterval is the micro-sleep capture yields on while
// playback_active is set and echo cancellation is disabled — the device
// read is skipped entirely for this span rather than merely raising the
// VAD threshold, per §4.5/§5's no-AEC pause policy.
const noAECPauseInterval = 50 * time.Millisecond

// captureLoop reads capture frames, cancels echo, classifies speech, and
// forwards detector events to the server as audio_chunk/end_speech
// messages. Without AEC, capture pauses entirely while playback_active is
// set instead of reading and classifying speaker bleed.
func (c *Coordinator) captureLoop(ctx context.Context, conn *Conn) error {
	for {
		if !c.cfg.Audio.EchoCancellation && c.isPlaybackActive() {
			select {
			case <-time.After(noAECPauseInterval):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		readCtx, cancel := context.WithTimeout(ctx, c.cfg.Audio.StallTimeout())
		raw, err := c.cap.Read(readCtx)
		cancel()
		if err != nil {
			return err
		}

		frame := audioframe.FrameFromBytes(raw, c.cfg.Audio.CaptureRate)
		preCancel := frame.Samples
		if c.cfg.Audio.EchoCancellation {
			frame = audioframe.Frame{
				Samples:    c.canc.CancelEcho(frame.Samples),
				SampleRate: frame.SampleRate,
			}
		}

		target := resample.Int16(frame.Samples, c.cfg.Audio.CaptureRate, c.cfg.Audio.TargetRate)
		targetFrame := audioframe.Frame{Samples: target, SampleRate: c.cfg.Audio.TargetRate}

		prob, err := c.probabilityFor(target)
		if err != nil {
			c.log.Warn("vad inference failed, treating frame as silence", "err", err)
			prob = 0
		}
		isSpeech := prob >= c.effectiveThreshold()
		c.evaluateDuckTrigger(isSpeech, preCancel)

		ev := c.sd.Observe(targetFrame, isSpeech)
		if ev == nil {
			continue
		}
		if err := c.sendDetectorEvent(ctx, conn, ev); err != nil {
			return err
		}
	}
}

func (c *Coordinator) probabilityFor(samples []int16) (float64, error) {
	f32 := make([]float32, len(samples))
	for i, s := range samples {
		f32[i] = float32(s) / 32768.0
	}
	return c.vadM.Probability(f32)
}

// effectiveThreshold implements §4.5's playback-gating VAD policy: while
// AEC is active and rendering audio, the bar is raised (e.g. 0.5 -> 0.7)
// so the detector keeps running and barge-in stays possible, with
// residual echo rejected by the higher threshold. Without AEC, captureLoop
// never reaches this path while playback is active — it pauses instead —
// so the base threshold is the only other case.
func (c *Coordinator) effectiveThreshold() float64 {
	if c.isPlaybackActive() && c.cfg.Audio.EchoCancellation {
		return c.cfg.Audio.VADThresholdPlayback
	}
	return c.cfg.VAD.Threshold
}

// evaluateDuckTrigger implements the AEC barge-in ducking policy: while
// capture continues during playback (AEC mode), track consecutive
// trigger/non-trigger frames and duck/restore volume only once the
// streak crosses its threshold, so a single spurious frame doesn't flap
// the side channel. mic is the pre-cancellation frame: Guard correlates
// against what the mic actually picked up, not the AEC's residual, so a
// frame the VAD flags as speech but that strongly correlates with
// recently rendered playback is treated as echo leak-through rather
// than genuine barge-in and doesn't count toward the streak.
func (c *Coordinator) evaluateDuckTrigger(isSpeech bool, mic []int16) {
	if !c.cfg.Audio.EchoCancellation || !c.isPlaybackActive() {
		return
	}
	if isSpeech && c.canc.Correlates(mic) {
		isSpeech = false
	}

	c.playbackMu.Lock()
	var duck, restore bool
	if isSpeech {
		c.triggerStreak++
		c.restoreArmed = 0
		if c.triggerStreak >= duckTriggerFrames && !c.duckedByTrigger {
			c.duckedByTrigger = true
			duck = true
		}
	} else {
		c.restoreArmed++
		c.triggerStreak = 0
		if c.restoreArmed >= duckRestoreFrames && c.duckedByTrigger {
			c.duckedByTrigger = false
			restore = true
		}
	}
	c.playbackMu.Unlock()

	if duck {
		c.player.DuckVolume(30)
	}
	if restore {
		c.player.RestoreVolume()
	}
}

func (c *Coordinator) sendDetectorEvent(ctx context.Context, conn *Conn, ev *detector.Event) error {
	switch ev.Type {
	case detector.STARTED, detector.CONTINUING:
		for _, chunk := range ev.Chunks {
			if err := conn.SendJSON(ctx, wire.NewAudioChunkMsg(chunk.Bytes())); err != nil {
				return err
			}
		}
	case detector.ENDED:
		if err := conn.SendJSON(ctx, wire.NewEndSpeechMsg()); err != nil {
			return err
		}
	}
	return nil
}

// receiveLoop reads server messages and dispatches them until the
// connection errors or ctx is cancelled.
func (c *Coordinator) receiveLoop(ctx context.Context, conn *Conn) error {
	for {
		msg, err := conn.ReadServerMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("session: receive loop: %w", err)
		}
		if err := c.dispatch(msg); err != nil {
			c.log.Warn("dispatch error", "type", msg.Type, "err", err)
		}
	}
}

func (c *Coordinator) setActiveStream(s *playback.PcmStream) {
	c.streamMu.Lock()
	c.activeStrm = s
	c.streamMu.Unlock()
}

func (c *Coordinator) activeStream() *playback.PcmStream {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	return c.activeStrm
}

func (c *Coordinator) isPlaybackActive() bool {
	c.playbackMu.Lock()
	defer c.playbackMu.Unlock()
	return c.playbackActive
}

// onPlaybackStart and onPlaybackEnd arm/disarm the playback_active gate
// and the volume-ducking side channel. A single-trigger counter guards
// against ducking/restoring on every nested call (e.g. a cache_play
// inside a stream) rather than only on the outermost transition.
func (c *Coordinator) onPlaybackStart() {
	c.playbackMu.Lock()
	c.playbackActive = true
	c.duckArmed++
	shouldDuck := c.duckArmed == 1
	c.playbackMu.Unlock()
	if shouldDuck {
		c.player.DuckVolume(30)
	}
}

func (c *Coordinator) onPlaybackEnd() {
	c.playbackMu.Lock()
	if c.duckArmed > 0 {
		c.duckArmed--
	}
	stillActive := c.duckArmed > 0
	c.playbackActive = stillActive
	c.playbackMu.Unlock()
	if !stillActive {
		c.player.RestoreVolume()
	}
}
