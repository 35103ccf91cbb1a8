package session

import (
	"fmt"
	"time"

	"github.com/lokutor-ai/lokutor-edge/internal/wire"
)

// dispatch implements §4.6's message-dispatch table: every inbound
// ServerMessage tag maps to exactly one action against playback, the
// cache, or the coordinator's own playback_active gate.
func (c *Coordinator) dispatch(msg *wire.ServerMessage) error {
	switch msg.Type {
	case wire.TypeAudioStreamStart:
		return c.handleStreamStart(msg)
	case wire.TypeAudioStreamChunk:
		return c.handleStreamChunk(msg)
	case wire.TypeAudioStreamEnd:
		return c.handleStreamEnd()
	case wire.TypeAudioSentence:
		return c.handleSentence(msg)
	case wire.TypeAudioCachePlay:
		return c.handleCachePlay(msg)
	case wire.TypeAudioCacheStore:
		return c.handleCacheStore(msg)
	case wire.TypeAudioLoading:
		return c.handleLegacyLoading(msg)
	case wire.TypeAudioPlayback:
		return c.handleLegacyPlayback(msg)
	case wire.TypeResponseComplete:
		c.handleResponseComplete()
		return nil
	case wire.TypeStatus:
		c.log.Debug("status", "state", msg.State)
		return nil
	default:
		c.log.Warn("dispatch: unrecognized message type", "type", msg.Type)
		return nil
	}
}

func (c *Coordinator) handleStreamStart(msg *wire.ServerMessage) error {
	kind := msg.Stream
	if kind == "" {
		kind = "tts"
	}
	stream, err := c.player.StartPcm(kind, msg.SampleRate, msg.Channels, tempoOrDefault(msg.Tempo))
	if err != nil {
		return fmt.Errorf("session: start pcm stream: %w", err)
	}
	c.setActiveStream(stream)
	if kind == "tts" {
		c.playbackMu.Lock()
		c.ttsFirstChunkSeen = false
		c.playbackMu.Unlock()
	}
	c.onPlaybackStart()
	return nil
}

func (c *Coordinator) handleStreamChunk(msg *wire.ServerMessage) error {
	audio, err := msg.AudioBytes()
	if err != nil {
		return err
	}
	stream := c.activeStream()
	if stream == nil {
		c.log.Warn("audio_stream_chunk with no active stream")
		return nil
	}
	if msg.Stream == "tts" {
		c.recordFirstTTSChunk()
	}
	stream.WriteStream(audio)
	return nil
}

// recordFirstTTSChunk implements the §4.6 dispatch table's "on first tts
// chunk, record time-to-first-audio vs last_speech_ended_at" action, and
// the §9 decision to standardize that measurement on the monotonic
// clock (time.Since) rather than mixing clock sources across code paths.
// last_speech_ended_at is cleared once consumed so a later response in
// the same session doesn't report a stale TTFA against it.
func (c *Coordinator) recordFirstTTSChunk() {
	c.playbackMu.Lock()
	if c.ttsFirstChunkSeen {
		c.playbackMu.Unlock()
		return
	}
	c.ttsFirstChunkSeen = true
	lastEnded := c.sd.State().LastSpeechEndedAt
	c.playbackMu.Unlock()

	if lastEnded.IsZero() {
		return
	}
	c.log.Info("time to first audio", "ttfa", time.Since(lastEnded))
	c.sd.ClearLastSpeechEndedAt()
}

func (c *Coordinator) handleStreamEnd() error {
	if stream := c.activeStream(); stream != nil {
		stream.EndStream()
	}
	c.setActiveStream(nil)
	c.onPlaybackEnd()
	return nil
}

// handleSentence implements §4.6's AudioSentence action: preempt, play
// blocking, and clear playback_active only once the final sentence of the
// response has played and ResponseComplete was already observed — a
// multi-sentence response otherwise leaves playback_active (and mic
// suppression/ducking) set across every sentence in between.
func (c *Coordinator) handleSentence(msg *wire.ServerMessage) error {
	audio, err := msg.AudioBytes()
	if err != nil {
		return err
	}
	if !c.isPlaybackActive() {
		c.onPlaybackStart()
	}
	playErr := c.player.PlayWavBlocking(audio)
	if isFinalSentence(msg) && c.consumeResponseComplete() {
		c.onPlaybackEnd()
	}
	return playErr
}

// isFinalSentence reports whether msg is the last sentence of a
// multi-sentence response. sentence_index/total_sentences are 1-indexed;
// a message carrying neither (a single-sentence legacy response) is
// always final.
func isFinalSentence(msg *wire.ServerMessage) bool {
	return msg.TotalSentences <= 0 || msg.SentenceIndex >= msg.TotalSentences
}

// consumeResponseComplete reports and clears pendingResponseComplete, so
// a later response's final sentence is never mistaken for already-complete
// off a stale flag left over from the response before it.
func (c *Coordinator) consumeResponseComplete() bool {
	c.playbackMu.Lock()
	defer c.playbackMu.Unlock()
	complete := c.pendingResponseComplete
	c.pendingResponseComplete = false
	return complete
}

// handleCachePlay implements §4.6's AudioCachePlay{key, loop} action: a
// miss reports a cache-status "need" so the server can resend the
// prompt; a hit plays async when loop is set (so the caller isn't
// blocked waiting on a looping prompt) or blocking otherwise.
func (c *Coordinator) handleCachePlay(msg *wire.ServerMessage) error {
	wav, ok, err := c.cacheStore.Play(msg.CacheKey)
	if err != nil {
		return err
	}
	if !ok {
		return c.conn.SendJSON(c.ctx, wire.NewAudioCacheStatusMsg(msg.CacheKey, false))
	}
	if err := c.conn.SendJSON(c.ctx, wire.NewAudioCacheStatusMsg(msg.CacheKey, true)); err != nil {
		return err
	}

	c.onPlaybackStart()
	if msg.Loop {
		handle, err := c.player.PlayWavBackground(wav)
		if err != nil {
			c.onPlaybackEnd()
			return err
		}
		c.setLoadingHandle(handle)
		go func() {
			<-handle.Done()
			c.setLoadingHandle(nil)
			c.onPlaybackEnd()
		}()
		return nil
	}
	defer c.onPlaybackEnd()
	return c.player.PlayWavBlocking(wav)
}

func (c *Coordinator) handleCacheStore(msg *wire.ServerMessage) error {
	audio, err := msg.AudioBytes()
	if err != nil {
		return err
	}
	return c.cacheStore.StoreEntry(msg.CacheKey, audio)
}

// handleLegacyLoading and handleLegacyPlayback support the pre-streaming
// wire shape: a single base64 WAV payload in one message rather than a
// start/chunk/end triple.
func (c *Coordinator) handleLegacyLoading(msg *wire.ServerMessage) error {
	audio, err := msg.AudioBytes()
	if err != nil {
		return err
	}
	c.onPlaybackStart()
	defer c.onPlaybackEnd()
	return c.player.PlayWavBlocking(audio)
}

func (c *Coordinator) handleLegacyPlayback(msg *wire.ServerMessage) error {
	audio, err := msg.AudioBytes()
	if err != nil {
		return err
	}
	c.onPlaybackStart()
	defer c.onPlaybackEnd()
	return c.player.PlayWavBlocking(audio)
}

// handleResponseComplete implements §4.6's ResponseComplete action: mark
// pending_response_complete, stop any async loading audio, and clear
// playback_active if nothing else is driving it (the common case is a
// looping "loading" cache prompt left running while the server finishes
// generating the real response).
func (c *Coordinator) handleResponseComplete() {
	c.playbackMu.Lock()
	c.pendingResponseComplete = true
	c.playbackMu.Unlock()
	c.log.Debug("response complete")

	// Stop() makes the sink exit, which the handleCachePlay watcher
	// goroutine observes via handle.Done() and pairs with exactly one
	// onPlaybackEnd() — don't duplicate that call here.
	if h := c.takeLoadingHandle(); h != nil {
		h.Stop()
	}
}

func tempoOrDefault(tempo float64) float64 {
	if tempo <= 0 {
		return 1.0
	}
	return tempo
}
