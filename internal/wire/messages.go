// Package wire defines the JSON-framed WebSocket messages exchanged with
// the remote server, and the tagged-union decoding of server messages.
package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// Client-to-server message types.
const (
	TypeAudioChunk        = "audio_chunk"
	TypeEndSpeech         = "end_speech"
	TypeAudioCacheStatus  = "audio_cache_status"
)

// Server-to-client message types.
const (
	TypeAudioStreamStart = "audio_stream_start"
	TypeAudioStreamChunk = "audio_stream_chunk"
	TypeAudioStreamEnd   = "audio_stream_end"
	TypeAudioSentence    = "audio_sentence"
	TypeAudioCachePlay   = "audio_cache_play"
	TypeAudioCacheStore  = "audio_cache_store"
	TypeAudioLoading     = "audio_loading" // legacy
	TypeAudioPlayback    = "audio_playback" // legacy
	TypeResponseComplete = "response_complete"
	TypeStatus           = "status"
)

// AudioChunkMsg is sent by the client for each speech chunk.
type AudioChunkMsg struct {
	Type      string `json:"type"`
	Data      string `json:"data"` // base64(int16 LE @ target_rate)
	Timestamp string `json:"timestamp"`
}

// NewAudioChunkMsg base64-encodes pcm and stamps the current time.
func NewAudioChunkMsg(pcm []byte) AudioChunkMsg {
	return AudioChunkMsg{
		Type:      TypeAudioChunk,
		Data:      encodeB64(pcm),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// EndSpeechMsg signals end-of-utterance to the server.
type EndSpeechMsg struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

func NewEndSpeechMsg() EndSpeechMsg {
	return EndSpeechMsg{Type: TypeEndSpeech, Timestamp: time.Now().UTC().Format(time.RFC3339Nano)}
}

// AudioCacheStatusMsg answers the server's cache-probe flow.
type AudioCacheStatusMsg struct {
	Type     string `json:"type"`
	CacheKey string `json:"cache_key"`
	Status   string `json:"status"` // "have" | "need"
}

func NewAudioCacheStatusMsg(key string, have bool) AudioCacheStatusMsg {
	status := "need"
	if have {
		status = "have"
	}
	return AudioCacheStatusMsg{Type: TypeAudioCacheStatus, CacheKey: key, Status: status}
}

// ServerMessage is the tagged envelope for every inbound message. Payload
// fields for every variant live flat on this struct (mirroring the flat
// dispatch-struct shape used for other wire protocols in this codebase)
// rather than as a json.RawMessage union, since the server's payload
// shapes never collide on field name.
type ServerMessage struct {
	Type string `json:"type"`

	// audio_stream_start / audio_stream_chunk / audio_stream_end
	Stream       string  `json:"stream,omitempty"`
	SampleRate   int     `json:"sample_rate,omitempty"`
	Channels     int     `json:"channels,omitempty"`
	SampleFormat string  `json:"sample_format,omitempty"`
	Tempo        float64 `json:"tempo,omitempty"`

	// audio_stream_chunk / audio_sentence / audio_cache_store / audio_loading / audio_playback
	Data string `json:"data,omitempty"`

	// audio_sentence
	SentenceIndex  int  `json:"sentence_index,omitempty"`
	TotalSentences int  `json:"total_sentences,omitempty"`
	DurationMs     int  `json:"duration_ms,omitempty"`
	TempoApplied   bool `json:"tempo_applied,omitempty"`

	// audio_cache_play / audio_cache_store
	CacheKey string `json:"cache_key,omitempty"`
	Loop     bool   `json:"loop,omitempty"`

	// audio_playback (legacy)
	Chunk       int `json:"chunk,omitempty"`
	TotalChunks int `json:"total_chunks,omitempty"`

	// status
	State string `json:"state,omitempty"`
}

// DecodeServerMessage parses a single JSON server message.
func DecodeServerMessage(raw []byte) (*ServerMessage, error) {
	var m ServerMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("wire: decode server message: %w", err)
	}
	if m.Type == "" {
		return nil, fmt.Errorf("wire: server message missing type")
	}
	return &m, nil
}

// AudioBytes decodes the base64 Data field, if present.
func (m *ServerMessage) AudioBytes() ([]byte, error) {
	if m.Data == "" {
		return nil, nil
	}
	return decodeB64(m.Data)
}
