package wire

import "testing"

func TestDecodeServerMessageAudioSentence(t *testing.T) {
	raw := []byte(`{"type":"audio_sentence","data":"AQID","sentence_index":1,"total_sentences":2,"duration_ms":500,"sample_rate":22050,"tempo_applied":true}`)
	m, err := DecodeServerMessage(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Type != TypeAudioSentence {
		t.Errorf("expected type %q, got %q", TypeAudioSentence, m.Type)
	}
	b, err := m.AudioBytes()
	if err != nil {
		t.Fatalf("decode audio bytes: %v", err)
	}
	if len(b) != 3 {
		t.Errorf("expected 3 decoded bytes, got %d", len(b))
	}
	if !m.TempoApplied || m.SentenceIndex != 1 || m.TotalSentences != 2 {
		t.Errorf("unexpected fields: %+v", m)
	}
}

func TestDecodeServerMessageMissingType(t *testing.T) {
	if _, err := DecodeServerMessage([]byte(`{"data":"x"}`)); err == nil {
		t.Fatal("expected error for missing type")
	}
}

func TestDecodeServerMessageMalformed(t *testing.T) {
	if _, err := DecodeServerMessage([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed json")
	}
}

func TestNewAudioChunkMsgRoundTrip(t *testing.T) {
	msg := NewAudioChunkMsg([]byte{10, 20, 30})
	if msg.Type != TypeAudioChunk {
		t.Errorf("expected type %q, got %q", TypeAudioChunk, msg.Type)
	}
	decoded, err := decodeB64(msg.Data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(decoded) != string([]byte{10, 20, 30}) {
		t.Errorf("round trip mismatch: %v", decoded)
	}
}
