package playback

import (
	"bytes"
	"testing"
)

func TestEncodeWAVHeader(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	wav := EncodeWAV(pcm, 16000, 1)

	if !bytes.HasPrefix(wav, []byte("RIFF")) {
		t.Error("expected RIFF prefix")
	}
	if !bytes.Contains(wav, []byte("WAVE")) {
		t.Error("expected WAVE format identifier")
	}
	if len(wav) != 44+len(pcm) {
		t.Errorf("expected length %d, got %d", 44+len(pcm), len(wav))
	}
}

func TestEncodeDecodeWAVRoundTrip(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	wav := EncodeWAV(pcm, 22050, 1)

	info, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.SampleRate != 22050 || info.Channels != 1 {
		t.Errorf("unexpected header: %+v", info)
	}
	if !bytes.Equal(info.PCM, pcm) {
		t.Errorf("expected pcm %v, got %v", pcm, info.PCM)
	}
}

func TestDecodeWAVRejectsShortBuffer(t *testing.T) {
	if _, err := DecodeWAV([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short buffer")
	}
}

func TestDecodeWAVRejectsNonRIFF(t *testing.T) {
	bad := make([]byte, 44)
	copy(bad, []byte("JUNKxxxxWAVE"))
	if _, err := DecodeWAV(bad); err == nil {
		t.Fatal("expected error for non-RIFF buffer")
	}
}
