package playback

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// EncodeWAV builds a minimal mono 16-bit PCM WAV container, adapted from
// the same manual RIFF/WAVE/fmt/data header construction used for the
// orchestrator's own sentence audio, generalized here to an arbitrary
// sample rate and channel count.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	buf := new(bytes.Buffer)

	byteRate := sampleRate * channels * 2
	blockAlign := channels * 2

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// WAVInfo is the subset of a decoded WAV header callers need.
type WAVInfo struct {
	SampleRate int
	Channels   int
	PCM        []byte
}

// DecodeWAV parses a canonical 44-byte-header PCM WAV buffer.
func DecodeWAV(data []byte) (WAVInfo, error) {
	if len(data) < 44 {
		return WAVInfo{}, fmt.Errorf("playback: wav buffer too short (%d bytes)", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return WAVInfo{}, fmt.Errorf("playback: not a RIFF/WAVE buffer")
	}
	channels := int(binary.LittleEndian.Uint16(data[22:24]))
	sampleRate := int(binary.LittleEndian.Uint32(data[24:28]))
	dataLen := binary.LittleEndian.Uint32(data[40:44])
	end := 44 + int(dataLen)
	if end > len(data) {
		end = len(data)
	}
	return WAVInfo{SampleRate: sampleRate, Channels: channels, PCM: data[44:end]}, nil
}
