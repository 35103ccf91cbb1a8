package playback

import "fmt"

// pcmSinkCommand builds the shell pipeline for a raw-PCM sink. When tempo
// deviates from 1.0 by more than 1%, the stream is piped through ffmpeg's
// atempo filter (which preserves pitch) before reaching the ALSA sink;
// otherwise the sink runs directly off stdin.
func pcmSinkCommand(rate, channels int, tempo float64) string {
	aplay := fmt.Sprintf("aplay -q -t raw -f S16_LE -r %d -c %d -", rate, channels)
	if !needsTempoStage(tempo) {
		return aplay
	}
	ffmpeg := fmt.Sprintf(
		"ffmpeg -v quiet -f s16le -ar %d -ac %d -i pipe:0 -filter:a atempo=%.3f -f s16le -",
		rate, channels, tempo,
	)
	return ffmpeg + " | " + aplay
}

// wavSinkCommand builds the shell pipeline for playing a complete WAV
// buffer; aplay reads the RIFF header itself so no format flags are
// needed.
func wavSinkCommand() string {
	return "aplay -q -"
}

func needsTempoStage(tempo float64) bool {
	const epsilon = 0.01
	d := tempo - 1.0
	if d < 0 {
		d = -d
	}
	return d > epsilon
}
