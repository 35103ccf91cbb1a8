// Package config loads and validates the YAML configuration that drives
// every other component: capture/playback device selection, VAD and AEC
// tuning, cache policy, and the server endpoint.
package config

import "time"

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Audio   AudioConfig   `yaml:"audio"`
	VAD     VADConfig     `yaml:"vad"`
	AEC     AECConfig     `yaml:"aec"`
	Cache   CacheConfig   `yaml:"cache"`
	Network NetworkConfig `yaml:"network"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type AudioConfig struct {
	CaptureRate          int    `yaml:"capture_rate"`
	TargetRate           int    `yaml:"target_rate"`
	ChunkSize            int    `yaml:"chunk_size"`
	Channels             int    `yaml:"channels"`
	InputDeviceName      string `yaml:"input_device_name"`
	EchoCancellation     bool   `yaml:"echo_cancellation"`
	StallTimeoutSeconds  int    `yaml:"stall_timeout"`
	VADThresholdPlayback float64 `yaml:"vad_threshold_playback"`
}

type VADConfig struct {
	Threshold         float64 `yaml:"threshold"`
	PreBufferMs       int     `yaml:"pre_buffer_ms"`
	SilenceDurationMs int     `yaml:"silence_duration_ms"`
	ModelPath         string  `yaml:"model_path"`
}

type AECConfig struct {
	Enabled             bool `yaml:"enabled"`
	FrameSize           int  `yaml:"frame_size"`
	FilterLengthMs      int  `yaml:"filter_length_ms"`
	EnablePreprocess    bool `yaml:"enable_preprocess"`
	BufferDurationMs    int  `yaml:"buffer_duration_ms"`
	SpeakerToMicDelayMs int  `yaml:"speaker_to_mic_delay_ms"`
}

type CacheConfig struct {
	Directory    string `yaml:"directory"`
	ClearPolicy  string `yaml:"clear_policy"`
	MaxSizeMB    int    `yaml:"max_size_mb"`
}

type NetworkConfig struct {
	ReconnectDelaySeconds int `yaml:"reconnect_delay"`
}

// ReconnectDelay returns the configured reconnect delay, defaulting to 3s
// per the session coordinator's documented default.
func (n NetworkConfig) ReconnectDelay() time.Duration {
	if n.ReconnectDelaySeconds <= 0 {
		return 3 * time.Second
	}
	return time.Duration(n.ReconnectDelaySeconds) * time.Second
}

// StallTimeout returns the configured capture stall timeout, defaulting to
// 5s.
func (a AudioConfig) StallTimeout() time.Duration {
	if a.StallTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(a.StallTimeoutSeconds) * time.Second
}

// Default returns a Config populated with the typical values named
// throughout the design: 48kHz capture, 16kHz target, 30ms chunks, mono.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "127.0.0.1", Port: 8080},
		Audio: AudioConfig{
			CaptureRate:          48000,
			TargetRate:           16000,
			ChunkSize:            1440,
			Channels:             1,
			InputDeviceName:      "default",
			EchoCancellation:     true,
			StallTimeoutSeconds:  5,
			VADThresholdPlayback: 0.7,
		},
		VAD: VADConfig{
			Threshold:         0.5,
			PreBufferMs:       300,
			SilenceDurationMs: 900,
			ModelPath:         "models/silero_vad.onnx",
		},
		AEC: AECConfig{
			Enabled:             true,
			FrameSize:           160,
			FilterLengthMs:      400,
			EnablePreprocess:    true,
			BufferDurationMs:    15000,
			SpeakerToMicDelayMs: 60,
		},
		Cache: CacheConfig{
			Directory:   "./cache",
			ClearPolicy: "never",
			MaxSizeMB:   256,
		},
		Network: NetworkConfig{ReconnectDelaySeconds: 3},
	}
}
