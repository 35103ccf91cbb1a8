package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// Config, starting from Default() so unset sections keep sane values.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of Default() and
// validates the result. Exposed separately so tests can build configs from
// string literals without touching the filesystem.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values, returning a
// joined error listing every hard failure found. Soft issues (values that
// are merely unusual) are logged at warn rather than rejected.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.Host == "" {
		errs = append(errs, errors.New("server.host is required"))
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", cfg.Server.Port))
	}

	if cfg.Audio.CaptureRate <= 0 {
		errs = append(errs, errors.New("audio.capture_rate must be positive"))
	}
	if cfg.Audio.TargetRate <= 0 {
		errs = append(errs, errors.New("audio.target_rate must be positive"))
	}
	if cfg.Audio.ChunkSize <= 0 {
		errs = append(errs, errors.New("audio.chunk_size must be positive"))
	}
	if cfg.Audio.Channels != 1 {
		slog.Warn("audio.channels is not 1; the pipeline is designed for mono capture", "channels", cfg.Audio.Channels)
	}
	if cfg.Audio.StallTimeoutSeconds < 0 {
		slog.Warn("audio.stall_timeout is negative; using default", "default_seconds", 5)
		cfg.Audio.StallTimeoutSeconds = 0
	}

	if cfg.VAD.Threshold < 0 || cfg.VAD.Threshold > 1 {
		errs = append(errs, fmt.Errorf("vad.threshold %.2f must be in [0,1]", cfg.VAD.Threshold))
	}
	if cfg.VAD.PreBufferMs <= 0 {
		errs = append(errs, errors.New("vad.pre_buffer_ms must be positive"))
	}
	if cfg.VAD.SilenceDurationMs <= 0 {
		errs = append(errs, errors.New("vad.silence_duration_ms must be positive"))
	}
	if cfg.VAD.ModelPath == "" {
		errs = append(errs, errors.New("vad.model_path is required"))
	}

	if cfg.AEC.Enabled {
		if cfg.AEC.FrameSize <= 0 {
			errs = append(errs, errors.New("aec.frame_size must be positive when aec.enabled is true"))
		}
		if cfg.AEC.SpeakerToMicDelayMs < 0 {
			errs = append(errs, errors.New("aec.speaker_to_mic_delay_ms must not be negative"))
		}
		if cfg.AEC.SpeakerToMicDelayMs < 20 || cfg.AEC.SpeakerToMicDelayMs > 150 {
			slog.Warn("aec.speaker_to_mic_delay_ms is outside the typical 40-80ms range", "delay_ms", cfg.AEC.SpeakerToMicDelayMs)
		}
	}

	if cfg.Cache.Directory == "" {
		errs = append(errs, errors.New("cache.directory is required"))
	}
	if err := validateClearPolicy(cfg.Cache.ClearPolicy); err != nil {
		errs = append(errs, err)
	}

	if cfg.Network.ReconnectDelaySeconds < 0 {
		slog.Warn("network.reconnect_delay is negative; using default", "default_seconds", 3)
		cfg.Network.ReconnectDelaySeconds = 0
	}

	return errors.Join(errs...)
}

// validateClearPolicy accepts "on_start", "never", or a string parseable
// as a positive number of hours, per §6's clear_policy grammar.
func validateClearPolicy(policy string) error {
	switch policy {
	case "", "on_start", "never":
		return nil
	default:
		if n, err := strconv.Atoi(strings.TrimSpace(policy)); err == nil && n > 0 {
			return nil
		}
		return fmt.Errorf(`cache.clear_policy %q must be "on_start", "never", or a positive number of hours`, policy)
	}
}
