// Command edge is the entrypoint for the voice-assistant edge client: it
// loads configuration, wires the capture device, echo canceller, VAD,
// speech detector, playback subsystem, and prompt cache into a Session
// Coordinator, then runs the connect/reconnect loop until a signal or a
// fatal audio stall ends the process.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gen2brain/malgo"
	"github.com/joho/godotenv"

	"github.com/lokutor-ai/lokutor-edge/internal/aec"
	"github.com/lokutor-ai/lokutor-edge/internal/cache"
	"github.com/lokutor-ai/lokutor-edge/internal/capture"
	"github.com/lokutor-ai/lokutor-edge/internal/config"
	"github.com/lokutor-ai/lokutor-edge/internal/detector"
	"github.com/lokutor-ai/lokutor-edge/internal/logging"
	"github.com/lokutor-ai/lokutor-edge/internal/playback"
	"github.com/lokutor-ai/lokutor-edge/internal/session"
	"github.com/lokutor-ai/lokutor-edge/internal/vad"
)

// Exit codes per §6: 0 on graceful shutdown, a distinguished code for the
// fatal audio-stall condition, and another for any startup failure (bad
// config, missing VAD model, missing input device).
const (
	exitOK            = 0
	exitAudioStall    = 1
	exitStartupFailed = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	// Note: no .env file is required; EDGE_* overrides fall back to the
	// YAML config when unset, same role godotenv played for the
	// teacher's provider API keys.
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using process environment and config file")
	}

	configPath := flag.String("config", envOr("EDGE_CONFIG", "config.yaml"), "path to the YAML config file")
	logLevel := flag.String("log-level", envOr("EDGE_LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	flag.Parse()

	log := logging.NewSlog(parseLevel(*logLevel))

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Error("failed to load config", "path", *configPath, "err", err)
		return exitStartupFailed
	}
	applyEnvOverrides(cfg)

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Error("failed to init audio context", "err", err)
		return exitStartupFailed
	}
	defer mctx.Uninit()

	devices, err := capture.ListDevices(mctx)
	if err != nil {
		log.Error("failed to enumerate capture devices", "err", err)
		return exitStartupFailed
	}
	deviceID, err := capture.ResolveDevice(devices, cfg.Audio.InputDeviceName)
	if err != nil {
		log.Error("no matching capture device", "name", cfg.Audio.InputDeviceName, "err", err)
		return exitStartupFailed
	}

	capStream, err := capture.Open(mctx, capture.Config{
		SampleRate: cfg.Audio.CaptureRate,
		Channels:   cfg.Audio.Channels,
		ChunkSize:  cfg.Audio.ChunkSize,
		DeviceID:   deviceID,
	})
	if err != nil {
		log.Error("failed to open capture device", "err", err)
		return exitStartupFailed
	}
	defer capStream.Close()

	if _, statErr := os.Stat(cfg.VAD.ModelPath); statErr != nil {
		log.Error("VAD model file not found", "path", cfg.VAD.ModelPath, "err", statErr)
		return exitStartupFailed
	}
	vadDetector, err := vad.New(vad.Config{
		ModelPath: cfg.VAD.ModelPath,
		Threshold: float32(cfg.VAD.Threshold),
	})
	if err != nil {
		log.Error("failed to load VAD model", "err", err)
		return exitStartupFailed
	}
	defer vadDetector.Close()

	canceller := aec.New(aec.Config{
		Rate:                  cfg.Audio.CaptureRate,
		FrameSize:             cfg.AEC.FrameSize,
		TapLen:                msToSamples(cfg.AEC.FilterLengthMs, cfg.Audio.CaptureRate),
		Step:                  0.05,
		BufferCapacitySamples: msToSamples(cfg.AEC.BufferDurationMs, cfg.Audio.CaptureRate),
		DelaySamples:          msToSamples(cfg.AEC.SpeakerToMicDelayMs, cfg.Audio.CaptureRate),
	})

	sd := detector.New(detector.Params{
		ChunkMs:           chunkDurationMs(cfg.Audio.ChunkSize, cfg.Audio.CaptureRate),
		PreBufferMs:       cfg.VAD.PreBufferMs,
		SilenceDurationMs: cfg.VAD.SilenceDurationMs,
	})

	player := playback.New(canceller)

	cacheStore, err := cache.Open(cfg.Cache.Directory, cfg.Cache.ClearPolicy, cfg.Cache.MaxSizeMB)
	if err != nil {
		log.Error("failed to open prompt cache", "err", err)
		return exitStartupFailed
	}
	cacheStore.SetLogger(log)

	coord := session.New(session.Deps{
		Config:     cfg,
		Logger:     log,
		Capture:    capStream,
		Canceller:  canceller,
		VAD:        vadDetector,
		Detector:   sd,
		Player:     player,
		CacheStore: cacheStore,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("shutdown signal received")
		cancel()
	}()

	log.Info("edge client starting",
		"server", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		"capture_rate", cfg.Audio.CaptureRate,
		"target_rate", cfg.Audio.TargetRate,
		"aec_enabled", cfg.Audio.EchoCancellation,
	)

	if err := coord.Run(ctx); err != nil {
		if ctx.Err() != nil {
			log.Info("shut down cleanly")
			return exitOK
		}
		log.Error("session coordinator exited", "err", err)
		return exitAudioStall
	}
	return exitOK
}

// loadConfig loads the YAML file at path, falling back to the built-in
// defaults (still validated) if the file doesn't exist, so a first run
// against a freshly unpacked distribution doesn't require authoring a
// config file before anything works.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			cfg := config.Default()
			if vErr := config.Validate(cfg); vErr != nil {
				return nil, vErr
			}
			return cfg, nil
		}
		return nil, err
	}
	return config.Load(path)
}

// applyEnvOverrides lets a handful of EDGE_* environment variables
// override the loaded config without editing the YAML file, the same
// role the teacher's .env-sourced provider keys played.
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("EDGE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("EDGE_SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("EDGE_VAD_MODEL_PATH"); v != "" {
		cfg.VAD.ModelPath = v
	}
	if v := os.Getenv("EDGE_CACHE_DIR"); v != "" {
		cfg.Cache.Directory = v
	}
	if v := os.Getenv("EDGE_INPUT_DEVICE"); v != "" {
		cfg.Audio.InputDeviceName = v
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func msToSamples(ms, rate int) int {
	return ms * rate / 1000
}

func chunkDurationMs(chunkSize, rate int) float64 {
	return float64(chunkSize) * 1000 / float64(rate)
}
