// Package capture implements the capture half of Audio I/O (C1) over
// github.com/gen2brain/malgo, the same audio backend the original voice
// agent used for its duplex device. Unlike the original's single duplex
// device, the pipeline here only needs capture — playback is a subprocess
// sink (see internal/playback) — so this wraps a capture-only malgo
// device whose data callback feeds a bounded channel, giving Stream.Read
// a cancellable, timeout-aware boundary instead of a blocking native call.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gen2brain/malgo"
)

// ErrAudioStall is the distinguished fatal error raised when a capture
// read doesn't complete within the configured stall timeout. Per the
// error-handling design, this is unrecoverable within the process:
// the caller exits so a supervisor can restart and re-enumerate devices.
var ErrAudioStall = errors.New("capture: audio stall (device read timed out)")

// ErrNoMatchingDevice is returned when the configured device-name
// substring matches none of the enumerated capture devices.
var ErrNoMatchingDevice = errors.New("capture: no capture device matches the configured name")

// DeviceInfo is the subset of malgo.DeviceInfo this package surfaces.
type DeviceInfo struct {
	ID   malgo.DeviceID
	Name string
}

// ListDevices enumerates capture devices visible to malgo.
func ListDevices(ctx *malgo.AllocatedContext) ([]DeviceInfo, error) {
	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("capture: enumerate devices: %w", err)
	}
	out := make([]DeviceInfo, len(infos))
	for i, info := range infos {
		out[i] = DeviceInfo{ID: info.ID, Name: info.Name()}
	}
	return out, nil
}

// ResolveDevice applies the §4.1 device-selection policy: "default" or
// "pulse" selects the system default capture device (nil ID); any other
// string is a case-sensitive substring match across enumerated devices.
func ResolveDevice(devices []DeviceInfo, name string) (*malgo.DeviceID, error) {
	if name == "" || name == "default" || name == "pulse" {
		return nil, nil
	}
	for _, d := range devices {
		if strings.Contains(d.Name, name) {
			id := d.ID
			return &id, nil
		}
	}
	return nil, fmt.Errorf("%w: %q (available: %v)", ErrNoMatchingDevice, name, deviceNames(devices))
}

func deviceNames(devices []DeviceInfo) []string {
	names := make([]string, len(devices))
	for i, d := range devices {
		names[i] = d.Name
	}
	return names
}

// Stream is an open capture device emitting fixed-size PCM frames onto a
// buffered channel.
type Stream struct {
	device *malgo.Device
	frames chan []byte
	errs   chan error
}

// Config configures a capture Stream.
type Config struct {
	SampleRate int
	Channels   int
	ChunkSize  int // samples per frame
	DeviceID   *malgo.DeviceID
}

// Open starts a capture-only malgo device and begins delivering frames.
func Open(mctx *malgo.AllocatedContext, cfg Config) (*Stream, error) {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.ChunkSize)
	deviceConfig.Alsa.NoMMap = 1
	if cfg.DeviceID != nil {
		deviceConfig.Capture.DeviceID = cfg.DeviceID.Pointer()
	}

	s := &Stream{
		frames: make(chan []byte, 32),
		errs:   make(chan error, 1),
	}

	onSamples := func(_, pInput []byte, _ uint32) {
		if pInput == nil {
			return
		}
		cp := make([]byte, len(pInput))
		copy(cp, pInput)
		select {
		case s.frames <- cp:
		default:
			// Bounded channel full: drop the oldest frame rather than
			// block the audio callback, which must never stall.
			select {
			case <-s.frames:
			default:
			}
			select {
			case s.frames <- cp:
			default:
			}
		}
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onSamples})
	if err != nil {
		return nil, fmt.Errorf("capture: init device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("capture: start device: %w", err)
	}
	s.device = device
	return s, nil
}

// Read blocks until a frame is available or ctx is done, returning
// ErrAudioStall if ctx's deadline (the configured stall timeout) expires
// first.
func (s *Stream) Read(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-s.frames:
		return frame, nil
	case <-ctx.Done():
		return nil, ErrAudioStall
	}
}

// Close stops and releases the capture device.
func (s *Stream) Close() error {
	if s.device == nil {
		return nil
	}
	s.device.Uninit()
	return nil
}
