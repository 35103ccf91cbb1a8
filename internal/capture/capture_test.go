package capture

import (
	"errors"
	"testing"
)

func sampleDevices() []DeviceInfo {
	return []DeviceInfo{
		{Name: "USB Microphone Mono"},
		{Name: "HDA Intel PCH: ALC256 Analog"},
		{Name: "bluealsa"},
	}
}

func TestResolveDeviceDefaultAndPulse(t *testing.T) {
	for _, name := range []string{"", "default", "pulse"} {
		id, err := ResolveDevice(sampleDevices(), name)
		if err != nil {
			t.Fatalf("expected no error for %q, got %v", name, err)
		}
		if id != nil {
			t.Errorf("expected nil device id for %q (system default)", name)
		}
	}
}

func TestResolveDeviceSubstringMatch(t *testing.T) {
	devices := sampleDevices()
	id, err := ResolveDevice(devices, "Intel")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == nil {
		t.Fatal("expected a matched device id")
	}
}

func TestResolveDeviceCaseSensitive(t *testing.T) {
	devices := sampleDevices()
	_, err := ResolveDevice(devices, "intel") // lowercase, no match
	if !errors.Is(err, ErrNoMatchingDevice) {
		t.Errorf("expected ErrNoMatchingDevice for case mismatch, got %v", err)
	}
}

func TestResolveDeviceNoMatch(t *testing.T) {
	_, err := ResolveDevice(sampleDevices(), "Nonexistent Device")
	if !errors.Is(err, ErrNoMatchingDevice) {
		t.Errorf("expected ErrNoMatchingDevice, got %v", err)
	}
}
