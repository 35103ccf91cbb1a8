package playback

import (
	"testing"
	"time"
)

func TestSinkWriteAndCloseStdinExitsCleanly(t *testing.T) {
	s, err := startSink("cat >/dev/null")
	if err != nil {
		t.Fatalf("startSink: %v", err)
	}
	if err := s.Write([]byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	s.CloseStdin()
	if err := s.Wait(2 * time.Second); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestSinkKillTerminatesBlockedProcess(t *testing.T) {
	s, err := startSink("cat >/dev/null")
	if err != nil {
		t.Fatalf("startSink: %v", err)
	}
	s.Kill()
	select {
	case <-s.Done():
	default:
		t.Fatal("expected sink to be done after Kill")
	}
}

func TestSinkWaitTimesOutAndKills(t *testing.T) {
	s, err := startSink("sleep 5")
	if err != nil {
		t.Fatalf("startSink: %v", err)
	}
	err = s.Wait(50 * time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	select {
	case <-s.Done():
	default:
		t.Fatal("expected sink to be reaped after timeout kill")
	}
}
