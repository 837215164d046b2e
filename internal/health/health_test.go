package health

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTrackerHealthyWithinThreshold(t *testing.T) {
	tracker := NewTracker("monitor", "", time.Minute)

	if tracker.Healthy(time.Now()) {
		t.Fatalf("expected unhealthy before any cycle")
	}

	now := time.Now()
	if err := tracker.RecordCycle(now); err != nil {
		t.Fatalf("RecordCycle: %v", err)
	}

	if !tracker.Healthy(now.Add(30 * time.Second)) {
		t.Fatalf("expected healthy within threshold")
	}
	if tracker.Healthy(now.Add(2 * time.Minute)) {
		t.Fatalf("expected unhealthy past threshold")
	}
}

func TestRecordCycleWritesHeartbeatFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "heartbeat.json")
	tracker := NewTracker("monitor", path, time.Minute)

	now := time.Now()
	if err := tracker.RecordCycle(now); err != nil {
		t.Fatalf("RecordCycle: %v", err)
	}

	ok, err := Probe(path, time.Minute, now.Add(10*time.Second))
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !ok {
		t.Fatalf("expected probe healthy right after cycle")
	}

	ok, err = Probe(path, time.Minute, now.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("Probe stale: %v", err)
	}
	if ok {
		t.Fatalf("expected probe unhealthy past threshold")
	}
}

func TestProbeMissingAndCorruptFiles(t *testing.T) {
	dir := t.TempDir()

	if ok, err := Probe(filepath.Join(dir, "absent.json"), time.Minute, time.Now()); ok || err == nil {
		t.Fatalf("expected error for missing heartbeat, ok=%v err=%v", ok, err)
	}

	corrupt := filepath.Join(dir, "heartbeat.json")
	if err := os.WriteFile(corrupt, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	if ok, err := Probe(corrupt, time.Minute, time.Now()); ok || err == nil {
		t.Fatalf("expected error for corrupt heartbeat, ok=%v err=%v", ok, err)
	}
}
