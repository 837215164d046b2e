// Package health tracks poll-loop liveness. The monitor records a heartbeat
// after every completed cycle (successful or with handled fetch failures);
// the healthcheck binary probes the heartbeat file and reports staleness.
package health

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// Heartbeat is the durable liveness record read by the external probe.
type Heartbeat struct {
	App       string    `json:"app"`
	LastCycle time.Time `json:"last_cycle"`
	Cycles    uint64    `json:"cycles"`
}

// Tracker records cycle completions in-process and mirrors them to a file.
type Tracker struct {
	app       string
	path      string
	threshold time.Duration
	lastCycle atomic.Int64
	cycles    atomic.Uint64
}

// NewTracker builds a tracker writing heartbeats to path. A zero threshold
// disables Healthy checks (always healthy once a cycle completed).
func NewTracker(app, path string, threshold time.Duration) *Tracker {
	return &Tracker{
		app:       app,
		path:      path,
		threshold: threshold,
	}
}

// RecordCycle marks a completed poll cycle and persists the heartbeat file.
func (t *Tracker) RecordCycle(now time.Time) error {
	if t == nil {
		return nil
	}
	t.lastCycle.Store(now.UnixNano())
	t.cycles.Add(1)

	if t.path == "" {
		return nil
	}
	hb := Heartbeat{
		App:       t.app,
		LastCycle: now.UTC(),
		Cycles:    t.cycles.Load(),
	}
	return writeHeartbeat(t.path, hb)
}

// LastCycle returns the completion time of the most recent cycle (zero if none).
func (t *Tracker) LastCycle() time.Time {
	if t == nil {
		return time.Time{}
	}
	nanos := t.lastCycle.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

// Healthy reports whether a cycle completed within the staleness threshold.
func (t *Tracker) Healthy(now time.Time) bool {
	if t == nil {
		return false
	}
	last := t.LastCycle()
	if last.IsZero() {
		return false
	}
	if t.threshold <= 0 {
		return true
	}
	return now.Sub(last) <= t.threshold
}

// writeHeartbeat persists the heartbeat with a temp-file-then-rename so the
// probe process never observes a torn write.
func writeHeartbeat(path string, hb Heartbeat) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create heartbeat directory: %w", err)
		}
	}

	payload, err := json.Marshal(hb)
	if err != nil {
		return fmt.Errorf("marshal heartbeat: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".heartbeat-*")
	if err != nil {
		return fmt.Errorf("create heartbeat temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write heartbeat: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close heartbeat temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace heartbeat file: %w", err)
	}
	return nil
}

// Probe reads the heartbeat file and reports liveness against the threshold.
// A missing file is reported distinctly so callers can treat first-start grace
// differently from staleness.
func Probe(path string, threshold time.Duration, now time.Time) (bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, fmt.Errorf("heartbeat file missing: %w", err)
		}
		return false, fmt.Errorf("read heartbeat file: %w", err)
	}

	var hb Heartbeat
	if err := json.Unmarshal(raw, &hb); err != nil {
		return false, fmt.Errorf("decode heartbeat file: %w", err)
	}
	if hb.LastCycle.IsZero() {
		return false, fmt.Errorf("heartbeat has no cycle timestamp")
	}
	if threshold > 0 && now.Sub(hb.LastCycle) > threshold {
		return false, nil
	}
	return true, nil
}
