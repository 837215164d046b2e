package watcher

import "errors"

// All monitor errors are transient by design: the process never exits on them
// and the next cycle retries. The health probe is the external failure detector.
var (
	// ErrFetch marks a failed source fetch; the source is skipped this cycle.
	ErrFetch = errors.New("fetch failed")
	// ErrPersistence marks a failed state save; in-memory state covers until
	// the next successful save.
	ErrPersistence = errors.New("state persistence failed")
	// ErrDelivery marks a failed notification; the listing stays marked seen
	// (at-most-once delivery).
	ErrDelivery = errors.New("notification delivery failed")
)
