package watcher

import (
	"context"
	"time"

	"github.com/uks-watch/flats-monitor/pkg/notifiers"
)

// EventPublisher fans a new-listing event out to the configured channels and
// reports how many delivered it.
type EventPublisher interface {
	Notify(ctx context.Context, evt notifiers.Event) (int, error)
}

// Deduper tracks which listing IDs have already been notified.
type Deduper interface {
	SeenListing(id string) (bool, error)
	MarkListing(id string) error
}

// CycleRecorder receives the completion timestamp of every poll cycle.
type CycleRecorder interface {
	RecordCycle(now time.Time) error
}
