package notifiers

import (
	"time"

	"github.com/uks-watch/flats-monitor/internal/domain"
)

// Event represents the payload delivered to notification channels.
type Event struct {
	SourceID    string         `json:"source_id"`
	SourceName  string         `json:"source_name"`
	Listing     domain.Listing `json:"listing"`
	CollectedAt time.Time      `json:"collected_at"`
}

// NewEvent constructs an Event for the given source + listing.
func NewEvent(sourceID, sourceName string, listing domain.Listing) Event {
	return Event{
		SourceID:    sourceID,
		SourceName:  sourceName,
		Listing:     listing,
		CollectedAt: time.Now().UTC(),
	}
}
