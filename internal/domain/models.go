// Package domain contains core models shared across packages.
package domain

import "time"

// Kind classifies what a listing represents.
type Kind string

const (
	KindBulletin Kind = "bulletin"
	KindNews     Kind = "news"
	KindPage     Kind = "page"
)

// Listing is a single unit of novelty discovered on a watched site: a new
// bulletin edition, a news post, or a tracked-page change. ID must be stable
// for identical content so the seen-set can deduplicate across restarts.
type Listing struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	FetchedAt time.Time `json:"fetched_at"`

	// Bulletin-only fields.
	Filename     string    `json:"filename,omitempty"`
	Edition      time.Time `json:"edition,omitempty"`
	Checksum     string    `json:"checksum,omitempty"`
	ArtifactPath string    `json:"artifact_path,omitempty"`
}
