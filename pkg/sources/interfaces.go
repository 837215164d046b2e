package sources

import (
	"context"

	"github.com/uks-watch/flats-monitor/internal/domain"
	"github.com/uks-watch/flats-monitor/pkg/httpclient"
)

// Fetcher is responsible for retrieving and extracting listings for a source.
// Concrete implementations live in source-specific files (e.g., bulletin.go).
type Fetcher interface {
	ID() string
	Fetch(ctx context.Context, cfg Source) ([]domain.Listing, error)
}

// FetcherRegistry resolves the fetcher implementation for a given source config.
type FetcherRegistry interface {
	FetcherFor(cfg Source) (Fetcher, error)
}

// ChecksumStore is the slice of the storage layer the page-watch fetcher needs
// to remember the last observed content checksum per source.
type ChecksumStore interface {
	Checksum(key string) (string, error)
	SetChecksum(key, sum string) error
}

// HTTPClient aliases the shared httpclient.Client interface for clarity within sources.
type HTTPClient = httpclient.Client
