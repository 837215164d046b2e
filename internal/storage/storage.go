// Package storage provides the durable monitor state: the seen-set of notified
// listing IDs and per-source content checksums.
package storage

import (
	"fmt"
	"strings"
	"time"
)

// Store tracks notified listing IDs and watched-page checksums.
type Store interface {
	Close() error
	SeenListing(id string) (bool, error)
	MarkListing(id string) error
	Checksum(key string) (string, error)
	SetChecksum(key, sum string) error
}

// Options controls retention characteristics for concrete store implementations.
type Options struct {
	ListingTTL      time.Duration
	CleanupInterval time.Duration
}

const (
	defaultListingTTL      = 120 * 24 * time.Hour
	defaultCleanupInterval = 12 * time.Hour
)

// NewStore creates the configured storage backend.
func NewStore(typ, path string, opts Options) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "", "none", "disabled":
		return noopStore{}, nil
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(path, opts)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.ListingTTL <= 0 {
		opts.ListingTTL = defaultListingTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	return opts
}

type noopStore struct{}

func (noopStore) Close() error                     { return nil }
func (noopStore) SeenListing(string) (bool, error) { return false, nil }
func (noopStore) MarkListing(string) error         { return nil }
func (noopStore) Checksum(string) (string, error)  { return "", nil }
func (noopStore) SetChecksum(string, string) error { return nil }
