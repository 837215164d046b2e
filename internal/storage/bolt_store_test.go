package storage

import (
	"testing"
	"time"
)

func TestBoltStoreMarksAndExpiresListings(t *testing.T) {
	dir := t.TempDir()
	opts := Options{
		ListingTTL:      1 * time.Second,
		CleanupInterval: 1 * time.Second,
	}

	storeRaw, err := openBolt(dir+"/seen.db", opts)
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	store := storeRaw.(*boltStore)
	defer store.Close()

	seen, err := store.SeenListing("id1")
	if err != nil || seen {
		t.Fatalf("expected unseen listing, seen=%v err=%v", seen, err)
	}

	if err := store.MarkListing("id1"); err != nil {
		t.Fatalf("MarkListing: %v", err)
	}

	seen, err = store.SeenListing("id1")
	if err != nil || !seen {
		t.Fatalf("expected listing marked as seen, got seen=%v err=%v", seen, err)
	}

	// Fast-forward cleanup cadence and trigger expiry.
	store.lastCleanup.Store(time.Now().Add(-2 * time.Second).Unix())
	time.Sleep(1100 * time.Millisecond)

	seen, err = store.SeenListing("id1")
	if err != nil {
		t.Fatalf("SeenListing after expiry: %v", err)
	}
	if seen {
		t.Fatalf("expected entry to expire and be removed")
	}
}

func TestBoltStoreSeenSurvivesReopen(t *testing.T) {
	path := t.TempDir() + "/seen.db"

	store, err := openBolt(path, Options{})
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	if err := store.MarkListing("persisted"); err != nil {
		t.Fatalf("MarkListing: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := openBolt(path, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	seen, err := reopened.SeenListing("persisted")
	if err != nil || !seen {
		t.Fatalf("expected listing to survive reopen, seen=%v err=%v", seen, err)
	}
}

func TestBoltStoreChecksumRoundTrip(t *testing.T) {
	store, err := openBolt(t.TempDir()+"/seen.db", Options{})
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	defer store.Close()

	sum, err := store.Checksum("page:stranica-1")
	if err != nil || sum != "" {
		t.Fatalf("expected empty checksum, got %q err=%v", sum, err)
	}

	if err := store.SetChecksum("page:stranica-1", "abc123"); err != nil {
		t.Fatalf("SetChecksum: %v", err)
	}
	sum, err = store.Checksum("page:stranica-1")
	if err != nil || sum != "abc123" {
		t.Fatalf("checksum round trip failed, got %q err=%v", sum, err)
	}
}

func TestNewStoreSupportsNoop(t *testing.T) {
	store, err := NewStore("none", "", Options{})
	if err != nil {
		t.Fatalf("NewStore none: %v", err)
	}
	if err := store.MarkListing("x"); err != nil {
		t.Fatalf("noop store MarkListing: %v", err)
	}
	if err := store.SetChecksum("k", "v"); err != nil {
		t.Fatalf("noop store SetChecksum: %v", err)
	}
}
