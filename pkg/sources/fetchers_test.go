package sources

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"os"
	"testing"

	"github.com/uks-watch/flats-monitor/internal/domain"
	"github.com/uks-watch/flats-monitor/pkg/httpclient"
)

type fakeResponse struct {
	status int
	body   []byte
}

func (f fakeResponse) Body() []byte    { return f.body }
func (f fakeResponse) StatusCode() int { return f.status }

// fakeClient serves canned responses keyed by "METHOD url".
type fakeClient struct {
	responses map[string]fakeResponse
	errs      map[string]error
}

func (f *fakeClient) Get(_ context.Context, url string, _ map[string]string) (httpclient.Response, error) {
	return f.respond("GET " + url)
}

func (f *fakeClient) Head(_ context.Context, url string, _ map[string]string) (httpclient.Response, error) {
	return f.respond("HEAD " + url)
}

func (f *fakeClient) respond(key string) (httpclient.Response, error) {
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	if resp, ok := f.responses[key]; ok {
		return resp, nil
	}
	return fakeResponse{status: http.StatusNotFound}, nil
}

const salesPageHTML = `<html><body>
<a href="/files/free_flats_20240105.pdf">older edition</a>
<a href="/files/free_flats_20240112.pdf">newer edition</a>
<a href="/files/free_flats_20241599.pdf">bogus date</a>
<a href="/novosti/42">unrelated</a>
</body></html>`

func bulletinSource() Source {
	return Source{
		ID:             "flats",
		Name:           "Free flats bulletin",
		Type:           TypeBulletinPDF,
		SourceURL:      "https://example.test/centr-prodazh",
		BaseURL:        "https://example.test",
		RequestDelayMs: 1,
	}
}

func TestBulletinFetcherPicksNewestEdition(t *testing.T) {
	pdf := []byte("%PDF-1.4 newest edition bytes")
	client := &fakeClient{responses: map[string]fakeResponse{
		"GET https://example.test/centr-prodazh":                  {status: 200, body: []byte(salesPageHTML)},
		"HEAD https://example.test/files/free_flats_20240105.pdf": {status: 200},
		"HEAD https://example.test/files/free_flats_20240112.pdf": {status: 200},
		"GET https://example.test/files/free_flats_20240112.pdf":  {status: 200, body: pdf},
	}}

	dir := t.TempDir()
	fetcher := NewBulletinFetcher(client, dir)

	listings, err := fetcher.Fetch(context.Background(), bulletinSource())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("expected 1 listing, got %d", len(listings))
	}

	got := listings[0]
	if got.Filename != "free_flats_20240112.pdf" {
		t.Fatalf("expected newest edition, got %q", got.Filename)
	}
	sum := sha256.Sum256(pdf)
	if got.ID != hex.EncodeToString(sum[:]) || got.Checksum != got.ID {
		t.Fatalf("listing ID should be the content checksum, got %q", got.ID)
	}
	if got.Kind != domain.KindBulletin {
		t.Fatalf("unexpected kind %q", got.Kind)
	}

	data, err := os.ReadFile(got.ArtifactPath)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if string(data) != string(pdf) {
		t.Fatalf("artifact content mismatch")
	}
}

func TestBulletinFetcherSkipsUnreachableCandidates(t *testing.T) {
	pdf := []byte("%PDF-1.4 older edition bytes")
	client := &fakeClient{
		responses: map[string]fakeResponse{
			"GET https://example.test/centr-prodazh":                  {status: 200, body: []byte(salesPageHTML)},
			"HEAD https://example.test/files/free_flats_20240105.pdf": {status: 200},
			"HEAD https://example.test/files/free_flats_20240112.pdf": {status: 403},
			"GET https://example.test/files/free_flats_20240105.pdf":  {status: 200, body: pdf},
		},
	}

	fetcher := NewBulletinFetcher(client, t.TempDir())
	listings, err := fetcher.Fetch(context.Background(), bulletinSource())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(listings) != 1 || listings[0].Filename != "free_flats_20240105.pdf" {
		t.Fatalf("expected fallback to reachable edition, got %+v", listings)
	}
}

func TestBulletinFetcherToleratesPendingUpload(t *testing.T) {
	client := &fakeClient{responses: map[string]fakeResponse{
		"GET https://example.test/centr-prodazh":                  {status: 200, body: []byte(salesPageHTML)},
		"HEAD https://example.test/files/free_flats_20240105.pdf": {status: 404},
		"HEAD https://example.test/files/free_flats_20240112.pdf": {status: 200},
		// The dated link is live for HEAD but the body 404s on GET.
		"GET https://example.test/files/free_flats_20240112.pdf": {status: 404},
	}}

	fetcher := NewBulletinFetcher(client, t.TempDir())
	listings, err := fetcher.Fetch(context.Background(), bulletinSource())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(listings) != 0 {
		t.Fatalf("expected no listings for pending upload, got %d", len(listings))
	}
}

func TestBulletinFetcherErrorsOnPageFailure(t *testing.T) {
	client := &fakeClient{errs: map[string]error{
		"GET https://example.test/centr-prodazh": errors.New("connection refused"),
	}}

	fetcher := NewBulletinFetcher(client, t.TempDir())
	if _, err := fetcher.Fetch(context.Background(), bulletinSource()); err == nil {
		t.Fatalf("expected fetch error")
	}
}

func TestNewsFetcherTakesFirstMatchingAnchor(t *testing.T) {
	page := `<html><body>
<a href="/centr-prodazh">sales</a>
<a href="/novosti/101">First post title</a>
<a href="/novosti/100">Older post</a>
</body></html>`
	client := &fakeClient{responses: map[string]fakeResponse{
		"GET https://example.test/novosti": {status: 200, body: []byte(page)},
	}}

	fetcher := NewNewsFetcher(client)
	listings, err := fetcher.Fetch(context.Background(), Source{
		ID:        "news",
		Name:      "News",
		Type:      TypeNewsPage,
		SourceURL: "https://example.test/novosti",
		BaseURL:   "https://example.test",
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("expected 1 listing, got %d", len(listings))
	}
	got := listings[0]
	if got.URL != "https://example.test/novosti/101" {
		t.Fatalf("unexpected url %q", got.URL)
	}
	if got.Title != "First post title" {
		t.Fatalf("unexpected title %q", got.Title)
	}
	if got.Kind != domain.KindNews {
		t.Fatalf("unexpected kind %q", got.Kind)
	}
}

func TestNewsFetcherNoMatchYieldsNoListings(t *testing.T) {
	client := &fakeClient{responses: map[string]fakeResponse{
		"GET https://example.test/novosti": {status: 200, body: []byte(`<html><body><a href="/other">x</a></body></html>`)},
	}}

	fetcher := NewNewsFetcher(client)
	listings, err := fetcher.Fetch(context.Background(), Source{
		ID:        "news",
		Name:      "News",
		Type:      TypeNewsPage,
		SourceURL: "https://example.test/novosti",
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(listings) != 0 {
		t.Fatalf("expected no listings, got %d", len(listings))
	}
}

// memChecksums is an in-memory ChecksumStore with an injectable read error.
type memChecksums struct {
	sums    map[string]string
	readErr error
}

func (m *memChecksums) Checksum(key string) (string, error) {
	if m.readErr != nil {
		return "", m.readErr
	}
	return m.sums[key], nil
}
func (m *memChecksums) SetChecksum(key, sum string) error {
	if m.sums == nil {
		m.sums = make(map[string]string)
	}
	m.sums[key] = sum
	return nil
}

func TestPageFetcherEmitsOnlyOnChange(t *testing.T) {
	client := &fakeClient{responses: map[string]fakeResponse{
		"GET https://example.test/stranica-1": {status: 200, body: []byte(`<html><body><p>original content</p></body></html>`)},
	}}
	checksums := &memChecksums{}
	fetcher := NewPageFetcher(client, checksums)
	cfg := Source{
		ID:        "stranica-1",
		Name:      "Queue page",
		Type:      TypePageWatch,
		SourceURL: "https://example.test/stranica-1",
	}

	// First observation seeds the baseline without notifying.
	listings, err := fetcher.Fetch(context.Background(), cfg)
	if err != nil {
		t.Fatalf("first Fetch: %v", err)
	}
	if len(listings) != 0 {
		t.Fatalf("expected baseline seeding to emit nothing, got %d", len(listings))
	}

	// Unchanged content stays silent.
	listings, err = fetcher.Fetch(context.Background(), cfg)
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if len(listings) != 0 {
		t.Fatalf("expected no listings for unchanged page, got %d", len(listings))
	}

	// Changed content emits exactly one listing.
	client.responses["GET https://example.test/stranica-1"] = fakeResponse{
		status: 200,
		body:   []byte(`<html><body><p>updated content</p></body></html>`),
	}
	listings, err = fetcher.Fetch(context.Background(), cfg)
	if err != nil {
		t.Fatalf("third Fetch: %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("expected 1 listing for changed page, got %d", len(listings))
	}
	if listings[0].Kind != domain.KindPage || listings[0].Title != "Queue page updated" {
		t.Fatalf("unexpected listing %+v", listings[0])
	}
}

func TestPageFetcherSkipsCycleOnChecksumReadFailure(t *testing.T) {
	client := &fakeClient{responses: map[string]fakeResponse{
		"GET https://example.test/stranica-1": {status: 200, body: []byte(`<html><body><p>changed content</p></body></html>`)},
	}}
	checksums := &memChecksums{
		sums:    map[string]string{"page:stranica-1": "old-baseline-sum"},
		readErr: errors.New("db locked"),
	}
	fetcher := NewPageFetcher(client, checksums)
	cfg := Source{
		ID:        "stranica-1",
		Name:      "Queue page",
		Type:      TypePageWatch,
		SourceURL: "https://example.test/stranica-1",
	}

	// A broken baseline read must not seed over the stored checksum or drop
	// the pending change.
	listings, err := fetcher.Fetch(context.Background(), cfg)
	if err == nil {
		t.Fatalf("expected error when checksum lookup fails")
	}
	if len(listings) != 0 {
		t.Fatalf("expected no listings on failed lookup, got %d", len(listings))
	}
	if checksums.sums["page:stranica-1"] != "old-baseline-sum" {
		t.Fatalf("baseline must be untouched, got %q", checksums.sums["page:stranica-1"])
	}

	// Once the store recovers, the change is detected against the old baseline.
	checksums.readErr = nil
	listings, err = fetcher.Fetch(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Fetch after recovery: %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("expected the change to be emitted after recovery, got %d listings", len(listings))
	}
}

func TestPageFetcherIgnoresMarkupOnlyChanges(t *testing.T) {
	client := &fakeClient{responses: map[string]fakeResponse{
		"GET https://example.test/stranica-1": {status: 200, body: []byte(`<html><body><p>same text</p></body></html>`)},
	}}
	checksums := &memChecksums{}
	fetcher := NewPageFetcher(client, checksums)
	cfg := Source{
		ID:        "stranica-1",
		Name:      "Queue page",
		Type:      TypePageWatch,
		SourceURL: "https://example.test/stranica-1",
	}

	if _, err := fetcher.Fetch(context.Background(), cfg); err != nil {
		t.Fatalf("seed Fetch: %v", err)
	}

	// Same visible text wrapped in different markup should not re-notify.
	client.responses["GET https://example.test/stranica-1"] = fakeResponse{
		status: 200,
		body:   []byte(`<html><body><div><span>same text</span></div></body></html>`),
	}
	listings, err := fetcher.Fetch(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(listings) != 0 {
		t.Fatalf("expected markup-only change to stay silent, got %d listings", len(listings))
	}
}

func TestDefaultFetcherRegistryResolvesByType(t *testing.T) {
	reg := DefaultFetcherRegistry(&fakeClient{}, &memChecksums{}, t.TempDir())

	for _, typ := range []string{TypeBulletinPDF, TypeNewsPage, TypePageWatch} {
		f, err := reg.FetcherFor(Source{ID: "s", Type: typ})
		if err != nil {
			t.Fatalf("FetcherFor(%s): %v", typ, err)
		}
		if f.ID() != typ {
			t.Fatalf("expected fetcher %s, got %s", typ, f.ID())
		}
	}

	if _, err := reg.FetcherFor(Source{ID: "s", Type: "unknown"}); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}
