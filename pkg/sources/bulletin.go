package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/uks-watch/flats-monitor/internal/domain"
	"github.com/uks-watch/flats-monitor/internal/logger"
)

// defaultBulletinPattern matches the dated free-flats bulletin filenames the
// site publishes. Group 1 is the filename, group 2 the date digits.
const defaultBulletinPattern = `(free_flats_(\d{8})_?\.pdf)$`

// editionLayouts are tried in order; the site has used both over time.
var editionLayouts = []string{"20060102", "02012006"}

// bulletinFetcher scrapes the sales page for dated PDF bulletin links, picks
// the newest available edition and downloads it. The listing ID is the
// checksum of the PDF bytes, so a re-uploaded identical file never re-notifies
// while changed content under the same filename does.
type bulletinFetcher struct {
	client       HTTPClient
	downloadsDir string
	now          func() time.Time
}

// NewBulletinFetcher builds a fetcher for the free-flats PDF bulletin.
func NewBulletinFetcher(client HTTPClient, downloadsDir string) Fetcher {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &bulletinFetcher{
		client:       client,
		downloadsDir: downloadsDir,
		now:          time.Now,
	}
}

func (f *bulletinFetcher) ID() string {
	return TypeBulletinPDF
}

type bulletinCandidate struct {
	edition  time.Time
	filename string
	url      string
}

func (f *bulletinFetcher) Fetch(ctx context.Context, cfg Source) ([]domain.Listing, error) {
	if !strings.EqualFold(cfg.Type, TypeBulletinPDF) {
		return nil, fmt.Errorf("bulletin fetcher received incompatible source type %q", cfg.Type)
	}
	if strings.TrimSpace(cfg.SourceURL) == "" {
		return nil, fmt.Errorf("source %q source_url is empty", cfg.ID)
	}

	pattern, err := regexp.Compile(ConfigString(cfg, ConfigLinkPatternKey, defaultBulletinPattern))
	if err != nil {
		return nil, fmt.Errorf("source %q link_pattern: %w", cfg.ID, err)
	}

	headers := Headers(cfg)

	resp, err := f.client.Get(ctx, cfg.SourceURL, headers)
	if err != nil {
		return nil, fmt.Errorf("fetch %s page: %w", cfg.ID, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%s page returned status %d body: %s", cfg.ID, resp.StatusCode(), responseSnippet(resp.Body()))
	}

	candidates, err := f.collectCandidates(ctx, cfg, resp.Body(), pattern, headers)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	latest := candidates[0]
	for _, c := range candidates[1:] {
		if c.edition.After(latest.edition) {
			latest = c
		}
	}

	return f.download(ctx, cfg, latest, headers)
}

// collectCandidates extracts dated bulletin links and drops the ones whose
// document is not actually reachable yet (links often appear before upload).
func (f *bulletinFetcher) collectCandidates(ctx context.Context, cfg Source, body []byte, pattern *regexp.Regexp, headers map[string]string) ([]bulletinCandidate, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s page html: %w", cfg.ID, err)
	}

	var candidates []bulletinCandidate
	probed := false
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}

		m := pattern.FindStringSubmatch(strings.TrimSpace(href))
		if len(m) < 3 {
			return
		}
		filename, digits := m[1], m[2]

		edition, ok := parseEditionDate(digits)
		if !ok {
			return
		}

		abs, err := resolveURL(cfg.BaseURL, href)
		if err != nil {
			logger.WarnObj("bulletin candidate url unresolvable", "candidate_error", map[string]any{
				"source_id": cfg.ID,
				"href":      href,
				"error":     err.Error(),
			})
			return
		}

		// Throttle consecutive probes against the same host.
		if probed {
			sleepCtx(ctx, cfg.RequestDelay())
		}
		probed = true

		head, err := f.client.Head(ctx, abs, headers)
		if err != nil {
			logger.WarnObj("bulletin candidate head probe failed", "candidate_error", map[string]any{
				"source_id": cfg.ID,
				"url":       abs,
				"error":     err.Error(),
			})
			return
		}
		if head.StatusCode() != http.StatusOK {
			logger.DebugObj("bulletin candidate not reachable", "candidate_meta", map[string]any{
				"source_id":   cfg.ID,
				"url":         abs,
				"head_status": head.StatusCode(),
			})
			return
		}

		candidates = append(candidates, bulletinCandidate{
			edition:  edition,
			filename: filename,
			url:      abs,
		})
	})

	return candidates, nil
}

// download fetches the chosen edition, checksums it and stores the artifact.
func (f *bulletinFetcher) download(ctx context.Context, cfg Source, c bulletinCandidate, headers map[string]string) ([]domain.Listing, error) {
	resp, err := f.client.Get(ctx, c.url, headers)
	if err != nil {
		return nil, fmt.Errorf("download bulletin %s: %w", c.filename, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		// The link can precede the upload; try again next cycle.
		logger.WarnObj("bulletin not yet available", "bulletin_meta", map[string]any{
			"source_id": cfg.ID,
			"url":       c.url,
		})
		return nil, nil
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("bulletin %s returned status %d body: %s", c.filename, resp.StatusCode(), responseSnippet(resp.Body()))
	}

	data := resp.Body()
	if len(data) == 0 {
		return nil, fmt.Errorf("bulletin %s returned empty body", c.filename)
	}
	checksum := hashBytes(data)

	artifactPath, err := f.saveArtifact(c.filename, data)
	if err != nil {
		return nil, fmt.Errorf("save bulletin artifact: %w", err)
	}

	return []domain.Listing{{
		ID:           checksum,
		Kind:         domain.KindBulletin,
		Title:        c.filename,
		URL:          c.url,
		FetchedAt:    f.now().UTC(),
		Filename:     c.filename,
		Edition:      c.edition,
		Checksum:     checksum,
		ArtifactPath: artifactPath,
	}}, nil
}

func (f *bulletinFetcher) saveArtifact(filename string, data []byte) (string, error) {
	dir := f.downloadsDir
	if strings.TrimSpace(dir) == "" {
		dir = "downloads"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create downloads directory: %w", err)
	}

	path := filepath.Join(dir, filepath.Base(filename))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

func parseEditionDate(digits string) (time.Time, bool) {
	for _, layout := range editionLayouts {
		if t, err := time.Parse(layout, digits); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
