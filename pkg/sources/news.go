package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/uks-watch/flats-monitor/internal/domain"
)

// defaultNewsPattern matches relative hrefs of news posts on the watched site.
const defaultNewsPattern = `^/novosti/`

// newsFetcher extracts the most recent news post from the news page. The
// listing ID is the hash of the absolute post URL.
type newsFetcher struct {
	client HTTPClient
	now    func() time.Time
}

// NewNewsFetcher builds a fetcher for the site news page.
func NewNewsFetcher(client HTTPClient) Fetcher {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &newsFetcher{
		client: client,
		now:    time.Now,
	}
}

func (f *newsFetcher) ID() string {
	return TypeNewsPage
}

func (f *newsFetcher) Fetch(ctx context.Context, cfg Source) ([]domain.Listing, error) {
	if !strings.EqualFold(cfg.Type, TypeNewsPage) {
		return nil, fmt.Errorf("news fetcher received incompatible source type %q", cfg.Type)
	}
	if strings.TrimSpace(cfg.SourceURL) == "" {
		return nil, fmt.Errorf("source %q source_url is empty", cfg.ID)
	}

	pattern, err := regexp.Compile(ConfigString(cfg, ConfigLinkPatternKey, defaultNewsPattern))
	if err != nil {
		return nil, fmt.Errorf("source %q link_pattern: %w", cfg.ID, err)
	}

	resp, err := f.client.Get(ctx, cfg.SourceURL, Headers(cfg))
	if err != nil {
		return nil, fmt.Errorf("fetch %s page: %w", cfg.ID, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%s page returned status %d body: %s", cfg.ID, resp.StatusCode(), responseSnippet(resp.Body()))
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("parse %s page html: %w", cfg.ID, err)
	}

	// News pages list posts newest-first; the first matching anchor is the
	// latest post.
	var listing *domain.Listing
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok || !pattern.MatchString(strings.TrimSpace(href)) {
			return true
		}

		abs, err := resolveURL(cfg.BaseURL, href)
		if err != nil {
			return true
		}

		title := strings.TrimSpace(sel.Text())
		if title == "" {
			title = abs
		}

		listing = &domain.Listing{
			ID:        hashString(abs),
			Kind:      domain.KindNews,
			Title:     title,
			URL:       abs,
			FetchedAt: f.now().UTC(),
		}
		return false
	})

	if listing == nil {
		return nil, nil
	}
	return []domain.Listing{*listing}, nil
}
