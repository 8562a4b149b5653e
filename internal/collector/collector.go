package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// maxFetchBytes caps how much of any fetched document is read. Sitemaps for
// large sites run to a few MB; anything beyond this is truncated.
const maxFetchBytes = 16 << 20

// Config holds the collection settings for one site.
type Config struct {
	// Origin is the site root, e.g. https://good-apps.jp.
	Origin string
	// SitemapURL, when set, is used instead of sitemap discovery.
	SitemapURL string
	// MaxURLs caps the result set to bound downstream API call volume.
	MaxURLs int
	// CrawlDepth bounds the fallback BFS crawl.
	CrawlDepth int
	// CrawlFallback enables the crawl when no sitemap is found.
	CrawlFallback bool
	// Timeout applies to each individual fetch.
	Timeout time.Duration
}

// Collector discovers the set of pages to monitor for one site.
type Collector struct {
	origin     string
	sitemapURL string
	allowed    map[string]bool
	maxURLs    int
	crawlDepth int
	crawl      bool
	httpClient *http.Client
}

// New creates a Collector with defaults filled in.
func New(cfg Config) *Collector {
	if cfg.MaxURLs == 0 {
		cfg.MaxURLs = 2000
	}
	if cfg.CrawlDepth == 0 {
		cfg.CrawlDepth = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Collector{
		origin:     cfg.Origin,
		sitemapURL: cfg.SitemapURL,
		allowed:    AllowedHosts(cfg.Origin),
		maxURLs:    cfg.MaxURLs,
		crawlDepth: cfg.CrawlDepth,
		crawl:      cfg.CrawlFallback,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// urlSet is an insertion-ordered, capped, deduplicated URL collection.
type urlSet struct {
	seen  map[string]bool
	order []string
	cap   int
}

func newURLSet(cap int) *urlSet {
	return &urlSet{seen: make(map[string]bool), cap: cap}
}

func (s *urlSet) add(u string) bool {
	if s.seen[u] || s.full() {
		return false
	}
	s.seen[u] = true
	s.order = append(s.order, u)
	return true
}

func (s *urlSet) has(u string) bool { return s.seen[u] }
func (s *urlSet) full() bool        { return len(s.order) >= s.cap }

// Collect discovers the site's page URLs. Sitemaps are tried first in the
// fixed preference order; the bounded crawl only runs as a fallback and only
// when enabled. The result is normalized, deduplicated and capped.
func (c *Collector) Collect(ctx context.Context) ([]string, error) {
	pages := newURLSet(c.maxURLs)
	visited := make(map[string]bool)

	for _, candidate := range c.discoverSitemaps(ctx) {
		if err := c.expandSitemap(ctx, candidate, visited, pages); err != nil {
			log.Debug().Err(err).Str("sitemap", candidate).Msg("Sitemap candidate unusable")
			continue
		}
		if len(pages.order) > 0 {
			log.Info().Int("urls", len(pages.order)).Str("sitemap", candidate).Msg("Collected URLs from sitemap")
			return pages.order, nil
		}
	}

	if !c.crawl {
		return nil, fmt.Errorf("no usable sitemap found for %s", c.origin)
	}

	log.Info().Str("origin", c.origin).Int("depth", c.crawlDepth).Msg("No sitemap found, falling back to crawl")
	if err := c.crawlSite(ctx, pages); err != nil {
		return nil, err
	}
	return pages.order, nil
}

// fetch retrieves one document with the collector's per-request timeout.
func (c *Collector) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch of %s returned status %d", rawURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rawURL, err)
	}
	return data, nil
}
