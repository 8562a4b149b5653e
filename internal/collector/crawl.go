package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
)

// crawlLink carries both forms of a discovered link: the resolved URL used
// for fetching and the canonical form used for deduplication and results.
type crawlLink struct {
	fetchURL  string
	canonical string
}

type crawlItem struct {
	fetchURL string
	depth    int
}

// crawlSite runs a bounded-depth same-host BFS from the origin, following
// only in-scope hyperlinks. Canonical URLs land in pages until the cap is
// reached. Per-page failures are logged and skipped.
func (c *Collector) crawlSite(ctx context.Context, pages *urlSet) error {
	start, ok := Normalize(c.origin, c.allowed)
	if !ok {
		return fmt.Errorf("origin %q does not normalize to a crawlable URL", c.origin)
	}

	pages.add(start)
	queue := []crawlItem{{fetchURL: c.origin, depth: 0}}

	for len(queue) > 0 && !pages.full() {
		if err := ctx.Err(); err != nil {
			return err
		}
		item := queue[0]
		queue = queue[1:]

		if item.depth >= c.crawlDepth {
			continue
		}

		links, err := c.extractLinks(ctx, item.fetchURL)
		if err != nil {
			log.Warn().Err(err).Str("url", item.fetchURL).Msg("Skipping uncrawlable page")
			continue
		}

		for _, link := range links {
			if pages.full() {
				break
			}
			if isAssetURL(link.canonical) || pages.has(link.canonical) {
				continue
			}
			pages.add(link.canonical)
			queue = append(queue, crawlItem{fetchURL: link.fetchURL, depth: item.depth + 1})
		}
	}

	log.Info().Int("urls", len(pages.order)).Msg("Crawl finished")
	return nil
}

// extractLinks fetches one HTML page and returns its in-scope hyperlinks,
// resolved against the page URL.
func (c *Collector) extractLinks(ctx context.Context, pageURL string) ([]crawlLink, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := c.fetchHTML(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	var links []crawlLink
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		if norm, ok := Normalize(resolved.String(), c.allowed); ok {
			links = append(links, crawlLink{fetchURL: resolved.String(), canonical: norm})
		}
	})
	return links, nil
}

// fetchHTML fetches a page and parses it, rejecting non-HTML content types.
func (c *Collector) fetchHTML(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch of %s returned status %d", pageURL, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "text/html") {
		return nil, fmt.Errorf("%s is not an HTML document (%s)", pageURL, ct)
	}

	return goquery.NewDocumentFromReader(resp.Body)
}

// Titles fetches the <title> of each given page, best-effort. Used to label
// reported pages; failures simply leave a URL without a title.
func (c *Collector) Titles(ctx context.Context, urls []string) map[string]string {
	titles := make(map[string]string, len(urls))
	for _, u := range urls {
		doc, err := c.fetchHTML(ctx, u)
		if err != nil {
			log.Debug().Err(err).Str("url", u).Msg("Could not fetch page title")
			continue
		}
		if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
			titles[u] = title
		}
	}
	return titles
}
