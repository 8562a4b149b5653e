package collector

import (
	"bufio"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// conventionalSitemapPaths are probed in order when no explicit sitemap URL
// is configured. The wp-sitemap variant covers WordPress installs.
var conventionalSitemapPaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/wp-sitemap.xml",
}

// sitemapDoc decodes both sitemap document shapes: a urlset carries page
// locations, a sitemapindex carries child sitemap locations. The XMLName
// captures which root element was present.
type sitemapDoc struct {
	XMLName  xml.Name
	Sitemaps []locEntry `xml:"sitemap"`
	URLs     []locEntry `xml:"url"`
}

type locEntry struct {
	Loc string `xml:"loc"`
}

// parseSitemap splits a sitemap document into page URLs and child sitemap
// URLs. Neither list is normalized yet.
func parseSitemap(data []byte) (pages []string, children []string, err error) {
	var doc sitemapDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("malformed sitemap XML: %w", err)
	}

	switch doc.XMLName.Local {
	case "urlset":
		for _, u := range doc.URLs {
			if loc := strings.TrimSpace(u.Loc); loc != "" {
				pages = append(pages, loc)
			}
		}
	case "sitemapindex":
		for _, s := range doc.Sitemaps {
			if loc := strings.TrimSpace(s.Loc); loc != "" {
				children = append(children, loc)
			}
		}
	default:
		return nil, nil, fmt.Errorf("unexpected sitemap root element %q", doc.XMLName.Local)
	}
	return pages, children, nil
}

// expandSitemap fetches a sitemap URL and recursively expands sitemap-index
// documents, adding normalized page URLs to pages. Visited sitemap URLs are
// never fetched twice in one run, which also breaks index cycles.
func (c *Collector) expandSitemap(ctx context.Context, sitemapURL string, visited map[string]bool, pages *urlSet) error {
	if visited[sitemapURL] {
		return nil
	}
	visited[sitemapURL] = true

	data, err := c.fetch(ctx, sitemapURL)
	if err != nil {
		return err
	}

	pageLocs, children, err := parseSitemap(data)
	if err != nil {
		return err
	}

	for _, loc := range pageLocs {
		if pages.full() {
			return nil
		}
		if norm, ok := Normalize(loc, c.allowed); ok && !isAssetURL(norm) {
			pages.add(norm)
		}
	}

	for _, child := range children {
		if pages.full() {
			return nil
		}
		if err := c.expandSitemap(ctx, child, visited, pages); err != nil {
			// One broken child sitemap does not abort the others.
			log.Warn().Err(err).Str("sitemap", child).Msg("Skipping child sitemap")
		}
	}
	return nil
}

// discoverSitemaps returns the candidate sitemap URLs in preference order:
// the explicitly configured one, then conventional paths, then any sitemaps
// declared in robots.txt.
func (c *Collector) discoverSitemaps(ctx context.Context) []string {
	if c.sitemapURL != "" {
		return []string{c.sitemapURL}
	}

	var candidates []string
	base := strings.TrimSuffix(c.origin, "/")
	for _, p := range conventionalSitemapPaths {
		candidates = append(candidates, base+p)
	}
	candidates = append(candidates, c.robotsSitemaps(ctx, base)...)
	return candidates
}

// robotsSitemaps extracts Sitemap directives from the origin's robots.txt.
func (c *Collector) robotsSitemaps(ctx context.Context, base string) []string {
	data, err := c.fetch(ctx, base+"/robots.txt")
	if err != nil {
		log.Debug().Err(err).Msg("No robots.txt available")
		return nil
	}

	var sitemaps []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) < 8 || !strings.EqualFold(line[:8], "sitemap:") {
			continue
		}
		if loc := strings.TrimSpace(line[8:]); loc != "" {
			sitemaps = append(sitemaps, loc)
		}
	}
	return sitemaps
}
