package collector

import (
	"net/url"
	"strings"
)

// assetExtensions are link targets excluded from the page set. These are
// downloadable assets, not HTML documents.
var assetExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".svg", ".webp", ".ico",
	".pdf", ".zip", ".rar", ".7z", ".tar", ".gz",
	".css", ".js", ".json", ".xml", ".mp4", ".mp3", ".webm", ".woff", ".woff2",
}

// Normalize canonicalizes a discovered URL and enforces the host allow-list:
//   - scheme forced to https (bare http is upgraded, anything else rejected)
//   - query, fragment and userinfo stripped
//   - trailing slash removed except on the root path
//   - hosts outside the allow-list rejected
//
// Returns ok=false for rejected URLs.
func Normalize(raw string, allowed map[string]bool) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}

	switch parsed.Scheme {
	case "http", "https", "":
		parsed.Scheme = "https"
	default:
		return "", false
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" || !allowed[host] {
		return "", false
	}

	path := parsed.Path
	if path == "" {
		path = "/"
	}
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}

	canonical := url.URL{Scheme: "https", Host: host, Path: path}
	return canonical.String(), true
}

// AllowedHosts builds the host allow-list for an origin: the origin's host
// plus its www counterpart (or the bare host when the origin itself is www).
func AllowedHosts(origin string) map[string]bool {
	allowed := make(map[string]bool)
	parsed, err := url.Parse(origin)
	if err != nil {
		return allowed
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return allowed
	}
	allowed[host] = true
	if strings.HasPrefix(host, "www.") {
		allowed[strings.TrimPrefix(host, "www.")] = true
	} else {
		allowed["www."+host] = true
	}
	return allowed
}

// isAssetURL reports whether the normalized URL points at a non-HTML asset.
func isAssetURL(u string) bool {
	lower := strings.ToLower(u)
	for _, ext := range assetExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
