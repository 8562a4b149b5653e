package report

import (
	"fmt"
	"math"
	"strings"
	"time"

	"cwv-watch/internal/crux"
	"cwv-watch/internal/psi"
	"cwv-watch/internal/vitals"
)

// DefaultPoorLimit caps how many poor pages the audit message lists.
const DefaultPoorLimit = 20

// Snapshot is one day's origin-level verdict per device class, as fractions
// in the 0-1 range. Device classes without CrUX data are absent.
type Snapshot struct {
	Date    time.Time
	Devices map[crux.FormFactor]vitals.Distribution
}

// FormatDaily renders the daily report message. When totalURLs is positive it
// is used as the denominator for estimated page counts; otherwise the message
// carries percentages only.
func FormatDaily(origin string, snap *Snapshot, totalURLs int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Core Web Vitals – Daily (`%s`)*\n", origin)
	fmt.Fprintf(&b, "_Date_: %s\n", snap.Date.Format("2006-01-02"))
	if totalURLs > 0 {
		fmt.Fprintf(&b, "_Total indexed est._: *%d URLs*\n", totalURLs)
	}

	for _, ff := range crux.FormFactors {
		dist, ok := snap.Devices[ff]
		if !ok {
			fmt.Fprintf(&b, "*%s* → no field data\n", ff.Label())
			continue
		}
		if totalURLs > 0 {
			fmt.Fprintf(&b, "*%s* → good %.1f%% (%d) | ni %.1f%% (%d) | poor %.1f%% (%d)\n",
				ff.Label(),
				dist.Good*100, estimate(dist.Good, totalURLs),
				dist.NI*100, estimate(dist.NI, totalURLs),
				dist.Poor*100, estimate(dist.Poor, totalURLs))
		} else {
			fmt.Fprintf(&b, "*%s* → good %.1f%% | ni %.1f%% | poor %.1f%%\n",
				ff.Label(), dist.Good*100, dist.NI*100, dist.Poor*100)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func estimate(fraction float64, total int) int {
	return int(math.Round(fraction * float64(total)))
}

// SlowDetail is one poor metric of a page with its formatted p75 value.
type SlowDetail struct {
	Metric vitals.Metric
	Value  string
}

// PageIssue is one page with at least one poor field metric on some strategy.
type PageIssue struct {
	URL  string
	Slow map[psi.Strategy][]SlowDetail
}

// FormatAudit renders the audit message: an all-clear line when no page is
// poor, otherwise a capped list with a "+N more" suffix. Titles label the
// linked pages when available.
func FormatAudit(origin string, issues []PageIssue, titles map[string]string, limit int) string {
	if limit <= 0 {
		limit = DefaultPoorLimit
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*Core Web Vitals – Page Audit (`%s`)*\n", origin)

	if len(issues) == 0 {
		b.WriteString("All pages pass the Core Web Vitals field thresholds. 🎉")
		return b.String()
	}

	fmt.Fprintf(&b, "%d page(s) have poor field metrics:\n", len(issues))
	shown := issues
	if len(shown) > limit {
		shown = shown[:limit]
	}

	for _, issue := range shown {
		b.WriteString("- " + slackLink(issue.URL, titles[issue.URL]) + ": ")

		var parts []string
		for _, strategy := range psi.Strategies {
			details, ok := issue.Slow[strategy]
			if !ok || len(details) == 0 {
				continue
			}
			var metrics []string
			for _, d := range details {
				metrics = append(metrics, fmt.Sprintf("%s %s", shortName(d.Metric), d.Value))
			}
			parts = append(parts, fmt.Sprintf("%s – %s", strategy.Label(), strings.Join(metrics, ", ")))
		}
		b.WriteString(strings.Join(parts, "; ") + "\n")
	}

	if rest := len(issues) - len(shown); rest > 0 {
		fmt.Fprintf(&b, "…and %d more\n", rest)
	}
	return strings.TrimRight(b.String(), "\n")
}

// slackLink builds Slack's <url|text> link syntax. The pipe is Slack's link
// delimiter, so titles containing one get it replaced.
func slackLink(url, title string) string {
	if title == "" {
		return fmt.Sprintf("<%s>", url)
	}
	title = strings.ReplaceAll(title, "|", "¦")
	return fmt.Sprintf("<%s|%s>", url, title)
}

func shortName(m vitals.Metric) string {
	switch m {
	case vitals.LCP:
		return "LCP"
	case vitals.INP:
		return "INP"
	case vitals.CLS:
		return "CLS"
	}
	return string(m)
}
