package report

import (
	"context"
	"errors"
	"slices"
	"strings"

	"cwv-watch/internal/psi"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// PageChecker is the slice of the PSI client the audit needs.
type PageChecker interface {
	Check(ctx context.Context, pageURL string, strategy psi.Strategy) (*psi.PageVitals, error)
}

// AuditParams collects the inputs of one page audit run.
type AuditParams struct {
	URLs    []string
	Workers int
	Checker PageChecker
}

// AuditResult is the collected outcome of a page audit sweep.
type AuditResult struct {
	Issues  []PageIssue
	Checked int
	NoData  int
	Failed  int
}

// RunAudit fans the URL set out over a bounded worker pool, checking every
// page on both strategies. Per-page failures and pages without field data are
// counted and skipped; they never fail the run and never count as poor.
func RunAudit(ctx context.Context, p AuditParams) (*AuditResult, error) {
	if p.Workers <= 0 {
		p.Workers = 5
	}

	type pageOutcome struct {
		issue  *PageIssue
		noData int
		failed int
	}

	results := make(chan pageOutcome, len(p.URLs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Workers)

	for _, pageURL := range p.URLs {
		pageURL := pageURL
		g.Go(func() error {
			outcome := pageOutcome{}
			slow := make(map[psi.Strategy][]SlowDetail)

			for _, strategy := range psi.Strategies {
				pv, err := p.Checker.Check(ctx, pageURL, strategy)
				if err != nil {
					if errors.Is(err, psi.ErrNoFieldData) {
						outcome.noData++
					} else {
						log.Warn().Err(err).Str("url", pageURL).Str("strategy", string(strategy)).Msg("PSI check failed, skipping")
						outcome.failed++
					}
					continue
				}

				for _, m := range pv.SlowMetrics() {
					slow[strategy] = append(slow[strategy], SlowDetail{
						Metric: m,
						Value:  psi.FormatValue(m, pv.Metrics[m].Percentile),
					})
				}
			}

			if len(slow) > 0 {
				outcome.issue = &PageIssue{URL: pageURL, Slow: slow}
			}
			results <- outcome
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(results)

	result := &AuditResult{Checked: len(p.URLs)}
	for outcome := range results {
		result.NoData += outcome.noData
		result.Failed += outcome.failed
		if outcome.issue != nil {
			result.Issues = append(result.Issues, *outcome.issue)
		}
	}

	slices.SortFunc(result.Issues, func(a, b PageIssue) int {
		return strings.Compare(a.URL, b.URL)
	})

	log.Info().
		Int("checked", result.Checked).
		Int("poor", len(result.Issues)).
		Int("noData", result.NoData).
		Int("failed", result.Failed).
		Msg("Page audit finished")
	return result, nil
}
