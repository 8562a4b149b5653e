package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cwv-watch/internal/collector"
	"cwv-watch/internal/crux"
	"cwv-watch/internal/history"
	"cwv-watch/internal/report"
	"cwv-watch/internal/slack"

	"github.com/pkg/browser"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build the daily Core Web Vitals summary and post it to Slack",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RequireReport(); err != nil {
			return err
		}
		ctx := cmd.Context()

		result, err := report.BuildDaily(ctx, report.DailyParams{
			Origin:    cfg.Origin,
			Policy:    cfg.Policy,
			TotalURLs: resolveTotalURLs(cmd),
			Date:      time.Now().UTC().Truncate(24 * time.Hour),
			API:       crux.NewClient(cfg.CrUX),
			Store:     history.NewStore(cfg.HistoryPath, cfg.HistoryLimit),
		})
		if err != nil {
			return err
		}

		if preview {
			return previewDaily(result)
		}
		return report.Deliver(ctx, slack.New(cfg.Slack), result)
	},
}

// resolveTotalURLs picks the report denominator: the TOTAL_URLS override
// wins, otherwise the sitemap URL count. The crawl fallback is deliberately
// not used here; a crawl count is too unstable to divide by. No denominator
// means percentages only.
func resolveTotalURLs(cmd *cobra.Command) int {
	if cfg.TotalURLs > 0 {
		return cfg.TotalURLs
	}

	urls, err := collector.New(collector.Config{
		Origin:     cfg.Origin,
		SitemapURL: cfg.SitemapURL,
		MaxURLs:    cfg.MaxURLs,
	}).Collect(cmd.Context())
	if err != nil {
		log.Warn().Err(err).Msg("No sitemap URL count available, reporting percentages only")
		return 0
	}
	return len(urls)
}

// previewDaily renders the report locally: message to stdout, chart into the
// data directory and the default browser.
func previewDaily(result *report.DailyResult) error {
	fmt.Println(result.Message)

	if result.Chart == nil {
		return nil
	}
	chartPath := filepath.Join(cfg.DataPath, "cwv_trend.png")
	if err := os.WriteFile(chartPath, result.Chart, 0644); err != nil {
		return fmt.Errorf("failed to write chart preview: %w", err)
	}
	if err := browser.OpenFile(chartPath); err != nil {
		log.Warn().Err(err).Str("path", chartPath).Msg("Could not open chart in browser")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(reportCmd)
}
