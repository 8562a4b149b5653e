package commands

import (
	"fmt"

	"cwv-watch/internal/collector"
	"cwv-watch/internal/psi"
	"cwv-watch/internal/report"
	"cwv-watch/internal/slack"

	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Check every collected page against PSI field data and report the slow ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RequireAudit(); err != nil {
			return err
		}
		ctx := cmd.Context()

		pages := collector.New(collector.Config{
			Origin:        cfg.Origin,
			SitemapURL:    cfg.SitemapURL,
			MaxURLs:       cfg.MaxURLs,
			CrawlDepth:    cfg.CrawlDepth,
			CrawlFallback: true,
		})
		urls, err := pages.Collect(ctx)
		if err != nil {
			return err
		}

		result, err := report.RunAudit(ctx, report.AuditParams{
			URLs:    urls,
			Workers: cfg.Workers,
			Checker: psi.NewClient(cfg.PSI),
		})
		if err != nil {
			return err
		}

		var titles map[string]string
		if len(result.Issues) > 0 {
			issueURLs := make([]string, 0, len(result.Issues))
			for _, issue := range result.Issues {
				issueURLs = append(issueURLs, issue.URL)
			}
			titles = pages.Titles(ctx, issueURLs)
		}

		msg := report.FormatAudit(cfg.Origin, result.Issues, titles, report.DefaultPoorLimit)
		if preview {
			fmt.Println(msg)
			return nil
		}
		return slack.New(cfg.Slack).PostText(ctx, msg)
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
}
