package commands

import (
	"fmt"

	"cwv-watch/internal/collector"

	"github.com/spf13/cobra"
)

var urlsCmd = &cobra.Command{
	Use:   "urls",
	Short: "Print the collected page URL set for the configured origin",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RequireOrigin(); err != nil {
			return err
		}

		urls, err := collector.New(collector.Config{
			Origin:        cfg.Origin,
			SitemapURL:    cfg.SitemapURL,
			MaxURLs:       cfg.MaxURLs,
			CrawlDepth:    cfg.CrawlDepth,
			CrawlFallback: true,
		}).Collect(cmd.Context())
		if err != nil {
			return err
		}

		for _, u := range urls {
			fmt.Println(u)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(urlsCmd)
}
