package commands

import (
	"cwv-watch/internal/config"
	"cwv-watch/internal/logging"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Version, Commit, and BuildDate are set at build time via ldflags.
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	verbose bool
	preview bool
	cfg     *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "cwv-watch",
	Short: "cwv-watch monitors a site's Core Web Vitals",
	Long: `A batch monitor for Google's Core Web Vitals field data: it classifies
CrUX and PageSpeed Insights measurements, keeps a rolling history window,
and posts daily summaries and per-page audits to Slack.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(verbose)

		var err error
		cfg, err = config.Load()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load configuration")
		}

		log.Info().
			Str("version", Version).
			Str("commit", Commit).
			Str("buildDate", BuildDate).
			Msg("cwv-watch starting")
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&preview, "preview", false, "print the report locally instead of posting to Slack")
}
