package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"cwv-watch/internal/crux"
	"cwv-watch/internal/psi"
	"cwv-watch/internal/slack"
	"cwv-watch/internal/vitals"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// History window sizes per cadence.
const (
	DailyWindow  = 28
	WeeklyWindow = 13
)

// AppConfig holds the complete application configuration.
type AppConfig struct {
	CrUX  crux.Config
	PSI   psi.Config
	Slack slack.Config

	Origin     string
	SitemapURL string
	TotalURLs  int
	Policy     vitals.Policy

	HistoryPath  string
	HistoryLimit int

	Workers    int
	MaxURLs    int
	CrawlDepth int

	DataPath string
	LogDir   string
}

// Load loads the configuration from .env files and environment variables.
func Load() (*AppConfig, error) {
	// 1. Try to load from the executable's directory (highest priority for cron installs)
	exePath, err := os.Executable()
	exeDir := ""
	if err == nil {
		exeDir = filepath.Dir(exePath)
		envPath := filepath.Join(exeDir, ".env")
		if err := godotenv.Load(envPath); err == nil {
			log.Debug().Str("path", envPath).Msg("Loaded configuration from binary directory")
		}
	}

	// 2. Fallback to current working directory (useful for development/go run)
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found in working directory, relying on environment variables or binary-relative .env")
	}

	// 3. Resolve data paths
	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		if exeDir != "" {
			dataPath = exeDir
		} else {
			dataPath = "."
		}
	}

	logDir := filepath.Join(dataPath, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.Warn().Err(err).Str("path", logDir).Msg("Failed to create log directory")
	}

	policy, err := vitals.ParsePolicy(getEnv("AGGREGATION_POLICY", ""))
	if err != nil {
		return nil, err
	}

	cadence := getEnv("HISTORY_CADENCE", "daily")
	historyLimit := DailyWindow
	switch cadence {
	case "daily":
	case "weekly":
		historyLimit = WeeklyWindow
	default:
		return nil, fmt.Errorf("unknown HISTORY_CADENCE %q: want daily or weekly", cadence)
	}

	requestDelay := time.Duration(getEnvInt("REQUEST_DELAY_MS", 1000)) * time.Millisecond

	cfg := &AppConfig{
		CrUX: crux.Config{
			APIKey:       getEnv("CRUX_API_KEY", ""),
			RequestDelay: requestDelay,
		},
		PSI: psi.Config{
			APIKey:       getEnv("PSI_API_KEY", ""),
			RequestDelay: requestDelay,
		},
		Slack: slack.Config{
			WebhookURL: getEnv("SLACK_WEBHOOK_URL", ""),
			BotToken:   getEnv("SLACK_BOT_TOKEN", ""),
			ChannelID:  getEnv("SLACK_CHANNEL_ID", ""),
		},
		Origin:       getEnv("ORIGIN", ""),
		SitemapURL:   getEnv("SITEMAP_URL", ""),
		TotalURLs:    getEnvInt("TOTAL_URLS", 0),
		Policy:       policy,
		HistoryPath:  getEnv("HISTORY_PATH", filepath.Join(dataPath, "cwv_history.csv")),
		HistoryLimit: historyLimit,
		Workers:      getEnvInt("WORKERS", 5),
		MaxURLs:      getEnvInt("MAX_URLS", 2000),
		CrawlDepth:   getEnvInt("CRAWL_DEPTH", 3),
		DataPath:     dataPath,
		LogDir:       logDir,
	}

	return cfg, nil
}

// RequireOrigin validates the settings every subcommand needs.
func (c *AppConfig) RequireOrigin() error {
	if c.Origin == "" {
		return fmt.Errorf("ORIGIN is not set")
	}
	return nil
}

// RequireReport validates the settings the daily report needs.
func (c *AppConfig) RequireReport() error {
	if err := c.RequireOrigin(); err != nil {
		return err
	}
	if c.CrUX.APIKey == "" {
		return fmt.Errorf("CRUX_API_KEY is not set")
	}
	if c.Slack.WebhookURL == "" {
		return fmt.Errorf("SLACK_WEBHOOK_URL is not set")
	}
	return nil
}

// RequireAudit validates the settings the page audit needs.
func (c *AppConfig) RequireAudit() error {
	if err := c.RequireOrigin(); err != nil {
		return err
	}
	if c.Slack.WebhookURL == "" {
		return fmt.Errorf("SLACK_WEBHOOK_URL is not set")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(value)
		if err != nil {
			log.Warn().Str("key", key).Str("value", value).Msg("Ignoring non-numeric environment value")
			return fallback
		}
		if n < 0 {
			log.Warn().Str("key", key).Str("value", value).Msg("Ignoring negative environment value")
			return fallback
		}
		return n
	}
	return fallback
}
