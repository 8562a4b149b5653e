package psi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"cwv-watch/internal/vitals"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is the production PageSpeed Insights endpoint.
const DefaultBaseURL = "https://www.googleapis.com/pagespeedonline/v5/runPagespeed"

// ErrNoFieldData is returned when PSI has no real-user field data for a page
// (new or low-traffic URLs). The page is excluded from aggregation, never
// counted as good or poor.
var ErrNoFieldData = errors.New("no field data for the requested page")

// Strategy is the PSI device class dimension.
type Strategy string

const (
	Mobile  Strategy = "mobile"
	Desktop Strategy = "desktop"
)

// Strategies lists the audited device classes in reporting order.
var Strategies = []Strategy{Mobile, Desktop}

// Label returns the human-readable report name for a strategy.
func (s Strategy) Label() string {
	if s == Mobile {
		return "Mobile"
	}
	return "Desktop"
}

// FieldMetric is one field-data metric of a page: its verdict category as
// reported by PSI plus the p75 percentile value.
type FieldMetric struct {
	Category   vitals.Category
	Percentile float64
}

// PageVitals is the decoded field data for one page and strategy.
type PageVitals struct {
	URL      string
	Strategy Strategy
	Overall  vitals.Category
	Metrics  map[vitals.Metric]FieldMetric
}

// SlowMetrics returns the metrics PSI categorized as poor, in stable order.
func (p *PageVitals) SlowMetrics() []vitals.Metric {
	var slow []vitals.Metric
	for _, m := range vitals.Metrics {
		if fm, ok := p.Metrics[m]; ok && fm.Category == vitals.Poor {
			slow = append(slow, m)
		}
	}
	return slow
}

// Config holds the connection settings for the PSI API. The API key is
// optional; unkeyed calls are allowed at a lower quota.
type Config struct {
	APIKey       string
	BaseURL      string
	Timeout      time.Duration
	RequestDelay time.Duration
}

// Client queries the PageSpeed Insights API. Safe for concurrent use; calls
// are paced by RequestDelay across all workers.
type Client struct {
	cfg        Config
	httpClient *http.Client

	mu          sync.Mutex
	lastRequest time.Time
}

// NewClient creates a PSI client with production defaults filled in.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestDelay == 0 {
		cfg.RequestDelay = 600 * time.Millisecond
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) throttle() {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.lastRequest)
	if elapsed < c.cfg.RequestDelay {
		wait := c.cfg.RequestDelay - elapsed
		log.Debug().Dur("wait", wait).Msg("Throttling PSI request")
		time.Sleep(wait)
	}
	c.lastRequest = time.Now()
}

// psiMetricKeys maps PSI loadingExperience metric identifiers to canonical
// metrics. FID is retired and deliberately absent.
var psiMetricKeys = map[string]vitals.Metric{
	"LARGEST_CONTENTFUL_PAINT_MS":            vitals.LCP,
	"INTERACTION_TO_NEXT_PAINT":              vitals.INP,
	"EXPERIMENTAL_INTERACTION_TO_NEXT_PAINT": vitals.INP,
	"CUMULATIVE_LAYOUT_SHIFT_SCORE":          vitals.CLS,
}

type loadingExperience struct {
	OverallCategory string `json:"overall_category"`
	Metrics         map[string]struct {
		Percentile json.Number `json:"percentile"`
		Category   string      `json:"category"`
	} `json:"metrics"`
}

type auditResponse struct {
	LoadingExperience loadingExperience `json:"loadingExperience"`
}

// mapCategory translates a PSI category label into a verdict bucket.
func mapCategory(s string) (vitals.Category, bool) {
	switch s {
	case "FAST":
		return vitals.Good, true
	case "AVERAGE":
		return vitals.NeedsImprovement, true
	case "SLOW":
		return vitals.Poor, true
	}
	return "", false
}

// Check runs a PSI audit for one page and strategy and returns its field
// data. Returns ErrNoFieldData when PSI has no real-user data for the page.
func (c *Client) Check(ctx context.Context, pageURL string, strategy Strategy) (*PageVitals, error) {
	params := url.Values{}
	params.Set("url", pageURL)
	params.Set("strategy", string(strategy))
	params.Set("category", "performance")
	if c.cfg.APIKey != "" {
		params.Set("key", c.cfg.APIKey)
	}
	endpoint := fmt.Sprintf("%s?%s", c.cfg.BaseURL, params.Encode())

	var decoded auditResponse
	operation := func() error {
		c.throttle()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		log.Debug().Str("url", pageURL).Str("strategy", string(strategy)).Msg("Requesting PSI audit")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("PSI request failed: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			// fall through to decode
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("PSI API returned status %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("PSI API returned status %d for %s", resp.StatusCode, pageURL))
		}

		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode PSI response: %w", err))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	if len(decoded.LoadingExperience.Metrics) == 0 {
		return nil, ErrNoFieldData
	}

	result := &PageVitals{
		URL:      pageURL,
		Strategy: strategy,
		Metrics:  make(map[vitals.Metric]FieldMetric),
	}
	if cat, ok := mapCategory(decoded.LoadingExperience.OverallCategory); ok {
		result.Overall = cat
	}

	for key, raw := range decoded.LoadingExperience.Metrics {
		metric, ok := psiMetricKeys[key]
		if !ok {
			continue
		}
		cat, ok := mapCategory(raw.Category)
		if !ok {
			log.Warn().Str("url", pageURL).Str("metric", key).Str("category", raw.Category).Msg("Unrecognized PSI category, skipping metric")
			continue
		}
		value, err := raw.Percentile.Float64()
		if err != nil {
			log.Warn().Str("url", pageURL).Str("metric", key).Msg("Non-numeric PSI percentile, skipping metric")
			continue
		}
		// PSI reports CLS scaled by 100.
		if metric == vitals.CLS && value > 1.0 {
			value = value / 100.0
		}
		// GA INP wins over the experimental series.
		if _, exists := result.Metrics[metric]; exists && key == "EXPERIMENTAL_INTERACTION_TO_NEXT_PAINT" {
			continue
		}
		result.Metrics[metric] = FieldMetric{Category: cat, Percentile: value}
	}

	if len(result.Metrics) == 0 {
		return nil, ErrNoFieldData
	}
	return result, nil
}

// FormatValue renders a metric percentile for the report: seconds for LCP,
// milliseconds for INP, the bare score for CLS.
func FormatValue(m vitals.Metric, value float64) string {
	switch m {
	case vitals.LCP:
		return fmt.Sprintf("%.1fs", value/1000.0)
	case vitals.INP:
		return fmt.Sprintf("%.0fms", value)
	default:
		return fmt.Sprintf("%.2f", value)
	}
}
