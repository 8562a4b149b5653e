package crux

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"cwv-watch/internal/vitals"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is the production CrUX API endpoint.
const DefaultBaseURL = "https://chromeuxreport.googleapis.com/v1"

// ErrNoData is returned when CrUX has no field data for the requested origin
// or URL (API 404). Callers skip the affected form factor and continue.
var ErrNoData = errors.New("no CrUX data for the requested key")

// FormFactor is the CrUX device class dimension.
type FormFactor string

const (
	Phone   FormFactor = "PHONE"
	Desktop FormFactor = "DESKTOP"
)

// FormFactors lists the queried device classes in reporting order.
var FormFactors = []FormFactor{Phone, Desktop}

// Label returns the human-readable report name for a form factor.
func (f FormFactor) Label() string {
	if f == Phone {
		return "Mobile"
	}
	return "Desktop"
}

// Config holds the connection settings for the CrUX API.
type Config struct {
	APIKey       string
	BaseURL      string
	Timeout      time.Duration
	RequestDelay time.Duration
}

// Client queries the Chrome UX Report API. Safe for concurrent use; requests
// are paced by RequestDelay to respect the API quota.
type Client struct {
	cfg        Config
	httpClient *http.Client

	mu          sync.Mutex
	lastRequest time.Time
}

// NewClient creates a CrUX client with production defaults filled in.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestDelay == 0 {
		cfg.RequestDelay = time.Second
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
		log.Debug().Dur("wait", wait).Msg("Throttling CrUX request")
		time.Sleep(wait)
	}
	c.lastRequest = time.Now()
}

// QueryRecord fetches the latest 28-day rollup for an origin and form factor.
func (c *Client) QueryRecord(ctx context.Context, origin string, ff FormFactor) (*Record, error) {
	body := queryRequest{Origin: origin, FormFactor: string(ff)}

	var resp queryResponse
	if err := c.post(ctx, "records:queryRecord", body, &resp); err != nil {
		return nil, err
	}
	return decodeRecord(resp), nil
}

// QueryURLRecord fetches the latest 28-day rollup for a single page.
func (c *Client) QueryURLRecord(ctx context.Context, pageURL string, ff FormFactor) (*Record, error) {
	body := queryRequest{URL: pageURL, FormFactor: string(ff)}

	var resp queryResponse
	if err := c.post(ctx, "records:queryRecord", body, &resp); err != nil {
		return nil, err
	}
	return decodeRecord(resp), nil
}

// QueryHistoryRecord fetches the multi-period history for an origin. Periods
// are weekly and ordered oldest first.
func (c *Client) QueryHistoryRecord(ctx context.Context, origin string, ff FormFactor) (*History, error) {
	metrics := make([]string, 0, len(vitals.Metrics))
	for _, m := range vitals.Metrics {
		metrics = append(metrics, string(m))
	}
	body := queryRequest{Origin: origin, FormFactor: string(ff), Metrics: metrics}

	var resp historyResponse
	if err := c.post(ctx, "records:queryHistoryRecord", body, &resp); err != nil {
		return nil, err
	}
	return decodeHistory(resp), nil
}

// post performs one API call with pacing and idempotent retry on transient
// failures (connection errors, 429, 5xx). Query bodies carry no state, so
// retrying is safe.
func (c *Client) post(ctx context.Context, endpoint string, body queryRequest, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode CrUX request: %w", err)
	}

	url := fmt.Sprintf("%s/%s?key=%s", c.cfg.BaseURL, endpoint, c.cfg.APIKey)

	operation := func() error {
		c.throttle()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		log.Debug().Str("endpoint", endpoint).Str("formFactor", body.FormFactor).Msg("Requesting CrUX record")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("CrUX request failed: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			// fall through to decode
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(ErrNoData)
		case resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("CrUX rate limit exceeded (429)")
		case resp.StatusCode >= 500:
			return fmt.Errorf("CrUX API returned status %d", resp.StatusCode)
		case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusForbidden:
			var apiErr apiError
			_ = json.NewDecoder(resp.Body).Decode(&apiErr)
			return backoff.Permanent(fmt.Errorf("CrUX API rejected the request (%d): %s", resp.StatusCode, apiErr.Error.Message))
		default:
			return backoff.Permanent(fmt.Errorf("CrUX API returned status %d", resp.StatusCode))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode CrUX response: %w", err))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	return backoff.Retry(operation, policy)
}
