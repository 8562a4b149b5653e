package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultAPIBase is the Slack Web API root used by the file upload flow.
const DefaultAPIBase = "https://slack.com/api"

// Config holds the delivery settings. WebhookURL drives plain text delivery;
// BotToken and ChannelID enable the richer file upload flow.
type Config struct {
	WebhookURL string
	BotToken   string
	ChannelID  string
	APIBase    string
	Timeout    time.Duration
}

// Client delivers run results to Slack.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New creates a Slack client with defaults filled in.
func New(cfg Config) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// CanUpload reports whether the richer upload flow is configured.
func (c *Client) CanUpload() bool {
	return c.cfg.BotToken != "" && c.cfg.ChannelID != ""
}

// PostText delivers a plain text message through the incoming webhook. A
// failure here is a delivery failure the caller must surface.
func (c *Client) PostText(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("failed to encode Slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Slack webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("Slack webhook returned status %d: %s", resp.StatusCode, body)
	}
	log.Info().Msg("Slack message posted")
	return nil
}

// apiResponse is the common envelope of Slack Web API responses.
type apiResponse struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error"`
	UploadURL string `json:"upload_url"`
	FileID    string `json:"file_id"`
}

// UploadFile attaches a file to the configured channel via the external
// upload flow: obtain an upload target, transfer the bytes, then finalize and
// share. Requires CanUpload.
func (c *Client) UploadFile(ctx context.Context, filename, title string, data []byte) error {
	if !c.CanUpload() {
		return fmt.Errorf("Slack upload not configured (bot token and channel ID required)")
	}

	uploadURL, fileID, err := c.getUploadURL(ctx, filename, len(data))
	if err != nil {
		return err
	}
	if err := c.transferBytes(ctx, uploadURL, data); err != nil {
		return err
	}
	if err := c.completeUpload(ctx, fileID, title); err != nil {
		return err
	}

	log.Info().Str("file", filename).Str("channel", c.cfg.ChannelID).Msg("Slack file uploaded")
	return nil
}

func (c *Client) getUploadURL(ctx context.Context, filename string, length int) (string, string, error) {
	params := url.Values{}
	params.Set("filename", filename)
	params.Set("length", strconv.Itoa(length))

	endpoint := fmt.Sprintf("%s/files.getUploadURLExternal?%s", c.cfg.APIBase, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.BotToken)

	var decoded apiResponse
	if err := c.doJSON(req, &decoded); err != nil {
		return "", "", fmt.Errorf("files.getUploadURLExternal: %w", err)
	}
	if !decoded.OK {
		return "", "", fmt.Errorf("files.getUploadURLExternal failed: %s", decoded.Error)
	}
	return decoded.UploadURL, decoded.FileID, nil
}

func (c *Client) transferBytes(ctx context.Context, uploadURL string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("file transfer failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("file transfer returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) completeUpload(ctx context.Context, fileID, title string) error {
	payload, err := json.Marshal(map[string]any{
		"files":      []map[string]string{{"id": fileID, "title": title}},
		"channel_id": c.cfg.ChannelID,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBase+"/files.completeUploadExternal", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.BotToken)
	req.Header.Set("Content-Type", "application/json")

	var decoded apiResponse
	if err := c.doJSON(req, &decoded); err != nil {
		return fmt.Errorf("files.completeUploadExternal: %w", err)
	}
	if !decoded.OK {
		return fmt.Errorf("files.completeUploadExternal failed: %s", decoded.Error)
	}
	return nil
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("Slack API returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode Slack API response: %w", err)
	}
	return nil
}
