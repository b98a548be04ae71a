package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"inapp-message-engine/internal/config"
	"inapp-message-engine/internal/engine"
)

// Client is the default HTTP transport for message definitions and binary
// assets. Retry and backoff are deliberately not handled here; callers see
// a single completion per call.
type Client struct {
	endpoint     string
	projectToken string
	auth         string

	http   *http.Client
	assets *http.Client
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		endpoint:     cfg.Fetch.Endpoint,
		projectToken: cfg.Fetch.ProjectToken,
		auth:         cfg.Fetch.Authorization,
		http:         &http.Client{Timeout: time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second},
		assets:       &http.Client{Timeout: time.Duration(cfg.Fetch.AssetTimeoutSeconds) * time.Second},
	}
}

type fetchRequest struct {
	CustomerIDs map[string]string `json:"customer_ids"`
}

type fetchResponse struct {
	Success  bool                       `json:"success"`
	Messages []engine.MessageDefinition `json:"data"`
}

// FetchMessages retrieves the full message set for a customer.
func (c *Client) FetchMessages(ctx context.Context, identity engine.CustomerIdentity) ([]engine.MessageDefinition, error) {
	ids := map[string]string{"cookie": identity.CookieID}
	for k, v := range identity.ExternalIDs {
		ids[k] = v
	}
	body, err := json.Marshal(fetchRequest{CustomerIDs: ids})
	if err != nil {
		return nil, fmt.Errorf("marshal fetch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.auth != "" {
		req.Header.Set("Authorization", c.auth)
	}
	if c.projectToken != "" {
		req.Header.Set("X-Project-Token", c.projectToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch messages: unexpected status %d", resp.StatusCode)
	}
	var out fetchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode fetch response: %w", err)
	}
	return out.Messages, nil
}

// Download fetches one asset, bounded by the asset client's timeout.
func (c *Client) Download(url string) ([]byte, error) {
	resp, err := c.assets.Get(url)
	if err != nil {
		return nil, fmt.Errorf("download asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download asset: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read asset body: %w", err)
	}
	return data, nil
}
