// Package bank is the client of the bank backend's sharable accounts
// endpoint.
package bank

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iliyamo/cds-extensions/internal/model"
)

// Client fetches the accounts a user can share.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a client for the sharable accounts endpoint.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint:   strings.TrimSpace(endpoint),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type sharableAccountsResponse struct {
	Data []model.Account `json:"data"`
}

// SharableAccounts returns the accounts userID can share.
func (c *Client) SharableAccounts(ctx context.Context, userID string) ([]model.Account, error) {
	if c.endpoint == "" {
		return nil, fmt.Errorf("sharable accounts endpoint is empty")
	}
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid sharable accounts endpoint: %w", err)
	}
	q := u.Query()
	q.Set("userId", userID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request to bank backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("bank backend returned error status %d", resp.StatusCode)
	}

	var out sharableAccountsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode sharable accounts: %w", err)
	}
	return out.Data, nil
}
