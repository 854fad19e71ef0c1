package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// AnalyticsClient runs store queries on the stream processor's
// /stores/query endpoint.
type AnalyticsClient struct {
	url        string
	appName    string
	httpClient *http.Client
}

func NewAnalyticsClient(url, appName string, timeout time.Duration) *AnalyticsClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AnalyticsClient{
		url:        strings.TrimSpace(url),
		appName:    appName,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type storeQuery struct {
	AppName string `json:"appName"`
	Query   string `json:"query"`
}

type storeResult struct {
	Records [][]any `json:"records"`
}

// Query returns the records of query.
func (c *AnalyticsClient) Query(ctx context.Context, query string) ([][]any, error) {
	body, err := json.Marshal(storeQuery{AppName: c.appName, Query: query})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute analytics query: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("analytics backend returned error status %d", resp.StatusCode)
	}
	var out storeResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode analytics records: %w", err)
	}
	return out.Records, nil
}
