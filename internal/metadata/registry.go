package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/cds-extensions/internal/config"
	"github.com/iliyamo/cds-extensions/internal/logging"
)

// RegistryClient fetches status arrays from the CDR register.
type RegistryClient struct {
	dataRecipientsURL   string
	softwareProductsURL string
	http                *retryablehttp.Client
}

// NewRegistryClient retries failed fetches up to cfg.RetryCount times,
// waiting RetryWait longer after every attempt.
func NewRegistryClient(cfg config.MetadataCacheConfig, timeout time.Duration) *RegistryClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryCount
	rc.RetryWaitMin = cfg.RetryWait
	rc.RetryWaitMax = cfg.RetryWait * time.Duration(cfg.RetryCount+1)
	rc.Backoff = linearBackoff
	rc.Logger = logging.Retry{Component: "cdr-register"}
	if timeout > 0 {
		rc.HTTPClient.Timeout = timeout
	}
	return &RegistryClient{
		dataRecipientsURL:   cfg.DataRecipientsStatusURL,
		softwareProductsURL: cfg.SoftwareProductsStatusURL,
		http:                rc,
	}
}

func linearBackoff(minWait, maxWait time.Duration, attemptNum int, _ *http.Response) time.Duration {
	wait := minWait * time.Duration(attemptNum+1)
	if wait > maxWait {
		wait = maxWait
	}
	return wait
}

type statusEntry struct {
	LegalEntityID         string `json:"legalEntityId"`
	DataRecipientID       string `json:"dataRecipientId"`
	DataRecipientStatus   string `json:"dataRecipientStatus"`
	SoftwareProductID     string `json:"softwareProductId"`
	SoftwareProductStatus string `json:"softwareProductStatus"`
	Status                string `json:"status"`
}

type statusResponse struct {
	Data []statusEntry `json:"data"`
}

// DataRecipientStatuses returns legal entity id -> status, or nil when the
// register could not be read.
func (c *RegistryClient) DataRecipientStatuses(ctx context.Context) map[string]string {
	entries, err := c.fetch(ctx, c.dataRecipientsURL)
	if err != nil {
		log.Error().Err(err).Msg("fetch data recipient statuses failed")
		return nil
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		id := firstNonEmpty(e.LegalEntityID, e.DataRecipientID)
		if id != "" {
			out[id] = firstNonEmpty(e.Status, e.DataRecipientStatus)
		}
	}
	return out
}

// SoftwareProductStatuses returns software product id -> status, or nil
// when the register could not be read.
func (c *RegistryClient) SoftwareProductStatuses(ctx context.Context) map[string]string {
	entries, err := c.fetch(ctx, c.softwareProductsURL)
	if err != nil {
		log.Error().Err(err).Msg("fetch software product statuses failed")
		return nil
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.SoftwareProductID != "" {
			out[e.SoftwareProductID] = firstNonEmpty(e.Status, e.SoftwareProductStatus)
		}
	}
	return out
}

func (c *RegistryClient) fetch(ctx context.Context, url string) ([]statusEntry, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-v", "1")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: status %d", url, resp.StatusCode)
	}
	var out statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}
	return out.Data, nil
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
