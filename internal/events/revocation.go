package events

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/iliyamo/cds-extensions/internal/config"
	"github.com/iliyamo/cds-extensions/internal/logging"
	"github.com/iliyamo/cds-extensions/internal/model"
)

const revocationPath = "/arrangements/revoke"

// ProviderStore resolves the registration of a data recipient client.
type ProviderStore interface {
	GetByClientID(ctx context.Context, clientID string) (model.ServiceProvider, error)
}

// RevocationClient calls a data recipient's arrangement revocation
// endpoint with a request signed by the data holder brand.
type RevocationClient struct {
	providers ProviderStore
	brandID   string
	keyID     string
	key       *rsa.PrivateKey
	lifetime  time.Duration
	http      *retryablehttp.Client
	now       func() time.Time
}

// LoadSigningKey reads a PEM encoded RSA private key.
func LoadSigningKey(path string) (*rsa.PrivateKey, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	return key, nil
}

// NewRevocationClient retries transport errors and 5xx responses twice.
func NewRevocationClient(cfg config.RevocationConfig, key *rsa.PrivateKey, providers ProviderStore, timeout time.Duration) *RevocationClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = logging.Retry{Component: "arrangement-revocation"}
	if timeout > 0 {
		rc.HTTPClient.Timeout = timeout
	}
	lifetime := cfg.TokenLifetime
	if lifetime <= 0 {
		lifetime = 5 * time.Minute
	}
	return &RevocationClient{
		providers: providers,
		brandID:   cfg.BrandID,
		keyID:     cfg.KeyID,
		key:       key,
		lifetime:  lifetime,
		http:      rc,
		now:       time.Now,
	}
}

// Revoke tells the recipient behind clientID that arrangementID is no
// longer valid.
func (c *RevocationClient) Revoke(ctx context.Context, clientID, arrangementID string) error {
	sp, err := c.providers.GetByClientID(ctx, clientID)
	if err != nil {
		return fmt.Errorf("resolve client %s: %w", clientID, err)
	}
	if sp.RecipientBaseURI == "" {
		return fmt.Errorf("client %s has no recipient base uri", clientID)
	}
	endpoint := strings.TrimRight(sp.RecipientBaseURI, "/") + revocationPath

	token, err := c.sign(endpoint)
	if err != nil {
		return err
	}
	form := url.Values{"cdr_arrangement_id": {arrangementID}}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("recipient returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *RevocationClient) sign(audience string) (string, error) {
	if c.key == nil {
		return "", errors.New("no signing key configured")
	}
	now := c.now()
	claims := jwt.RegisteredClaims{
		Issuer:    c.brandID,
		Subject:   c.brandID,
		Audience:  jwt.ClaimStrings{audience},
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.lifetime)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodPS256, claims)
	if c.keyID != "" {
		token.Header["kid"] = c.keyID
	}
	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign revocation token: %w", err)
	}
	return signed, nil
}
