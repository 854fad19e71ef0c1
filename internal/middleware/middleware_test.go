package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cds-extensions/internal/config"
	"github.com/iliyamo/cds-extensions/internal/gateway"
	"github.com/iliyamo/cds-extensions/internal/utils"
)

func newContext(req *http.Request) echo.Context {
	e := echo.New()
	return e.NewContext(req, httptest.NewRecorder())
}

func okHandler(c echo.Context) error { return c.NoContent(http.StatusOK) }

func faultCode(t *testing.T, err error) int {
	t.Helper()
	var f *gateway.Fault
	require.True(t, errors.As(err, &f), "expected a gateway fault, got %v", err)
	return f.Code
}

func TestAdminAuth(t *testing.T) {
	hash, err := utils.HashPassword("pw", 4)
	require.NoError(t, err)
	creds := AdminCredentials{JWTSecret: "secret", User: "admin", PasswordHash: hash}
	token, err := utils.NewAccessToken("secret", "ops", RoleAdmin, time.Minute)
	require.NoError(t, err)

	t.Run("bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token.Token)
		c := newContext(req)
		require.NoError(t, AdminAuth(creds)(okHandler)(c))
		assert.Equal(t, "ops", c.Get("user_id"))
		assert.Equal(t, RoleAdmin, c.Get("role"))
	})

	t.Run("basic", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.SetBasicAuth("admin", "pw")
		c := newContext(req)
		require.NoError(t, AdminAuth(creds)(okHandler)(c))
		assert.Equal(t, "admin", c.Get("user_id"))
	})

	t.Run("wrong password", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.SetBasicAuth("admin", "nope")
		err := AdminAuth(creds)(okHandler)(newContext(req))
		assert.Equal(t, gateway.FaultInvalidCredentials, faultCode(t, err))
	})

	t.Run("basic disabled without hash", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.SetBasicAuth("admin", "pw")
		err := AdminAuth(AdminCredentials{JWTSecret: "secret", User: "admin"})(okHandler)(newContext(req))
		assert.Equal(t, gateway.FaultInvalidCredentials, faultCode(t, err))
	})

	t.Run("bad token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer abc")
		err := AdminAuth(creds)(okHandler)(newContext(req))
		assert.Equal(t, gateway.FaultInvalidCredentials, faultCode(t, err))
	})

	t.Run("missing", func(t *testing.T) {
		err := AdminAuth(creds)(okHandler)(newContext(httptest.NewRequest(http.MethodGet, "/", nil)))
		assert.Equal(t, gateway.FaultMissingCredentials, faultCode(t, err))
	})
}

func TestRequireRole(t *testing.T) {
	c := newContext(httptest.NewRequest(http.MethodGet, "/", nil))
	c.Set("role", RoleAdmin)
	assert.NoError(t, RequireRole(RoleAdmin)(okHandler)(c))

	c = newContext(httptest.NewRequest(http.MethodGet, "/", nil))
	c.Set("role", "VIEWER")
	assert.Equal(t, gateway.FaultResourceForbidden, faultCode(t, RequireRole(RoleAdmin)(okHandler)(c)))
}

func TestTokenBucket_DisabledPassesThrough(t *testing.T) {
	c := newContext(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NoError(t, NewTokenBucket(config.RateLimitConfig{Enabled: false}, nil)(okHandler)(c))
	assert.NoError(t, NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil)(okHandler)(c))
}

func TestParseBucketResult(t *testing.T) {
	res, ok := parseBucketResult([]interface{}{int64(0), int64(0), int64(1500)})
	require.True(t, ok)
	assert.False(t, res.allowed)
	assert.Equal(t, 2, retryAfterSeconds(res.retryMs))

	res, ok = parseBucketResult([]interface{}{int64(1), "4", int64(0)})
	require.True(t, ok)
	assert.True(t, res.allowed)
	assert.EqualValues(t, 4, res.remaining)

	_, ok = parseBucketResult("nope")
	assert.False(t, ok)
	assert.Equal(t, 0, retryAfterSeconds(-10))
}

func TestBuildRateKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "/v1/admin/bnr/permissions", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	c := newContext(req)
	c.SetPath("/v1/admin/bnr/permissions")
	c.Set("user_id", "ops")
	c.Set("client_id", "client-1")

	tests := map[string]string{
		"ip":            "rl:ip:10.0.0.1",
		"user":          "rl:user:ops",
		"client":        "rl:client:client-1",
		"ip_user_route": "rl:ip:10.0.0.1:user:ops:route:PUT /v1/admin/bnr/permissions",
	}
	for strategy, want := range tests {
		assert.Equal(t, want, buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: strategy}, c), strategy)
	}

	anon := newContext(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "rl:user:anon", buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user"}, anon))
}
