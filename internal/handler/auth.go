package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cds-extensions/internal/cdserr"
	"github.com/iliyamo/cds-extensions/internal/utils"
)

// AuthHandler issues admin bearer tokens to callers already authenticated
// by the admin auth middleware.
type AuthHandler struct {
	JWTSecret string
	TTL       time.Duration
	Role      string
}

type tokenResp struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// IssueToken POST /v1/admin/token
func (h *AuthHandler) IssueToken(c echo.Context) error {
	sub, _ := c.Get("user_id").(string)
	if sub == "" {
		return cdserr.Unauthorized("no authenticated admin")
	}
	ttl := h.TTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	tok, err := utils.NewAccessToken(h.JWTSecret, sub, h.Role, ttl)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tokenResp{AccessToken: tok.Token, TokenType: "Bearer", ExpiresAt: tok.Exp})
}
