package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cds-extensions/internal/gateway"
	"github.com/iliyamo/cds-extensions/internal/utils"
)

// RoleAdmin is the role required by the admin APIs.
const RoleAdmin = "ADMIN"

// AdminCredentials are the credentials accepted by AdminAuth.  Basic auth
// is only accepted when both User and PasswordHash are set.
type AdminCredentials struct {
	JWTSecret    string
	User         string
	PasswordHash string // bcrypt
}

// AdminAuth authenticates admin callers by an HS256 bearer token or by
// HTTP basic auth.  The caller's subject and role are stored in the
// context under "user_id" and "role".  Failures surface as gateway
// credential faults.
func AdminAuth(creds AdminCredentials) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			switch {
			case strings.HasPrefix(auth, "Bearer "):
				sub, role, err := utils.ParseAccessToken(creds.JWTSecret, strings.TrimPrefix(auth, "Bearer "))
				if err != nil {
					return gateway.InvalidCredentials("invalid bearer token")
				}
				c.Set("user_id", sub)
				c.Set("role", role)
			case strings.HasPrefix(auth, "Basic "):
				user, pass, ok := c.Request().BasicAuth()
				if !ok || creds.User == "" || user != creds.User || !utils.VerifyPassword(creds.PasswordHash, pass) {
					return gateway.InvalidCredentials("invalid basic credentials")
				}
				c.Set("user_id", user)
				c.Set("role", RoleAdmin)
			default:
				return gateway.MissingCredentials("make sure your API invocation call has a header: 'Authorization: Bearer ACCESS_TOKEN'")
			}
			return next(c)
		}
	}
}
