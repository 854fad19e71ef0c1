package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cds-extensions/internal/gateway"
)

// RequireRole rejects callers whose "role" (set by AdminAuth) is not one of
// roles with a resource forbidden fault.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get("role").(string)
			if !ok || !allowed[role] {
				return gateway.ResourceForbidden("the caller is not allowed to access this resource")
			}
			return next(c)
		}
	}
}
