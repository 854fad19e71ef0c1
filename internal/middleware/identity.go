package middleware

import "github.com/labstack/echo/v4"

// userID returns the authenticated caller stored by AdminAuth, or "anon".
func userID(c echo.Context) string {
	if s, ok := c.Get("user_id").(string); ok && s != "" {
		return s
	}
	return "anon"
}

// clientID returns the data recipient client id stored by the status
// validator, or "none".
func clientID(c echo.Context) string {
	if s, ok := c.Get("client_id").(string); ok && s != "" {
		return s
	}
	return "none"
}
