package metadata

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cds-extensions/internal/cdserr"
)

// HeaderClientID carries the OAuth client id of the calling data recipient.
const HeaderClientID = "x-client-id"

// StatusValidator rejects requests of data recipients whose register
// status is not ACTIVE.
func StatusValidator(h *Holder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			clientID := c.Request().Header.Get(HeaderClientID)
			if clientID == "" {
				return next(c)
			}
			c.Set("client_id", clientID)
			if ok, detail := h.Active(clientID); !ok {
				return cdserr.AdrStatusNotActive(detail)
			}
			return next(c)
		}
	}
}
