package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cds-extensions/internal/handler"
	"github.com/iliyamo/cds-extensions/internal/metadata"
)

// RegisterConsent registers the consent authorisation endpoints under
// /v1/consent.  Requests made on behalf of a data recipient are rejected
// when its register status is not active.
func RegisterConsent(e *echo.Echo, h *handler.ConsentHandler, holder *metadata.Holder) {
	g := e.Group("/v1/consent", metadata.StatusValidator(holder))
	g.GET("/authorize-data", h.AuthorizeData)
	g.POST("/persist", h.Persist)
	g.POST("/validate", h.Validate)
}
