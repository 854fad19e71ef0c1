package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cds-extensions/internal/handler"
	"github.com/iliyamo/cds-extensions/internal/middleware"
)

// RegisterAdmin registers the data holder admin endpoints under /v1/admin.
// All routes require admin credentials and the ADMIN role and share the
// admin rate limit.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, auth *handler.AuthHandler,
	creds middleware.AdminCredentials, limiter echo.MiddlewareFunc) {
	g := e.Group(
		"/v1/admin",
		middleware.AdminAuth(creds),
		middleware.RequireRole(middleware.RoleAdmin),
		limiter,
	)

	g.POST("/token", auth.IssueToken)

	// ---- Business nominated representatives ----
	g.PUT("/bnr/permissions", a.UpdateBNRPermissions)
	g.PUT("/bnr/permissions/revoke", a.RevokeBNRPermissions)
	g.GET("/bnr/permissions", a.GetBNRPermissions)

	// ---- Ceasing secondary user sharing ----
	g.PUT("/secondary-accounts/block", a.BlockSecondaryAccounts)
	g.PUT("/secondary-accounts/unblock", a.UnblockSecondaryAccounts)
	g.GET("/secondary-accounts/blocked", a.BlockedSecondaryAccounts)

	// ---- Disclosure options ----
	g.PUT("/doms/disclosure-options", a.UpdateDisclosureOptions)

	g.DELETE("/arrangements/:cdrArrangementId", a.RevokeArrangement)
	g.GET("/metrics", a.Metrics)
}
