package handler // declare the package name; contains HTTP handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// MetadataClock reports when the register metadata was last refreshed.
type MetadataClock interface {
	UpdatedAt() time.Time
}

// HealthHandler reports whether the service and its database are up.
type HealthHandler struct {
	DB       Pinger
	Metadata MetadataClock
}

type healthResp struct {
	Status            string     `json:"status"`
	Database          string     `json:"database"`
	MetadataUpdatedAt *time.Time `json:"metadataUpdatedAt,omitempty"`
}

// Health GET /healthz
func (h *HealthHandler) Health(c echo.Context) error {
	resp := healthResp{Status: "ok", Database: "ok"}
	if h.Metadata != nil {
		if t := h.Metadata.UpdatedAt(); !t.IsZero() {
			resp.MetadataUpdatedAt = &t
		}
	}
	if h.DB != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.DB.PingContext(ctx); err != nil {
			resp.Status, resp.Database = "degraded", "unreachable"
			return c.JSON(http.StatusServiceUnavailable, resp)
		}
	}
	return c.JSON(http.StatusOK, resp)
}
