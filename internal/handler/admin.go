package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cds-extensions/internal/cdserr"
	"github.com/iliyamo/cds-extensions/internal/consent"
	"github.com/iliyamo/cds-extensions/internal/metrics"
)

// AdminHandler serves the data holder administration APIs.
type AdminHandler struct {
	Admin      *consent.Admin
	MetricsSvc *metrics.Service
	Timeout    time.Duration
}

func (h *AdminHandler) ctx(c echo.Context) (context.Context, context.CancelFunc) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(c.Request().Context(), timeout)
}

type dataResp struct {
	Data any `json:"data"`
}

// bindList decodes a JSON array body, also accepting a single object.
func bindList[T any](c echo.Context) ([]T, error) {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, cdserr.FieldInvalid("request body could not be read")
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, cdserr.FieldMissing("request body")
	}
	if raw[0] != '[' {
		var one T
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, cdserr.FieldInvalid("request body is invalid")
		}
		return []T{one}, nil
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, cdserr.FieldInvalid("request body is invalid")
	}
	if len(items) == 0 {
		return nil, cdserr.FieldMissing("request body must list at least one item")
	}
	return items, nil
}

// UpdateBNRPermissions PUT /v1/admin/bnr/permissions
func (h *AdminHandler) UpdateBNRPermissions(c echo.Context) error {
	items, err := bindList[consent.BNRPermissionUpdate](c)
	if err != nil {
		return err
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	if err := h.Admin.UpdatePermissions(ctx, items); err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

// RevokeBNRPermissions PUT /v1/admin/bnr/permissions/revoke
func (h *AdminHandler) RevokeBNRPermissions(c echo.Context) error {
	items, err := bindList[consent.BNRPermissionUpdate](c)
	if err != nil {
		return err
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	if err := h.Admin.RevokePermissions(ctx, items); err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

// GetBNRPermissions GET /v1/admin/bnr/permissions?accountIds=a,b&userId=
func (h *AdminHandler) GetBNRPermissions(c echo.Context) error {
	var accountIDs []string
	for _, id := range strings.Split(c.QueryParam("accountIds"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			accountIDs = append(accountIDs, id)
		}
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	perms, err := h.Admin.GetPermissions(ctx, accountIDs, c.QueryParam("userId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dataResp{Data: perms})
}

// BlockSecondaryAccounts PUT /v1/admin/secondary-accounts/block
func (h *AdminHandler) BlockSecondaryAccounts(c echo.Context) error {
	items, err := bindList[consent.LegalEntitySharing](c)
	if err != nil {
		return err
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	if err := h.Admin.BlockLegalEntities(ctx, items); err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

// UnblockSecondaryAccounts PUT /v1/admin/secondary-accounts/unblock
func (h *AdminHandler) UnblockSecondaryAccounts(c echo.Context) error {
	items, err := bindList[consent.LegalEntitySharing](c)
	if err != nil {
		return err
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	if err := h.Admin.UnblockLegalEntities(ctx, items); err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

// BlockedSecondaryAccounts GET /v1/admin/secondary-accounts/blocked?userId=
func (h *AdminHandler) BlockedSecondaryAccounts(c echo.Context) error {
	ctx, cancel := h.ctx(c)
	defer cancel()
	items, err := h.Admin.GetBlockedLegalEntities(ctx, c.QueryParam("userId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dataResp{Data: items})
}

// UpdateDisclosureOptions PUT /v1/admin/doms/disclosure-options
func (h *AdminHandler) UpdateDisclosureOptions(c echo.Context) error {
	items, err := bindList[consent.DisclosureOption](c)
	if err != nil {
		return err
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	if err := h.Admin.UpdateDisclosureOptions(ctx, items); err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

// RevokeArrangement DELETE /v1/admin/arrangements/:cdrArrangementId
func (h *AdminHandler) RevokeArrangement(c echo.Context) error {
	ctx, cancel := h.ctx(c)
	defer cancel()
	if err := h.Admin.RevokeArrangement(ctx, c.Param("cdrArrangementId")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Metrics GET /v1/admin/metrics?period=CURRENT|HISTORIC|ALL
func (h *AdminHandler) Metrics(c echo.Context) error {
	period, err := metrics.ParsePeriod(c.QueryParam("period"))
	if err != nil {
		return err
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	resp, err := h.MetricsSvc.Get(ctx, period, c.Request().URL.RequestURI())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}
