package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cds-extensions/internal/cdserr"
	"github.com/iliyamo/cds-extensions/internal/consent"
)

// ConsentHandler serves the consent authorisation flow: the data shown on
// the authorisation screen, persistence of the user's selection and
// validation of resource requests made under a consent.
type ConsentHandler struct {
	Builder   *consent.Builder
	Persister *consent.Persister
	Validator *consent.Validator
	Accounts  consent.AccountSource
	Timeout   time.Duration
}

func (h *ConsentHandler) ctx(c echo.Context) (context.Context, context.CancelFunc) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(c.Request().Context(), timeout)
}

// AuthorizeData returns the authorisation screen data of a consent.
// GET /v1/consent/authorize-data?consentId=&userId=
func (h *ConsentHandler) AuthorizeData(c echo.Context) error {
	cookies := map[string]string{}
	for _, ck := range c.Cookies() {
		cookies[ck.Name] = ck.Value
	}
	req := consent.AuthorizeRequest{
		ConsentID:     c.QueryParam("consentId"),
		UserID:        c.QueryParam("userId"),
		CustomerUType: c.QueryParam("customerUType"),
		Cookies:       cookies,
	}

	ctx, cancel := h.ctx(c)
	defer cancel()
	data, err := h.Builder.Build(ctx, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, data)
}

type persistReq struct {
	ConsentID     string                 `json:"consentId"`
	UserID        string                 `json:"userId"`
	ClientID      string                 `json:"clientId"`
	RequestURIKey string                 `json:"requestUriKey"`
	Payload       consent.PersistPayload `json:"payload"`
}

type persistResp struct {
	ConsentID     string            `json:"consentId"`
	Approved      bool              `json:"approved"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	AccountGrants int               `json:"accountGrants"`
}

// Persist stores the user's decision on a consent.
// POST /v1/consent/persist
func (h *ConsentHandler) Persist(c echo.Context) error {
	var req persistReq
	if err := c.Bind(&req); err != nil {
		return cdserr.FieldInvalid("request body is not a valid persist request")
	}
	if req.ConsentID == "" {
		return cdserr.FieldMissing("consentId")
	}
	if req.UserID == "" {
		return cdserr.FieldMissing("userId")
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	d := &consent.PersistData{
		ConsentID:     req.ConsentID,
		UserID:        req.UserID,
		ClientID:      req.ClientID,
		RequestURIKey: req.RequestURIKey,
		Payload:       req.Payload,
	}
	if req.Payload.Approval {
		accounts, err := h.Accounts.SharableAccounts(ctx, req.UserID)
		if err != nil {
			return err
		}
		d.Accounts = accounts
	}
	if err := h.Persister.Persist(ctx, d); err != nil {
		return err
	}

	grants := 0
	for _, users := range d.AccountUserMappings {
		grants += len(users)
	}
	return c.JSON(http.StatusOK, persistResp{
		ConsentID:     req.ConsentID,
		Approved:      req.Payload.Approval,
		Attributes:    d.Attributes,
		AccountGrants: grants,
	})
}

// Validate checks a resource request against its consent.  Rejections are
// reported in the body with status 200.
// POST /v1/consent/validate
func (h *ConsentHandler) Validate(c echo.Context) error {
	var req consent.ValidateRequest
	if err := c.Bind(&req); err != nil {
		return cdserr.FieldInvalid("request body is not a valid validate request")
	}
	if req.ClientID == "" {
		if id, ok := c.Get("client_id").(string); ok {
			req.ClientID = id
		}
	}

	ctx, cancel := h.ctx(c)
	defer cancel()
	return c.JSON(http.StatusOK, h.Validator.Validate(ctx, req))
}
