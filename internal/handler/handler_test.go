package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cds-extensions/internal/cdserr"
	"github.com/iliyamo/cds-extensions/internal/consent"
	"github.com/iliyamo/cds-extensions/internal/gateway"
	"github.com/iliyamo/cds-extensions/internal/model"
	"github.com/iliyamo/cds-extensions/internal/queue"
	"github.com/iliyamo/cds-extensions/internal/repository"
	"github.com/iliyamo/cds-extensions/internal/utils"
)

// memMeta is an in-memory account metadata store keyed by
// account/user/key.
type memMeta map[[3]string]string

func (m memMeta) Get(_ context.Context, accountID, userID, key string) (string, error) {
	v, ok := m[[3]string{accountID, userID, key}]
	if !ok {
		return "", repository.ErrNotFound
	}
	return v, nil
}

func (m memMeta) Upsert(_ context.Context, accountID, userID string, values map[string]string) error {
	for k, v := range values {
		m[[3]string{accountID, userID, k}] = v
	}
	return nil
}

func (m memMeta) DeleteKey(_ context.Context, accountID, userID, key string) error {
	delete(m, [3]string{accountID, userID, key})
	return nil
}

func (m memMeta) DeleteAllForAccount(_ context.Context, accountID, key string) error {
	for k := range m {
		if k[0] == accountID && k[2] == key {
			delete(m, k)
		}
	}
	return nil
}

func (m memMeta) ListByAccountKey(_ context.Context, accountID, key string) (map[string]string, error) {
	out := map[string]string{}
	for k, v := range m {
		if k[0] == accountID && k[2] == key {
			out[k[1]] = v
		}
	}
	return out, nil
}

func (m memMeta) ListByUserKey(_ context.Context, userID, key string) (map[string]string, error) {
	out := map[string]string{}
	for k, v := range m {
		if k[1] == userID && k[2] == key {
			out[k[0]] = v
		}
	}
	return out, nil
}

// arrangements is a consent store that only knows arrangements.
type arrangements struct {
	byArrangement map[string]model.Consent
	revoked       []string
}

func (a *arrangements) Get(context.Context, string) (model.Consent, error) {
	return model.Consent{}, repository.ErrNotFound
}

func (a *arrangements) GetDetailed(context.Context, string) (model.DetailedConsent, error) {
	return model.DetailedConsent{}, repository.ErrNotFound
}

func (a *arrangements) Authorize(context.Context, string, []model.AuthorizationGrant, map[string]string, bool) ([]model.AuthorizationResource, error) {
	return nil, errors.New("not supported")
}

func (a *arrangements) UpdateStatus(_ context.Context, consentID, status string) error {
	a.revoked = append(a.revoked, consentID)
	return nil
}

func (a *arrangements) DeactivateMappings(context.Context, string, string) ([]string, error) {
	return nil, nil
}

func (a *arrangements) FindByArrangement(_ context.Context, id string) (model.Consent, error) {
	c, ok := a.byArrangement[id]
	if !ok {
		return model.Consent{}, repository.ErrNotFound
	}
	return c, nil
}

type events []queue.ConsentStateChange

func (e *events) PublishConsentState(_ context.Context, ev queue.ConsentStateChange) error {
	*e = append(*e, ev)
	return nil
}

func newServer() *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = (&gateway.Mediator{}).ErrorHandler
	return e
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Errors []struct {
			Code string `json:"code"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	require.NotEmpty(t, body.Errors)
	return body.Errors[0].Code
}

func newAdminServer(meta memMeta, store *arrangements, ev *events) *echo.Echo {
	h := &AdminHandler{Admin: &consent.Admin{Meta: meta, Consents: store, Events: ev}}
	e := newServer()
	e.PUT("/doms", h.UpdateDisclosureOptions)
	e.PUT("/bnr", h.UpdateBNRPermissions)
	e.GET("/bnr", h.GetBNRPermissions)
	e.PUT("/block", h.BlockSecondaryAccounts)
	e.GET("/blocked", h.BlockedSecondaryAccounts)
	e.DELETE("/arrangements/:cdrArrangementId", h.RevokeArrangement)
	e.GET("/metrics", h.Metrics)
	return e
}

func TestAdmin_DisclosureOptions(t *testing.T) {
	meta := memMeta{}
	e := newAdminServer(meta, &arrangements{}, &events{})

	rec := do(e, http.MethodPut, "/doms", `[{"accountID":"acc-1","disclosureOption":"no-sharing"}]`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.DOMSNoSharing, meta[[3]string{"acc-1", model.AccountLevelUser, model.MetaDisclosureOptionStatus}])

	rec = do(e, http.MethodPut, "/doms", `{"accountID":"acc-2","disclosureOption":"pre-approval"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.DOMSPreApproval, meta[[3]string{"acc-2", model.AccountLevelUser, model.MetaDisclosureOptionStatus}])

	rec = do(e, http.MethodPut, "/doms", `[{"accountID":"acc-1","disclosureOption":"maybe"}]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, cdserr.CodeFieldInvalid, errorCode(t, rec))

	rec = do(e, http.MethodPut, "/doms", `[]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, cdserr.CodeFieldMissing, errorCode(t, rec))

	rec = do(e, http.MethodPut, "/doms", `{not json`)
	assert.Equal(t, cdserr.CodeFieldInvalid, errorCode(t, rec))
}

func TestAdmin_BNRPermissions(t *testing.T) {
	e := newAdminServer(memMeta{}, &arrangements{}, &events{})

	rec := do(e, http.MethodPut, "/bnr", `[{"accountID":"biz-1","accountOwners":["owner"],"nominatedRepresentatives":["rep"]}]`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(e, http.MethodGet, "/bnr?accountIds=biz-1,%20&userId=rep", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[{"accountID":"biz-1","userID":"rep","permission":"AUTHORIZE"}]}`, rec.Body.String())

	rec = do(e, http.MethodGet, "/bnr", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, cdserr.CodeFieldMissing, errorCode(t, rec))
}

func TestAdmin_BlockedSecondaryAccounts(t *testing.T) {
	e := newAdminServer(memMeta{}, &arrangements{}, &events{})

	rec := do(e, http.MethodPut, "/block", `{"secondaryUserID":"u1","accountID":"acc-1","legalEntityIDs":["le-1","le-2"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(e, http.MethodGet, "/blocked?userId=u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[{"secondaryUserID":"u1","accountID":"acc-1","legalEntityIDs":["le-1","le-2"]}]}`, rec.Body.String())
}

func TestAdmin_RevokeArrangement(t *testing.T) {
	store := &arrangements{byArrangement: map[string]model.Consent{
		"arr-1": {ConsentID: "c1", ClientID: "client", Status: model.ConsentStatusAuthorized},
	}}
	ev := &events{}
	e := newAdminServer(memMeta{}, store, ev)

	rec := do(e, http.MethodDelete, "/arrangements/arr-1", "")
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"c1"}, store.revoked)
	require.Len(t, *ev, 1)
	assert.True(t, (*ev)[0].DataHolderInitiated)
	assert.Equal(t, "arr-1", (*ev)[0].ArrangementID)

	rec = do(e, http.MethodDelete, "/arrangements/arr-404", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, cdserr.CodeInvalidArrangement, errorCode(t, rec))
}

func TestAdmin_MetricsRejectsUnknownPeriod(t *testing.T) {
	e := newAdminServer(memMeta{}, &arrangements{}, &events{})
	rec := do(e, http.MethodGet, "/metrics?period=LAST_WEEK", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, cdserr.CodeFieldInvalid, errorCode(t, rec))
}

func TestIssueToken(t *testing.T) {
	h := &AuthHandler{JWTSecret: "secret", TTL: time.Minute, Role: "ADMIN"}
	e := newServer()
	e.POST("/token", h.IssueToken, func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("user_id", "ops")
			return next(c)
		}
	})
	e.POST("/anon-token", h.IssueToken)

	rec := do(e, http.MethodPost, "/token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp tokenResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	sub, role, err := utils.ParseAccessToken("secret", resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ops", sub)
	assert.Equal(t, "ADMIN", role)

	rec = do(e, http.MethodPost, "/anon-token", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

type clock time.Time

func (c clock) UpdatedAt() time.Time { return time.Time(c) }

func TestHealth(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	e := newServer()
	e.GET("/ok", (&HealthHandler{DB: pinger{}, Metadata: clock(at)}).Health)
	e.GET("/down", (&HealthHandler{DB: pinger{err: errors.New("refused")}}).Health)

	rec := do(e, http.MethodGet, "/ok", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","database":"ok","metadataUpdatedAt":"2026-01-02T03:04:05Z"}`, rec.Body.String())

	rec = do(e, http.MethodGet, "/down", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
