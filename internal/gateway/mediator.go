// Package gateway maps gateway and handler errors to Consumer Data
// Standards error responses and publishes invocation-error telemetry.
package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/cds-extensions/internal/cdserr"
	"github.com/iliyamo/cds-extensions/internal/config"
	"github.com/iliyamo/cds-extensions/internal/queue"
)

// HeaderInteractionID is the FAPI interaction id header.
const HeaderInteractionID = "x-fapi-interaction-id"

// Markers in the error detail of schema validation failures.
const (
	SchemaFailMarker = "Schema validation failed"
	PageSizeMarker   = "page-size"
	headerMarker     = "header"
	missingMarker    = "required"
)

// MessageContext is the error state of one request as seen by the
// mediator.  Mediate rewrites Status, Body and Headers in place.
type MessageContext struct {
	ErrorCode       string
	ErrorMessage    string
	ErrorDetail     string
	Status          int
	Body            []byte
	ContentType     string
	Headers         http.Header
	MessageID       string
	ConsumerID      string
	ClientID        string
	ElectedResource string
	HTTPMethod      string
	AccessToken     string
}

// TelemetryPublisher publishes invocation errors.
type TelemetryPublisher interface {
	PublishInvocationError(ctx context.Context, e queue.InvocationError) error
}

// Mediator rewrites error responses into CDS error bodies.
type Mediator struct {
	Telemetry TelemetryPublisher
	Cfg       config.TelemetryConfig
	Now       func() time.Time
}

func (m *Mediator) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Mediate classifies the error in mc by its error code, or by its HTTP
// status when no code is set, and produces the response body.  Bodies that
// already are CDS error bodies are left unchanged.
func (m *Mediator) Mediate(ctx context.Context, mc *MessageContext) {
	if mc.Headers == nil {
		mc.Headers = http.Header{}
	}
	if mc.Headers.Get(HeaderInteractionID) == "" {
		mc.Headers.Set(HeaderInteractionID, uuid.NewString())
	}

	code := mc.ErrorCode
	if code == "" && mc.Status >= http.StatusBadRequest {
		code = strconv.Itoa(mc.Status)
	}
	if code == "" {
		return
	}
	m.publishTelemetry(ctx, mc)

	if cdserr.IsCDSBody(mc.Body) {
		return
	}

	switch {
	case strings.HasPrefix(code, "9008"):
		setCDS(mc, cdserr.New(http.StatusTooManyRequests, cdserr.CodeExpectedError, "Too Many Requests",
			orDefault(mc.ErrorDetail, "Message throttled out")))
	case strings.HasPrefix(code, "9"):
		m.authFailure(mc, code)
	case strings.HasPrefix(code, "4"):
		status := statusOf(code, http.StatusBadRequest)
		if strings.Contains(mc.ErrorDetail, SchemaFailMarker) {
			setCDS(mc, requestSchemaError(mc.ErrorDetail))
			return
		}
		if mc.ErrorDetail == "" {
			if status == http.StatusNotFound {
				setCDS(mc, cdserr.ResourceNotFound(orDefault(mc.ErrorMessage, "Requested resource not found")))
				return
			}
			setCDS(mc, cdserr.Expected(status, orDefault(mc.ErrorMessage, http.StatusText(status))))
			return
		}
		setCDS(mc, cdserr.Expected(status, mc.ErrorDetail))
	case strings.HasPrefix(code, "5"):
		status := statusOf(code, http.StatusInternalServerError)
		if strings.Contains(mc.ErrorDetail, SchemaFailMarker) {
			setCDS(mc, cdserr.Unexpected("Response schema validation failed: "+mc.ErrorDetail))
			return
		}
		e := cdserr.Unexpected(orDefault(mc.ErrorDetail, orDefault(mc.ErrorMessage, http.StatusText(status))))
		e.Status = status
		setCDS(mc, e)
	default:
		setCDS(mc, cdserr.Unexpected(orDefault(mc.ErrorDetail, mc.ErrorMessage)))
	}
}

func (m *Mediator) authFailure(mc *MessageContext, code string) {
	n, _ := strconv.Atoi(code)
	switch {
	case n >= FaultInvalidCredentials && n <= FaultIncorrectAccessTokenType:
		setOAuth(mc, http.StatusUnauthorized, "invalid_client", orDefault(mc.ErrorDetail, mc.ErrorMessage))
	case n == FaultInvalidScope:
		setOAuth(mc, http.StatusForbidden, "invalid_scope", orDefault(mc.ErrorDetail, mc.ErrorMessage))
	default:
		setCDS(mc, cdserr.New(http.StatusForbidden, cdserr.CodeUnauthorized, "Unauthorized",
			orDefault(mc.ErrorDetail, mc.ErrorMessage)))
	}
}

// requestSchemaError splits a request schema failure into header, page and
// field errors.
func requestSchemaError(detail string) *cdserr.Error {
	lower := strings.ToLower(detail)
	missing := strings.Contains(lower, missingMarker) || strings.Contains(lower, "missing")
	switch {
	case strings.Contains(lower, PageSizeMarker):
		return cdserr.PageOutOfRange(detail)
	case strings.Contains(lower, headerMarker) && missing:
		return cdserr.HeaderMissing(detail)
	case strings.Contains(lower, headerMarker):
		return cdserr.HeaderInvalid(detail)
	case missing:
		return cdserr.FieldMissing(detail)
	}
	return cdserr.FieldInvalid(detail)
}

func setCDS(mc *MessageContext, e *cdserr.Error) {
	mc.Status = e.Status
	mc.Body = cdserr.Body(e)
	mc.ContentType = "application/json"
}

func setOAuth(mc *MessageContext, status int, errorCode, description string) {
	body, _ := json.Marshal(map[string]string{"error": errorCode, "error_description": description})
	mc.Status = status
	mc.Body = body
	mc.ContentType = "application/json"
}

func statusOf(code string, fallback int) int {
	if n, err := strconv.Atoi(code); err == nil && n >= 400 && n < 600 {
		return n
	}
	return fallback
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func (m *Mediator) publishTelemetry(ctx context.Context, mc *MessageContext) {
	if !m.Cfg.Enabled || m.Telemetry == nil {
		return
	}
	status := mc.Status
	if status == 0 {
		status = statusOf(mc.ErrorCode, 0)
	}
	ev := queue.InvocationError{
		MessageID:       mc.MessageID,
		ConsumerID:      mc.ConsumerID,
		ClientID:        mc.ClientID,
		StatusCode:      status,
		ElectedResource: mc.ElectedResource,
		HTTPMethod:      mc.HTTPMethod,
		Timestamp:       m.now().UnixMilli(),
	}
	if m.Cfg.AccessTokenHashing && mc.AccessToken != "" {
		ev.AccessTokenHash = HashToken(mc.AccessToken)
	}
	if err := m.Telemetry.PublishInvocationError(ctx, ev); err != nil {
		log.Warn().Err(err).Str("resource", mc.ElectedResource).Msg("publish invocation error failed")
	}
}

// HashToken returns the hex sha-256 of an access token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
