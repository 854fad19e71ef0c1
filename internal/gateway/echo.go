package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/cds-extensions/internal/cdserr"
)

// InteractionID makes sure every request and response carries an
// x-fapi-interaction-id, generating one when the caller sent none.
func InteractionID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(HeaderInteractionID)
			if id == "" {
				id = uuid.NewString()
				c.Request().Header.Set(HeaderInteractionID, id)
			}
			c.Response().Header().Set(HeaderInteractionID, id)
			return next(c)
		}
	}
}

// ErrorHandler is an echo.HTTPErrorHandler that runs every error through
// the mediator.
func (m *Mediator) ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	req := c.Request()
	mc := &MessageContext{
		Headers:         http.Header{},
		MessageID:       req.Header.Get(HeaderInteractionID),
		ConsumerID:      contextString(c, "user_id"),
		ClientID:        contextString(c, "client_id"),
		ElectedResource: c.Path(),
		HTTPMethod:      req.Method,
		AccessToken:     strings.TrimPrefix(req.Header.Get(echo.HeaderAuthorization), "Bearer "),
	}
	if mc.MessageID != "" {
		mc.Headers.Set(HeaderInteractionID, mc.MessageID)
	}

	var (
		fault  *Fault
		cdsErr *cdserr.Error
		he     *echo.HTTPError
	)
	switch {
	case errors.As(err, &fault):
		mc.ErrorCode = strconv.Itoa(fault.Code)
		mc.ErrorMessage = fault.Message
		mc.ErrorDetail = fault.Description
	case errors.As(err, &cdsErr):
		mc.Status = cdsErr.Status
		mc.Body = cdserr.Body(cdsErr)
	case errors.As(err, &he):
		mc.Status = he.Code
		mc.ErrorMessage = fmt.Sprint(he.Message)
	default:
		e := cdserr.Wrap(err)
		mc.Status = e.Status
		mc.Body = cdserr.Body(e)
	}
	if mc.Status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("method", mc.HTTPMethod).Str("path", req.URL.Path).Msg("request failed")
	}

	m.Mediate(req.Context(), mc)

	for k, vs := range mc.Headers {
		for _, v := range vs {
			c.Response().Header().Set(k, v)
		}
	}
	if req.Method == http.MethodHead {
		_ = c.NoContent(mc.Status)
		return
	}
	contentType := mc.ContentType
	if contentType == "" {
		contentType = echo.MIMEApplicationJSON
	}
	if werr := c.Blob(mc.Status, contentType, mc.Body); werr != nil {
		log.Warn().Err(werr).Msg("write error response failed")
	}
}

func contextString(c echo.Context, key string) string {
	if s, ok := c.Get(key).(string); ok {
		return s
	}
	return ""
}
