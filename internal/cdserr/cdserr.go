// Package cdserr implements the Consumer Data Standards error taxonomy and
// the fixed error body format:
//
//	{"errors":[{"code":"...","title":"...","detail":"...","meta":{}}]}
//
// Handlers return *Error values and the gateway error handler turns them
// into responses.
package cdserr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// CDS error codes used by this service.
const (
	CodeExpectedError         = "urn:au-cds:error:cds-all:GeneralError:Expected"
	CodeUnexpectedError       = "urn:au-cds:error:cds-all:GeneralError:Unexpected"
	CodeFieldMissing          = "urn:au-cds:error:cds-all:Field:Missing"
	CodeFieldInvalid          = "urn:au-cds:error:cds-all:Field:Invalid"
	CodeHeaderMissing         = "urn:au-cds:error:cds-all:Header:Missing"
	CodeHeaderInvalid         = "urn:au-cds:error:cds-all:Header:Invalid"
	CodePageOutOfRange        = "urn:au-cds:error:cds-all:Field:InvalidPage"
	CodeResourceNotFound      = "urn:au-cds:error:cds-all:Resource:NotFound"
	CodeAdrStatusNotActive    = "urn:au-cds:error:cds-all:Authorisation:AdrStatusNotActive"
	CodeRevokedConsent        = "urn:au-cds:error:cds-all:Authorisation:RevokedConsent"
	CodeInvalidConsent        = "urn:au-cds:error:cds-all:Authorisation:InvalidConsent"
	CodeInvalidArrangement    = "urn:au-cds:error:cds-all:Authorisation:InvalidArrangement"
	CodeInvalidBankingAccount = "urn:au-cds:error:cds-banking:Authorisation:InvalidBankingAccount"
	CodeUnauthorized          = "urn:au-cds:error:cds-all:Authorisation:Unauthorized"
)

// ErrUnauthorized marks security failures; Wrap maps it to UNAUTHORIZED.
var ErrUnauthorized = errors.New("unauthorized")

// Error is a CDS error with the HTTP status it should be returned with.
type Error struct {
	Status int
	Code   string
	Title  string
	Detail string
	Meta   map[string]any
	cause  error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Title, e.Detail)
	}
	return e.Title
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an error with an explicit status and code.
func New(status int, code, title, detail string) *Error {
	return &Error{Status: status, Code: code, Title: title, Detail: detail}
}

func FieldMissing(detail string) *Error {
	return New(http.StatusBadRequest, CodeFieldMissing, "Missing Required Field", detail)
}

func FieldInvalid(detail string) *Error {
	return New(http.StatusBadRequest, CodeFieldInvalid, "Invalid Field", detail)
}

func HeaderMissing(detail string) *Error {
	return New(http.StatusBadRequest, CodeHeaderMissing, "Missing Required Header", detail)
}

func HeaderInvalid(detail string) *Error {
	return New(http.StatusBadRequest, CodeHeaderInvalid, "Invalid Header", detail)
}

func PageOutOfRange(detail string) *Error {
	return New(http.StatusUnprocessableEntity, CodePageOutOfRange, "Invalid Page", detail)
}

func ResourceNotFound(detail string) *Error {
	return New(http.StatusNotFound, CodeResourceNotFound, "Resource Not Found", detail)
}

func Expected(status int, detail string) *Error {
	return New(status, CodeExpectedError, "Expected Error Encountered", detail)
}

func Unexpected(detail string) *Error {
	return New(http.StatusInternalServerError, CodeUnexpectedError, "Unexpected Error Encountered", detail)
}

func Unauthorized(detail string) *Error {
	return New(http.StatusUnauthorized, CodeUnauthorized, "Unauthorized", detail)
}

func AdrStatusNotActive(detail string) *Error {
	return New(http.StatusForbidden, CodeAdrStatusNotActive, "ADR Status Is Not Active", detail)
}

func InvalidConsent(detail string) *Error {
	return New(http.StatusForbidden, CodeInvalidConsent, "Consent Is Invalid", detail)
}

func RevokedConsent(detail string) *Error {
	return New(http.StatusForbidden, CodeRevokedConsent, "Consent Is Revoked", detail)
}

func InvalidArrangement(detail string) *Error {
	return New(http.StatusUnprocessableEntity, CodeInvalidArrangement, "Invalid Consent Arrangement", detail)
}

func InvalidBankingAccount(detail string) *Error {
	return New(http.StatusNotFound, CodeInvalidBankingAccount, "Invalid Banking Account", detail)
}

// Wrap maps an arbitrary error into the fixed CDS taxonomy. Errors that
// already are *Error are returned unchanged.
func Wrap(err error) *Error {
	if err == nil {
		return FieldMissing("required value is missing")
	}
	var cdsErr *Error
	if errors.As(err, &cdsErr) {
		return cdsErr
	}
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		numErr    *strconv.NumError
	)
	switch {
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		e := Unexpected(err.Error())
		e.cause = err
		return e
	case errors.As(err, &numErr), errors.Is(err, ErrInvalidArgument):
		e := FieldInvalid(err.Error())
		e.cause = err
		return e
	case errors.Is(err, ErrMissing):
		e := FieldMissing(err.Error())
		e.cause = err
		return e
	case errors.Is(err, ErrUnauthorized):
		e := Unauthorized(err.Error())
		e.cause = err
		return e
	}
	e := Unexpected(err.Error())
	e.cause = err
	return e
}

// ErrInvalidArgument and ErrMissing let callers classify their own
// validation failures without building an *Error.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrMissing         = errors.New("missing value")
)

type item struct {
	Code   string         `json:"code"`
	Title  string         `json:"title"`
	Detail string         `json:"detail"`
	Meta   map[string]any `json:"meta"`
}

type body struct {
	Errors []item `json:"errors"`
}

// Body renders one or more errors as a CDS error body.
func Body(errs ...*Error) []byte {
	b := body{Errors: make([]item, 0, len(errs))}
	for _, e := range errs {
		meta := e.Meta
		if meta == nil {
			meta = map[string]any{}
		}
		b.Errors = append(b.Errors, item{Code: e.Code, Title: e.Title, Detail: e.Detail, Meta: meta})
	}
	out, _ := json.Marshal(b)
	return out
}

// IsCDSBody reports whether raw already is a CDS error body, i.e. a JSON
// object with a non-empty errors array whose entries carry a code.
func IsCDSBody(raw []byte) bool {
	var b struct {
		Errors []struct {
			Code string `json:"code"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(raw, &b); err != nil || len(b.Errors) == 0 {
		return false
	}
	for _, e := range b.Errors {
		if e.Code == "" {
			return false
		}
	}
	return true
}
