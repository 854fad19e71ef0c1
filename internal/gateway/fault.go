package gateway

import "fmt"

// Gateway fault codes raised by the authentication, authorization and
// throttling layers in front of the API handlers.
const (
	FaultThrottledOut             = 900800
	FaultInvalidCredentials       = 900901
	FaultMissingCredentials       = 900902
	FaultAccessTokenExpired       = 900903
	FaultAccessTokenInactive      = 900904
	FaultIncorrectAccessTokenType = 900905
	FaultResourceForbidden        = 900908
	FaultInvalidScope             = 900910
)

// Fault is an error raised by the gateway layer before a request reaches
// its handler.  The mediator turns it into the response body.
type Fault struct {
	Code        int
	Message     string
	Description string
}

func (f *Fault) Error() string {
	if f.Description != "" {
		return fmt.Sprintf("%d %s: %s", f.Code, f.Message, f.Description)
	}
	return fmt.Sprintf("%d %s", f.Code, f.Message)
}

func NewFault(code int, message, description string) *Fault {
	return &Fault{Code: code, Message: message, Description: description}
}

func Throttled(description string) *Fault {
	return NewFault(FaultThrottledOut, "Message throttled out", description)
}

func InvalidCredentials(description string) *Fault {
	return NewFault(FaultInvalidCredentials, "Invalid Credentials", description)
}

func MissingCredentials(description string) *Fault {
	return NewFault(FaultMissingCredentials, "Missing Credentials", description)
}

func ResourceForbidden(description string) *Fault {
	return NewFault(FaultResourceForbidden, "Resource forbidden", description)
}
