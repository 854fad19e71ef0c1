// Package queue defines message payloads exchanged over the message broker
// together with the publisher and the consent event consumer.
package queue

// Queue names.
const (
	ConsentStateQueue        = "cds.consent.state"
	AuthorisationMetricQueue = "cds.metrics.authorisation"
	InvocationErrorQueue     = "cds.telemetry.invocation-error"
)

// ConsentStateChange is published whenever a consent changes state.  It
// carries enough information for the consent event executor to publish
// authorisation metrics and, for data-holder initiated revocations, to
// notify the data recipient.
type ConsentStateChange struct {
	ConsentID           string `json:"consent_id"`
	ClientID            string `json:"client_id"`
	ArrangementID       string `json:"cdr_arrangement_id,omitempty"`
	UserID              string `json:"user_id,omitempty"`
	State               string `json:"state"`
	PreviousState       string `json:"previous_state,omitempty"`
	RequestURIKey       string `json:"request_uri_key,omitempty"`
	Reason              string `json:"reason,omitempty"`
	CustomerProfile     string `json:"customer_profile,omitempty"`
	DataHolderInitiated bool   `json:"data_holder_initiated"`
	OccurredAt          string `json:"occurred_at"`
}

// AuthorisationMetric is one authorisation outcome fed to the analytics
// backend for the authorisations metric family.
type AuthorisationMetric struct {
	ConsentID         string `json:"consent_id"`
	ClientID          string `json:"client_id"`
	State             string `json:"state"`
	AuthorisationFlow string `json:"authorisation_flow"`
	CustomerProfile   string `json:"customer_profile,omitempty"`
	Timestamp         int64  `json:"timestamp"`
}

// InvocationError is gateway telemetry for a failed API invocation.
type InvocationError struct {
	MessageID       string `json:"message_id"`
	ConsumerID      string `json:"consumer_id,omitempty"`
	ClientID        string `json:"client_id,omitempty"`
	StatusCode      int    `json:"status_code"`
	ElectedResource string `json:"elected_resource"`
	HTTPMethod      string `json:"http_method"`
	AccessTokenHash string `json:"access_token_hash,omitempty"`
	Timestamp       int64  `json:"timestamp"`
}
