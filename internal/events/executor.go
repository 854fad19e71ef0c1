// Package events reacts to consent state changes: it publishes
// authorisation metrics and notifies data recipients of arrangements the
// data holder revoked.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iliyamo/cds-extensions/internal/model"
	"github.com/iliyamo/cds-extensions/internal/queue"
)

// Authorisation flows reported with authorisation metrics.
const (
	FlowConsentAuthorisation = "consentAuthorisation"
	FlowConsentAmendment     = "consentAmendmentAuthorisation"
)

// recentRequestURIKeysLimit bounds the keys kept for duplicate suppression.
const recentRequestURIKeysLimit = 20

// MetricPublisher publishes authorisation metrics.
type MetricPublisher interface {
	PublishAuthorisationMetric(ctx context.Context, m queue.AuthorisationMetric) error
}

// Revoker notifies a data recipient that an arrangement was revoked.
type Revoker interface {
	Revoke(ctx context.Context, clientID, arrangementID string) error
}

// Executor handles consent state changes.  A nil Metrics or Revoker turns
// the corresponding reaction off.
type Executor struct {
	Metrics MetricPublisher
	Revoker Revoker
	Now     func() time.Time

	recent recentKeys
}

func (e *Executor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

// Process handles one state change.  It is safe for concurrent use.
func (e *Executor) Process(ctx context.Context, ev queue.ConsentStateChange) error {
	var errs []error
	if e.Metrics != nil && publishesMetric(ev.State) {
		if err := e.publishMetric(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	if e.Revoker != nil && ev.State == model.ConsentStatusRevoked && ev.DataHolderInitiated {
		if err := e.revoke(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func publishesMetric(state string) bool {
	switch state {
	case model.ConsentStatusAuthorized, model.ConsentStatusAmended,
		model.ConsentStatusRevoked, model.ConsentStatusExpired:
		return true
	}
	return false
}

func (e *Executor) publishMetric(ctx context.Context, ev queue.ConsentStateChange) error {
	key := ev.RequestURIKey
	if key != "" && !e.recent.claim(key) {
		log.Debug().Str("consent_id", ev.ConsentID).Str("request_uri_key", key).
			Msg("authorisation metric already published")
		return nil
	}
	flow := FlowConsentAuthorisation
	if ev.State == model.ConsentStatusAmended {
		flow = FlowConsentAmendment
	}
	m := queue.AuthorisationMetric{
		ConsentID:         ev.ConsentID,
		ClientID:          ev.ClientID,
		State:             ev.State,
		AuthorisationFlow: flow,
		CustomerProfile:   ev.CustomerProfile,
		Timestamp:         e.now().Unix(),
	}
	if err := e.Metrics.PublishAuthorisationMetric(ctx, m); err != nil {
		if key != "" {
			e.recent.release(key)
		}
		return fmt.Errorf("publish authorisation metric for %s: %w", ev.ConsentID, err)
	}
	return nil
}

func (e *Executor) revoke(ctx context.Context, ev queue.ConsentStateChange) error {
	if ev.ArrangementID == "" {
		log.Warn().Str("consent_id", ev.ConsentID).Msg("revoked consent has no arrangement id, recipient not notified")
		return nil
	}
	if err := e.Revoker.Revoke(ctx, ev.ClientID, ev.ArrangementID); err != nil {
		return fmt.Errorf("notify recipient of revoked arrangement %s: %w", ev.ArrangementID, err)
	}
	log.Info().Str("consent_id", ev.ConsentID).Str("cdr_arrangement_id", ev.ArrangementID).
		Msg("data recipient notified of revoked arrangement")
	return nil
}

// recentKeys holds the most recently published request URI keys, oldest
// first.
type recentKeys struct {
	mu   sync.Mutex
	keys []string
}

// claim records key and reports whether it was not already present.
func (r *recentKeys) claim(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.keys {
		if k == key {
			return false
		}
	}
	if len(r.keys) == recentRequestURIKeysLimit {
		r.keys = r.keys[1:]
	}
	r.keys = append(r.keys, key)
	return true
}

func (r *recentKeys) release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			return
		}
	}
}
