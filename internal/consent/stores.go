// Package consent implements the data-sharing eligibility rules applied
// while a consent is authorised: persistence steps, authorisation screen
// data, consent validation and the account permission admin operations.
package consent

import (
	"context"

	"github.com/iliyamo/cds-extensions/internal/model"
	"github.com/iliyamo/cds-extensions/internal/queue"
)

// MetadataStore is the account metadata key-value store.
type MetadataStore interface {
	Get(ctx context.Context, accountID, userID, key string) (string, error)
	Upsert(ctx context.Context, accountID, userID string, values map[string]string) error
	DeleteKey(ctx context.Context, accountID, userID, key string) error
	DeleteAllForAccount(ctx context.Context, accountID, key string) error
	ListByAccountKey(ctx context.Context, accountID, key string) (map[string]string, error)
	ListByUserKey(ctx context.Context, userID, key string) (map[string]string, error)
}

// ConsentStore is the consent management store.
type ConsentStore interface {
	Get(ctx context.Context, consentID string) (model.Consent, error)
	GetDetailed(ctx context.Context, consentID string) (model.DetailedConsent, error)
	Authorize(ctx context.Context, consentID string, grants []model.AuthorizationGrant,
		attrs map[string]string, amend bool) ([]model.AuthorizationResource, error)
	UpdateStatus(ctx context.Context, consentID, status string) error
	DeactivateMappings(ctx context.Context, userID, accountID string) ([]string, error)
	FindByArrangement(ctx context.Context, arrangementID string) (model.Consent, error)
}

// ServiceProviderStore resolves locally registered data recipient clients.
type ServiceProviderStore interface {
	GetByClientID(ctx context.Context, clientID string) (model.ServiceProvider, error)
}

// EventPublisher publishes consent state changes.
type EventPublisher interface {
	PublishConsentState(ctx context.Context, ev queue.ConsentStateChange) error
}
