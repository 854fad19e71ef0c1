package metadata

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iliyamo/cds-extensions/internal/config"
	"github.com/iliyamo/cds-extensions/internal/model"
	"github.com/iliyamo/cds-extensions/internal/queue"
	"github.com/iliyamo/cds-extensions/internal/repository"
)

// Registry reads the CDR register.  A nil map means the fetch failed.
type Registry interface {
	DataRecipientStatuses(ctx context.Context) map[string]string
	SoftwareProductStatuses(ctx context.Context) map[string]string
}

// ProviderLister lists locally registered data recipient clients.
type ProviderLister interface {
	List(ctx context.Context) ([]model.ServiceProvider, error)
}

// ConsentCleaner revokes the consents of clients that lost their status.
type ConsentCleaner interface {
	ListActiveByClients(ctx context.Context, clientIDs []string) ([]model.Consent, error)
	UpdateStatus(ctx context.Context, consentID, status string) error
}

// EventPublisher publishes consent state changes.
type EventPublisher interface {
	PublishConsentState(ctx context.Context, ev queue.ConsentStateChange) error
}

// Updater refreshes the Holder from the register and revokes the consents
// of clients whose data recipient was revoked or surrendered or whose
// software product was removed.
type Updater struct {
	Registry  Registry
	Providers ProviderLister
	Holder    *Holder
	Consents  ConsentCleaner
	Events    EventPublisher
	Cfg       config.MetadataCacheConfig
	Now       func() time.Time

	mu      sync.Mutex
	pending map[string]bool
	wg      sync.WaitGroup
}

func (u *Updater) now() time.Time {
	if u.Now != nil {
		return u.Now()
	}
	return time.Now()
}

// Run performs one refresh.  Failures are logged and the cached statuses
// stay in place, so the scheduler never sees an error.
func (u *Updater) Run(ctx context.Context) {
	drs := u.Registry.DataRecipientStatuses(ctx)
	sps := u.Registry.SoftwareProductStatuses(ctx)
	if drs == nil || sps == nil {
		log.Warn().Msg("cdr register unavailable, keeping cached metadata")
		return
	}
	providers, err := u.Providers.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("list service providers failed, keeping cached metadata")
		return
	}

	drByClient := make(map[string]string, len(providers))
	spByClient := make(map[string]string, len(providers))
	var cleanup []string
	for _, sp := range providers {
		dr, hasDR := drs[sp.LegalEntityID]
		if hasDR {
			drByClient[sp.ClientID] = dr
		}
		prod, hasSP := sps[sp.SoftwareID]
		if hasSP {
			spByClient[sp.ClientID] = prod
		}
		if (hasDR && requiresCleanup(dr)) || (hasSP && prod == model.SoftwareProductRemoved) {
			cleanup = append(cleanup, sp.ClientID)
		}
	}
	u.Holder.SetDataRecipients(drByClient)
	u.Holder.SetSoftwareProducts(spByClient)
	log.Info().Int("data_recipients", len(drByClient)).Int("software_products", len(spByClient)).
		Msg("metadata cache updated")

	if !u.Cfg.CleanupEnabled || len(cleanup) == 0 {
		return
	}
	if u.Cfg.BulkCleanup {
		u.mu.Lock()
		if u.pending == nil {
			u.pending = map[string]bool{}
		}
		for _, id := range cleanup {
			u.pending[id] = true
		}
		u.mu.Unlock()
		log.Info().Strs("client_ids", cleanup).Msg("consent cleanup queued for bulk run")
		return
	}
	u.wg.Add(1)
	go func(ctx context.Context) {
		defer u.wg.Done()
		u.cleanup(ctx, cleanup)
	}(context.WithoutCancel(ctx))
}

func requiresCleanup(status string) bool {
	return status == model.DataRecipientRevoked || status == model.DataRecipientSurrendered
}

// RunBulkCleanup revokes the consents of every client queued since the
// previous bulk run.
func (u *Updater) RunBulkCleanup(ctx context.Context) {
	u.mu.Lock()
	ids := make([]string, 0, len(u.pending))
	for id := range u.pending {
		ids = append(ids, id)
	}
	u.pending = nil
	u.mu.Unlock()
	if len(ids) == 0 {
		return
	}
	sort.Strings(ids)
	u.cleanup(ctx, ids)
}

// Wait blocks until immediate cleanups started by Run have finished.
func (u *Updater) Wait() { u.wg.Wait() }

func (u *Updater) cleanup(ctx context.Context, clientIDs []string) {
	consents, err := u.Consents.ListActiveByClients(ctx, clientIDs)
	if err != nil {
		log.Error().Err(err).Strs("client_ids", clientIDs).Msg("list consents for cleanup failed")
		return
	}
	revoked := 0
	for _, c := range consents {
		err := u.Consents.UpdateStatus(ctx, c.ConsentID, model.ConsentStatusRevoked)
		if errors.Is(err, repository.ErrConflict) || errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			log.Error().Err(err).Str("consent_id", c.ConsentID).Msg("revoke consent during cleanup failed")
			continue
		}
		revoked++
		if u.Events == nil {
			continue
		}
		ev := queue.ConsentStateChange{
			ConsentID:     c.ConsentID,
			ClientID:      c.ClientID,
			State:         model.ConsentStatusRevoked,
			PreviousState: c.Status,
			Reason:        "Data recipient is no longer active",
			OccurredAt:    u.now().UTC().Format(time.RFC3339),
		}
		if err := u.Events.PublishConsentState(ctx, ev); err != nil {
			log.Warn().Err(err).Str("consent_id", c.ConsentID).Msg("publish cleanup revocation failed")
		}
	}
	log.Info().Strs("client_ids", clientIDs).Int("revoked", revoked).Msg("consent cleanup finished")
}
