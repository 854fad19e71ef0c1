package consent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/cds-extensions/internal/config"
	"github.com/iliyamo/cds-extensions/internal/model"
	"github.com/iliyamo/cds-extensions/internal/repository"
)

// eligibility answers the metadata lookups shared by the screen builder
// and the consent validator.
type eligibility struct {
	meta MetadataStore
	cfg  *config.CDS
}

func (e eligibility) get(ctx context.Context, accountID, userID, key string) (string, error) {
	v, err := e.meta.Get(ctx, accountID, userID, key)
	if errors.Is(err, repository.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load %s of %s: %w", key, accountID, err)
	}
	return v, nil
}

// preApproved reports whether joint account sharing is pre-approved.  An
// account without a stored disclosure option is pre-approved.
func (e eligibility) preApproved(ctx context.Context, accountID string) (bool, error) {
	if !e.cfg.DOMS.Enabled {
		return true, nil
	}
	v, err := e.get(ctx, accountID, model.AccountLevelUser, model.MetaDisclosureOptionStatus)
	if err != nil {
		return false, err
	}
	return v == "" || v == model.DOMSPreApproval, nil
}

// bnrPermission returns the user's nominated representative permission on
// accountID or "" when none is stored.
func (e eligibility) bnrPermission(ctx context.Context, accountID, userID string) (string, error) {
	return e.get(ctx, accountID, userID, model.MetaBNRPermission)
}

// legalEntityBlocked reports whether the owner of a secondary account has
// stopped sharing it with legalEntityID.
func (e eligibility) legalEntityBlocked(ctx context.Context, accountID, userID, legalEntityID string) (bool, error) {
	if legalEntityID == "" || !e.cfg.SecondaryUser.CeasingSharingEnabled {
		return false, nil
	}
	v, err := e.get(ctx, accountID, userID, model.MetaBlockedLegalEntities)
	if err != nil {
		return false, err
	}
	for _, id := range splitList(v) {
		if id == legalEntityID {
			return true, nil
		}
	}
	return false, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func legalEntityOf(ctx context.Context, providers ServiceProviderStore, clientID string) (string, error) {
	if providers == nil || clientID == "" {
		return "", nil
	}
	sp, err := providers.GetByClientID(ctx, clientID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load service provider %s: %w", clientID, err)
	}
	return sp.LegalEntityID, nil
}
