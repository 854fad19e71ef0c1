package consent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iliyamo/cds-extensions/internal/cdserr"
	"github.com/iliyamo/cds-extensions/internal/model"
	"github.com/iliyamo/cds-extensions/internal/queue"
	"github.com/iliyamo/cds-extensions/internal/repository"
)

// BNRPermissionUpdate lists the owners and nominated representatives of a
// business account.
type BNRPermissionUpdate struct {
	AccountID                string   `json:"accountID"`
	AccountOwners            []string `json:"accountOwners"`
	NominatedRepresentatives []string `json:"nominatedRepresentatives"`
}

// AccountPermission is one stored nominated representative permission.
type AccountPermission struct {
	AccountID  string `json:"accountID"`
	UserID     string `json:"userID"`
	Permission string `json:"permission"`
}

// LegalEntitySharing lists legal entities a secondary account owner has
// stopped (or resumed) sharing an account with.
type LegalEntitySharing struct {
	SecondaryUserID string   `json:"secondaryUserID"`
	AccountID       string   `json:"accountID"`
	LegalEntityIDs  []string `json:"legalEntityIDs"`
}

// DisclosureOption is the disclosure option status of a joint account.
type DisclosureOption struct {
	AccountID string `json:"accountID"`
	Status    string `json:"disclosureOption"`
}

// Admin implements the data holder administration operations.
type Admin struct {
	Meta     MetadataStore
	Consents ConsentStore
	Events   EventPublisher
	Now      func() time.Time
}

func (a *Admin) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func checkAccountID(id string) error {
	if strings.TrimSpace(id) == "" {
		return cdserr.FieldMissing("accountID")
	}
	return nil
}

// UpdatePermissions grants VIEW to account owners and AUTHORIZE to
// nominated representatives, replacing any stored permission of those users.
func (a *Admin) UpdatePermissions(ctx context.Context, updates []BNRPermissionUpdate) error {
	for _, u := range updates {
		if err := checkAccountID(u.AccountID); err != nil {
			return err
		}
		perms := map[string]string{}
		for _, owner := range u.AccountOwners {
			perms[owner] = model.BNRPermissionView
		}
		for _, rep := range u.NominatedRepresentatives {
			perms[rep] = model.BNRPermissionAuthorize
		}
		for userID, perm := range perms {
			if userID == "" {
				continue
			}
			if err := a.Meta.Upsert(ctx, u.AccountID, userID, map[string]string{model.MetaBNRPermission: perm}); err != nil {
				return fmt.Errorf("update permission of %s on %s: %w", userID, u.AccountID, err)
			}
		}
		log.Info().Str("account_id", u.AccountID).Int("users", len(perms)).Msg("nominated representative permissions updated")
	}
	return nil
}

// RevokePermissions revokes the permission of the listed nominated
// representatives and deactivates the account on their consents.  When no
// user with AUTHORIZE remains on an account all of its permissions are
// removed.
func (a *Admin) RevokePermissions(ctx context.Context, updates []BNRPermissionUpdate) error {
	for _, u := range updates {
		if err := checkAccountID(u.AccountID); err != nil {
			return err
		}
		for _, rep := range u.NominatedRepresentatives {
			if rep == "" {
				continue
			}
			if err := a.Meta.Upsert(ctx, u.AccountID, rep,
				map[string]string{model.MetaBNRPermission: model.BNRPermissionRevoke}); err != nil {
				return fmt.Errorf("revoke permission of %s on %s: %w", rep, u.AccountID, err)
			}
			consentIDs, err := a.Consents.DeactivateMappings(ctx, rep, u.AccountID)
			if err != nil {
				return fmt.Errorf("deactivate mappings of %s on %s: %w", rep, u.AccountID, err)
			}
			if len(consentIDs) > 0 {
				log.Info().Str("account_id", u.AccountID).Str("user_id", rep).Strs("consent_ids", consentIDs).
					Msg("account removed from consents of revoked representative")
			}
		}

		perms, err := a.Meta.ListByAccountKey(ctx, u.AccountID, model.MetaBNRPermission)
		if err != nil {
			return fmt.Errorf("load permissions of %s: %w", u.AccountID, err)
		}
		if !hasAuthorizeHolder(perms) {
			if err := a.Meta.DeleteAllForAccount(ctx, u.AccountID, model.MetaBNRPermission); err != nil {
				return fmt.Errorf("remove permissions of %s: %w", u.AccountID, err)
			}
			log.Info().Str("account_id", u.AccountID).Msg("no authorising representative left, permissions removed")
		}
	}
	return nil
}

func hasAuthorizeHolder(perms map[string]string) bool {
	for _, p := range perms {
		if p == model.BNRPermissionAuthorize {
			return true
		}
	}
	return false
}

// GetPermissions returns the stored permissions of accountIDs, limited to
// userID when it is set.
func (a *Admin) GetPermissions(ctx context.Context, accountIDs []string, userID string) ([]AccountPermission, error) {
	if len(accountIDs) == 0 {
		return nil, cdserr.FieldMissing("accountIds")
	}
	out := []AccountPermission{}
	for _, accountID := range accountIDs {
		perms, err := a.Meta.ListByAccountKey(ctx, accountID, model.MetaBNRPermission)
		if err != nil {
			return nil, fmt.Errorf("load permissions of %s: %w", accountID, err)
		}
		users := make([]string, 0, len(perms))
		for u := range perms {
			if userID == "" || u == userID {
				users = append(users, u)
			}
		}
		sort.Strings(users)
		for _, u := range users {
			out = append(out, AccountPermission{AccountID: accountID, UserID: u, Permission: perms[u]})
		}
	}
	return out, nil
}

// BlockLegalEntities stops sharing of secondary accounts with the listed
// legal entities.
func (a *Admin) BlockLegalEntities(ctx context.Context, items []LegalEntitySharing) error {
	return a.updateBlocked(ctx, items, func(set map[string]bool, id string) { set[id] = true })
}

// UnblockLegalEntities resumes sharing of secondary accounts with the
// listed legal entities.
func (a *Admin) UnblockLegalEntities(ctx context.Context, items []LegalEntitySharing) error {
	return a.updateBlocked(ctx, items, func(set map[string]bool, id string) { delete(set, id) })
}

func (a *Admin) updateBlocked(ctx context.Context, items []LegalEntitySharing, apply func(map[string]bool, string)) error {
	for _, it := range items {
		if err := checkAccountID(it.AccountID); err != nil {
			return err
		}
		if it.SecondaryUserID == "" {
			return cdserr.FieldMissing("secondaryUserID")
		}
		current, err := a.Meta.Get(ctx, it.AccountID, it.SecondaryUserID, model.MetaBlockedLegalEntities)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("load blocked legal entities of %s: %w", it.AccountID, err)
		}
		set := map[string]bool{}
		for _, id := range splitList(current) {
			set[id] = true
		}
		for _, id := range it.LegalEntityIDs {
			if id = strings.TrimSpace(id); id != "" {
				apply(set, id)
			}
		}
		if len(set) == 0 {
			if err := a.Meta.DeleteKey(ctx, it.AccountID, it.SecondaryUserID, model.MetaBlockedLegalEntities); err != nil {
				return fmt.Errorf("clear blocked legal entities of %s: %w", it.AccountID, err)
			}
			continue
		}
		if err := a.Meta.Upsert(ctx, it.AccountID, it.SecondaryUserID,
			map[string]string{model.MetaBlockedLegalEntities: joinSet(set)}); err != nil {
			return fmt.Errorf("store blocked legal entities of %s: %w", it.AccountID, err)
		}
	}
	return nil
}

func joinSet(set map[string]bool) string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

// GetBlockedLegalEntities lists the legal entities blocked per account for
// a secondary user.
func (a *Admin) GetBlockedLegalEntities(ctx context.Context, userID string) ([]LegalEntitySharing, error) {
	if userID == "" {
		return nil, cdserr.FieldMissing("userId")
	}
	byAccount, err := a.Meta.ListByUserKey(ctx, userID, model.MetaBlockedLegalEntities)
	if err != nil {
		return nil, fmt.Errorf("load blocked legal entities: %w", err)
	}
	accountIDs := make([]string, 0, len(byAccount))
	for id := range byAccount {
		accountIDs = append(accountIDs, id)
	}
	sort.Strings(accountIDs)
	out := []LegalEntitySharing{}
	for _, id := range accountIDs {
		if ids := splitList(byAccount[id]); len(ids) > 0 {
			out = append(out, LegalEntitySharing{SecondaryUserID: userID, AccountID: id, LegalEntityIDs: ids})
		}
	}
	return out, nil
}

// UpdateDisclosureOptions stores the disclosure option status of joint
// accounts.
func (a *Admin) UpdateDisclosureOptions(ctx context.Context, options []DisclosureOption) error {
	for _, o := range options {
		if err := checkAccountID(o.AccountID); err != nil {
			return err
		}
		if o.Status != model.DOMSPreApproval && o.Status != model.DOMSNoSharing {
			return cdserr.FieldInvalid("disclosureOption must be " + model.DOMSPreApproval + " or " + model.DOMSNoSharing)
		}
	}
	for _, o := range options {
		if err := a.Meta.Upsert(ctx, o.AccountID, model.AccountLevelUser,
			map[string]string{model.MetaDisclosureOptionStatus: o.Status}); err != nil {
			return fmt.Errorf("store disclosure option of %s: %w", o.AccountID, err)
		}
	}
	return nil
}

// RevokeArrangement revokes the consent behind a CDR arrangement on behalf
// of the data holder and publishes the revocation so the data recipient is
// notified.
func (a *Admin) RevokeArrangement(ctx context.Context, arrangementID string) error {
	if arrangementID == "" {
		return cdserr.FieldMissing("cdrArrangementId")
	}
	c, err := a.Consents.FindByArrangement(ctx, arrangementID)
	if errors.Is(err, repository.ErrNotFound) {
		return cdserr.InvalidArrangement("arrangement " + arrangementID + " not found")
	}
	if err != nil {
		return fmt.Errorf("load arrangement: %w", err)
	}
	err = a.Consents.UpdateStatus(ctx, c.ConsentID, model.ConsentStatusRevoked)
	if errors.Is(err, repository.ErrConflict) {
		return cdserr.InvalidArrangement("arrangement " + arrangementID + " is not active")
	}
	if err != nil {
		return fmt.Errorf("revoke consent: %w", err)
	}
	log.Info().Str("consent_id", c.ConsentID).Str("client_id", c.ClientID).Msg("arrangement revoked by data holder")

	if a.Events == nil {
		return nil
	}
	ev := queue.ConsentStateChange{
		ConsentID:           c.ConsentID,
		ClientID:            c.ClientID,
		ArrangementID:       arrangementID,
		State:               model.ConsentStatusRevoked,
		PreviousState:       c.Status,
		Reason:              "Revoked by data holder",
		DataHolderInitiated: true,
		OccurredAt:          a.now().UTC().Format(time.RFC3339),
	}
	if err := a.Events.PublishConsentState(ctx, ev); err != nil {
		log.Warn().Err(err).Str("consent_id", c.ConsentID).Msg("publish revocation failed")
	}
	return nil
}
