package consent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iliyamo/cds-extensions/internal/account"
	"github.com/iliyamo/cds-extensions/internal/cdserr"
	"github.com/iliyamo/cds-extensions/internal/model"
	"github.com/iliyamo/cds-extensions/internal/queue"
	"github.com/iliyamo/cds-extensions/internal/repository"
)

// BaseStep is the final persistence step.  It stores the authorisation of
// the consent: a primary_member authorization for the authorising user,
// linked_member authorizations for joint account members and secondary
// account owners, the account mappings and the consent attributes.  The
// nominated representative permissions collected by earlier steps are
// stored once the authorisation is committed.  A denied approval rejects
// the consent.
type BaseStep struct {
	Consents ConsentStore
	Meta     MetadataStore
	Events   EventPublisher
	Now      func() time.Time
}

func (s *BaseStep) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *BaseStep) Execute(ctx context.Context, d *PersistData) error {
	c, err := s.Consents.Get(ctx, d.ConsentID)
	if errors.Is(err, repository.ErrNotFound) {
		return cdserr.ResourceNotFound("consent " + d.ConsentID + " not found")
	}
	if err != nil {
		return fmt.Errorf("load consent: %w", err)
	}
	if d.ClientID == "" {
		d.ClientID = c.ClientID
	} else if c.ClientID != d.ClientID {
		return cdserr.InvalidConsent("consent does not belong to the requesting client")
	}

	if !d.Payload.Approval {
		err := s.Consents.UpdateStatus(ctx, d.ConsentID, model.ConsentStatusRejected)
		if errors.Is(err, repository.ErrConflict) {
			return cdserr.InvalidConsent("consent can no longer be rejected")
		}
		if err != nil {
			return fmt.Errorf("reject consent: %w", err)
		}
		s.publish(ctx, d, c.Status, model.ConsentStatusRejected)
		return nil
	}
	if len(d.Payload.AccountIDs) == 0 {
		return cdserr.FieldMissing("accountIds")
	}
	switch c.Status {
	case model.ConsentStatusAwaitingAuthorization, model.ConsentStatusAuthorized:
	default:
		return cdserr.InvalidConsent("consent in status " + c.Status + " cannot be authorised")
	}
	amend := c.Status == model.ConsentStatusAuthorized

	grants := buildGrants(d)
	_, err = s.Consents.Authorize(ctx, d.ConsentID, grants, d.Attributes, amend)
	if errors.Is(err, repository.ErrConflict) {
		return cdserr.InvalidConsent("consent changed status while it was being authorised")
	}
	if err != nil {
		return fmt.Errorf("authorize consent: %w", err)
	}
	if err := s.storePermissions(ctx, d); err != nil {
		return err
	}
	state := model.ConsentStatusAuthorized
	if amend {
		state = model.ConsentStatusAmended
	}
	s.publish(ctx, d, c.Status, state)
	return nil
}

func (s *BaseStep) storePermissions(ctx context.Context, d *PersistData) error {
	if len(d.Permissions) == 0 {
		return nil
	}
	if s.Meta == nil {
		return errors.New("no metadata store for nominated representative permissions")
	}
	accountIDs := make([]string, 0, len(d.Permissions))
	for id := range d.Permissions {
		accountIDs = append(accountIDs, id)
	}
	sort.Strings(accountIDs)
	for _, accountID := range accountIDs {
		for userID, perm := range d.Permissions[accountID] {
			if err := s.Meta.Upsert(ctx, accountID, userID,
				map[string]string{model.MetaBNRPermission: perm}); err != nil {
				return fmt.Errorf("store permission of %s on %s: %w", userID, accountID, err)
			}
			log.Debug().Str("account_id", accountID).Str("user_id", userID).Str("permission", perm).
				Msg("stored nominated representative permission")
		}
	}
	return nil
}

func (s *BaseStep) publish(ctx context.Context, d *PersistData, previous, state string) {
	if s.Events == nil {
		return
	}
	ev := queue.ConsentStateChange{
		ConsentID:       d.ConsentID,
		ClientID:        d.ClientID,
		UserID:          d.UserID,
		State:           state,
		PreviousState:   previous,
		RequestURIKey:   d.RequestURIKey,
		CustomerProfile: d.Attributes[model.AttrCustomerProfileType],
		OccurredAt:      s.now().UTC().Format(time.RFC3339),
	}
	if err := s.Events.PublishConsentState(ctx, ev); err != nil {
		log.Warn().Err(err).Str("consent_id", d.ConsentID).Str("state", state).
			Msg("publish consent state change failed")
	}
}

// buildGrants turns the consented accounts and the collected account user
// mappings into authorizations.  Users are visited in sorted order so the
// grants are deterministic.
func buildGrants(d *PersistData) []model.AuthorizationGrant {
	consented := account.IDSet(d.Payload.AccountIDs)

	others := map[string][]model.ConsentMapping{}
	addOther := func(userID, accountID, permission string) {
		for _, m := range others[userID] {
			if m.AccountID == accountID {
				return
			}
		}
		others[userID] = append(others[userID], model.ConsentMapping{
			AccountID: accountID, Permission: permission, MappingStatus: model.MappingStatusActive,
		})
	}

	primary := model.AuthorizationGrant{Authorization: model.AuthorizationResource{
		UserID: d.UserID, AuthType: model.AuthTypePrimaryMember, AuthStatus: model.AuthStatusAuthorised,
	}}
	for _, accountID := range d.Payload.AccountIDs {
		perm := model.PermissionPrimaryAccountUser
		if p, ok := d.AccountUserMappings[accountID][d.UserID]; ok {
			perm = p
		}
		primary.Mappings = append(primary.Mappings, model.ConsentMapping{
			AccountID: accountID, Permission: perm, MappingStatus: model.MappingStatusActive,
		})
		for userID, p := range d.AccountUserMappings[accountID] {
			if userID != d.UserID {
				addOther(userID, accountID, p)
			}
		}
	}
	for _, a := range d.Accounts {
		if !consented[a.AccountID] || account.Classify(a) != account.Joint || a.JointAccountInfo == nil {
			continue
		}
		for _, m := range a.JointAccountInfo.LinkedMembers {
			if m.MemberID != "" && m.MemberID != d.UserID {
				addOther(m.MemberID, a.AccountID, model.PermissionLinkedMember)
			}
		}
	}

	grants := []model.AuthorizationGrant{primary}
	userIDs := make([]string, 0, len(others))
	for userID := range others {
		userIDs = append(userIDs, userID)
	}
	sort.Strings(userIDs)
	for _, userID := range userIDs {
		mappings := others[userID]
		sort.Slice(mappings, func(i, j int) bool { return mappings[i].AccountID < mappings[j].AccountID })
		grants = append(grants, model.AuthorizationGrant{
			Authorization: model.AuthorizationResource{
				UserID: userID, AuthType: model.AuthTypeLinkedMember, AuthStatus: model.AuthStatusCreated,
			},
			Mappings: mappings,
		})
	}
	return grants
}
