package consent

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/iliyamo/cds-extensions/internal/account"
	"github.com/iliyamo/cds-extensions/internal/cdserr"
	"github.com/iliyamo/cds-extensions/internal/config"
	"github.com/iliyamo/cds-extensions/internal/model"
)

// BusinessAccountStep resolves the nominated representative permissions of
// the business accounts being shared and records the selected customer
// profile.  The permissions are stored by BaseStep after the consent is
// authorised.
type BusinessAccountStep struct {
	Meta MetadataStore
	Cfg  config.BNRConfig
}

func (s *BusinessAccountStep) Execute(ctx context.Context, d *PersistData) error {
	if !d.Payload.Approval {
		return nil
	}
	if d.Payload.SelectedProfileID != "" {
		d.SetAttribute(model.AttrSelectedProfileID, d.Payload.SelectedProfileID)
		d.SetAttribute(model.AttrSelectedProfileName, d.Payload.SelectedProfileName)
		d.SetAttribute(model.AttrCustomerProfileType, customerProfileType(d.Payload.SelectedProfileID))
	}
	if !s.Cfg.Enabled {
		return nil
	}

	consented := account.IDSet(d.Payload.AccountIDs)
	roles := map[string]map[string]string{}
	for _, a := range d.Accounts {
		if !consented[a.AccountID] || !account.IsBusiness(a) {
			continue
		}
		if users := account.BusinessUsers(a); len(users) > 0 {
			roles[a.AccountID] = users
		}
	}

	accountIDs := make([]string, 0, len(roles))
	for id := range roles {
		accountIDs = append(accountIDs, id)
	}
	sort.Strings(accountIDs)

	// Every account is checked before anything is recorded so a revoked
	// representative rejects the whole request.
	existing := make(map[string]map[string]string, len(accountIDs))
	for _, accountID := range accountIDs {
		perms, err := s.Meta.ListByAccountKey(ctx, accountID, model.MetaBNRPermission)
		if err != nil {
			return fmt.Errorf("load permissions of %s: %w", accountID, err)
		}
		if s.Cfg.PrioritizeSharableAccountsResponse {
			for userID := range roles[accountID] {
				if perms[userID] == model.BNRPermissionRevoke {
					return cdserr.New(http.StatusBadRequest, cdserr.CodeInvalidBankingAccount,
						"Invalid Banking Account",
						fmt.Sprintf("nominated representative permission of account %s is revoked", accountID))
				}
			}
		}
		existing[accountID] = perms
	}

	for _, accountID := range accountIDs {
		for userID, role := range roles[accountID] {
			if _, ok := existing[accountID][userID]; ok {
				continue
			}
			d.AddPermission(accountID, userID, account.PermissionForRole(role))
		}
	}
	return nil
}

func customerProfileType(profileID string) string {
	if profileID == model.ProfileIDIndividual {
		return model.CustomerProfileTypeIndividual
	}
	return model.CustomerProfileTypeOrganisation
}
