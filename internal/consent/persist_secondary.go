package consent

import (
	"context"

	"github.com/iliyamo/cds-extensions/internal/account"
	"github.com/iliyamo/cds-extensions/internal/config"
	"github.com/iliyamo/cds-extensions/internal/model"
)

// SecondaryAccountStep maps the secondary accounts being shared to the
// secondary user and to the account owners.  The authorising user gets
// secondary_account_user; each owner is mapped with its ownership kind.
type SecondaryAccountStep struct {
	Cfg config.SecondaryUserConfig
}

func (s *SecondaryAccountStep) Execute(_ context.Context, d *PersistData) error {
	if !s.Cfg.Enabled || !d.Payload.Approval {
		return nil
	}
	consented := account.IDSet(d.Payload.AccountIDs)
	for _, a := range d.Accounts {
		if !account.IsValidSecondary(a, consented) {
			continue
		}
		d.AddAccountUserMapping(a.AccountID, d.UserID, model.PermissionSecondaryAccountUser)
		for owner, kind := range account.SecondaryOwners(a) {
			if owner == d.UserID {
				continue
			}
			d.AddAccountUserMapping(a.AccountID, owner, string(kind))
		}
	}
	return nil
}
