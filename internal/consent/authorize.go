package consent

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/cds-extensions/internal/account"
	"github.com/iliyamo/cds-extensions/internal/cdserr"
	"github.com/iliyamo/cds-extensions/internal/config"
	"github.com/iliyamo/cds-extensions/internal/model"
	"github.com/iliyamo/cds-extensions/internal/repository"
)

// AccountSource lists the accounts a user can share.
type AccountSource interface {
	SharableAccounts(ctx context.Context, userID string) ([]model.Account, error)
}

// Reasons an account is shown but cannot be selected.
const (
	ReasonNotEligible         = "not_eligible"
	ReasonBNRRevoked          = "bnr_revoked"
	ReasonBNRViewOnly         = "bnr_view_only"
	ReasonDisclosureNoSharing = "disclosure_no_sharing"
	ReasonJointNotElected     = "joint_not_elected"
	ReasonSecondaryInactive   = "secondary_inactive"
	ReasonLegalEntityBlocked  = "legal_entity_blocked"
	ReasonSecondaryDisabled   = "secondary_disabled"
)

// AuthorizeRequest identifies the consent being authorised and carries the
// request data used to resolve the customer type.
type AuthorizeRequest struct {
	ConsentID     string
	UserID        string
	CustomerUType string
	Cookies       map[string]string
}

// Profile is a customer profile the user can act as.
type Profile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AccountView is one account on the authorisation screen.
type AccountView struct {
	AccountID           string           `json:"accountId"`
	DisplayName         string           `json:"displayName,omitempty"`
	CustomerAccountType string           `json:"customerAccountType"`
	Category            account.Category `json:"category"`
	IsSelectable        bool             `json:"is_selectable"`
	IsPreSelected       bool             `json:"is_pre_selected"`
	BNRPermission       string           `json:"bnr_permission,omitempty"`
	UnselectableReason  string           `json:"unselectable_reason,omitempty"`
}

// ScreenData is the data rendered on the authorisation screen.
type ScreenData struct {
	ConsentID                   string        `json:"consentId"`
	ClientID                    string        `json:"clientId"`
	IsConsentAmendment          bool          `json:"isConsentAmendment"`
	CustomerTypeSelectionMethod string        `json:"customerTypeSelectionMethod"`
	CustomerType                string        `json:"customerType,omitempty"`
	Profiles                    []Profile     `json:"profiles,omitempty"`
	Accounts                    []AccountView `json:"accounts"`
}

// Builder computes the authorisation screen data.
type Builder struct {
	Accounts  AccountSource
	Meta      MetadataStore
	Consents  ConsentStore
	Providers ServiceProviderStore
	Cfg       *config.CDS
}

func (b *Builder) Build(ctx context.Context, req AuthorizeRequest) (ScreenData, error) {
	if req.ConsentID == "" {
		return ScreenData{}, cdserr.FieldMissing("consentId")
	}
	if req.UserID == "" {
		return ScreenData{}, cdserr.FieldMissing("userId")
	}
	detailed, err := b.Consents.GetDetailed(ctx, req.ConsentID)
	if errors.Is(err, repository.ErrNotFound) {
		return ScreenData{}, cdserr.ResourceNotFound("consent " + req.ConsentID + " not found")
	}
	if err != nil {
		return ScreenData{}, fmt.Errorf("load consent: %w", err)
	}
	switch detailed.Status {
	case model.ConsentStatusAwaitingAuthorization, model.ConsentStatusAuthorized:
	default:
		return ScreenData{}, cdserr.InvalidConsent("consent in status " + detailed.Status + " cannot be authorised")
	}

	accounts, err := b.Accounts.SharableAccounts(ctx, req.UserID)
	if err != nil {
		return ScreenData{}, fmt.Errorf("load sharable accounts: %w", err)
	}
	legalEntity, err := legalEntityOf(ctx, b.Providers, detailed.ClientID)
	if err != nil {
		return ScreenData{}, err
	}

	data := ScreenData{
		ConsentID:                   req.ConsentID,
		ClientID:                    detailed.ClientID,
		IsConsentAmendment:          detailed.Status == model.ConsentStatusAuthorized,
		CustomerTypeSelectionMethod: b.Cfg.Authorize.CustomerTypeSelectionMethod,
		Accounts:                    make([]AccountView, 0, len(accounts)),
	}
	data.CustomerType, data.Profiles = b.customerType(req, accounts)

	var preSelected map[string]bool
	if data.IsConsentAmendment {
		preSelected = account.IDSet(detailed.ActiveAccountIDs(req.UserID))
	}
	e := eligibility{meta: b.Meta, cfg: b.Cfg}
	for _, a := range accounts {
		view, err := b.view(ctx, e, a, req.UserID, legalEntity, data.IsConsentAmendment)
		if err != nil {
			return ScreenData{}, err
		}
		view.IsPreSelected = view.IsSelectable && preSelected[a.AccountID]
		data.Accounts = append(data.Accounts, view)
	}
	return data, nil
}

func (b *Builder) view(ctx context.Context, e eligibility, a model.Account, userID, legalEntity string, amend bool) (AccountView, error) {
	v := AccountView{
		AccountID:           a.AccountID,
		DisplayName:         a.DisplayName,
		CustomerAccountType: a.CustomerAccountType,
		Category:            account.Classify(a),
	}
	reason, err := b.unselectableReason(ctx, e, a, v.Category, userID, legalEntity, amend, &v)
	if err != nil {
		return v, err
	}
	v.UnselectableReason = reason
	v.IsSelectable = reason == ""
	return v, nil
}

func (b *Builder) unselectableReason(ctx context.Context, e eligibility, a model.Account, cat account.Category,
	userID, legalEntity string, amend bool, v *AccountView) (string, error) {
	switch cat {
	case account.Individual:
		if !a.IsEligible {
			return ReasonNotEligible, nil
		}
	case account.Business:
		if !a.IsEligible {
			return ReasonNotEligible, nil
		}
		if !b.Cfg.BNR.Enabled {
			return "", nil
		}
		perm, err := e.bnrPermission(ctx, a.AccountID, userID)
		if err != nil {
			return "", err
		}
		v.BNRPermission = perm
		switch {
		case perm == model.BNRPermissionRevoke:
			return ReasonBNRRevoked, nil
		case amend && perm == model.BNRPermissionView:
			return ReasonBNRViewOnly, nil
		}
	case account.Joint:
		return jointReason(ctx, e, a)
	case account.Secondary, account.SecondaryJoint:
		if !b.Cfg.SecondaryUser.Enabled {
			return ReasonSecondaryDisabled, nil
		}
		info := a.SecondaryAccountInfo
		if info == nil || info.PrivilegeStatus != model.SecondaryStatusActive ||
			info.InstructionStatus != model.SecondaryStatusActive {
			return ReasonSecondaryInactive, nil
		}
		blocked, err := e.legalEntityBlocked(ctx, a.AccountID, userID, legalEntity)
		if err != nil {
			return "", err
		}
		if blocked {
			return ReasonLegalEntityBlocked, nil
		}
		if cat == account.SecondaryJoint {
			ok, err := e.preApproved(ctx, a.AccountID)
			if err != nil {
				return "", err
			}
			if !ok {
				return ReasonDisclosureNoSharing, nil
			}
		}
	}
	return "", nil
}

func jointReason(ctx context.Context, e eligibility, a model.Account) (string, error) {
	ok, err := e.preApproved(ctx, a.AccountID)
	if err != nil {
		return "", err
	}
	if !ok {
		return ReasonDisclosureNoSharing, nil
	}
	if a.JointAccountInfo == nil || a.JointAccountInfo.ElectionStatus != model.ElectionStatusElected {
		return ReasonJointNotElected, nil
	}
	return "", nil
}

// customerType resolves the customer type with the configured selection
// method.  Profile selection leaves the type open and lists the profiles
// the user can choose from instead.
func (b *Builder) customerType(req AuthorizeRequest, accounts []model.Account) (string, []Profile) {
	switch b.Cfg.Authorize.CustomerTypeSelectionMethod {
	case config.SelectionCookieData:
		return normalizeCustomerType(req.Cookies[b.Cfg.Authorize.CustomerTypeCookieName]), nil
	case config.SelectionCustomerUType:
		return normalizeCustomerType(req.CustomerUType), nil
	}
	profiles := []Profile{{ID: model.ProfileIDIndividual, Name: model.CustomerProfileTypeIndividual}}
	seen := map[string]bool{}
	for _, a := range accounts {
		if !account.IsBusiness(a) || seen[a.AccountID] {
			continue
		}
		seen[a.AccountID] = true
		name := a.DisplayName
		if name == "" {
			name = a.AccountID
		}
		profiles = append(profiles, Profile{ID: a.AccountID, Name: name})
	}
	return "", profiles
}

func normalizeCustomerType(v string) string {
	switch v {
	case "":
		return ""
	case model.ProfileIDIndividual, model.CustomerProfileTypeIndividual:
		return model.CustomerProfileTypeIndividual
	}
	return model.CustomerProfileTypeOrganisation
}
