package consent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/iliyamo/cds-extensions/internal/account"
	"github.com/iliyamo/cds-extensions/internal/cdserr"
	"github.com/iliyamo/cds-extensions/internal/config"
	"github.com/iliyamo/cds-extensions/internal/model"
	"github.com/iliyamo/cds-extensions/internal/repository"
)

// ValidateRequest is a resource request made under a consent.
type ValidateRequest struct {
	ConsentID  string   `json:"consentId"`
	ClientID   string   `json:"clientId"`
	UserID     string   `json:"userId"`
	AccountIDs []string `json:"accountIds"`
}

// ValidateResult reports whether the request may proceed.
type ValidateResult struct {
	IsValid      bool   `json:"isValid"`
	HTTPCode     int    `json:"httpCode,omitempty"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

func invalid(e *cdserr.Error) ValidateResult {
	return ValidateResult{HTTPCode: e.Status, ErrorCode: e.Code, ErrorMessage: e.Detail}
}

// Validator checks resource requests against the consent and the current
// account permissions.
type Validator struct {
	Consents  ConsentStore
	Meta      MetadataStore
	Providers ServiceProviderStore
	Accounts  AccountSource
	Cfg       *config.CDS
	Now       func() time.Time
}

// Validate never returns a Go error for a rejected request; failures of
// the stores are reported as an unexpected error result.
func (v *Validator) Validate(ctx context.Context, req ValidateRequest) ValidateResult {
	res, err := v.validate(ctx, req)
	if err != nil {
		return invalid(cdserr.Wrap(err))
	}
	return res
}

func (v *Validator) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func (v *Validator) validate(ctx context.Context, req ValidateRequest) (ValidateResult, error) {
	if req.ConsentID == "" {
		return invalid(cdserr.FieldMissing("consentId")), nil
	}
	if req.ClientID == "" {
		return invalid(cdserr.FieldMissing("clientId")), nil
	}
	detailed, err := v.Consents.GetDetailed(ctx, req.ConsentID)
	if errors.Is(err, repository.ErrNotFound) {
		return invalid(cdserr.InvalidConsent("consent " + req.ConsentID + " not found")), nil
	}
	if err != nil {
		return ValidateResult{}, fmt.Errorf("load consent: %w", err)
	}
	if detailed.ClientID != req.ClientID {
		return invalid(cdserr.InvalidConsent("consent does not belong to the requesting client")), nil
	}
	switch detailed.Status {
	case model.ConsentStatusAuthorized:
	case model.ConsentStatusRevoked:
		return invalid(cdserr.RevokedConsent("consent is revoked")), nil
	default:
		return invalid(cdserr.InvalidConsent("consent is not authorised")), nil
	}
	if detailed.Expired(v.now()) {
		return invalid(cdserr.InvalidConsent("consent is expired")), nil
	}

	mapped := account.IDSet(detailed.ActiveAccountIDs(req.UserID))
	for _, id := range req.AccountIDs {
		if !mapped[id] {
			return invalid(cdserr.InvalidBankingAccount("account " + id + " is not shared under this consent")), nil
		}
	}
	if len(req.AccountIDs) == 0 || v.Accounts == nil || req.UserID == "" {
		return ValidateResult{IsValid: true}, nil
	}

	accounts, err := v.Accounts.SharableAccounts(ctx, req.UserID)
	if err != nil {
		return ValidateResult{}, fmt.Errorf("load sharable accounts: %w", err)
	}
	legalEntity, err := legalEntityOf(ctx, v.Providers, detailed.ClientID)
	if err != nil {
		return ValidateResult{}, err
	}
	requested := account.IDSet(req.AccountIDs)
	e := eligibility{meta: v.Meta, cfg: v.Cfg}
	for _, a := range accounts {
		if !requested[a.AccountID] {
			continue
		}
		msg, err := v.accountProblem(ctx, e, a, req.UserID, legalEntity)
		if err != nil {
			return ValidateResult{}, err
		}
		if msg != "" {
			return invalid(cdserr.New(http.StatusForbidden, cdserr.CodeInvalidBankingAccount,
				"Invalid Banking Account", msg)), nil
		}
	}
	return ValidateResult{IsValid: true}, nil
}

func (v *Validator) accountProblem(ctx context.Context, e eligibility, a model.Account, userID, legalEntity string) (string, error) {
	switch cat := account.Classify(a); cat {
	case account.Business:
		if !v.Cfg.BNR.Enabled || !v.Cfg.BNR.ValidateAccountsOnRetrieval {
			return "", nil
		}
		perm, err := e.bnrPermission(ctx, a.AccountID, userID)
		if err != nil {
			return "", err
		}
		if perm == model.BNRPermissionRevoke {
			return "nominated representative permission of account " + a.AccountID + " is revoked", nil
		}
	case account.Joint:
		ok, err := e.preApproved(ctx, a.AccountID)
		if err != nil {
			return "", err
		}
		if !ok {
			return "disclosure of joint account " + a.AccountID + " is not pre-approved", nil
		}
	case account.Secondary, account.SecondaryJoint:
		if !v.Cfg.SecondaryUser.ValidateOnConsentRequest {
			return "", nil
		}
		info := a.SecondaryAccountInfo
		if info == nil || info.PrivilegeStatus != model.SecondaryStatusActive {
			return "secondary user privilege on account " + a.AccountID + " is not active", nil
		}
		blocked, err := e.legalEntityBlocked(ctx, a.AccountID, userID, legalEntity)
		if err != nil {
			return "", err
		}
		if blocked {
			return "sharing of account " + a.AccountID + " with the data recipient has been stopped", nil
		}
		if cat == account.SecondaryJoint {
			ok, err := e.preApproved(ctx, a.AccountID)
			if err != nil {
				return "", err
			}
			if !ok {
				return "disclosure of joint account " + a.AccountID + " is not pre-approved", nil
			}
		}
	}
	return "", nil
}
