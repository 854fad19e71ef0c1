package consent

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/cds-extensions/internal/cdserr"
	"github.com/iliyamo/cds-extensions/internal/model"
)

var validateNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func authorizedConsent(id string, expires time.Time, accountIDs ...string) model.DetailedConsent {
	d := model.DetailedConsent{
		Consent:        model.Consent{ConsentID: id, ClientID: "client", Status: model.ConsentStatusAuthorized, ExpiresAt: expires},
		Authorizations: []model.AuthorizationResource{{AuthID: "a-" + id, UserID: "alice"}},
	}
	for _, acc := range accountIDs {
		d.Mappings = append(d.Mappings, model.ConsentMapping{AuthID: "a-" + id, AccountID: acc, MappingStatus: model.MappingStatusActive})
	}
	return d
}

func newValidator(meta *fakeMeta, accounts fakeAccounts) *Validator {
	consents := newFakeConsents()
	consents.detailed["ok"] = authorizedConsent("ok", validateNow.Add(time.Hour), "ind", "biz", "joint", "sec")
	consents.detailed["old"] = authorizedConsent("old", validateNow.Add(-time.Hour), "ind")
	revoked := authorizedConsent("gone", time.Time{}, "ind")
	revoked.Status = model.ConsentStatusRevoked
	consents.detailed["gone"] = revoked
	cfg := testCDS()
	cfg.BNR.ValidateAccountsOnRetrieval = true
	return &Validator{
		Consents:  consents,
		Meta:      meta,
		Providers: fakeProviders{"client": {ClientID: "client", LegalEntityID: "le-1"}},
		Accounts:  accounts,
		Cfg:       cfg,
		Now:       func() time.Time { return validateNow },
	}
}

func TestValidator_Validate(t *testing.T) {
	meta := newFakeMeta()
	meta.set("biz", "alice", model.MetaBNRPermission, model.BNRPermissionRevoke)
	meta.set("joint", model.AccountLevelUser, model.MetaDisclosureOptionStatus, model.DOMSNoSharing)
	meta.set("sec", "alice", model.MetaBlockedLegalEntities, "le-1")
	v := newValidator(meta, fakeAccounts{
		{AccountID: "ind", CustomerAccountType: "Individual", IsEligible: true},
		businessAccount("biz", nil, []string{"alice"}),
		jointAccount("joint", model.ElectionStatusElected, "bob"),
		secondaryAccount("sec", false, "owner"),
	})

	tests := []struct {
		name   string
		req    ValidateRequest
		valid  bool
		code   string
		status int
	}{
		{"individual account", ValidateRequest{ConsentID: "ok", ClientID: "client", UserID: "alice", AccountIDs: []string{"ind"}}, true, "", 0},
		{"no accounts requested", ValidateRequest{ConsentID: "ok", ClientID: "client", UserID: "alice"}, true, "", 0},
		{"missing consent id", ValidateRequest{ClientID: "client"}, false, cdserr.CodeFieldMissing, http.StatusBadRequest},
		{"missing client id", ValidateRequest{ConsentID: "ok", UserID: "alice", AccountIDs: []string{"ind"}}, false, cdserr.CodeFieldMissing, http.StatusBadRequest},
		{"unknown consent", ValidateRequest{ConsentID: "nope", ClientID: "client"}, false, cdserr.CodeInvalidConsent, http.StatusForbidden},
		{"other client", ValidateRequest{ConsentID: "ok", ClientID: "intruder"}, false, cdserr.CodeInvalidConsent, http.StatusForbidden},
		{"revoked", ValidateRequest{ConsentID: "gone", ClientID: "client"}, false, cdserr.CodeRevokedConsent, http.StatusForbidden},
		{"expired", ValidateRequest{ConsentID: "old", ClientID: "client"}, false, cdserr.CodeInvalidConsent, http.StatusForbidden},
		{"unmapped account", ValidateRequest{ConsentID: "ok", ClientID: "client", UserID: "alice", AccountIDs: []string{"other"}}, false, cdserr.CodeInvalidBankingAccount, http.StatusNotFound},
		{"bnr revoked", ValidateRequest{ConsentID: "ok", ClientID: "client", UserID: "alice", AccountIDs: []string{"biz"}}, false, cdserr.CodeInvalidBankingAccount, http.StatusForbidden},
		{"joint no sharing", ValidateRequest{ConsentID: "ok", ClientID: "client", UserID: "alice", AccountIDs: []string{"joint"}}, false, cdserr.CodeInvalidBankingAccount, http.StatusForbidden},
		{"legal entity blocked", ValidateRequest{ConsentID: "ok", ClientID: "client", UserID: "alice", AccountIDs: []string{"sec"}}, false, cdserr.CodeInvalidBankingAccount, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Validate(context.Background(), tt.req)
			assert.Equal(t, tt.valid, got.IsValid)
			assert.Equal(t, tt.code, got.ErrorCode)
			assert.Equal(t, tt.status, got.HTTPCode)
		})
	}
}
