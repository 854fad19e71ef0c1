package model

import "time"

// Consent statuses as stored in consents.status.
const (
	ConsentStatusAwaitingAuthorization = "awaitingAuthorization"
	ConsentStatusAuthorized            = "authorized"
	ConsentStatusAmended               = "amended"
	ConsentStatusRevoked               = "revoked"
	ConsentStatusExpired               = "expired"
	ConsentStatusRejected              = "rejected"
)

// Authorization types of authorization_resources.auth_type.
const (
	AuthTypePrimaryMember = "primary_member"
	AuthTypeLinkedMember  = "linked_member"
)

// Authorization statuses.
const (
	AuthStatusAuthorised = "authorised"
	AuthStatusCreated    = "created"
)

// Mapping statuses of account_mappings.mapping_status.
const (
	MappingStatusActive   = "active"
	MappingStatusInactive = "inactive"
)

// Account mapping permissions.
const (
	PermissionPrimaryAccountUser   = "primary_account_user"
	PermissionSecondaryAccountUser = "secondary_account_user"
	PermissionLinkedMember         = "linked_member"
)

// Consent attribute keys written during persistence.
const (
	AttrSelectedProfileID   = "selectedProfileId"
	AttrSelectedProfileName = "selectedProfileName"
	AttrCustomerProfileType = "customerProfileType"
	AttrCDRArrangementID    = "cdr_arrangement_id"
	AttrSharingDuration     = "sharing_duration_value"
)

// Customer profile types derived from the selected profile.
const (
	ProfileIDIndividual             = "individual"
	CustomerProfileTypeIndividual   = "Individual"
	CustomerProfileTypeOrganisation = "Organisation"
)

// Consent mirrors the consents table. Receipt holds the raw receipt JSON
// (requested permissions, expiry, sharing duration).
type Consent struct {
	ConsentID   string    `json:"consentId"`
	ClientID    string    `json:"clientId"`
	Receipt     string    `json:"receipt"`
	ConsentType string    `json:"consentType"`
	Status      string    `json:"currentStatus"`
	ExpiresAt   time.Time `json:"validityPeriod"`
	CreatedAt   time.Time `json:"createdTime"`
	UpdatedAt   time.Time `json:"updatedTime"`
}

// Expired reports whether a consent with an expiry has passed it.
func (c Consent) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// AuthorizationResource mirrors authorization_resources; one row per
// user authorising the consent.
type AuthorizationResource struct {
	AuthID     string `json:"authorizationId"`
	ConsentID  string `json:"consentId"`
	UserID     string `json:"userId"`
	AuthType   string `json:"authorizationType"`
	AuthStatus string `json:"authorizationStatus"`
}

// ConsentMapping links an authorization to a shared account.
type ConsentMapping struct {
	MappingID     string `json:"mappingId"`
	AuthID        string `json:"authorizationId"`
	AccountID     string `json:"accountId"`
	Permission    string `json:"permission"`
	MappingStatus string `json:"mappingStatus"`
}

// AuthorizationGrant is an authorization to create together with the
// account mappings it holds.
type AuthorizationGrant struct {
	Authorization AuthorizationResource
	Mappings      []ConsentMapping
}

// DetailedConsent aggregates a consent with its attributes,
// authorizations and account mappings.
type DetailedConsent struct {
	Consent
	Attributes     map[string]string       `json:"consentAttributes"`
	Authorizations []AuthorizationResource `json:"authorizationResources"`
	Mappings       []ConsentMapping        `json:"consentMappingResources"`
}

// ActiveAccountIDs returns the accounts with an active mapping under
// authorizations owned by userID. An empty userID matches all users.
func (d DetailedConsent) ActiveAccountIDs(userID string) []string {
	auths := map[string]bool{}
	for _, a := range d.Authorizations {
		if userID == "" || a.UserID == userID {
			auths[a.AuthID] = true
		}
	}
	var ids []string
	seen := map[string]bool{}
	for _, m := range d.Mappings {
		if m.MappingStatus != MappingStatusActive || !auths[m.AuthID] || seen[m.AccountID] {
			continue
		}
		seen[m.AccountID] = true
		ids = append(ids, m.AccountID)
	}
	return ids
}
