package model

// Account metadata keys.
const (
	MetaBNRPermission          = "bnr-permission"
	MetaDisclosureOptionStatus = "DISCLOSURE_OPTIONS_STATUS"
	MetaBlockedLegalEntities   = "BLOCKED_LEGAL_ENTITIES"
)

// BNR permissions stored under bnr-permission.
const (
	BNRPermissionAuthorize = "AUTHORIZE"
	BNRPermissionView      = "VIEW"
	BNRPermissionRevoke    = "REVOKE"
)

// Business account user roles.
const (
	RoleBusinessAccountOwner    = "business_account_owner"
	RoleNominatedRepresentative = "nominated_representative"
)

// Disclosure option (DOMS) values.
const (
	DOMSPreApproval = "pre-approval"
	DOMSNoSharing   = "no-sharing"
)

// AccountLevelUser is the user column value for metadata that applies to
// the account as a whole (e.g. DOMS status).
const AccountLevelUser = "N/A"

// AccountMetadata is one (account, user, key) -> value row.
type AccountMetadata struct {
	AccountID string `json:"accountId"`
	UserID    string `json:"userId"`
	Key       string `json:"key"`
	Value     string `json:"value"`
}

// ServiceProvider is a data recipient software product registered
// locally through DCR.
type ServiceProvider struct {
	ClientID         string `json:"clientId"`
	SoftwareID       string `json:"softwareId"`
	LegalEntityID    string `json:"legalEntityId"`
	RecipientBaseURI string `json:"recipientBaseUri"`
}

// Data recipient statuses published by the CDR register.
const (
	DataRecipientActive      = "ACTIVE"
	DataRecipientSuspended   = "SUSPENDED"
	DataRecipientRevoked     = "REVOKED"
	DataRecipientSurrendered = "SURRENDERED"
)

// Software product statuses published by the CDR register.
const (
	SoftwareProductActive   = "ACTIVE"
	SoftwareProductInactive = "INACTIVE"
	SoftwareProductRemoved  = "REMOVED"
)
