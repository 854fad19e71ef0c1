package model

// Customer account types reported by the bank backend in customerAccountType.
// Any other value is an individual account.
const (
	AccountTypeBusiness  = "Business"
	AccountTypeSecondary = "Secondary"
)

// ElectionStatusElected marks a joint account whose owners elected to
// share its data.
const ElectionStatusElected = "ELECTED"

// Secondary account privilege / instruction statuses.
const SecondaryStatusActive = "active"

// Member is an account holder or user referenced by the bank backend.
type Member struct {
	MemberID string         `json:"memberId"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// JointAccountInfo lists the other owners of a joint account together
// with the joint account consent election status.
type JointAccountInfo struct {
	LinkedMembers  []Member `json:"linkedMember"`
	ElectionStatus string   `json:"jointAccountConsentElectionStatus"`
}

// SecondaryAccountInfo describes the owners of an account on which the
// current user is a secondary (authorised) user.
type SecondaryAccountInfo struct {
	AccountOwners     []Member `json:"accountOwner"`
	PrivilegeStatus   string   `json:"secondaryAccountPrivilegeStatus"`
	InstructionStatus string   `json:"secondaryAccountInstructionStatus"`
}

// BusinessAccountInfo lists the owners and nominated representatives
// of a business account.
type BusinessAccountInfo struct {
	AccountOwners            []Member `json:"AccountOwners"`
	NominatedRepresentatives []Member `json:"NominatedRepresentatives"`
}

// Account is a sharable account as returned by the bank backend.
type Account struct {
	AccountID            string                `json:"accountId"`
	DisplayName          string                `json:"displayName,omitempty"`
	CustomerAccountType  string                `json:"customerAccountType"`
	IsEligible           bool                  `json:"isEligible"`
	IsJointAccount       bool                  `json:"isJointAccount"`
	IsSecondaryAccount   bool                  `json:"isSecondaryAccount"`
	JointAccountInfo     *JointAccountInfo     `json:"jointAccountInfo,omitempty"`
	SecondaryAccountInfo *SecondaryAccountInfo `json:"secondaryAccountInfo,omitempty"`
	BusinessAccountInfo  *BusinessAccountInfo  `json:"businessAccountInfo,omitempty"`
}
