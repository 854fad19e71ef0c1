// Package account classifies bank accounts for data sharing and resolves
// the users related to business and secondary accounts.
package account

import (
	"strings"

	"github.com/iliyamo/cds-extensions/internal/model"
)

// Category is the data-sharing category of an account.
type Category string

const (
	Individual     Category = "Individual"
	Business       Category = "Business"
	Joint          Category = "Joint"
	Secondary      Category = "Secondary"
	SecondaryJoint Category = "SecondaryJoint"
)

// Ownership kinds of a secondary account owner.
type Ownership string

const (
	OwnershipJoint      Ownership = "JOINT"
	OwnershipIndividual Ownership = "INDIVIDUAL"
)

// Classify derives the category from customerAccountType, isJointAccount
// and isSecondaryAccount.  Secondary takes precedence over joint, and
// joint over the individual default.
func Classify(a model.Account) Category {
	switch {
	case IsSecondary(a) && a.IsJointAccount:
		return SecondaryJoint
	case IsSecondary(a):
		return Secondary
	case IsBusiness(a):
		return Business
	case a.IsJointAccount:
		return Joint
	}
	return Individual
}

// IsBusiness reports whether the bank marks the account as a business account.
func IsBusiness(a model.Account) bool {
	return strings.EqualFold(a.CustomerAccountType, model.AccountTypeBusiness)
}

// IsSecondary reports whether the user is a secondary user of the account.
func IsSecondary(a model.Account) bool {
	return a.IsSecondaryAccount && strings.EqualFold(a.CustomerAccountType, model.AccountTypeSecondary)
}

// IsValidSecondary reports whether a is a secondary account the user has
// consented to share.
func IsValidSecondary(a model.Account, consented map[string]bool) bool {
	return IsSecondary(a) && consented[a.AccountID]
}

// SecondaryOwners maps every owner of a secondary account to its ownership
// kind.  Owners of a joint secondary account (account owners and linked
// members) are JOINT, otherwise INDIVIDUAL.
func SecondaryOwners(a model.Account) map[string]Ownership {
	kind := OwnershipIndividual
	if a.IsJointAccount {
		kind = OwnershipJoint
	}
	owners := map[string]Ownership{}
	if a.SecondaryAccountInfo != nil {
		for _, m := range a.SecondaryAccountInfo.AccountOwners {
			if m.MemberID != "" {
				owners[m.MemberID] = kind
			}
		}
	}
	if a.IsJointAccount && a.JointAccountInfo != nil {
		for _, m := range a.JointAccountInfo.LinkedMembers {
			if m.MemberID != "" {
				owners[m.MemberID] = OwnershipJoint
			}
		}
	}
	return owners
}

// BusinessUsers maps the users of a business account to their role.  A user
// listed both as owner and as nominated representative is a representative.
func BusinessUsers(a model.Account) map[string]string {
	users := map[string]string{}
	if a.BusinessAccountInfo == nil {
		return users
	}
	for _, m := range a.BusinessAccountInfo.AccountOwners {
		if m.MemberID != "" {
			users[m.MemberID] = model.RoleBusinessAccountOwner
		}
	}
	for _, m := range a.BusinessAccountInfo.NominatedRepresentatives {
		if m.MemberID != "" {
			users[m.MemberID] = model.RoleNominatedRepresentative
		}
	}
	return users
}

// PermissionForRole returns the BNR permission granted to a business role.
func PermissionForRole(role string) string {
	if role == model.RoleNominatedRepresentative {
		return model.BNRPermissionAuthorize
	}
	return model.BNRPermissionView
}

// IDSet turns a list of account ids into a lookup set.
func IDSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
