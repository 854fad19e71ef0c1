package consent

import (
	"context"
	"fmt"

	"github.com/iliyamo/cds-extensions/internal/model"
)

// PersistPayload is the user's confirmed selection from the authorisation
// screen.
type PersistPayload struct {
	Approval            bool     `json:"approval"`
	AccountIDs          []string `json:"accountIds"`
	SelectedProfileID   string   `json:"selectedProfileId,omitempty"`
	SelectedProfileName string   `json:"selectedProfileName,omitempty"`
}

// PersistData flows through the persistence steps.  Steps read the
// consent data and payload and add account user mappings and consent
// attributes for the final step to store.
type PersistData struct {
	ConsentID     string
	UserID        string
	ClientID      string
	RequestURIKey string
	Payload       PersistPayload
	// Accounts are the sharable accounts of the user as reported by the bank.
	Accounts []model.Account

	Attributes map[string]string
	// AccountUserMappings holds accountID -> userID -> permission.
	AccountUserMappings map[string]map[string]string
	// Permissions holds accountID -> userID -> BNR permission to store once
	// the consent is authorised.
	Permissions map[string]map[string]string
}

// AddAccountUserMapping records the permission a user holds on an account.
func (d *PersistData) AddAccountUserMapping(accountID, userID, permission string) {
	if d.AccountUserMappings == nil {
		d.AccountUserMappings = map[string]map[string]string{}
	}
	users, ok := d.AccountUserMappings[accountID]
	if !ok {
		users = map[string]string{}
		d.AccountUserMappings[accountID] = users
	}
	users[userID] = permission
}

// AddPermission records a nominated representative permission to store.
func (d *PersistData) AddPermission(accountID, userID, permission string) {
	if d.Permissions == nil {
		d.Permissions = map[string]map[string]string{}
	}
	users, ok := d.Permissions[accountID]
	if !ok {
		users = map[string]string{}
		d.Permissions[accountID] = users
	}
	users[userID] = permission
}

// SetAttribute records a consent attribute.
func (d *PersistData) SetAttribute(key, value string) {
	if d.Attributes == nil {
		d.Attributes = map[string]string{}
	}
	d.Attributes[key] = value
}

// Step is one stage of consent persistence.
type Step interface {
	Execute(ctx context.Context, d *PersistData) error
}

// StepFunc adapts a function to Step.
type StepFunc func(ctx context.Context, d *PersistData) error

func (f StepFunc) Execute(ctx context.Context, d *PersistData) error { return f(ctx, d) }

// Persister runs persistence steps in order and stops at the first error.
type Persister struct {
	steps []Step
}

func NewPersister(steps ...Step) *Persister { return &Persister{steps: steps} }

func (p *Persister) Persist(ctx context.Context, d *PersistData) error {
	for i, s := range p.steps {
		if err := s.Execute(ctx, d); err != nil {
			return fmt.Errorf("persist step %d: %w", i, err)
		}
	}
	return nil
}
