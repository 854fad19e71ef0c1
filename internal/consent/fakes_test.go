package consent

import (
	"context"
	"sync"

	"github.com/iliyamo/cds-extensions/internal/model"
	"github.com/iliyamo/cds-extensions/internal/queue"
	"github.com/iliyamo/cds-extensions/internal/repository"
)

type metaKey struct{ account, user, key string }

type fakeMeta struct {
	rows map[metaKey]string
}

func newFakeMeta() *fakeMeta { return &fakeMeta{rows: map[metaKey]string{}} }

func (f *fakeMeta) set(accountID, userID, key, value string) {
	f.rows[metaKey{accountID, userID, key}] = value
}

func (f *fakeMeta) Get(_ context.Context, accountID, userID, key string) (string, error) {
	v, ok := f.rows[metaKey{accountID, userID, key}]
	if !ok {
		return "", repository.ErrNotFound
	}
	return v, nil
}

func (f *fakeMeta) Upsert(_ context.Context, accountID, userID string, values map[string]string) error {
	for k, v := range values {
		f.rows[metaKey{accountID, userID, k}] = v
	}
	return nil
}

func (f *fakeMeta) DeleteKey(_ context.Context, accountID, userID, key string) error {
	delete(f.rows, metaKey{accountID, userID, key})
	return nil
}

func (f *fakeMeta) DeleteAllForAccount(_ context.Context, accountID, key string) error {
	for k := range f.rows {
		if k.account == accountID && k.key == key {
			delete(f.rows, k)
		}
	}
	return nil
}

func (f *fakeMeta) ListByAccountKey(_ context.Context, accountID, key string) (map[string]string, error) {
	out := map[string]string{}
	for k, v := range f.rows {
		if k.account == accountID && k.key == key {
			out[k.user] = v
		}
	}
	return out, nil
}

func (f *fakeMeta) ListByUserKey(_ context.Context, userID, key string) (map[string]string, error) {
	out := map[string]string{}
	for k, v := range f.rows {
		if k.user == userID && k.key == key {
			out[k.account] = v
		}
	}
	return out, nil
}

type authorizeCall struct {
	consentID string
	grants    []model.AuthorizationGrant
	attrs     map[string]string
	amend     bool
}

type deactivateCall struct{ user, account string }

type fakeConsents struct {
	consents    map[string]model.Consent
	detailed    map[string]model.DetailedConsent
	authorized  []authorizeCall
	statuses    map[string]string
	deactivated []deactivateCall
	mappedTo    map[deactivateCall][]string
	// authorizeErr is returned by Authorize when set.
	authorizeErr error
}

func newFakeConsents(cs ...model.Consent) *fakeConsents {
	f := &fakeConsents{
		consents: map[string]model.Consent{},
		detailed: map[string]model.DetailedConsent{},
		statuses: map[string]string{},
		mappedTo: map[deactivateCall][]string{},
	}
	for _, c := range cs {
		f.consents[c.ConsentID] = c
	}
	return f
}

func (f *fakeConsents) Get(_ context.Context, id string) (model.Consent, error) {
	c, ok := f.consents[id]
	if !ok {
		return c, repository.ErrNotFound
	}
	return c, nil
}

func (f *fakeConsents) GetDetailed(_ context.Context, id string) (model.DetailedConsent, error) {
	if d, ok := f.detailed[id]; ok {
		return d, nil
	}
	c, ok := f.consents[id]
	if !ok {
		return model.DetailedConsent{}, repository.ErrNotFound
	}
	return model.DetailedConsent{Consent: c, Attributes: map[string]string{}}, nil
}

func (f *fakeConsents) Authorize(_ context.Context, id string, grants []model.AuthorizationGrant,
	attrs map[string]string, amend bool) ([]model.AuthorizationResource, error) {
	if f.authorizeErr != nil {
		return nil, f.authorizeErr
	}
	f.authorized = append(f.authorized, authorizeCall{id, grants, attrs, amend})
	out := make([]model.AuthorizationResource, 0, len(grants))
	for _, g := range grants {
		out = append(out, g.Authorization)
	}
	return out, nil
}

func (f *fakeConsents) UpdateStatus(_ context.Context, id, status string) error {
	c, ok := f.consents[id]
	if !ok {
		return repository.ErrNotFound
	}
	switch c.Status {
	case model.ConsentStatusRevoked, model.ConsentStatusExpired, model.ConsentStatusRejected:
		return repository.ErrConflict
	}
	c.Status = status
	f.consents[id] = c
	f.statuses[id] = status
	return nil
}

func (f *fakeConsents) DeactivateMappings(_ context.Context, userID, accountID string) ([]string, error) {
	call := deactivateCall{userID, accountID}
	f.deactivated = append(f.deactivated, call)
	return f.mappedTo[call], nil
}

func (f *fakeConsents) FindByArrangement(_ context.Context, arrangementID string) (model.Consent, error) {
	c, ok := f.consents[arrangementID]
	if !ok {
		return c, repository.ErrNotFound
	}
	return c, nil
}

type fakeProviders map[string]model.ServiceProvider

func (f fakeProviders) GetByClientID(_ context.Context, clientID string) (model.ServiceProvider, error) {
	sp, ok := f[clientID]
	if !ok {
		return sp, repository.ErrNotFound
	}
	return sp, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []queue.ConsentStateChange
}

func (f *fakePublisher) PublishConsentState(_ context.Context, ev queue.ConsentStateChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}
