package events

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cds-extensions/internal/config"
	"github.com/iliyamo/cds-extensions/internal/model"
	"github.com/iliyamo/cds-extensions/internal/queue"
)

type fakeMetrics struct {
	mu        sync.Mutex
	published []queue.AuthorisationMetric
	err       error
}

func (f *fakeMetrics) PublishAuthorisationMetric(_ context.Context, m queue.AuthorisationMetric) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, m)
	return nil
}

type fakeRevoker struct {
	calls [][2]string
	err   error
}

func (f *fakeRevoker) Revoke(_ context.Context, clientID, arrangementID string) error {
	f.calls = append(f.calls, [2]string{clientID, arrangementID})
	return f.err
}

var eventsNow = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func TestExecutor_PublishesMetricsForReportedStates(t *testing.T) {
	m := &fakeMetrics{}
	e := &Executor{Metrics: m, Now: func() time.Time { return eventsNow }}

	for _, state := range []string{
		model.ConsentStatusAwaitingAuthorization, model.ConsentStatusAuthorized,
		model.ConsentStatusAmended, model.ConsentStatusRejected,
		model.ConsentStatusRevoked, model.ConsentStatusExpired,
	} {
		require.NoError(t, e.Process(context.Background(), queue.ConsentStateChange{ConsentID: "c-" + state, ClientID: "client", State: state}))
	}

	require.Len(t, m.published, 4)
	assert.Equal(t, queue.AuthorisationMetric{
		ConsentID: "c-authorized", ClientID: "client", State: model.ConsentStatusAuthorized,
		AuthorisationFlow: FlowConsentAuthorisation, Timestamp: eventsNow.Unix(),
	}, m.published[0])
	assert.Equal(t, FlowConsentAmendment, m.published[1].AuthorisationFlow)
	assert.Equal(t, model.ConsentStatusRevoked, m.published[2].State)
	assert.Equal(t, model.ConsentStatusExpired, m.published[3].State)
}

func TestExecutor_SuppressesRecentlyPublishedRequestURIKeys(t *testing.T) {
	m := &fakeMetrics{}
	e := &Executor{Metrics: m}
	ev := queue.ConsentStateChange{ConsentID: "c1", State: model.ConsentStatusAuthorized, RequestURIKey: "uri-1"}

	require.NoError(t, e.Process(context.Background(), ev))
	require.NoError(t, e.Process(context.Background(), ev))
	assert.Len(t, m.published, 1)

	// Push uri-1 out of the window.
	for i := 0; i < recentRequestURIKeysLimit; i++ {
		require.NoError(t, e.Process(context.Background(), queue.ConsentStateChange{
			ConsentID: "x", State: model.ConsentStatusAuthorized, RequestURIKey: fmt.Sprintf("other-%d", i),
		}))
	}
	require.NoError(t, e.Process(context.Background(), ev))
	assert.Len(t, m.published, recentRequestURIKeysLimit+2)
}

func TestExecutor_ConcurrentDuplicatesPublishOnce(t *testing.T) {
	m := &fakeMetrics{}
	e := &Executor{Metrics: m}
	ev := queue.ConsentStateChange{ConsentID: "c1", State: model.ConsentStatusAuthorized, RequestURIKey: "uri-1"}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Process(context.Background(), ev)
		}()
	}
	wg.Wait()
	assert.Len(t, m.published, 1)
}

func TestExecutor_FailedPublishCanBeRetried(t *testing.T) {
	m := &fakeMetrics{err: errors.New("broker down")}
	e := &Executor{Metrics: m}
	ev := queue.ConsentStateChange{ConsentID: "c1", State: model.ConsentStatusAuthorized, RequestURIKey: "uri-1"}

	assert.ErrorContains(t, e.Process(context.Background(), ev), "broker down")
	m.err = nil
	require.NoError(t, e.Process(context.Background(), ev))
	assert.Len(t, m.published, 1)
}

func TestExecutor_NotifiesRecipientOnDataHolderRevocation(t *testing.T) {
	r := &fakeRevoker{}
	e := &Executor{Revoker: r}

	require.NoError(t, e.Process(context.Background(), queue.ConsentStateChange{
		ConsentID: "c1", ClientID: "client", State: model.ConsentStatusRevoked, ArrangementID: "arr-1",
	}))
	assert.Empty(t, r.calls, "recipient initiated revocations are not echoed back")

	require.NoError(t, e.Process(context.Background(), queue.ConsentStateChange{
		ConsentID: "c1", ClientID: "client", State: model.ConsentStatusRevoked, ArrangementID: "arr-1", DataHolderInitiated: true,
	}))
	assert.Equal(t, [][2]string{{"client", "arr-1"}}, r.calls)

	r.err = errors.New("timeout")
	err := e.Process(context.Background(), queue.ConsentStateChange{
		ConsentID: "c2", ClientID: "client", State: model.ConsentStatusRevoked, ArrangementID: "arr-2", DataHolderInitiated: true,
	})
	assert.ErrorContains(t, err, "arr-2")
}

type fakeProviders map[string]model.ServiceProvider

func (f fakeProviders) GetByClientID(_ context.Context, clientID string) (model.ServiceProvider, error) {
	sp, ok := f[clientID]
	if !ok {
		return model.ServiceProvider{}, errors.New("not found")
	}
	return sp, nil
}

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestRevocationClient_Revoke(t *testing.T) {
	key := testKey(t)
	var (
		gotToken string
		gotForm  string
		calls    int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/dr/arrangements/revoke", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		gotToken = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		assert.NoError(t, r.ParseForm())
		gotForm = r.PostForm.Get("cdr_arrangement_id")
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewRevocationClient(config.RevocationConfig{BrandID: "brand-1", KeyID: "kid-1"}, key,
		fakeProviders{"client": {ClientID: "client", RecipientBaseURI: srv.URL + "/dr/"}}, time.Second)
	c.http.RetryWaitMin = time.Millisecond
	c.http.RetryWaitMax = time.Millisecond

	require.NoError(t, c.Revoke(context.Background(), "client", "arr-1"))
	assert.Equal(t, 2, calls)
	assert.Equal(t, "arr-1", gotForm)

	claims := &jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(gotToken, claims, func(tok *jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"PS256"}), jwt.WithAudience(srv.URL+"/dr/arrangements/revoke"))
	require.NoError(t, err)
	assert.Equal(t, "kid-1", tok.Header["kid"])
	assert.Equal(t, "brand-1", claims.Issuer)
	assert.Equal(t, "brand-1", claims.Subject)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, 5*time.Minute, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
}

func TestRevocationClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	providers := fakeProviders{
		"client":  {ClientID: "client", RecipientBaseURI: srv.URL},
		"no-base": {ClientID: "no-base"},
	}
	c := NewRevocationClient(config.RevocationConfig{BrandID: "brand-1"}, testKey(t), providers, time.Second)

	assert.ErrorContains(t, c.Revoke(context.Background(), "client", "arr-1"), "status 400")
	assert.ErrorContains(t, c.Revoke(context.Background(), "no-base", "arr-1"), "no recipient base uri")
	assert.ErrorContains(t, c.Revoke(context.Background(), "unknown", "arr-1"), "resolve client")
}
