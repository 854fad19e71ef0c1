package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cds-extensions/internal/cdserr"
	"github.com/iliyamo/cds-extensions/internal/config"
)

var metricsNow = time.Date(2026, 5, 10, 15, 0, 0, 0, time.UTC)

func ms(t time.Time) int64 { return t.UnixMilli() }

type fakeQuerier struct {
	mu      sync.Mutex
	queries []string
	fail    bool
}

func (f *fakeQuerier) Query(_ context.Context, q string) ([][]any, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.fail {
		return nil, errors.New("analytics down")
	}
	today := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	switch {
	case strings.Contains(q, "distinctCount(userId)"):
		return [][]any{{float64(42)}}, nil
	case strings.Contains(q, "distinctCount(clientId)"):
		return [][]any{{float64(3)}}, nil
	case strings.Contains(q, "avg(availability)"):
		return [][]any{
			{ms(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)), 0.99},
			{ms(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)), 0.98},
		}, nil
	case strings.Contains(q, "priorityTier, sum(invocationCount) as value"):
		return [][]any{
			{ms(today.Add(2 * time.Hour)), "highPriority", float64(10)},
			{ms(today.AddDate(0, 0, -1)), "highPriority", float64(5)},
			{ms(today.AddDate(0, 0, -3)), "lowPriority", float64(2)},
		}, nil
	}
	return nil, nil
}

type memCache struct {
	data map[string][]byte
	ttl  time.Duration
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.data[key] = value
	m.ttl = ttl
	return nil
}

func newService(q Querier, c Cache) *Service {
	return &Service{
		Analytics: q,
		Cache:     c,
		Cfg:       config.MetricsConfig{CacheEnabled: true, CacheTTL: 24 * time.Hour, CachePrefix: "cds:metrics", HistoricDays: 7, HistoricMonths: 12},
		Now:       func() time.Time { return metricsNow },
	}
}

func f64(v float64) *float64 { return &v }

func TestParsePeriod(t *testing.T) {
	for in, want := range map[string]Period{"": PeriodAll, "current": PeriodCurrent, " HISTORIC ": PeriodHistoric, "ALL": PeriodAll} {
		got, err := ParsePeriod(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParsePeriod("yesterday")
	var cdsErr *cdserr.Error
	require.True(t, errors.As(err, &cdsErr))
	assert.Equal(t, cdserr.CodeFieldInvalid, cdsErr.Code)
	assert.Equal(t, http.StatusBadRequest, cdsErr.Status)
}

func TestQueryBuilder(t *testing.T) {
	var b QueryBuilder
	inv := families[2]
	w := historicWindow(inv, metricsNow, 7, 12)
	assert.Equal(t,
		"from CDSInvocationsAgg within 1777766400000L, 1778371200000L per 'days' select AGG_TIMESTAMP, priorityTier, sum(invocationCount) as value group by priorityTier order by AGG_TIMESTAMP desc;",
		b.Build(inv, w))
	assert.Equal(t, time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC), w.From)
	assert.Equal(t, time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC), w.To)

	assert.Equal(t, "from CDSActiveAuthorisationsTable select distinctCount(userId) as value;",
		b.Build(families[10], Window{}))
}

func TestBucketIndex(t *testing.T) {
	days := historicWindow(family{}, metricsNow, 7, 12)
	assert.Equal(t, 0, bucketIndex(days, time.Date(2026, 5, 9, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, 6, bucketIndex(days, time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, -1, bucketIndex(days, time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, -1, bucketIndex(days, time.Date(2026, 5, 2, 23, 0, 0, 0, time.UTC)))

	months := historicWindow(family{monthly: true}, metricsNow, 7, 12)
	assert.Equal(t, 0, bucketIndex(months, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 11, bucketIndex(months, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)))
}

func TestService_GetAll(t *testing.T) {
	q := &fakeQuerier{}
	svc := newService(q, &memCache{data: map[string][]byte{}})

	resp, err := svc.Get(context.Background(), PeriodAll, "/v1/admin/metrics?period=ALL")
	require.NoError(t, err)
	m := resp.Data

	assert.Equal(t, "2026-05-10T15:00:00Z", m.RequestTime)
	assert.Equal(t, f64(0.99), m.Availability.CurrentMonth)
	require.Len(t, m.Availability.PreviousMonths, 12)
	assert.Equal(t, 0.98, m.Availability.PreviousMonths[0])

	assert.Equal(t, DaySeries{CurrentDay: f64(10), PreviousDays: []float64{5, 0, 0, 0, 0, 0, 0}}, m.Invocations["highPriority"])
	assert.Equal(t, []float64{0, 0, 2, 0, 0, 0, 0}, m.Invocations["lowPriority"].PreviousDays)
	assert.Nil(t, m.Invocations["lowPriority"].CurrentDay)

	assert.Equal(t, f64(0), m.Errors.CurrentDay)
	assert.Len(t, m.Errors.PreviousDays, 7)
	assert.Equal(t, f64(42), m.CustomerCount)
	assert.Equal(t, f64(3), m.RecipientCount)
	assert.Equal(t, "/v1/admin/metrics?period=ALL", resp.Links["self"])
}

func TestService_HistoricIsCachedUntilEndOfDay(t *testing.T) {
	q := &fakeQuerier{}
	cache := &memCache{data: map[string][]byte{}}
	svc := newService(q, cache)

	first, err := svc.Get(context.Background(), PeriodHistoric, "")
	require.NoError(t, err)
	queried := len(q.queries)
	assert.Equal(t, 10, queried, "snapshot families are not part of the historic period")
	assert.Contains(t, cache.data, "cds:metrics:historic:2026-05-10")
	assert.Equal(t, 9*time.Hour, cache.ttl)
	assert.Nil(t, first.Data.CustomerCount)
	assert.Nil(t, first.Data.Errors.CurrentDay)

	second, err := svc.Get(context.Background(), PeriodHistoric, "")
	require.NoError(t, err)
	assert.Len(t, q.queries, queried)
	assert.Equal(t, first.Data.Invocations, second.Data.Invocations)

	svc.Cfg.CacheTTL = time.Hour
	assert.Equal(t, time.Hour, svc.cacheTTL(metricsNow))
}

func TestService_PropagatesAnalyticsFailure(t *testing.T) {
	svc := newService(&fakeQuerier{fail: true}, nil)
	_, err := svc.Get(context.Background(), PeriodCurrent, "")
	assert.ErrorContains(t, err, "analytics down")
}

func TestAnalyticsClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.JSONEq(t, `{"appName":"CDSMetricsApp","query":"from X select 1 as value;"}`, string(body))
		_, _ = w.Write([]byte(`{"records":[[1,"a",2.5]]}`))
	}))
	defer srv.Close()

	c := NewAnalyticsClient(srv.URL, "CDSMetricsApp", time.Second)
	records, err := c.Query(context.Background(), "from X select 1 as value;")
	require.NoError(t, err)
	assert.Equal(t, [][]any{{float64(1), "a", 2.5}}, records)
}
