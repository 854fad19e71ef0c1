package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/cds-extensions/internal/config"
)

// Querier runs a store query.
type Querier interface {
	Query(ctx context.Context, query string) ([][]any, error)
}

// Service assembles metrics responses.  The historic part only changes
// once a day and is cached until the end of the day.
type Service struct {
	Analytics Querier
	Cache     Cache
	Cfg       config.MetricsConfig
	Builder   QueryBuilder
	Now       func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Get returns the metrics of period.
func (s *Service) Get(ctx context.Context, period Period, selfURL string) (Response, error) {
	now := s.now()
	resp := Response{
		Data:  Metrics{RequestTime: now.Format(time.RFC3339)},
		Links: map[string]any{"self": selfURL},
		Meta:  map[string]any{},
	}
	var current, historic snapshot
	g, gctx := errgroup.WithContext(ctx)
	if period.includesCurrent() {
		g.Go(func() error {
			var err error
			current, err = s.collect(gctx, now, true)
			return err
		})
	}
	if period.includesHistoric() {
		g.Go(func() error {
			var err error
			historic, err = s.historic(gctx, now)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Response{}, err
	}
	assemble(&resp.Data, current, historic)
	return resp, nil
}

func (s *Service) historic(ctx context.Context, now time.Time) (snapshot, error) {
	key := fmt.Sprintf("%s:historic:%s", s.Cfg.CachePrefix, now.Format("2006-01-02"))
	if s.Cfg.CacheEnabled && s.Cache != nil {
		raw, err := s.Cache.Get(ctx, key)
		switch {
		case err == nil:
			var snap snapshot
			if jerr := json.Unmarshal(raw, &snap); jerr == nil {
				return snap, nil
			}
			log.Warn().Str("key", key).Msg("discarding undecodable cached metrics")
		case !errors.Is(err, ErrCacheMiss):
			log.Warn().Err(err).Str("key", key).Msg("metrics cache read failed")
		}
	}

	snap, err := s.collect(ctx, now, false)
	if err != nil {
		return nil, err
	}
	if s.Cfg.CacheEnabled && s.Cache != nil {
		if raw, err := json.Marshal(snap); err == nil {
			if err := s.Cache.Set(ctx, key, raw, s.cacheTTL(now)); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("metrics cache write failed")
			}
		}
	}
	return snap, nil
}

// cacheTTL keeps historic metrics until the end of the current day, capped
// by the configured TTL.
func (s *Service) cacheTTL(now time.Time) time.Duration {
	ttl := startOfDay(now).AddDate(0, 0, 1).Sub(now)
	if s.Cfg.CacheTTL > 0 && s.Cfg.CacheTTL < ttl {
		ttl = s.Cfg.CacheTTL
	}
	return ttl
}

// collect queries every family for the current or the historic window.
func (s *Service) collect(ctx context.Context, now time.Time, current bool) (snapshot, error) {
	var (
		mu   sync.Mutex
		snap = snapshot{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, f := range families {
		if f.snapshot && !current {
			continue
		}
		w := currentWindow(f, now)
		if !current {
			w = historicWindow(f, now, s.Cfg.HistoricDays, s.Cfg.HistoricMonths)
		}
		g.Go(func() error {
			records, err := s.Analytics.Query(gctx, s.Builder.Build(f, w))
			if err != nil {
				return fmt.Errorf("query %s metrics: %w", f.key, err)
			}
			values := bucketize(f, w, records)
			mu.Lock()
			for k, v := range values {
				snap[k] = v
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

// bucketize spreads records over the buckets of w.  Buckets without a
// record are zero.
func bucketize(f family, w Window, records [][]any) snapshot {
	out := snapshot{}
	if f.snapshot {
		v := 0.0
		if len(records) > 0 && len(records[0]) > 0 {
			v = toFloat(records[0][0])
		}
		out[f.key] = []float64{v}
		return out
	}
	if f.subKey == "" {
		out[f.key] = make([]float64, w.Buckets)
	}
	for _, r := range records {
		want := 2
		if f.subKey != "" {
			want = 3
		}
		if len(r) < want {
			continue
		}
		idx := bucketIndex(w, time.UnixMilli(int64(toFloat(r[0]))))
		if idx < 0 {
			continue
		}
		key := f.key
		if f.subKey != "" {
			key = f.key + "." + fmt.Sprint(r[1])
		}
		buckets, ok := out[key]
		if !ok {
			buckets = make([]float64, w.Buckets)
			out[key] = buckets
		}
		buckets[idx] += toFloat(r[want-1])
	}
	return out
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}

func assemble(m *Metrics, current, historic snapshot) {
	m.Availability = MonthSeries{CurrentMonth: first(current, "availability"), PreviousMonths: historic["availability"]}
	m.Performance = day(current, historic, "performance")
	m.SessionCount = day(current, historic, "sessionCount")
	m.AverageTPS = day(current, historic, "averageTps")
	m.PeakTPS = day(current, historic, "peakTps")
	m.Errors = day(current, historic, "errors")
	m.Invocations = split(current, historic, "invocations")
	m.AverageResponse = split(current, historic, "averageResponse")
	m.Rejections = split(current, historic, "rejections")
	m.Authorisations = split(current, historic, "authorisations")
	m.CustomerCount = first(current, "customerCount")
	m.RecipientCount = first(current, "recipientCount")
}

func first(s snapshot, key string) *float64 {
	if v, ok := s[key]; ok && len(v) > 0 {
		f := v[0]
		return &f
	}
	return nil
}

func day(current, historic snapshot, key string) DaySeries {
	return DaySeries{CurrentDay: first(current, key), PreviousDays: historic[key]}
}

func split(current, historic snapshot, family string) map[string]DaySeries {
	out := map[string]DaySeries{}
	prefix := family + "."
	for _, s := range []snapshot{current, historic} {
		for k := range s {
			if sub, ok := strings.CutPrefix(k, prefix); ok {
				out[sub] = day(current, historic, k)
			}
		}
	}
	return out
}
