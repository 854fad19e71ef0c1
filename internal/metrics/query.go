package metrics

import (
	"fmt"
	"math"
	"time"
)

// Granularity of an aggregation window.
type Granularity string

const (
	PerDay   Granularity = "days"
	PerMonth Granularity = "months"
)

// Window is a half-open time range queried at a granularity.
type Window struct {
	From        time.Time
	To          time.Time
	Granularity Granularity
	// Buckets is the number of buckets the window is split into, newest first.
	Buckets int
}

// family describes one metric and the store it is aggregated in.
// Records of a windowed family are [AGG_TIMESTAMP, (sub key,) value];
// records of a snapshot family are [value].
type family struct {
	key      string
	source   string
	expr     string
	subKey   string
	monthly  bool
	snapshot bool
}

var families = []family{
	{key: "availability", source: "CDSAvailabilityAgg", expr: "avg(availability)", monthly: true},
	{key: "performance", source: "CDSPerformanceAgg", expr: "sum(withinThresholdCount) / sum(invocationCount)"},
	{key: "invocations", source: "CDSInvocationsAgg", expr: "sum(invocationCount)", subKey: "priorityTier"},
	{key: "averageResponse", source: "CDSInvocationsAgg", expr: "sum(totalResponseTime) / sum(invocationCount)", subKey: "priorityTier"},
	{key: "sessionCount", source: "CDSSessionsAgg", expr: "sum(sessionCount)"},
	{key: "averageTps", source: "CDSTpsAgg", expr: "avg(tps)"},
	{key: "peakTps", source: "CDSTpsAgg", expr: "max(tps)"},
	{key: "errors", source: "CDSErrorsAgg", expr: "sum(errorCount)"},
	{key: "rejections", source: "CDSRejectionsAgg", expr: "sum(rejectionCount)", subKey: "authType"},
	{key: "authorisations", source: "CDSAuthorisationsAgg", expr: "sum(authorisationCount)", subKey: "state"},
	{key: "customerCount", source: "CDSActiveAuthorisationsTable", expr: "distinctCount(userId)", snapshot: true},
	{key: "recipientCount", source: "CDSActiveAuthorisationsTable", expr: "distinctCount(clientId)", snapshot: true},
}

// QueryBuilder builds the store queries sent to the analytics backend.
type QueryBuilder struct{}

// Build returns the query of f over w.  Snapshot families ignore w.
func (QueryBuilder) Build(f family, w Window) string {
	if f.snapshot {
		return fmt.Sprintf("from %s select %s as value;", f.source, f.expr)
	}
	sel, group := "AGG_TIMESTAMP, ", ""
	if f.subKey != "" {
		sel += f.subKey + ", "
		group = " group by " + f.subKey
	}
	return fmt.Sprintf("from %s within %dL, %dL per '%s' select %s%s as value%s order by AGG_TIMESTAMP desc;",
		f.source, w.From.UnixMilli(), w.To.UnixMilli(), w.Granularity, sel, f.expr, group)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func startOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// currentWindow is today, or this month for monthly families.
func currentWindow(f family, now time.Time) Window {
	if f.monthly {
		return Window{From: startOfMonth(now), To: now, Granularity: PerMonth, Buckets: 1}
	}
	return Window{From: startOfDay(now), To: now, Granularity: PerDay, Buckets: 1}
}

// historicWindow covers the previous days, or previous months for monthly
// families, ending where the current window starts.
func historicWindow(f family, now time.Time, days, months int) Window {
	if f.monthly {
		to := startOfMonth(now)
		return Window{From: to.AddDate(0, -months, 0), To: to, Granularity: PerMonth, Buckets: months}
	}
	to := startOfDay(now)
	return Window{From: to.AddDate(0, 0, -days), To: to, Granularity: PerDay, Buckets: days}
}

// bucketIndex places a bucket timestamp in w, 0 being the newest bucket.
// It returns -1 for timestamps outside w.
func bucketIndex(w Window, ts time.Time) int {
	if ts.Before(w.From) || !ts.Before(w.To) {
		return -1
	}
	ts = ts.In(w.To.Location())
	var idx int
	if w.Granularity == PerMonth {
		ty, tm, _ := ts.Date()
		ey, em, _ := w.To.Add(-time.Nanosecond).Date()
		idx = (ey-ty)*12 + int(em-tm)
	} else {
		end := startOfDay(w.To.Add(-time.Nanosecond))
		idx = int(math.Round(end.Sub(startOfDay(ts)).Hours() / 24))
	}
	if idx < 0 || idx >= w.Buckets {
		return -1
	}
	return idx
}
