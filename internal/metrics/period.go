// Package metrics serves the CDS admin metrics assembled from queries
// against the analytics backend.
package metrics

import (
	"fmt"
	"strings"

	"github.com/iliyamo/cds-extensions/internal/cdserr"
)

// Period selects which part of the metrics is returned.
type Period string

const (
	PeriodCurrent  Period = "CURRENT"
	PeriodHistoric Period = "HISTORIC"
	PeriodAll      Period = "ALL"
)

// ParsePeriod parses the period query parameter.  An empty value means ALL.
func ParsePeriod(v string) (Period, error) {
	switch p := Period(strings.ToUpper(strings.TrimSpace(v))); p {
	case "":
		return PeriodAll, nil
	case PeriodCurrent, PeriodHistoric, PeriodAll:
		return p, nil
	}
	return "", cdserr.FieldInvalid(fmt.Sprintf("period %q is invalid, expected CURRENT, HISTORIC or ALL", v))
}

func (p Period) includesCurrent() bool  { return p == PeriodCurrent || p == PeriodAll }
func (p Period) includesHistoric() bool { return p == PeriodHistoric || p == PeriodAll }
