package metrics

// DaySeries is a metric for today and the previous days, newest first.
type DaySeries struct {
	CurrentDay   *float64  `json:"currentDay,omitempty"`
	PreviousDays []float64 `json:"previousDays,omitempty"`
}

// MonthSeries is a metric for this month and the previous months, newest
// first.
type MonthSeries struct {
	CurrentMonth   *float64  `json:"currentMonth,omitempty"`
	PreviousMonths []float64 `json:"previousMonths,omitempty"`
}

// Metrics is the metrics payload of the admin metrics endpoint.
type Metrics struct {
	RequestTime     string               `json:"requestTime"`
	Availability    MonthSeries          `json:"availability"`
	Performance     DaySeries            `json:"performance"`
	Invocations     map[string]DaySeries `json:"invocations"`
	AverageResponse map[string]DaySeries `json:"averageResponse"`
	SessionCount    DaySeries            `json:"sessionCount"`
	AverageTPS      DaySeries            `json:"averageTps"`
	PeakTPS         DaySeries            `json:"peakTps"`
	Errors          DaySeries            `json:"errors"`
	Rejections      map[string]DaySeries `json:"rejections"`
	Authorisations  map[string]DaySeries `json:"authorisations"`
	CustomerCount   *float64             `json:"customerCount,omitempty"`
	RecipientCount  *float64             `json:"recipientCount,omitempty"`
}

// Response is the body of the admin metrics endpoint.
type Response struct {
	Data  Metrics        `json:"data"`
	Links map[string]any `json:"links"`
	Meta  map[string]any `json:"meta"`
}

// snapshot holds bucket values per metric key.  Keys are the family key,
// or family.subKey for families split by a sub key.
type snapshot map[string][]float64
