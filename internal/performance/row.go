package performance

import "fmt"

// TrailingWindow holds the normalized trailing-window percentages of one
// route, along with the as-of date its page reported.
type TrailingWindow struct {
	Route      Route
	ReportDate Date
	PastDay    float64
	Past7      float64
	Past30     float64
}

// Samples flattens the window into one sample per period.
func (w TrailingWindow) Samples() []MetricSample {
	return []MetricSample{
		{Route: w.Route, Window: PastDay, Value: w.PastDay},
		{Route: w.Route, Window: PastWeek, Value: w.Past7},
		{Route: w.Route, Window: PastMonth, Value: w.Past30},
	}
}

// TargetRecord is one row of the aggregate actual vs target table. Route is
// kept as the scraped label since the table also lists non-canonical routes.
type TargetRecord struct {
	Route  string
	Actual float64
	Target float64
}

// PerformanceRow is the final record written for one canonical route.
type PerformanceRow struct {
	DateUpdated Date    `db:"date_updated" json:"date_updated"`
	MetricDate  Date    `db:"metric_date" json:"metric_date"`
	Route       Route   `db:"-" json:"-"`
	RouteLabel  string  `db:"route" json:"route"`
	Target      float64 `db:"target" json:"target"`
	PastDay     float64 `db:"past_day" json:"past_day"`
	Past7       float64 `db:"past_7" json:"past_7"`
	Past30      float64 `db:"past_30" json:"past_30"`
}

// Validate checks the numeric range of every fraction and that the route is
// canonical.
func (r PerformanceRow) Validate() error {
	if !r.Route.Valid() || r.Route.String() != r.RouteLabel {
		return fmt.Errorf("row has non-canonical route %q", r.RouteLabel)
	}
	fields := []struct {
		name  string
		value float64
	}{
		{"target", r.Target},
		{"past_day", r.PastDay},
		{"past_7", r.Past7},
		{"past_30", r.Past30},
	}
	for _, f := range fields {
		if err := checkFraction(f.value); err != nil {
			return &ParseError{Field: f.name, Raw: fmt.Sprint(f.value), Err: err}
		}
	}
	return nil
}
