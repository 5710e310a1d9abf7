package dashboard

import (
	"errors"
	"fmt"
)

// Layout is the selector/position contract of the vendor dashboard. Bump
// Version whenever the vendor markup changes and the contract has to follow.
type Layout struct {
	Version string `json:"version"`

	// TrailingSelector matches the text nodes of a route detail page, in
	// document order.
	TrailingSelector  string            `json:"trailing_selector"`
	TrailingPositions TrailingPositions `json:"trailing_positions"`

	// RouteCellSelector matches the route name cells of the aggregate page.
	RouteCellSelector string `json:"route_cell_selector"`
	// SeriesCellSelector matches the percentage cells of the aggregate page,
	// which alternate actual, target, actual, target... one pair per route.
	SeriesCellSelector string `json:"series_cell_selector"`
}

// TrailingPositions are indices into the TrailingSelector node list.
type TrailingPositions struct {
	Heading    int `json:"heading"`
	ReportDate int `json:"report_date"`
	PastDay    int `json:"past_day"`
	Past7      int `json:"past_7"`
	Past30     int `json:"past_30"`
}

func (p TrailingPositions) all() []int {
	return []int{p.Heading, p.ReportDate, p.PastDay, p.Past7, p.Past30}
}

// MinNodes is the number of nodes a detail page must yield before any
// position can be read.
func (p TrailingPositions) MinNodes() int {
	max := 0
	for _, pos := range p.all() {
		if pos > max {
			max = pos
		}
	}
	return max + 1
}

// DefaultLayout is the markup of the angular dashboard as of March 2019.
func DefaultLayout() Layout {
	return Layout{
		Version:          "2019-03",
		TrailingSelector: "span.ng-binding.ng-scope",
		TrailingPositions: TrailingPositions{
			Heading:    0,
			ReportDate: 1,
			PastDay:    2,
			Past7:      3,
			Past30:     4,
		},
		RouteCellSelector:  "td.categoryTd.ng-binding.ng-scope",
		SeriesCellSelector: `td[ng-repeat="series in metric.series"]`,
	}
}

// ReadySelector matches once either kind of page has bound its data: the
// trailing nodes of a detail page or the route cells of the aggregate page.
func (l Layout) ReadySelector() string {
	return l.TrailingSelector + ", " + l.RouteCellSelector
}

func (l Layout) Validate() error {
	var errs []error
	if l.Version == "" {
		errs = append(errs, errors.New("layout version is empty"))
	}
	if l.TrailingSelector == "" {
		errs = append(errs, errors.New("trailing_selector is empty"))
	}
	if l.RouteCellSelector == "" {
		errs = append(errs, errors.New("route_cell_selector is empty"))
	}
	if l.SeriesCellSelector == "" {
		errs = append(errs, errors.New("series_cell_selector is empty"))
	}

	seen := map[int]bool{}
	for _, pos := range l.TrailingPositions.all() {
		if pos < 0 {
			errs = append(errs, fmt.Errorf("trailing position %d is negative", pos))
		}
		if seen[pos] {
			errs = append(errs, fmt.Errorf("trailing position %d is used twice", pos))
		}
		seen[pos] = true
	}
	return errors.Join(errs...)
}
