package performance

import "fmt"

// Route is one of the canonical transit service categories reported by the
// dashboard. The set is closed.
type Route int

const (
	RedLine Route = iota
	BlueLine
	GreenLine
	OrangeLine
	Bus
	CommuterRail
)

var routeLabels = [...]string{
	RedLine:      "Red Line",
	BlueLine:     "Blue Line",
	GreenLine:    "Green Line",
	OrangeLine:   "Orange Line",
	Bus:          "Bus",
	CommuterRail: "Commuter Rail",
}

var routeSlugs = [...]string{
	RedLine:      "red",
	BlueLine:     "blue",
	GreenLine:    "green",
	OrangeLine:   "orange",
	Bus:          "bus",
	CommuterRail: "commuter_rail",
}

// CanonicalRoutes returns every route in canonical output order.
func CanonicalRoutes() []Route {
	return []Route{RedLine, BlueLine, GreenLine, OrangeLine, Bus, CommuterRail}
}

func (r Route) Valid() bool {
	return r >= RedLine && r <= CommuterRail
}

// String returns the label the dashboard uses for the route, which is also
// the join key between the two scraped datasets.
func (r Route) String() string {
	if !r.Valid() {
		return fmt.Sprintf("Route(%d)", int(r))
	}
	return routeLabels[r]
}

// Slug is the lowercase identifier used as a configuration key.
func (r Route) Slug() string {
	if !r.Valid() {
		return ""
	}
	return routeSlugs[r]
}

// RouteFromLabel matches a dashboard label exactly.
func RouteFromLabel(label string) (Route, bool) {
	for _, r := range CanonicalRoutes() {
		if routeLabels[r] == label {
			return r, true
		}
	}
	return -1, false
}

// RouteFromSlug matches a configuration key exactly.
func RouteFromSlug(slug string) (Route, bool) {
	for _, r := range CanonicalRoutes() {
		if routeSlugs[r] == slug {
			return r, true
		}
	}
	return -1, false
}

// Window is a trailing period an on-time percentage is computed over.
type Window int

const (
	PastDay Window = iota
	PastWeek
	PastMonth
)

func (w Window) String() string {
	switch w {
	case PastDay:
		return "past_day"
	case PastWeek:
		return "past_7"
	case PastMonth:
		return "past_30"
	}
	return fmt.Sprintf("Window(%d)", int(w))
}

// MetricSample is a single normalized trailing-window value.
type MetricSample struct {
	Route  Route
	Window Window
	Value  float64
}
