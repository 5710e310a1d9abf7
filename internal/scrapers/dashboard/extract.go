package dashboard

import (
	"errors"
	"fmt"
	"transitperf/internal/render"
)

// ErrExtraction marks a page whose structure does not match the Layout,
// usually because the vendor changed the markup.
var ErrExtraction = errors.New("extraction failure")

type ExtractionError struct {
	URL           string
	LayoutVersion string
	Reason        string
}

func (e *ExtractionError) Error() string {
	prefix := "extract"
	if e.URL != "" {
		prefix += " " + e.URL
	}
	if e.LayoutVersion != "" {
		prefix += fmt.Sprintf(" (layout %s)", e.LayoutVersion)
	}
	return prefix + ": " + e.Reason
}

func (e *ExtractionError) Unwrap() error {
	return ErrExtraction
}

// TrailingRaw is the unparsed content of a route detail page.
type TrailingRaw struct {
	Heading    string
	ReportDate string
	PastDay    string
	Past7      string
	Past30     string
}

// ExtractTrailing reads the positional fields of a route detail page out of
// the text of every node matched by TrailingSelector.
func (l Layout) ExtractTrailing(texts []string) (TrailingRaw, error) {
	pos := l.TrailingPositions
	if min := pos.MinNodes(); len(texts) < min {
		return TrailingRaw{}, &ExtractionError{
			LayoutVersion: l.Version,
			Reason:        fmt.Sprintf("found %d trailing-window nodes, need at least %d", len(texts), min),
		}
	}
	return TrailingRaw{
		Heading:    texts[pos.Heading],
		ReportDate: texts[pos.ReportDate],
		PastDay:    texts[pos.PastDay],
		Past7:      texts[pos.Past7],
		Past30:     texts[pos.Past30],
	}, nil
}

// TargetRaw is one unparsed row of the aggregate actual vs target table.
type TargetRaw struct {
	Route  string
	Actual string
	Target string
}

// PairTargets aligns route cells with series cells. Series cells alternate
// actual and target starting with actual, so there must be exactly two per
// route.
func (l Layout) PairTargets(routes, series []string) ([]TargetRaw, error) {
	fail := func(format string, args ...any) ([]TargetRaw, error) {
		return nil, &ExtractionError{
			LayoutVersion: l.Version,
			Reason:        fmt.Sprintf(format, args...),
		}
	}

	if len(routes) == 0 {
		return fail("found no route cells")
	}
	if len(series)%2 != 0 {
		return fail("found %d series cells, expected an even number of actual/target pairs", len(series))
	}
	if len(series)/2 != len(routes) {
		return fail("found %d actual/target pairs for %d route cells", len(series)/2, len(routes))
	}

	out := make([]TargetRaw, len(routes))
	for i, route := range routes {
		out[i] = TargetRaw{
			Route:  route,
			Actual: series[2*i],
			Target: series[2*i+1],
		}
	}
	return out, nil
}

// ExtractTargets reads the route and series cells of the aggregate page and
// pairs them up.
func (l Layout) ExtractTargets(page render.Page) ([]TargetRaw, error) {
	routes := page.Texts(l.RouteCellSelector)
	series := page.Texts(l.SeriesCellSelector)
	return l.PairTargets(routes, series)
}
