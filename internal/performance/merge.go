package performance

import (
	"transitperf/pkg/textutil"

	"github.com/antzucaro/matchr"
)

// suggestions below this Jaro-Winkler similarity are not worth reporting
const suggestionThreshold = 0.85

// FilterCanonical splits target records into those whose label is one of the
// canonical routes and those that are not.
func FilterCanonical(targets []TargetRecord, canonical []Route) (kept []TargetRecord, dropped []string) {
	allowed := make(map[string]struct{}, len(canonical))
	for _, r := range canonical {
		allowed[r.String()] = struct{}{}
	}
	for _, t := range targets {
		if _, ok := allowed[t.Route]; ok {
			kept = append(kept, t)
			continue
		}
		dropped = append(dropped, t.Route)
	}
	return kept, dropped
}

// Merge joins the trailing-window data with the target data on the exact
// route label and returns one row per canonical route, in canonical order.
//
// Any canonical route absent from either side, or listed with conflicting
// values in the target data, fails the merge with a *JoinError.
func Merge(
	trailing map[Route]TrailingWindow,
	targets []TargetRecord,
	canonical []Route,
	metricDate, runDate Date,
) ([]PerformanceRow, error) {
	kept, dropped := FilterCanonical(targets, canonical)

	// the same route may be listed under several categories of the target
	// table; identical repeats are discarded, conflicting ones are an error
	byLabel := make(map[string]TargetRecord, len(kept))
	conflicting := make(map[string]bool)
	for _, t := range kept {
		existing, ok := byLabel[t.Route]
		if !ok {
			byLabel[t.Route] = t
			continue
		}
		if existing != t {
			conflicting[t.Route] = true
		}
	}

	joinErr := &JoinError{}
	for _, r := range canonical {
		if _, ok := trailing[r]; !ok {
			joinErr.MissingTrailing = append(joinErr.MissingTrailing, r)
		}
		_, found := byLabel[r.String()]
		switch {
		case !found:
			joinErr.MissingTarget = append(joinErr.MissingTarget, r)
			if label, ok := suggestLabel(r, dropped); ok {
				if joinErr.Suggestions == nil {
					joinErr.Suggestions = map[Route]string{}
				}
				joinErr.Suggestions[r] = label
			}
		case conflicting[r.String()]:
			joinErr.Duplicates = append(joinErr.Duplicates, r)
		}
	}
	if len(joinErr.MissingTrailing) > 0 || len(joinErr.MissingTarget) > 0 || len(joinErr.Duplicates) > 0 {
		return nil, joinErr
	}

	rows := make([]PerformanceRow, 0, len(canonical))
	for _, r := range canonical {
		window := trailing[r]
		target := byLabel[r.String()]

		row := PerformanceRow{
			DateUpdated: runDate,
			MetricDate:  metricDate,
			Route:       r,
			RouteLabel:  r.String(),
			Target:      target.Target,
			PastDay:     window.PastDay,
			Past7:       window.Past7,
			Past30:      window.Past30,
		}
		if err := row.Validate(); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// suggestLabel finds the scraped label that most plausibly meant r, to point
// at a renamed or reformatted route on the vendor page. A label equal to the
// route name once normalized wins, then one containing it, then the closest
// Jaro-Winkler match.
func suggestLabel(r Route, labels []string) (string, bool) {
	want := r.String()
	normalized := textutil.NormalizeName(want)

	var containing string
	var best string
	var bestScore float64
	for _, label := range labels {
		if textutil.NormalizeName(label) == normalized {
			return label, true
		}
		if _, ok := textutil.MatchName(label, normalized); ok && containing == "" {
			containing = label
		}
		score := matchr.JaroWinkler(want, label, false)
		if score > bestScore {
			best = label
			bestScore = score
		}
	}
	if containing != "" {
		return containing, true
	}
	if bestScore < suggestionThreshold {
		return "", false
	}
	return best, true
}
