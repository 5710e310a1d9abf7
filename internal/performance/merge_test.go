package performance

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var (
	runDate    = Date{2019, time.March, 4}
	metricDate = Date{2019, time.March, 3}
)

func fullTrailing() map[Route]TrailingWindow {
	out := map[Route]TrailingWindow{}
	for i, r := range CanonicalRoutes() {
		out[r] = TrailingWindow{
			Route:      r,
			ReportDate: runDate,
			PastDay:    0.90 + float64(i)/100,
			Past7:      0.89,
			Past30:     0.85,
		}
	}
	return out
}

func fullTargets() []TargetRecord {
	var out []TargetRecord
	for _, r := range CanonicalRoutes() {
		out = append(out, TargetRecord{Route: r.String(), Actual: 0.91, Target: 0.95})
	}
	return out
}

func TestMergeExampleRow(t *testing.T) {
	trailing := fullTrailing()
	trailing[RedLine] = TrailingWindow{Route: RedLine, ReportDate: runDate, PastDay: 0.92, Past7: 0.89, Past30: 0.85}

	rows, err := Merge(trailing, fullTargets(), CanonicalRoutes(), metricDate, runDate)
	if err != nil {
		t.Fatal(err)
	}

	expected := PerformanceRow{
		DateUpdated: runDate,
		MetricDate:  metricDate,
		Route:       RedLine,
		RouteLabel:  "Red Line",
		Target:      0.95,
		PastDay:     0.92,
		Past7:       0.89,
		Past30:      0.85,
	}
	if diff := cmp.Diff(expected, rows[0]); diff != "" {
		t.Fatalf("unexpected red line row (-want +got):\n%s", diff)
	}
}

func TestMergeIsRoutePreserving(t *testing.T) {
	rows, err := Merge(fullTrailing(), fullTargets(), CanonicalRoutes(), metricDate, runDate)
	if err != nil {
		t.Fatal(err)
	}
	require.Len(t, rows, len(CanonicalRoutes()))

	seen := map[Route]bool{}
	for i, row := range rows {
		require.Equal(t, CanonicalRoutes()[i], row.Route, "rows must keep canonical order")
		require.False(t, seen[row.Route], "duplicate row for %s", row.Route)
		seen[row.Route] = true

		require.Equal(t, row.DateUpdated.AddDays(-1), row.MetricDate)
		require.NoError(t, row.Validate())
	}
}

func TestMergeIsRouteFiltering(t *testing.T) {
	targets := append(fullTargets(),
		TargetRecord{Route: "Mattapan Line", Actual: 0.99, Target: 0.97},
		TargetRecord{Route: "Silver Line", Actual: 0.80, Target: 0.85},
		TargetRecord{Route: "The RIDE", Actual: 0.70, Target: 0.75},
	)
	rows, err := Merge(fullTrailing(), targets, CanonicalRoutes(), metricDate, runDate)
	if err != nil {
		t.Fatal(err)
	}
	require.Len(t, rows, 6)
	for _, row := range rows {
		require.NotEqual(t, "Mattapan Line", row.RouteLabel)
		require.NotEqual(t, "Silver Line", row.RouteLabel)
	}

	_, dropped := FilterCanonical(targets, CanonicalRoutes())
	require.Equal(t, []string{"Mattapan Line", "Silver Line", "The RIDE"}, dropped)
}

func TestMergeDiscardsIdenticalRepeats(t *testing.T) {
	targets := append(fullTargets(), TargetRecord{Route: "Bus", Actual: 0.91, Target: 0.95})
	rows, err := Merge(fullTrailing(), targets, CanonicalRoutes(), metricDate, runDate)
	if err != nil {
		t.Fatal(err)
	}
	require.Len(t, rows, 6)
}

func TestMergeReportsMissingRoutes(t *testing.T) {
	trailing := fullTrailing()
	delete(trailing, OrangeLine)

	targets := fullTargets()[1:]
	targets = append(targets, TargetRecord{Route: "Red line", Actual: 0.9, Target: 0.95})

	rows, err := Merge(trailing, targets, CanonicalRoutes(), metricDate, runDate)
	require.Nil(t, rows)
	require.True(t, errors.Is(err, ErrJoin))

	var joinErr *JoinError
	require.True(t, errors.As(err, &joinErr))
	require.Equal(t, []Route{OrangeLine}, joinErr.MissingTrailing)
	require.Equal(t, []Route{RedLine}, joinErr.MissingTarget)
	require.Equal(t, "Red line", joinErr.Suggestions[RedLine])
	require.Contains(t, err.Error(), "Orange Line")
	require.Contains(t, err.Error(), `"Red line" looks like "Red Line"`)
}

func TestMergeSuggestsLabelContainingRoute(t *testing.T) {
	targets := fullTargets()
	targets = append(targets[:2], targets[3:]...)
	targets = append(targets,
		TargetRecord{Route: "Subway - Green Line", Actual: 0.9, Target: 0.95},
		TargetRecord{Route: "Mattapan Line", Actual: 0.9, Target: 0.95},
	)

	_, err := Merge(fullTrailing(), targets, CanonicalRoutes(), metricDate, runDate)
	var joinErr *JoinError
	require.True(t, errors.As(err, &joinErr))
	require.Equal(t, []Route{GreenLine}, joinErr.MissingTarget)
	require.Equal(t, map[Route]string{GreenLine: "Subway - Green Line"}, joinErr.Suggestions)
}

func TestMergeReportsConflictingDuplicates(t *testing.T) {
	targets := append(fullTargets(), TargetRecord{Route: "Bus", Actual: 0.5, Target: 0.6})

	_, err := Merge(fullTrailing(), targets, CanonicalRoutes(), metricDate, runDate)
	var joinErr *JoinError
	require.True(t, errors.As(err, &joinErr))
	require.Equal(t, []Route{Bus}, joinErr.Duplicates)
	require.Empty(t, joinErr.MissingTarget)
}

func TestMergeRejectsOutOfRangeValues(t *testing.T) {
	targets := fullTargets()
	targets[0].Target = 95

	_, err := Merge(fullTrailing(), targets, CanonicalRoutes(), metricDate, runDate)
	require.True(t, errors.Is(err, ErrParse))
}

func TestRouteLookup(t *testing.T) {
	for _, r := range CanonicalRoutes() {
		fromLabel, ok := RouteFromLabel(r.String())
		require.True(t, ok)
		require.Equal(t, r, fromLabel)

		fromSlug, ok := RouteFromSlug(r.Slug())
		require.True(t, ok)
		require.Equal(t, r, fromSlug)
	}

	_, ok := RouteFromLabel("Mattapan Line")
	require.False(t, ok)
	require.Equal(t, "Route(9)", Route(9).String())
}

func TestTrailingSamples(t *testing.T) {
	w := TrailingWindow{Route: Bus, PastDay: 0.8, Past7: 0.7, Past30: 0.6}
	samples := w.Samples()
	require.Len(t, samples, 3)
	require.Equal(t, PastWeek, samples[1].Window)
	require.Equal(t, 0.7, samples[1].Value)
	require.Equal(t, "past_30", samples[2].Window.String())
}
