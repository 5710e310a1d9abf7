package dashboard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"
	"transitperf/internal/components/telemetry"
	"transitperf/internal/performance"
	"transitperf/internal/render"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// fixtureRenderer serves pages from memory, keyed by url.
type fixtureRenderer map[string]string

func (f fixtureRenderer) Render(ctx context.Context, url string) (render.Page, error) {
	html, ok := f[url]
	if !ok {
		return render.Page{}, &render.RenderError{
			URL:      url,
			Attempts: 1,
			Err:      errors.New("404 Not Found"),
		}
	}
	return render.NewPage(url, html)
}

func readFixture(t *testing.T, name string) string {
	t.Helper()
	content, err := os.ReadFile("testdata/" + name)
	if err != nil {
		t.Fatal(err)
	}
	return string(content)
}

func detailPage(cells ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, c := range cells {
		fmt.Fprintf(&b, `<span class="ng-binding ng-scope">%s</span>`, c)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func newTestScraper(pages fixtureRenderer, rec *telemetry.Recorder) Scraper {
	return NewScraper(pages, DefaultLayout(), time.UTC, rec)
}

func TestScrapeTrailing(t *testing.T) {
	rec := telemetry.NewRecorder()
	scraper := newTestScraper(fixtureRenderer{
		"/red": readFixture(t, "red_line.html"),
	}, rec)

	window, err := scraper.ScrapeTrailing(context.Background(), performance.RedLine, "/red")
	require.NoError(t, err)

	expected := performance.TrailingWindow{
		Route:      performance.RedLine,
		ReportDate: performance.Date{Year: 2019, Month: time.March, Day: 14},
		PastDay:    0.92,
		Past7:      0.90,
		Past30:     0.88,
	}
	if diff := cmp.Diff(expected, window); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	require.False(t, rec.Has("broken", report_scrape_trailing))

	var samples []telemetry.Report
	for _, report := range rec.Reports("debug") {
		if report.ID == "dashboard: trailing sample" {
			samples = append(samples, report)
		}
	}
	require.Len(t, samples, 3)
	require.Equal(t, []any{"Red Line", "past_7", 0.90}, samples[1].Params)
}

func TestScrapeTrailingFailures(t *testing.T) {
	rec := telemetry.NewRecorder()
	scraper := newTestScraper(fixtureRenderer{
		"/short":   detailPage("Red Line", "As of March 4, 2019", "92%"),
		"/bad-pct": detailPage("Red Line", "As of March 4, 2019", "N/A", "89%", "85%"),
		"/no-date": detailPage("Red Line", "", "92%", "89%", "85%"),
	}, rec)
	ctx := context.Background()

	_, err := scraper.ScrapeTrailing(ctx, performance.RedLine, "/short")
	require.True(t, errors.Is(err, ErrExtraction))
	var extractErr *ExtractionError
	require.True(t, errors.As(err, &extractErr))
	require.Equal(t, "/short", extractErr.URL)
	require.Equal(t, "2019-03", extractErr.LayoutVersion)

	_, err = scraper.ScrapeTrailing(ctx, performance.RedLine, "/bad-pct")
	require.True(t, errors.Is(err, performance.ErrParse))
	require.ErrorContains(t, err, "past_day")

	_, err = scraper.ScrapeTrailing(ctx, performance.RedLine, "/no-date")
	require.True(t, errors.Is(err, performance.ErrParse))

	_, err = scraper.ScrapeTrailing(ctx, performance.RedLine, "/missing")
	require.True(t, errors.Is(err, render.ErrRender))

	require.Len(t, rec.Reports("broken"), 4)
	require.True(t, rec.Has("broken", "dashboard: "+report_scrape_trailing))
}

func TestScrapeTargets(t *testing.T) {
	scraper := newTestScraper(fixtureRenderer{
		"/targets": readFixture(t, "targets.html"),
	}, telemetry.NewRecorder())

	records, err := scraper.ScrapeTargets(context.Background(), "/targets")
	require.NoError(t, err)

	expected := []performance.TargetRecord{
		{Route: "Red Line", Actual: 0.91, Target: 0.90},
		{Route: "Mattapan Line", Actual: 0.97, Target: 0.90},
		{Route: "Commuter Rail", Actual: 0.895, Target: 0.92},
	}
	if diff := cmp.Diff(expected, records); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestScrapeTargetsOddSeries(t *testing.T) {
	rec := telemetry.NewRecorder()
	html := `<table><tr>
		<td class="categoryTd ng-binding ng-scope">Red Line</td>
		<td ng-repeat="series in metric.series">91%</td>
		<td ng-repeat="series in metric.series">90%</td>
		<td ng-repeat="series in metric.series">89%</td>
	</tr></table>`
	scraper := newTestScraper(fixtureRenderer{"/targets": html}, rec)

	_, err := scraper.ScrapeTargets(context.Background(), "/targets")
	require.True(t, errors.Is(err, ErrExtraction))
	require.ErrorContains(t, err, "/targets")
	require.True(t, rec.Has("broken", report_scrape_targets))
}

func TestScrapeTargetsBadCell(t *testing.T) {
	html := `<table><tr>
		<td class="categoryTd ng-binding ng-scope">Blue Line</td>
		<td ng-repeat="series in metric.series">95%</td>
		<td ng-repeat="series in metric.series">--</td>
	</tr></table>`
	scraper := newTestScraper(fixtureRenderer{"/targets": html}, telemetry.NewRecorder())

	_, err := scraper.ScrapeTargets(context.Background(), "/targets")
	require.True(t, errors.Is(err, performance.ErrParse))
	require.ErrorContains(t, err, "Blue Line target")
}
