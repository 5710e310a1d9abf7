package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"transitperf/internal/components/chrono"
	"transitperf/internal/components/telemetry"
	"transitperf/internal/db"
	"transitperf/internal/performance"
	"transitperf/internal/render"
	"transitperf/internal/scrapers/dashboard"
	"transitperf/internal/store"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var eastern = time.FixedZone("EST", -5*60*60)

type trailingFixture struct {
	asOf                   string
	pastDay, past7, past30 string
}

type targetFixture struct {
	route, actual, target string
}

// dashboardFixture serves a server rendered copy of the dashboard.
type dashboardFixture struct {
	lock     sync.Mutex
	trailing map[performance.Route]trailingFixture
	targets  []targetFixture
}

func newDashboardFixture() *dashboardFixture {
	f := &dashboardFixture{trailing: map[performance.Route]trailingFixture{}}
	for i, r := range performance.CanonicalRoutes() {
		f.trailing[r] = trailingFixture{
			asOf:    "Monday, March 4, 2019",
			pastDay: fmt.Sprintf("%d%%", 90+i),
			past7:   "89%",
			past30:  "85%",
		}
		f.targets = append(f.targets, targetFixture{route: r.String(), actual: "91%", target: "90%"})
	}
	f.trailing[performance.RedLine] = trailingFixture{
		asOf:    "Monday, March 4, 2019",
		pastDay: "92%",
		past7:   "89%",
		past30:  "85%",
	}
	f.targets[0].target = "95%"
	f.targets = append(f.targets, targetFixture{route: "Mattapan Line", actual: "97%", target: "90%"})
	return f
}

func (f *dashboardFixture) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	f.lock.Lock()
	defer f.lock.Unlock()

	var b strings.Builder
	b.WriteString("<html><body>")
	defer func() {
		b.WriteString("</body></html>")
		w.Write([]byte(b.String()))
	}()

	if req.URL.Path == "/targets" {
		b.WriteString("<table>")
		for _, t := range f.targets {
			fmt.Fprintf(&b,
				`<tr><td class="categoryTd ng-binding ng-scope">%s</td>`+
					`<td ng-repeat="series in metric.series">%s</td>`+
					`<td ng-repeat="series in metric.series">%s</td></tr>`,
				t.route, t.actual, t.target,
			)
		}
		b.WriteString("</table>")
		return
	}

	slug := strings.TrimPrefix(req.URL.Path, "/detail/")
	route, ok := performance.RouteFromSlug(slug)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	t := f.trailing[route]
	for _, text := range []string{route.String(), t.asOf, t.pastDay, t.past7, t.past30} {
		fmt.Fprintf(&b, `<span class="ng-binding ng-scope">%s</span>`, text)
	}
}

type recordingSink struct {
	pushes [][]performance.PerformanceRow
}

func (s *recordingSink) Push(ctx context.Context, rows []performance.PerformanceRow) error {
	s.pushes = append(s.pushes, rows)
	return nil
}

type testEnv struct {
	fixture *dashboardFixture
	server  *httptest.Server
	rec     *telemetry.Recorder
	scraper dashboard.Scraper
}

func newTestEnv(t *testing.T) *testEnv {
	fixture := newDashboardFixture()
	server := httptest.NewServer(fixture)
	t.Cleanup(server.Close)

	rec := telemetry.NewRecorder()
	renderer := render.NewStatic(5*time.Second, rec)
	return &testEnv{
		fixture: fixture,
		server:  server,
		rec:     rec,
		scraper: dashboard.NewScraper(renderer, dashboard.DefaultLayout(), eastern, rec),
	}
}

func (e *testEnv) options() Options {
	urls := map[performance.Route]string{}
	for _, r := range performance.CanonicalRoutes() {
		urls[r] = e.server.URL + "/detail/" + r.Slug()
	}
	return Options{
		RouteURLs:   urls,
		TargetsURL:  e.server.URL + "/targets",
		Concurrency: 1,
	}
}

func clockAt(year int, month time.Month, day int) chrono.API {
	return chrono.NewFixedImpl(time.Date(year, month, day, 7, 0, 0, 0, eastern))
}

func TestRunEndToEnd(t *testing.T) {
	env := newTestEnv(t)

	database, err := db.Open(db.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()
	sink, err := store.NewStore(database, db.DefaultTable, env.rec)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	require.NoError(t, sink.EnsureSchema(ctx))

	runner := NewRunner(env.scraper, sink, clockAt(2019, time.March, 4), env.options(), env.rec)
	result, err := runner.Run(ctx)
	require.NoError(t, err)

	metricDate := performance.Date{Year: 2019, Month: time.March, Day: 3}
	runDate := performance.Date{Year: 2019, Month: time.March, Day: 4}
	require.NotEmpty(t, result.RunID)
	require.Equal(t, runDate, result.ReportDate)
	require.Equal(t, metricDate, result.MetricDate)
	require.Equal(t, runDate, result.RunDate)
	require.True(t, result.Written)
	require.False(t, result.Stale)
	require.Equal(t, []string{"Mattapan Line"}, result.Dropped)
	require.Len(t, result.Rows, 6)

	expected := performance.PerformanceRow{
		DateUpdated: runDate,
		MetricDate:  metricDate,
		Route:       performance.RedLine,
		RouteLabel:  "Red Line",
		Target:      0.95,
		PastDay:     0.92,
		Past7:       0.89,
		Past30:      0.85,
	}
	if diff := cmp.Diff(expected, result.Rows[0]); diff != "" {
		t.Fatalf("unexpected red line row (-want +got):\n%s", diff)
	}
	for i, row := range result.Rows {
		require.Equal(t, performance.CanonicalRoutes()[i], row.Route)
		require.Equal(t, row.DateUpdated.AddDays(-1), row.MetricDate)
	}

	stored, err := sink.Pull(ctx, metricDate, metricDate)
	require.NoError(t, err)
	if diff := cmp.Diff(result.Rows, stored); diff != "" {
		t.Fatalf("stored rows differ (-want +got):\n%s", diff)
	}
	require.True(t, env.rec.Has("debug", "dropped-route"))
}

func TestRunConcurrentKeepsCanonicalOrder(t *testing.T) {
	env := newTestEnv(t)
	sequential := NewRunner(env.scraper, nil, clockAt(2019, time.March, 4), Options{
		RouteURLs:  env.options().RouteURLs,
		TargetsURL: env.options().TargetsURL,
		DryRun:     true,
	}, env.rec)
	opts := env.options()
	opts.Concurrency = 4
	opts.DryRun = true
	concurrent := NewRunner(env.scraper, nil, clockAt(2019, time.March, 4), opts, env.rec)

	a, err := sequential.Run(context.Background())
	require.NoError(t, err)
	b, err := concurrent.Run(context.Background())
	require.NoError(t, err)

	require.False(t, a.Written)
	require.NotEqual(t, a.RunID, b.RunID)
	if diff := cmp.Diff(a.Rows, b.Rows); diff != "" {
		t.Fatalf("(-sequential +concurrent):\n%s", diff)
	}
}

func TestRunStaleReport(t *testing.T) {
	env := newTestEnv(t)
	sink := &recordingSink{}

	// the dashboard still shows March 4 on March 6
	runner := NewRunner(env.scraper, sink, clockAt(2019, time.March, 6), env.options(), env.rec)
	_, err := runner.Run(context.Background())
	require.True(t, errors.Is(err, ErrStaleReport))
	require.Equal(t, "stale", FailureKind(err))
	require.Empty(t, sink.pushes)

	opts := env.options()
	opts.AllowStaleReport = true
	runner = NewRunner(env.scraper, sink, clockAt(2019, time.March, 6), opts, env.rec)
	result, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.Stale)
	require.Equal(t, performance.Date{Year: 2019, Month: time.March, Day: 3}, result.MetricDate)
	require.Len(t, sink.pushes, 1)
	require.True(t, env.rec.Has("warning", report_stale_report))

	for _, row := range sink.pushes[0] {
		require.Equal(t, performance.Date{Year: 2019, Month: time.March, Day: 3}, row.MetricDate)
		require.Equal(t, performance.Date{Year: 2019, Month: time.March, Day: 6}, row.DateUpdated)
	}
}

func TestRunDateDisagreement(t *testing.T) {
	env := newTestEnv(t)
	env.fixture.trailing[performance.Bus] = trailingFixture{
		asOf:    "Sunday, March 3, 2019",
		pastDay: "80%",
		past7:   "81%",
		past30:  "82%",
	}
	sink := &recordingSink{}

	runner := NewRunner(env.scraper, sink, clockAt(2019, time.March, 4), env.options(), env.rec)
	_, err := runner.Run(context.Background())
	require.True(t, errors.Is(err, dashboard.ErrExtraction))
	require.ErrorContains(t, err, "Bus reports as-of date 2019-03-03")
	require.Empty(t, sink.pushes)
}

func TestRunMissingTargetRoute(t *testing.T) {
	env := newTestEnv(t)
	// the vendor renames a route in the target table
	env.fixture.targets[4].route = "Buses"
	sink := &recordingSink{}

	runner := NewRunner(env.scraper, sink, clockAt(2019, time.March, 4), env.options(), env.rec)
	_, err := runner.Run(context.Background())
	require.True(t, errors.Is(err, performance.ErrJoin))
	require.Equal(t, "join", FailureKind(err))

	var joinErr *performance.JoinError
	require.True(t, errors.As(err, &joinErr))
	require.Equal(t, []performance.Route{performance.Bus}, joinErr.MissingTarget)
	require.Empty(t, sink.pushes)
	require.True(t, env.rec.Has("broken", "pipeline: run"))
}

func TestRunRenderFailure(t *testing.T) {
	env := newTestEnv(t)
	opts := env.options()
	opts.RouteURLs[performance.GreenLine] = env.server.URL + "/detail/mattapan"
	sink := &recordingSink{}

	runner := NewRunner(env.scraper, sink, clockAt(2019, time.March, 4), opts, env.rec)
	_, err := runner.Run(context.Background())
	require.True(t, errors.Is(err, render.ErrRender))
	require.ErrorContains(t, err, "Green Line")
	require.Equal(t, "render", FailureKind(err))
	require.Empty(t, sink.pushes)
}

func TestRunMissingURL(t *testing.T) {
	env := newTestEnv(t)
	opts := env.options()
	delete(opts.RouteURLs, performance.CommuterRail)

	runner := NewRunner(env.scraper, &recordingSink{}, clockAt(2019, time.March, 4), opts, env.rec)
	_, err := runner.Run(context.Background())
	require.ErrorContains(t, err, "no url configured for Commuter Rail")
}

func TestFailureKind(t *testing.T) {
	require.Equal(t, "ok", FailureKind(nil))
	require.Equal(t, "persistence", FailureKind(&store.PersistenceError{Op: "commit", Err: errors.New("x")}))
	require.Equal(t, "canceled", FailureKind(fmt.Errorf("run: %w", context.Canceled)))
	require.Equal(t, "other", FailureKind(errors.New("x")))
}
