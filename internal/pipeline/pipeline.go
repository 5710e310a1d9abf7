package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"transitperf/internal/components/assert"
	"transitperf/internal/components/chrono"
	"transitperf/internal/components/telemetry"
	"transitperf/internal/performance"
	"transitperf/internal/render"
	"transitperf/internal/scrapers/dashboard"
	"transitperf/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var (
	tracer = otel.Tracer("pipeline")
	meter  = otel.Meter("pipeline")
)

const (
	report_run          = "run"
	report_stale_report = "stale-report"
	report_dropped      = "dropped-route"
)

// ErrStaleReport means the dashboard has not yet published the previous
// day's numbers, its as-of date is not the run date.
var ErrStaleReport = errors.New("stale report")

// Scraper reads one page of the dashboard per call.
type Scraper interface {
	ScrapeTrailing(ctx context.Context, route performance.Route, url string) (performance.TrailingWindow, error)
	ScrapeTargets(ctx context.Context, url string) ([]performance.TargetRecord, error)
}

// Sink receives the rows of a successful run.
type Sink interface {
	Push(ctx context.Context, rows []performance.PerformanceRow) error
}

type Options struct {
	RouteURLs  map[performance.Route]string
	TargetsURL string
	// Concurrency is the number of pages scraped at once, 1 scrapes them one
	// after the other.
	Concurrency int
	// AllowStaleReport writes rows whose metric date is not the day before
	// the run date. The rows keep the dashboard's metric date and the run
	// date as date_updated, so metric_date == date_updated - 1 no longer
	// holds for them.
	AllowStaleReport bool
	// DryRun skips the sink.
	DryRun bool
}

type Result struct {
	RunID      string
	Rows       []performance.PerformanceRow
	ReportDate performance.Date
	MetricDate performance.Date
	RunDate    performance.Date
	// Stale is set when an allowed stale report was written anyway.
	Stale bool
	// Dropped lists the target table routes that are not canonical.
	Dropped  []string
	Written  bool
	Duration time.Duration
}

type instruments struct {
	runs        metric.Int64Counter
	rowsWritten metric.Int64Counter
	duration    metric.Float64Histogram
}

func newInstruments() instruments {
	runs, _ := meter.Int64Counter(
		"transitperf.runs",
		metric.WithDescription("Scrape runs by outcome."),
	)
	rowsWritten, _ := meter.Int64Counter(
		"transitperf.rows_written",
		metric.WithDescription("Performance rows handed to the sink."),
	)
	duration, _ := meter.Float64Histogram(
		"transitperf.run_duration",
		metric.WithUnit("s"),
	)
	return instruments{runs: runs, rowsWritten: rowsWritten, duration: duration}
}

// Runner executes one scrape of the dashboard: every route detail page plus
// the target page, merged into one row per canonical route.
type Runner struct {
	scraper Scraper
	sink    Sink
	clock   chrono.API
	opts    Options
	tel     telemetry.API
	metrics instruments
}

// NewRunner expects a non-nil sink unless opts.DryRun is set.
func NewRunner(scraper Scraper, sink Sink, clock chrono.API, opts Options, tel telemetry.API) Runner {
	assert.NotNil(scraper)
	assert.NotNil(clock)
	assert.NotNil(tel)
	if !opts.DryRun {
		assert.NotNil(sink)
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return Runner{
		scraper: scraper,
		sink:    sink,
		clock:   clock,
		opts:    opts,
		tel:     telemetry.NewScopedAPI("pipeline", tel),
		metrics: newInstruments(),
	}
}

// Run either returns exactly one row per canonical route or fails as a
// whole, nothing is written on failure.
func (r Runner) Run(ctx context.Context) (Result, error) {
	result := Result{
		RunID:   uuid.NewString(),
		RunDate: performance.DateOf(r.clock.Now()),
	}

	ctx, span := tracer.Start(ctx, "Run", trace.WithAttributes(
		attribute.String("run_id", result.RunID),
		attribute.String("run_date", result.RunDate.String()),
		attribute.Int("concurrency", r.opts.Concurrency),
		attribute.Bool("dry_run", r.opts.DryRun),
	))
	defer span.End()

	start := time.Now()
	err := r.run(ctx, &result)
	result.Duration = time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = FailureKind(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.tel.ReportBroken(report_run, err, result.RunID)
	}
	r.metrics.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	r.metrics.duration.Record(ctx, result.Duration.Seconds())
	if err != nil {
		return result, err
	}

	r.tel.ReportCount("rows", int64(len(result.Rows)))
	return result, nil
}

func (r Runner) run(ctx context.Context, result *Result) error {
	canonical := performance.CanonicalRoutes()
	for _, route := range canonical {
		if r.opts.RouteURLs[route] == "" {
			return fmt.Errorf("no url configured for %s", route)
		}
	}

	trailing, targets, err := r.scrape(ctx, canonical)
	if err != nil {
		return err
	}

	reportDate, err := agreeOnDate(canonical, trailing, r.opts.RouteURLs)
	if err != nil {
		return err
	}
	result.ReportDate = reportDate
	// the dashboard shows the previous day's performance under today's date
	result.MetricDate = reportDate.AddDays(-1)

	expected := result.RunDate.AddDays(-1)
	if result.MetricDate != expected {
		staleErr := fmt.Errorf(
			"%w: dashboard reports %s, expected metrics for %s",
			ErrStaleReport, result.MetricDate, expected,
		)
		if !r.opts.AllowStaleReport {
			return staleErr
		}
		r.tel.ReportWarning(report_stale_report, staleErr)
		result.Stale = true
	}

	_, result.Dropped = performance.FilterCanonical(targets, canonical)
	for _, label := range result.Dropped {
		r.tel.ReportDebug(report_dropped, label)
	}

	rows, err := performance.Merge(trailing, targets, canonical, result.MetricDate, result.RunDate)
	if err != nil {
		return err
	}
	result.Rows = rows

	if r.opts.DryRun {
		return nil
	}
	err = r.sink.Push(ctx, rows)
	if err != nil {
		return err
	}
	result.Written = true
	r.metrics.rowsWritten.Add(ctx, int64(len(rows)))
	return nil
}

func (r Runner) scrape(ctx context.Context, canonical []performance.Route) (map[performance.Route]performance.TrailingWindow, []performance.TargetRecord, error) {
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(r.opts.Concurrency)

	var lock sync.Mutex
	trailing := make(map[performance.Route]performance.TrailingWindow, len(canonical))
	for _, route := range canonical {
		url := r.opts.RouteURLs[route]
		group.Go(func() error {
			window, err := r.scraper.ScrapeTrailing(gctx, route, url)
			if err != nil {
				return fmt.Errorf("%s: %w", route, err)
			}
			lock.Lock()
			defer lock.Unlock()
			trailing[route] = window
			return nil
		})
	}

	var targets []performance.TargetRecord
	group.Go(func() error {
		out, err := r.scraper.ScrapeTargets(gctx, r.opts.TargetsURL)
		if err != nil {
			return fmt.Errorf("targets: %w", err)
		}
		targets = out
		return nil
	})

	err := group.Wait()
	if err != nil {
		return nil, nil, err
	}
	return trailing, targets, nil
}

// agreeOnDate checks that every route page carries the same as-of date.
func agreeOnDate(
	canonical []performance.Route,
	trailing map[performance.Route]performance.TrailingWindow,
	urls map[performance.Route]string,
) (performance.Date, error) {
	first := canonical[0]
	date := trailing[first].ReportDate
	for _, route := range canonical[1:] {
		other := trailing[route].ReportDate
		if other != date {
			return performance.Date{}, &dashboard.ExtractionError{
				URL: urls[route],
				Reason: fmt.Sprintf(
					"%s reports as-of date %s but %s reports %s",
					route, other, first, date,
				),
			}
		}
	}
	return date, nil
}

// FailureKind names the error kind of a failed run, for metrics and logs.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, render.ErrRender):
		return "render"
	case errors.Is(err, dashboard.ErrExtraction):
		return "extraction"
	case errors.Is(err, performance.ErrParse):
		return "parse"
	case errors.Is(err, performance.ErrJoin):
		return "join"
	case errors.Is(err, ErrStaleReport):
		return "stale"
	case errors.Is(err, store.ErrPersistence):
		return "persistence"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "other"
}
