package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"
	"transitperf/internal/components/assert"
	"transitperf/internal/components/telemetry"
	"transitperf/internal/performance"
	"transitperf/internal/render"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/dashboard")

const (
	report_scrape_trailing = "scrape-trailing"
	report_scrape_targets  = "scrape-targets"
)

// Scraper reads route detail pages and the aggregate target page of the
// dashboard through a render.Renderer.
type Scraper struct {
	renderer render.Renderer
	layout   Layout
	loc      *time.Location
	tel      telemetry.API
}

func NewScraper(renderer render.Renderer, layout Layout, loc *time.Location, tel telemetry.API) Scraper {
	assert.NotNil(renderer)
	assert.NotNil(loc)
	assert.NotNil(tel)
	return Scraper{
		renderer: renderer,
		layout:   layout,
		loc:      loc,
		tel:      telemetry.NewScopedAPI("dashboard", tel),
	}
}

// withURL fills in the page url of an extraction error raised by Layout.
func withURL(err error, url string) error {
	var extractErr *ExtractionError
	if errors.As(err, &extractErr) && extractErr.URL == "" {
		copied := *extractErr
		copied.URL = url
		return &copied
	}
	return err
}

// ScrapeTrailing renders the detail page of route and returns its
// normalized trailing-window percentages and report date.
func (s Scraper) ScrapeTrailing(ctx context.Context, route performance.Route, url string) (performance.TrailingWindow, error) {
	ctx, span := tracer.Start(ctx, "ScrapeTrailing")
	defer span.End()
	span.SetAttributes(
		attribute.String("route", route.Slug()),
		attribute.String("url", url),
	)

	out, err := s.scrapeTrailing(ctx, route, url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.tel.ReportBroken(report_scrape_trailing, err, route.String(), url)
		return performance.TrailingWindow{}, err
	}
	return out, nil
}

func (s Scraper) scrapeTrailing(ctx context.Context, route performance.Route, url string) (performance.TrailingWindow, error) {
	page, err := s.renderer.Render(ctx, url)
	if err != nil {
		return performance.TrailingWindow{}, err
	}

	texts := page.Texts(s.layout.TrailingSelector)
	s.tel.ReportDebug("trailing nodes", route.String(), len(texts))

	raw, err := s.layout.ExtractTrailing(texts)
	if err != nil {
		return performance.TrailingWindow{}, withURL(err, url)
	}
	s.tel.ReportDebug("trailing heading", route.String(), raw.Heading)

	reportDate, err := ResolveDate(raw.ReportDate, s.loc)
	if err != nil {
		return performance.TrailingWindow{}, fmt.Errorf("%s: %w", url, err)
	}

	window := performance.TrailingWindow{
		Route:      route,
		ReportDate: reportDate,
	}
	fields := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"past_day", raw.PastDay, &window.PastDay},
		{"past_7", raw.Past7, &window.Past7},
		{"past_30", raw.Past30, &window.Past30},
	}
	for _, f := range fields {
		v, err := performance.ParsePercent(f.raw)
		if err != nil {
			return performance.TrailingWindow{}, fmt.Errorf("%s %s: %w", url, f.name, err)
		}
		*f.dst = v
	}
	for _, sample := range window.Samples() {
		s.tel.ReportDebug("trailing sample", route.String(), sample.Window.String(), sample.Value)
	}
	return window, nil
}

// ScrapeTargets renders the aggregate page and returns one record per
// route row it lists, canonical or not.
func (s Scraper) ScrapeTargets(ctx context.Context, url string) ([]performance.TargetRecord, error) {
	ctx, span := tracer.Start(ctx, "ScrapeTargets")
	defer span.End()
	span.SetAttributes(attribute.String("url", url))

	out, err := s.scrapeTargets(ctx, url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.tel.ReportBroken(report_scrape_targets, err, url)
		return nil, err
	}
	span.SetAttributes(attribute.Int("rows", len(out)))
	return out, nil
}

func (s Scraper) scrapeTargets(ctx context.Context, url string) ([]performance.TargetRecord, error) {
	page, err := s.renderer.Render(ctx, url)
	if err != nil {
		return nil, err
	}

	pairs, err := s.layout.ExtractTargets(page)
	if err != nil {
		return nil, withURL(err, url)
	}
	s.tel.ReportDebug("target rows", len(pairs))

	out := make([]performance.TargetRecord, 0, len(pairs))
	for _, pair := range pairs {
		actual, err := performance.ParsePercent(pair.Actual)
		if err != nil {
			return nil, fmt.Errorf("%s %s actual: %w", url, pair.Route, err)
		}
		target, err := performance.ParsePercent(pair.Target)
		if err != nil {
			return nil, fmt.Errorf("%s %s target: %w", url, pair.Route, err)
		}
		out = append(out, performance.TargetRecord{
			Route:  pair.Route,
			Actual: actual,
			Target: target,
		})
	}
	return out, nil
}
