package render

import (
	"context"
	"fmt"
	"time"
	"transitperf/internal/components/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	report_static_render = "static.render"
)

// Static fetches pages over plain HTTP without executing scripts. It serves
// server rendered mirrors of the dashboard and local fixtures.
type Static struct {
	http *resty.Client
	tel  telemetry.API
}

func NewStatic(timeout time.Duration, tel telemetry.API) Static {
	tel = telemetry.NewScopedAPI("static", tel)

	client := resty.New()
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	telemetry.InstrumentResty(client, tel)

	return Static{http: client, tel: tel}
}

func (s Static) Render(ctx context.Context, url string) (Page, error) {
	ctx, span := tracer.Start(ctx, "Static.Render")
	defer span.End()
	span.SetAttributes(attribute.String("url", url))

	res, err := s.http.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return Page{}, &RenderError{URL: url, Err: err}
	}
	if res.IsError() {
		err := fmt.Errorf("unexpected status %s", res.Status())
		span.SetStatus(codes.Error, err.Error())
		s.tel.ReportBroken(report_static_render, err, url)
		return Page{}, &RenderError{URL: url, Err: err}
	}

	return NewPage(url, res.String())
}
