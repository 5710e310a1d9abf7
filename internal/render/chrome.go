package render

import (
	"context"
	"fmt"
	"time"
	"transitperf/internal/components/telemetry"

	"github.com/chromedp/chromedp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	report_chrome_render = "chrome.render"
)

type ChromeOptions struct {
	// SettleDelay is always waited after navigation (and after ReadySelector
	// is ready, if set) so that late client side bindings can fill in.
	SettleDelay time.Duration
	// ReadySelector, if set, is waited on before the settle delay. A selector
	// list is ready as soon as any of its selectors matches.
	ReadySelector string
	// ReadyTimeout bounds the wait on ReadySelector.
	ReadyTimeout time.Duration
	Headless     bool
	// ExecPath overrides the chrome binary lookup.
	ExecPath  string
	UserAgent string
}

// Chrome renders pages with a headless chrome driven over the devtools
// protocol. Every call starts and closes its own browser.
type Chrome struct {
	opts ChromeOptions
	tel  telemetry.API
}

func NewChrome(opts ChromeOptions, tel telemetry.API) Chrome {
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 30 * time.Second
	}
	return Chrome{
		opts: opts,
		tel:  telemetry.NewScopedAPI("chrome", tel),
	}
}

func (c Chrome) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", c.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if c.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.opts.ExecPath))
	}
	if c.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.opts.UserAgent))
	}
	return opts
}

func (c Chrome) Render(ctx context.Context, url string) (Page, error) {
	ctx, span := tracer.Start(ctx, "Chrome.Render")
	defer span.End()
	span.SetAttributes(attribute.String("url", url))

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, c.allocatorOptions()...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var html string
	tasks := chromedp.Tasks{
		chromedp.Navigate(url),
	}
	if c.opts.ReadySelector != "" {
		tasks = append(tasks, chromedp.ActionFunc(func(ctx context.Context) error {
			waitCtx, cancel := context.WithTimeout(ctx, c.opts.ReadyTimeout)
			defer cancel()
			err := chromedp.WaitReady(c.opts.ReadySelector, chromedp.ByQuery).Do(waitCtx)
			if err != nil {
				return fmt.Errorf("wait for %q: %w", c.opts.ReadySelector, err)
			}
			return nil
		}))
	}
	if c.opts.SettleDelay > 0 {
		tasks = append(tasks, chromedp.Sleep(c.opts.SettleDelay))
	}
	tasks = append(tasks, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	start := time.Now()
	err := chromedp.Run(browserCtx, tasks)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chromedp run failed")
		c.tel.ReportBroken(report_chrome_render, err, url)
		return Page{}, &RenderError{URL: url, Err: err}
	}
	c.tel.ReportDebug("rendered page", url, time.Since(start).String(), len(html))

	return NewPage(url, html)
}
