package render

import (
	"context"
	"errors"
	"fmt"
	"time"
	"transitperf/internal/components/assert"
	"transitperf/internal/components/telemetry"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

const (
	report_resilient_render = "resilient.render"
)

type RetryOptions struct {
	// Attempts is the total number of tries per page, 1 disables retrying.
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// AttemptTimeout bounds a single try, including the settle delay.
	AttemptTimeout time.Duration
	// BreakerFailures is the number of consecutive failed renders, across all
	// pages, after which further renders fail immediately for BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Resilient retries an inner renderer with exponential backoff behind a
// circuit breaker shared by every page of the run.
type Resilient struct {
	inner   Renderer
	opts    RetryOptions
	breaker *gobreaker.CircuitBreaker
	tel     telemetry.API
}

func NewResilient(inner Renderer, opts RetryOptions, tel telemetry.API) *Resilient {
	assert.NotNil(inner)
	assert.NotNil(tel)

	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 2 * time.Second
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = 30 * time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = time.Minute
	}

	tel = telemetry.NewScopedAPI("resilient", tel)
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "renderer",
		Timeout: opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			tel.ReportWarning("breaker", name, from.String(), to.String())
		},
	})

	return &Resilient{
		inner:   inner,
		opts:    opts,
		breaker: breaker,
		tel:     tel,
	}
}

func (r *Resilient) newBackOff(ctx context.Context) backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = r.opts.InitialInterval
	expo.MaxInterval = r.opts.MaxInterval
	expo.MaxElapsedTime = 0
	return backoff.WithContext(
		backoff.WithMaxRetries(expo, uint64(r.opts.Attempts-1)),
		ctx,
	)
}

func (r *Resilient) Render(ctx context.Context, url string) (Page, error) {
	var page Page
	var errs []error
	attempts := 0

	operation := func() error {
		attempts++

		attemptCtx := ctx
		if r.opts.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, r.opts.AttemptTimeout)
			defer cancel()
		}

		out, err := r.breaker.Execute(func() (any, error) {
			return r.inner.Render(attemptCtx, url)
		})
		if err != nil {
			errs = append(errs, err)
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			r.tel.ReportWarning(report_resilient_render, fmt.Errorf("attempt %d: %w", attempts, err), url)
			return err
		}
		page = out.(Page)
		return nil
	}

	err := backoff.Retry(operation, r.newBackOff(ctx))
	if err != nil {
		if len(errs) == 0 {
			errs = append(errs, err)
		}
		r.tel.ReportBroken(report_resilient_render, err, url, attempts)
		return Page{}, &RenderError{URL: url, Attempts: attempts, Err: errors.Join(errs...)}
	}
	return page, nil
}
