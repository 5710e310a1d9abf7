package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"transitperf/internal/components/assert"
	"transitperf/internal/components/telemetry"
	"transitperf/internal/db"
	"transitperf/internal/performance"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("store")

const (
	report_push          = "push"
	report_pull          = "pull"
	report_replaced_rows = "replaced-rows"
)

// ErrPersistence marks a failed write, the batch it belonged to was rolled
// back.
var ErrPersistence = errors.New("persistence failure")

type PersistenceError struct {
	Table string
	Op    string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s (%s): %v", e.Table, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// Store keeps performance rows in a single table keyed by
// (metric_date, route).
type Store struct {
	qry    *db.Queries
	makeTx db.MakeTx
	tel    telemetry.API
}

func NewStore(database *sqlx.DB, table string, tel telemetry.API) (Store, error) {
	assert.NotNil(database)
	assert.NotNil(tel)
	err := db.ValidateTable(table)
	if err != nil {
		return Store{}, err
	}
	return Store{
		qry:    db.New(database, table),
		makeTx: db.NewMakeTx(database, table),
		tel:    telemetry.NewScopedAPI("store", tel),
	}, nil
}

func (s Store) wrap(op string, err error) error {
	return &PersistenceError{Table: s.qry.Table(), Op: op, Err: err}
}

func (s Store) EnsureSchema(ctx context.Context) error {
	err := s.qry.CreateTable(ctx)
	if err != nil {
		return s.wrap("create table", err)
	}
	return nil
}

// Push writes the rows of one run in a single transaction. Rows already
// stored for the same metric date are replaced so that a re-run does not
// duplicate them. Either every row is committed or none are.
func (s Store) Push(ctx context.Context, rows []performance.PerformanceRow) error {
	ctx, span := tracer.Start(ctx, "Push")
	defer span.End()
	span.SetAttributes(
		attribute.String("table", s.qry.Table()),
		attribute.Int("rows", len(rows)),
	)

	err := s.push(ctx, rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.tel.ReportBroken(report_push, err)
		return err
	}
	s.tel.ReportCount(report_push, int64(len(rows)))
	return nil
}

func (s Store) push(ctx context.Context, rows []performance.PerformanceRow) error {
	if len(rows) == 0 {
		return nil
	}

	metricDate := rows[0].MetricDate
	for _, r := range rows {
		if r.MetricDate != metricDate {
			return s.wrap("validate", fmt.Errorf(
				"batch mixes metric dates %s and %s", metricDate, r.MetricDate,
			))
		}
		err := r.Validate()
		if err != nil {
			return s.wrap("validate", err)
		}
	}

	txqry, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		return s.wrap("begin", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		err := discard()
		if err != nil {
			s.tel.ReportWarning(report_push, fmt.Errorf("rollback: %w", err))
		}
	}()

	replaced, err := txqry.DeleteRowsByMetricDate(ctx, metricDate)
	if err != nil {
		return s.wrap("delete", err)
	}
	if replaced > 0 {
		s.tel.ReportWarning(report_replaced_rows, metricDate.String(), replaced)
	}

	for _, r := range rows {
		err := txqry.InsertRow(ctx, db.InsertRowParams{
			MetricDate:  r.MetricDate,
			Route:       r.RouteLabel,
			Target:      r.Target,
			PastDay:     r.PastDay,
			Past7:       r.Past7,
			Past30:      r.Past30,
			DateUpdated: r.DateUpdated,
		})
		if err != nil {
			return s.wrap("insert", fmt.Errorf("%s: %w", r.RouteLabel, err))
		}
	}

	err = commit()
	if err != nil {
		return s.wrap("commit", err)
	}
	committed = true
	return nil
}

// Pull returns the stored rows whose metric date lies in [from, to], ordered
// by metric date then canonical route order. Rows whose route is not
// canonical are skipped.
func (s Store) Pull(ctx context.Context, from, to performance.Date) ([]performance.PerformanceRow, error) {
	ctx, span := tracer.Start(ctx, "Pull")
	defer span.End()

	stored, err := s.qry.ListRowsBetween(ctx, from, to)
	if err != nil {
		err = s.wrap("select", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.tel.ReportBroken(report_pull, err)
		return nil, err
	}

	out := make([]performance.PerformanceRow, 0, len(stored))
	for _, r := range stored {
		route, ok := performance.RouteFromLabel(r.Route)
		if !ok {
			s.tel.ReportWarning(report_pull, "skipping non-canonical route", r.Route, r.MetricDate.String())
			continue
		}
		out = append(out, performance.PerformanceRow{
			DateUpdated: r.DateUpdated,
			MetricDate:  r.MetricDate,
			Route:       route,
			RouteLabel:  r.Route,
			Target:      r.Target,
			PastDay:     r.PastDay,
			Past7:       r.Past7,
			Past30:      r.Past30,
		})
	}

	slices.SortStableFunc(out, func(a, b performance.PerformanceRow) int {
		if a.MetricDate != b.MetricDate {
			if a.MetricDate.Before(b.MetricDate) {
				return -1
			}
			return 1
		}
		return int(a.Route) - int(b.Route)
	})
	span.SetAttributes(attribute.Int("rows", len(out)))
	return out, nil
}
