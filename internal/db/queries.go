package db

import (
	"context"
	"fmt"
	"transitperf/internal/components/assert"
	"transitperf/internal/performance"

	"github.com/jmoiron/sqlx"
)

type DBTX interface {
	sqlx.ExtContext
}

// Queries is the query layer over one performance table. Statements are
// written with ? placeholders and rebound for the driver in use.
type Queries struct {
	db    DBTX
	table string
}

// New expects a table name that has passed ValidateTable.
func New(db DBTX, table string) *Queries {
	assert.NotEmptyStr(table)
	return &Queries{db: db, table: table}
}

func (q *Queries) WithTx(tx *sqlx.Tx) *Queries {
	return &Queries{db: tx, table: q.table}
}

func (q *Queries) Table() string {
	return q.table
}

func (q *Queries) query(format string) string {
	return q.db.Rebind(fmt.Sprintf(format, q.table))
}

func (q *Queries) CreateTable(ctx context.Context) error {
	schema, err := Schema(q.table)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, schema)
	return err
}

const deleteRowsByMetricDate = `DELETE FROM %s WHERE metric_date = ?`

func (q *Queries) DeleteRowsByMetricDate(ctx context.Context, metricDate performance.Date) (int64, error) {
	res, err := q.db.ExecContext(ctx, q.query(deleteRowsByMetricDate), metricDate)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const insertRow = `INSERT INTO %s (metric_date, route, target, past_day, past_7, past_30, date_updated)
VALUES (?, ?, ?, ?, ?, ?, ?)`

type InsertRowParams struct {
	MetricDate  performance.Date
	Route       string
	Target      float64
	PastDay     float64
	Past7       float64
	Past30      float64
	DateUpdated performance.Date
}

func (q *Queries) InsertRow(ctx context.Context, arg InsertRowParams) error {
	_, err := q.db.ExecContext(
		ctx,
		q.query(insertRow),
		arg.MetricDate,
		arg.Route,
		arg.Target,
		arg.PastDay,
		arg.Past7,
		arg.Past30,
		arg.DateUpdated,
	)
	return err
}

const listRowsBetween = `SELECT metric_date, route, target, past_day, past_7, past_30, date_updated
FROM %s
WHERE metric_date >= ? AND metric_date <= ?
ORDER BY metric_date, route`

type Row struct {
	MetricDate  performance.Date `db:"metric_date"`
	Route       string           `db:"route"`
	Target      float64          `db:"target"`
	PastDay     float64          `db:"past_day"`
	Past7       float64          `db:"past_7"`
	Past30      float64          `db:"past_30"`
	DateUpdated performance.Date `db:"date_updated"`
}

func (q *Queries) ListRowsBetween(ctx context.Context, from, to performance.Date) ([]Row, error) {
	var rows []Row
	err := sqlx.SelectContext(ctx, q.db, &rows, q.query(listRowsBetween), from, to)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
