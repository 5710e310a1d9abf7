package db

import (
	"context"
	"testing"
	"time"
	"transitperf/internal/performance"

	"github.com/stretchr/testify/require"
)

func TestValidateTable(t *testing.T) {
	for _, name := range []string{"mbta_performance", "_t", "Perf2019"} {
		require.NoError(t, ValidateTable(name), name)
	}
	for _, name := range []string{"", "2019perf", "perf; DROP TABLE x", "public.perf", "perf-data"} {
		require.Error(t, ValidateTable(name), name)
	}

	_, err := Schema("bad name")
	require.Error(t, err)

	schema, err := Schema("daily_perf")
	require.NoError(t, err)
	require.Contains(t, schema, "CREATE TABLE IF NOT EXISTS daily_perf (")
}

func TestPostgresDSN(t *testing.T) {
	require.Equal(t,
		`host='10.0.0.4' port=5432 dbname='prod' user='etl' password='it\'s a secret' sslmode=disable`,
		PostgresDSN("10.0.0.4", 5432, "prod", "etl", "it's a secret", ""),
	)
}

func TestOpenUnsupported(t *testing.T) {
	_, err := Open("mysql", "root@/perf")
	require.ErrorContains(t, err, "unsupported driver")

	_, err = Open(DriverSQLite, "")
	require.ErrorContains(t, err, "no dsn")
}

func TestQueries(t *testing.T) {
	database, err := Open(DriverSQLite, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	qry := New(database, DefaultTable)
	require.NoError(t, qry.CreateTable(ctx))
	// idempotent
	require.NoError(t, qry.CreateTable(ctx))

	day := func(d int) performance.Date {
		return performance.Date{Year: 2019, Month: time.March, Day: d}
	}

	makeTx := NewMakeTx(database, DefaultTable)
	tx, discard, commit, err := makeTx(ctx)
	require.NoError(t, err)
	for _, d := range []int{3, 4, 5} {
		err := tx.InsertRow(ctx, InsertRowParams{
			MetricDate:  day(d),
			Route:       "Red Line",
			Target:      0.95,
			PastDay:     0.92,
			Past7:       0.89,
			Past30:      0.85,
			DateUpdated: day(d + 1),
		})
		require.NoError(t, err)
	}
	require.NoError(t, commit())
	// rolling back a committed transaction is a no-op error
	require.Error(t, discard())

	rows, err := qry.ListRowsBetween(ctx, day(4), day(5))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, Row{
		MetricDate:  day(4),
		Route:       "Red Line",
		Target:      0.95,
		PastDay:     0.92,
		Past7:       0.89,
		Past30:      0.85,
		DateUpdated: day(5),
	}, rows[0])

	deleted, err := qry.DeleteRowsByMetricDate(ctx, day(4))
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	rows, err = qry.ListRowsBetween(ctx, day(1), day(31))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, day(3), rows[0].MetricDate)
	require.Equal(t, day(5), rows[1].MetricDate)
}
