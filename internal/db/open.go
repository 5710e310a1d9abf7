package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverLibsql   = "libsql"
)

func wrapOpen(err error) error {
	return fmt.Errorf("open db: %w", err)
}

// Open connects to one of the supported drivers. For sqlite the dsn is a
// file path (or :memory:).
func Open(driver, dsn string) (*sqlx.DB, error) {
	if dsn == "" {
		return nil, wrapOpen(fmt.Errorf("no dsn given for driver %q", driver))
	}

	switch driver {
	case DriverPostgres, DriverLibsql:
		db, err := sqlx.Open(driver, dsn)
		if err != nil {
			return nil, wrapOpen(err)
		}
		return db, nil
	case DriverSQLite:
		return openSQLite(dsn)
	default:
		return nil, wrapOpen(fmt.Errorf("unsupported driver %q", driver))
	}
}

func openSQLite(path string) (*sqlx.DB, error) {
	memory := strings.Contains(path, ":memory:")
	if !memory {
		err := os.MkdirAll(filepath.Dir(path), 0777)
		if err != nil {
			return nil, wrapOpen(err)
		}
	}

	db, err := sqlx.Open(DriverSQLite, path)
	if err != nil {
		return nil, wrapOpen(err)
	}

	// see this stackoverflow post for information on why the following
	// lines exist: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	// it also keeps an in-memory database alive on a single connection.
	db.SetMaxOpenConns(1)
	if !memory {
		_, err = db.Exec("PRAGMA journal_mode=WAL")
		if err != nil {
			db.Close()
			return nil, wrapOpen(err)
		}
	}
	return db, nil
}

// PostgresDSN builds a key/value connection string for lib/pq.
func PostgresDSN(host string, port int, dbname, user, password, sslmode string) string {
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		quoteDSN(host), port, quoteDSN(dbname), quoteDSN(user), quoteDSN(password), sslmode,
	)
}

// quoteDSN escapes a libpq key/value so that spaces and quotes in passwords
// survive.
func quoteDSN(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, `'`, `\'`)
	return "'" + value + "'"
}
