// Package postgres provides the PostgreSQL dialect of the SQL user store.
package postgres

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/nimburion/userdirectory/pkg/observability/logger"
	"github.com/nimburion/userdirectory/pkg/store/sqlstore"
)

// Dialect describes PostgreSQL for sqlstore.
var Dialect = sqlstore.Dialect{
	Name:            "postgres",
	DriverName:      "postgres",
	Placeholder:     func(n int) string { return fmt.Sprintf("$%d", n) },
	QuoteIdentifier: pq.QuoteIdentifier,
	CreateTable: func(table string) string {
		return "CREATE TABLE IF NOT EXISTS " + table + " (" +
			"id SERIAL PRIMARY KEY, " +
			"name TEXT NOT NULL, " +
			"age INTEGER NOT NULL CHECK (age >= 0))"
	},
	NormalizeDSN: normalizeDSN,
}

// New creates a disconnected PostgreSQL backend. The Connect descriptor is a
// lib/pq connection string, either a postgres:// URL or key=value pairs.
func New(cfg sqlstore.Config, log logger.Logger) *sqlstore.Backend {
	cfg.Dialect = Dialect
	return sqlstore.New(cfg, log)
}

// normalizeDSN validates URL descriptors early so that a malformed URL is
// reported as an invalid descriptor rather than a ping failure.
func normalizeDSN(dsn string) (string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		if _, err := pq.ParseURL(dsn); err != nil {
			return "", err
		}
	}
	return dsn, nil
}
