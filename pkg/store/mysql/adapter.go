// Package mysql provides the MySQL dialect of the SQL user store.
package mysql

import (
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/nimburion/userdirectory/pkg/observability/logger"
	"github.com/nimburion/userdirectory/pkg/store/sqlstore"
)

// Dialect describes MySQL for sqlstore.
var Dialect = sqlstore.Dialect{
	Name:            "mysql",
	DriverName:      "mysql",
	Placeholder:     func(int) string { return "?" },
	QuoteIdentifier: func(name string) string { return "`" + strings.ReplaceAll(name, "`", "``") + "`" },
	CreateTable: func(table string) string {
		return "CREATE TABLE IF NOT EXISTS " + table + " (" +
			"id INT AUTO_INCREMENT PRIMARY KEY, " +
			"name VARCHAR(255) NOT NULL, " +
			"age INT UNSIGNED NOT NULL)"
	},
	NormalizeDSN: NormalizeDSN,
}

// New creates a disconnected MySQL backend. The Connect descriptor is a
// go-sql-driver DSN, optionally prefixed with mysql://.
func New(cfg sqlstore.Config, log logger.Logger) *sqlstore.Backend {
	cfg.Dialect = Dialect
	return sqlstore.New(cfg, log)
}

// NormalizeDSN parses dsn and enables clientFoundRows so that an UPDATE which
// leaves a row unchanged still reports it as affected.
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(strings.TrimPrefix(dsn, "mysql://"))
	if err != nil {
		return "", err
	}
	cfg.ClientFoundRows = true
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}
