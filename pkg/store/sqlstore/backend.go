// Package sqlstore implements directory.Backend on top of database/sql.
// Driver specifics live in a Dialect supplied by the postgres and mysql packages.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/nimburion/userdirectory/pkg/directory"
	"github.com/nimburion/userdirectory/pkg/observability/logger"
)

const (
	// DefaultTable is the table used when Config.Table is empty.
	DefaultTable          = "users"
	defaultConnectTimeout = 5 * time.Second
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Dialect captures what differs between SQL engines.
type Dialect struct {
	// Name is used in log entries.
	Name string
	// DriverName is passed to sql.Open.
	DriverName string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// QuoteIdentifier quotes a table name.
	QuoteIdentifier func(name string) string
	// CreateTable renders the DDL for the users table given its quoted name.
	CreateTable func(table string) string
	// NormalizeDSN optionally rewrites descriptors before they reach the driver.
	NormalizeDSN func(dsn string) (string, error)
}

// Config holds connection pool and schema settings.
type Config struct {
	Dialect         Dialect
	Table           string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
	QueryTimeout    time.Duration
	// EnsureSchema creates the users table on Connect when it is missing.
	EnsureSchema bool
	// Open replaces sql.Open. Tests use it to inject go-sqlmock.
	Open func(driverName, dsn string) (*sql.DB, error)
}

// Backend is a directory.Backend backed by a SQL table with columns id, name and age.
type Backend struct {
	mu     sync.RWMutex
	db     *sql.DB
	config Config
	table  string
	logger logger.Logger
	errs   directory.ErrorState
}

var _ directory.Backend = (*Backend)(nil)

// New creates a disconnected Backend. An invalid table name is reported by Connect.
func New(cfg Config, log logger.Logger) *Backend {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.Open == nil {
		cfg.Open = sql.Open
	}
	if cfg.Dialect.QuoteIdentifier == nil {
		cfg.Dialect.QuoteIdentifier = func(name string) string { return name }
	}
	return &Backend{
		config: cfg,
		table:  cfg.Dialect.QuoteIdentifier(cfg.Table),
		logger: log.With("backend", cfg.Dialect.Name),
	}
}

// applyPoolSettings sets only the limits that are configured. Zero values keep
// the database/sql defaults, so a bare Config still keeps idle connections.
func (b *Backend) applyPoolSettings(db *sql.DB) {
	if b.config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(b.config.MaxOpenConns)
	}
	if b.config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(b.config.MaxIdleConns)
	}
	if b.config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(b.config.ConnMaxLifetime)
	}
	if b.config.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(b.config.ConnMaxIdleTime)
	}
}

// DB returns the underlying pool, or nil while disconnected.
func (b *Backend) DB() *sql.DB {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.db
}

// Connect opens a pool for the DSN in descriptor and verifies it with a ping.
// An existing connection is closed first.
func (b *Backend) Connect(descriptor string) bool {
	if err := b.connect(descriptor); err != nil {
		b.errs.Record(err)
		b.logger.Error("connect failed", "error", err)
		return false
	}
	b.errs.Clear()
	return true
}

func (b *Backend) connect(descriptor string) error {
	if descriptor == "" {
		return fmt.Errorf("%w: DSN is required", directory.ErrInvalidDescriptor)
	}
	if !identifierPattern.MatchString(b.config.Table) {
		return fmt.Errorf("%w: table name %q", directory.ErrInvalidDescriptor, b.config.Table)
	}

	dsn := descriptor
	if normalize := b.config.Dialect.NormalizeDSN; normalize != nil {
		var err error
		if dsn, err = normalize(descriptor); err != nil {
			return fmt.Errorf("%w: %v", directory.ErrInvalidDescriptor, err)
		}
	}

	b.Disconnect()

	db, err := b.config.Open(b.config.Dialect.DriverName, dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	b.applyPoolSettings(db)

	ctx, cancel := context.WithTimeout(context.Background(), b.config.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if b.config.EnsureSchema {
		if _, err := db.ExecContext(ctx, b.config.Dialect.CreateTable(b.table)); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to create %s table: %w", b.config.Table, err)
		}
	}

	b.mu.Lock()
	b.db = db
	b.mu.Unlock()

	b.logger.Info("SQL connection established",
		"table", b.config.Table,
		"max_open_conns", b.config.MaxOpenConns,
		"max_idle_conns", b.config.MaxIdleConns,
		"conn_max_lifetime", b.config.ConnMaxLifetime,
	)
	return nil
}

// Disconnect closes the pool. It is a no-op when not connected.
func (b *Backend) Disconnect() {
	b.mu.Lock()
	db := b.db
	b.db = nil
	b.mu.Unlock()

	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		b.logger.Error("failed to close SQL connection", "error", err)
		return
	}
	b.logger.Info("SQL connection closed")
}

func (b *Backend) IsConnected() bool {
	return b.DB() != nil
}

func (b *Backend) InsertUser(name string, age int) bool {
	if err := directory.ValidateUser(name, age); err != nil {
		b.errs.Record(err)
		return false
	}
	query := fmt.Sprintf("INSERT INTO %s (name, age) VALUES (%s, %s)", b.table, b.placeholder(1), b.placeholder(2))
	return b.exec("insert user", query, name, age) == nil
}

func (b *Backend) GetUserName(userID int) string {
	var name string
	query := fmt.Sprintf("SELECT name FROM %s WHERE id = %s", b.table, b.placeholder(1))
	if err := b.queryRow(userID, query, &name); err != nil {
		return ""
	}
	return name
}

func (b *Backend) GetUserAge(userID int) int {
	var age int
	query := fmt.Sprintf("SELECT age FROM %s WHERE id = %s", b.table, b.placeholder(1))
	if err := b.queryRow(userID, query, &age); err != nil {
		return directory.AgeNotFound
	}
	return age
}

func (b *Backend) UpdateUser(userID int, name string, age int) bool {
	if err := directory.ValidateUser(name, age); err != nil {
		b.errs.Record(err)
		return false
	}
	query := fmt.Sprintf("UPDATE %s SET name = %s, age = %s WHERE id = %s",
		b.table, b.placeholder(1), b.placeholder(2), b.placeholder(3))
	return b.execAffecting(userID, "update user", query, name, age, userID)
}

func (b *Backend) DeleteUser(userID int) bool {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = %s", b.table, b.placeholder(1))
	return b.execAffecting(userID, "delete user", query, userID)
}

// GetAllUserNames returns names ordered by id.
func (b *Backend) GetAllUserNames() []string {
	names, err := b.queryColumn(fmt.Sprintf("SELECT name FROM %s ORDER BY id", b.table))
	if err != nil {
		b.errs.Record(fmt.Errorf("list users: %w", err))
		return nil
	}
	return names
}

func (b *Backend) GetUserCount() int {
	db, err := b.conn()
	if err != nil {
		b.errs.Record(err)
		return 0
	}

	ctx, cancel := b.withQueryTimeout(context.Background())
	defer cancel()

	var count int
	if err := db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", b.table)).Scan(&count); err != nil {
		b.errs.Record(fmt.Errorf("count users: %w", err))
		return 0
	}
	return count
}

// ExecuteQuery runs query verbatim and returns the first column of every row.
// Statements that produce no result set succeed with no rows.
func (b *Backend) ExecuteQuery(query string) ([]string, bool) {
	rows, err := b.queryColumn(query)
	if err != nil {
		b.errs.Record(fmt.Errorf("execute query: %w", err))
		return nil, false
	}
	return rows, true
}

func (b *Backend) GetLastError() string {
	return b.errs.Message()
}

func (b *Backend) ClearError() {
	b.errs.Clear()
}

func (b *Backend) conn() (*sql.DB, error) {
	db := b.DB()
	if db == nil {
		return nil, directory.ErrNotConnected
	}
	return db, nil
}

func (b *Backend) placeholder(n int) string {
	if b.config.Dialect.Placeholder == nil {
		return "?"
	}
	return b.config.Dialect.Placeholder(n)
}

func (b *Backend) exec(op, query string, args ...any) error {
	db, err := b.conn()
	if err != nil {
		b.errs.Record(err)
		return err
	}

	ctx, cancel := b.withQueryTimeout(context.Background())
	defer cancel()

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		err = fmt.Errorf("%s: %w", op, err)
		b.errs.Record(err)
		return err
	}
	return nil
}

func (b *Backend) execAffecting(userID int, op, query string, args ...any) bool {
	db, err := b.conn()
	if err != nil {
		b.errs.Record(err)
		return false
	}

	ctx, cancel := b.withQueryTimeout(context.Background())
	defer cancel()

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		b.errs.Record(fmt.Errorf("%s: %w", op, err))
		return false
	}
	affected, err := result.RowsAffected()
	if err != nil {
		b.errs.Record(fmt.Errorf("%s: %w", op, err))
		return false
	}
	if affected == 0 {
		b.errs.Record(fmt.Errorf("%s: %w: id %d", op, directory.ErrUserNotFound, userID))
		return false
	}
	return true
}

func (b *Backend) queryRow(userID int, query string, dest any) error {
	db, err := b.conn()
	if err != nil {
		b.errs.Record(err)
		return err
	}

	ctx, cancel := b.withQueryTimeout(context.Background())
	defer cancel()

	err = db.QueryRowContext(ctx, query, userID).Scan(dest)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = fmt.Errorf("%w: id %d", directory.ErrUserNotFound, userID)
	case err != nil:
		err = fmt.Errorf("get user %d: %w", userID, err)
	}
	b.errs.Record(err)
	return err
}

func (b *Backend) queryColumn(query string, args ...any) ([]string, error) {
	db, err := b.conn()
	if err != nil {
		return nil, err
	}

	ctx, cancel := b.withQueryTimeout(context.Background())
	defer cancel()

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	values := []string{}
	if len(columns) == 0 {
		return values, rows.Err()
	}

	cells := make([]sql.NullString, len(columns))
	dest := make([]any, len(columns))
	for i := range cells {
		dest[i] = &cells[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		values = append(values, cells[0].String)
	}
	return values, rows.Err()
}

func (b *Backend) withQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.config.QueryTimeout <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.config.QueryTimeout)
}
