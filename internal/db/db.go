package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/unklstewy/mount-modeler/pkg/config"
	_ "modernc.org/sqlite" // SQLite driver
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const schemaMeasurementSets = `
CREATE TABLE IF NOT EXISTS measurement_sets (
    slot TEXT PRIMARY KEY,
    point_count INTEGER NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

const schemaMeasurements = `
CREATE TABLE IF NOT EXISTS measurements (
    slot TEXT NOT NULL,
    idx INTEGER NOT NULL,
    azimuth DOUBLE PRECISION NOT NULL,
    altitude DOUBLE PRECISION NOT NULL,
    ra_error DOUBLE PRECISION NOT NULL,
    dec_error DOUBLE PRECISION NOT NULL,
    model_error DOUBLE PRECISION NOT NULL,
    captured_at TIMESTAMP,
    data TEXT NOT NULL,
    PRIMARY KEY (slot, idx)
)`

// DB wraps a database connection with helper methods.
type DB struct {
	*sql.DB
	driver string
}

// Connect opens the measurement database named by cfg.Driver.
func Connect(cfg config.StoreConfig) (*DB, error) {
	var (
		sqlDB *sql.DB
		err   error
	)
	switch cfg.Driver {
	case DriverPostgres:
		connStr := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host,
			cfg.Port,
			cfg.Username,
			cfg.Password,
			cfg.Database,
			cfg.SSLMode,
		)
		sqlDB, err = sql.Open(DriverPostgres, connStr)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Hour)

	case DriverSQLite:
		sqlDB, err = sql.Open(DriverSQLite, cfg.Path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
		if err != nil {
			return nil, fmt.Errorf("open sqlite at %q: %w", cfg.Path, err)
		}
		// SQLite is not great with many writers
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)

	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return New(sqlDB, cfg.Driver), nil
}

// OpenSQLite opens or creates the local SQLite store at path.
func OpenSQLite(path string) (*DB, error) {
	return Connect(config.StoreConfig{Driver: DriverSQLite, Path: path})
}

// New wraps an open connection.
func New(sqlDB *sql.DB, driver string) *DB {
	return &DB{DB: sqlDB, driver: driver}
}

// Driver returns the driver name.
func (db *DB) Driver() string {
	return db.driver
}

// InitSchema creates the tables if they do not exist.
// This should be called once at application startup.
func (db *DB) InitSchema(ctx context.Context) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range []string{schemaMeasurementSets, schemaMeasurements} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}

// GetStats returns database statistics.
func (db *DB) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var slots int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM measurement_sets`).Scan(&slots)
	if err != nil {
		return nil, err
	}
	stats["slots"] = slots

	var points int64
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM measurements`).Scan(&points)
	if err != nil {
		return nil, err
	}
	stats["measurements"] = points
	stats["driver"] = db.driver

	return stats, nil
}

// rebind turns ? placeholders into $n for PostgreSQL.
func (db *DB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
