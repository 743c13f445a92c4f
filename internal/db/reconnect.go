package db

import (
	"context"
	"strings"
	"time"

	"github.com/unklstewy/mount-modeler/internal/logger"
	"github.com/unklstewy/mount-modeler/pkg/config"
)

// retryDelay is the wait before the first retry of a failed operation.
var retryDelay = time.Second

// ReconnectWithRetry attempts to connect to the database with exponential backoff.
// This provides resilience against temporary database outages.
//
// Parameters:
//   - ctx: Stops the retries when done
//   - cfg: Store configuration
//   - maxRetries: Maximum number of connection attempts (0 = infinite)
//   - initialDelay: Initial wait time between retries
//
// Returns: Connected database or error if all retries exhausted
func ReconnectWithRetry(ctx context.Context, cfg config.StoreConfig, maxRetries int, initialDelay time.Duration, log *logger.Logger) (*DB, error) {
	log = logger.OrNop(log).Component("db")
	delay := initialDelay
	attempt := 0

	for {
		attempt++
		log.Debugw("database connection attempt", "attempt", attempt, "driver", cfg.Driver)

		db, err := Connect(cfg)
		if err == nil {
			if attempt > 1 {
				log.Infow("database reconnected", "attempts", attempt)
			}
			return db, nil
		}

		if maxRetries > 0 && attempt >= maxRetries {
			log.Errorw("failed to connect to database", "attempts", attempt, "error", err)
			return nil, err
		}

		log.Warnw("database connection failed", "error", err, "retry_in", delay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		// Exponential backoff with cap at 60 seconds
		delay *= 2
		if delay > 60*time.Second {
			delay = 60 * time.Second
		}
	}
}

// HealthCheck reports whether the database answers a trivial query.
func HealthCheck(ctx context.Context, db *DB) bool {
	if db == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return false
	}
	return result == 1
}

// connErrors are fragments of errors worth retrying.
var connErrors = []string{
	"connection refused",
	"broken pipe",
	"no connection",
	"connection reset",
	"bad connection",
	"database is locked",
	"eof",
	"timeout",
}

func isConnError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, pattern := range connErrors {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// WithRetry executes a database operation, retrying connection failures
// with a growing delay. Other errors return at once.
func WithRetry(ctx context.Context, operation func() error, maxRetries int) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isConnError(err) {
			return err
		}

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return lastErr
			case <-time.After(time.Duration(attempt+1) * retryDelay):
			}
		}
	}

	return lastErr
}
