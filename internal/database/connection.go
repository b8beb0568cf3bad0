package database

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const (
	defaultMaxConns     = 5
	defaultPingAttempts = 5
)

// Option configures NewPool.
type Option func(*poolOptions)

type poolOptions struct {
	logger       zerolog.Logger
	pingAttempts uint64
	maxInterval  time.Duration
}

// WithLogger sets the logger used to report failed connection attempts.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *poolOptions) { o.logger = logger }
}

// WithPingAttempts sets how many times the initial ping is tried before
// NewPool gives up. Values below one are treated as one.
func WithPingAttempts(n int) Option {
	return func(o *poolOptions) {
		if n < 1 {
			n = 1
		}
		o.pingAttempts = uint64(n)
	}
}

// NewPool creates a pgx connection pool for the given database URL.
// It parses the connection string, sets a conservative max connection limit,
// and pings the database with exponential backoff until it answers.
func NewPool(ctx context.Context, databaseURL string, opts ...Option) (*pgxpool.Pool, error) {
	o := poolOptions{
		logger:       zerolog.Nop(),
		pingAttempts: defaultPingAttempts,
		maxInterval:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDatabaseURL, err)
	}

	poolCfg.MaxConns = defaultMaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	eb := backoff.NewExponentialBackOff()
	eb.MaxInterval = o.maxInterval

	// WithMaxRetries counts retries, not attempts.
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, o.pingAttempts-1), ctx)

	attempt := 0
	ping := func() error {
		attempt++
		return pool.Ping(ctx)
	}
	notify := func(err error, wait time.Duration) {
		o.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("database ping failed")
	}

	if err := backoff.RetryNotify(ping, policy, notify); err != nil {
		pool.Close()

		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return pool, nil
}
