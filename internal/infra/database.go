package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/note_wallet/internal/store"
)

// connectTimeout bounds how long startup waits for a dependency to come up.
const connectTimeout = 30 * time.Second

// NewPostgresPool migrates the schema, then opens and verifies a PostgreSQL
// connection pool. Connection attempts are retried with backoff until
// connectTimeout elapses.
func NewPostgresPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, fmt.Errorf("database url is required")
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	var pool *pgxpool.Pool
	err = retry(ctx, func() error {
		if err := store.Migrate(url); err != nil {
			return err
		}
		p, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return fmt.Errorf("ping postgres: %w", err)
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}

func retry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = connectTimeout
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}
