// Package db owns the pgx connection pool shared by the storage, outbox and
// inbox layers.
package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shafin-ahmed/bookrider/libs/config"
)

type Pool struct {
	*pgxpool.Pool
}

// Open parses databaseURL, applies pool tuning from the environment
// (DB_MAX_CONNS, DB_MAX_CONN_IDLE_MINUTES) and pings before returning, so a
// bad DSN fails at startup rather than on the first request.
func Open(ctx context.Context, databaseURL string) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = int32(config.Int("DB_MAX_CONNS", 10))
	cfg.MaxConnIdleTime = time.Duration(config.Int("DB_MAX_CONN_IDLE_MINUTES", 5)) * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Pool{Pool: pool}, nil
}

func (p *Pool) Close() {
	if p == nil || p.Pool == nil {
		return
	}
	p.Pool.Close()
}

// ReadyCheck probes the pool for the readiness endpoint.
func ReadyCheck(p *Pool) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}
