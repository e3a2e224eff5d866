// Package pg provides a Postgres client using pgxpool
package pg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config configures pgxpool for pg
type Config struct {
	URL      string
	MaxConns int32
}

// PG is a postgres client with pool
type PG struct {
	Pool *pgxpool.Pool
}

var newPool = pgxpool.NewWithConfig

// Open creates a new PG client with the given config
func Open(ctx context.Context, cfg Config) (*PG, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pool, err := newPool(ctx, pcfg) // use seam
	if err != nil {
		return nil, err
	}
	return &PG{Pool: pool}, nil
}

// Close closes the pool
func (p *PG) Close() {
	if p != nil && p.Pool != nil {
		p.Pool.Close()
	}
}
