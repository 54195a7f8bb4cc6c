package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shiftwatch/internal/platform/config"
	"shiftwatch/internal/platform/querier"
)

type Pool struct {
	*pgxpool.Pool
}

func Connect(ctx context.Context, cfg config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConns = int32(cfg.DatabaseMaxConns)
	poolCfg.MinConns = 2
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	return &Pool{Pool: pool}, nil
}

// Transactor opens an isolated persistence scope. fn's queries commit
// together or not at all.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, q querier.Querier) error) error
}

func (p *Pool) RunInTx(ctx context.Context, fn func(ctx context.Context, q querier.Querier) error) error {
	return pgx.BeginTxFunc(ctx, p.Pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(ctx, tx)
	})
}
