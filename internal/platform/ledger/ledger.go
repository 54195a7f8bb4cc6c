package ledger

import (
	"context"
	"fmt"

	"shiftwatch/internal/domain/notify"
	"shiftwatch/internal/platform/config"
	"shiftwatch/internal/platform/querier"
)

// New builds the dispatch guard selected by DISPATCH_GUARD. The returned
// closer releases the redis client when one was opened.
func New(ctx context.Context, cfg config.Config, db querier.Querier) (notify.DispatchGuard, func() error, error) {
	noop := func() error { return nil }
	switch cfg.DispatchGuard {
	case config.GuardMemory, "":
		return NewMemory(), noop, nil
	case config.GuardPostgres:
		return NewPostgres(db), noop, nil
	case config.GuardRedis:
		client, err := DialRedis(ctx, RedisOptions{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			return nil, noop, err
		}
		return NewRedis(client), client.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown dispatch guard %q", cfg.DispatchGuard)
	}
}
