package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const markerTTL = 48 * time.Hour

// Redis shares dispatch markers between engine instances with SETNX.
// Markers expire on their own, so Prune has nothing to do.
type Redis struct {
	client redis.Cmdable
	prefix string
}

func NewRedis(client redis.Cmdable) *Redis {
	return &Redis{client: client, prefix: "shiftwatch:dispatch"}
}

func (r *Redis) key(jobID int64, date time.Time) string {
	return fmt.Sprintf("%s:%d:%s", r.prefix, jobID, date.Format(dateLayout))
}

func (r *Redis) TryMark(ctx context.Context, jobID int64, date time.Time) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.key(jobID, date), "1", markerTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (r *Redis) Prune(ctx context.Context, before time.Time) error {
	return nil
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// DialRedis connects and pings so a bad address fails at startup.
func DialRedis(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}
