package database

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const healthTimeout = 2 * time.Second

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Status reports the reachability of each backing store.
type Status struct {
	Postgres string `json:"postgres"`
	Redis    string `json:"redis"`
}

// Healthy reports whether every store answered.
func (s Status) Healthy() bool {
	return s.Postgres == "ok" && s.Redis == "ok"
}

// Check pings Postgres and Redis with a short deadline each.
func Check(ctx context.Context, pg Pinger, rdb redis.Cmdable) Status {
	return Status{
		Postgres: checkStore(ctx, pg.Ping),
		Redis: checkStore(ctx, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}),
	}
}

func checkStore(ctx context.Context, ping func(context.Context) error) string {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	if err := ping(ctx); err != nil {
		return "unreachable"
	}
	return "ok"
}
