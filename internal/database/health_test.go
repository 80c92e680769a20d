package database

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestCheck(t *testing.T) {
	// Nothing listens on this port, so Redis reports unreachable.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer rdb.Close()

	st := Check(context.Background(), fakePinger{}, rdb)
	assert.Equal(t, "ok", st.Postgres)
	assert.Equal(t, "unreachable", st.Redis)
	assert.False(t, st.Healthy())

	st = Check(context.Background(), fakePinger{err: errors.New("down")}, rdb)
	assert.Equal(t, "unreachable", st.Postgres)
}

func TestStatusHealthy(t *testing.T) {
	assert.True(t, Status{Postgres: "ok", Redis: "ok"}.Healthy())
	assert.False(t, Status{Postgres: "ok"}.Healthy())
}
