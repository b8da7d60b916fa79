package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payu-bridge/internal/health"
	"github.com/noah-isme/payu-bridge/internal/store"
)

var _ health.Checker = readinessChecker{}

// The database probe delegates to the storage adapter.
var _ interface {
	PingDB(ctx context.Context, timeout time.Duration) error
} = (*store.PG)(nil)

func TestReadinessCheckerRequiresDependencies(t *testing.T) {
	var c readinessChecker
	require.Error(t, c.PingDB(context.Background(), time.Second))
	require.Error(t, c.PingRedis(context.Background(), time.Second))
}

func TestReadinessCheckerPingsRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := readinessChecker{redis: client}
	require.NoError(t, c.PingRedis(context.Background(), time.Second))

	mr.Close()
	require.Error(t, c.PingRedis(context.Background(), 100*time.Millisecond))
}
