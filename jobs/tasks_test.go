package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPurger struct {
	purged int64
	err    error
}

func (s *stubPurger) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.purged, s.err
}

type stubCounter struct {
	counts map[string]int64
	err    error
}

func (s *stubCounter) CountByCategory(ctx context.Context) (map[string]int64, error) {
	return s.counts, s.err
}

func TestPurgeSessionsHandler(t *testing.T) {
	handler := PurgeSessionsHandler(&stubPurger{purged: 3}, nil)
	require.NoError(t, handler(context.Background(), NewPurgeSessionsTask()))

	failing := PurgeSessionsHandler(&stubPurger{err: errors.New("db down")}, nil)
	assert.Error(t, failing(context.Background(), NewPurgeSessionsTask()))
}

func TestStatsWarmupHandlerWritesCounts(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	counter := &stubCounter{counts: map[string]int64{"Journal": 4, "Conference": 1}}
	handler := StatsWarmupHandler(counter, client, nil)
	require.NoError(t, handler(context.Background(), NewStatsWarmupTask()))

	got, err := client.Get(context.Background(), statsKeyPrefix+"Journal").Result()
	require.NoError(t, err)
	assert.Equal(t, "4", got)

	got, err = client.Get(context.Background(), statsKeyPrefix+"Conference").Result()
	require.NoError(t, err)
	assert.Equal(t, "1", got)
}

func TestStatsWarmupHandlerPropagatesCountError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	handler := StatsWarmupHandler(&stubCounter{err: errors.New("db down")}, client, nil)
	assert.Error(t, handler(context.Background(), NewStatsWarmupTask()))
}
