package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakePurger struct {
	cutoff int64
	err    error
}

func (f *fakePurger) DeleteBefore(_ context.Context, cutoff int64) (int64, error) {
	f.cutoff = cutoff
	return 3, f.err
}

func TestEmbeddingCacheCleanupJob_Cutoff(t *testing.T) {
	purger := &fakePurger{}
	j := NewEmbeddingCacheCleanupJob(purger, 0)
	now := time.Unix(1_700_000_000, 0)
	j.now = func() time.Time { return now }

	require.NoError(t, j.Run(context.Background()))
	require.Equal(t, now.Add(-30*24*time.Hour).Unix(), purger.cutoff)

	purger.err = errors.New("db down")
	require.Error(t, j.Run(context.Background()))
}

type fakeCleaner struct {
	calls int
}

func (f *fakeCleaner) CleanupIdle(context.Context) (int, error) {
	f.calls++
	return 2, nil
}

func TestStaleSessionCleanupJob(t *testing.T) {
	c := &fakeCleaner{}
	j := NewStaleSessionCleanupJob(c)
	require.Equal(t, "stale_session_cleanup", j.Name())
	require.NoError(t, j.Run(context.Background()))
	require.Equal(t, 1, c.calls)
}
