package db

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/paperqa/internal/config"
)

func TestLazy_SingleFlightInit(t *testing.T) {
	var calls atomic.Int32
	want := &sql.DB{}
	l := NewLazy(config.DatabaseConfig{}, false)
	l.open = func(context.Context) (*sql.DB, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return want, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := l.Get(context.Background())
			if err != nil || got != want {
				t.Errorf("unexpected handle: %v %v", got, err)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, calls.Load())
}

func TestLazy_RetriesAfterFailure(t *testing.T) {
	var calls atomic.Int32
	want := &sql.DB{}
	l := NewLazy(config.DatabaseConfig{}, false)
	l.open = func(context.Context) (*sql.DB, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("connection refused")
		}
		return want, nil
	}
	_, err := l.Get(context.Background())
	require.Error(t, err)
	got, err := l.Get(context.Background())
	require.NoError(t, err)
	require.Same(t, want, got)
	require.EqualValues(t, 2, calls.Load())
}

func TestDSN(t *testing.T) {
	require.Equal(t, "postgres://x", DSN(config.DatabaseConfig{DSN: "postgres://x"}))
	require.Equal(t,
		"host=db port=5432 user=u password=p dbname=paperqa sslmode=disable",
		DSN(config.DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "paperqa"}))
}
