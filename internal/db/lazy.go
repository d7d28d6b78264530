package db

import (
	"context"
	"database/sql"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xxxsen/paperqa/internal/config"
)

// Handle hands out the process wide database connection pool.
type Handle interface {
	Get(ctx context.Context) (*sql.DB, error)
}

// Lazy connects on first use. Concurrent first callers share one connection
// attempt; a failed attempt is retried by the next caller.
type Lazy struct {
	cfg     config.DatabaseConfig
	migrate bool
	open    func(ctx context.Context) (*sql.DB, error)

	mu    sync.RWMutex
	db    *sql.DB
	group singleflight.Group
}

func NewLazy(cfg config.DatabaseConfig, migrate bool) *Lazy {
	l := &Lazy{cfg: cfg, migrate: migrate}
	l.open = l.connect
	return l
}

func (l *Lazy) Get(ctx context.Context) (*sql.DB, error) {
	l.mu.RLock()
	db := l.db
	l.mu.RUnlock()
	if db != nil {
		return db, nil
	}
	v, err, _ := l.group.Do("db", func() (interface{}, error) {
		l.mu.RLock()
		existing := l.db
		l.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}
		// detached so one caller's cancellation does not fail the others
		opened, err := l.open(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.db = opened
		l.mu.Unlock()
		return opened, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*sql.DB), nil
}

func (l *Lazy) connect(ctx context.Context) (*sql.DB, error) {
	db, err := Open(ctx, l.cfg)
	if err != nil {
		logutil.GetLogger(ctx).Error("open database failed", zap.Error(err))
		return nil, err
	}
	if l.migrate {
		if err := ApplyMigrations(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}
	logutil.GetLogger(ctx).Info("database connected")
	return db, nil
}

// Ping connects if needed and checks the server is reachable.
func (l *Lazy) Ping(ctx context.Context) error {
	db, err := l.Get(ctx)
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}

type static struct {
	db *sql.DB
}

// Static wraps an already open pool.
func Static(db *sql.DB) Handle {
	return static{db: db}
}

func (s static) Get(context.Context) (*sql.DB, error) {
	return s.db, nil
}
