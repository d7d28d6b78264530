package service

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/paperqa/internal/pkg/keylock"
)

type IIdleSessionFinder interface {
	ListIdle(ctx context.Context, cutoff int64, limit int) ([]string, error)
}

type ISessionHistoryRemover interface {
	DeleteBySession(ctx context.Context, sessionID string) (int64, error)
}

type ISessionSummaryRemover interface {
	DeleteBySession(ctx context.Context, sessionID string) error
}

const cleanupBatch = 100

// CleanupService drops the index, history and summary of sessions that saw
// no activity for longer than ttl.
type CleanupService struct {
	finder    IIdleSessionFinder
	index     IPassageIndex
	history   ISessionHistoryRemover
	summaries ISessionSummaryRemover
	locks     *keylock.KeyLock
	ttl       time.Duration
	now       func() time.Time
}

func NewCleanupService(finder IIdleSessionFinder, index IPassageIndex, history ISessionHistoryRemover,
	summaries ISessionSummaryRemover, locks *keylock.KeyLock, ttl time.Duration) *CleanupService {
	return &CleanupService{
		finder:    finder,
		index:     index,
		history:   history,
		summaries: summaries,
		locks:     locks,
		ttl:       ttl,
		now:       time.Now,
	}
}

// CleanupIdle returns the number of sessions removed.
func (s *CleanupService) CleanupIdle(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.ttl).UnixMilli()
	logger := logutil.GetLogger(ctx)
	removed := 0
	for {
		ids, err := s.finder.ListIdle(ctx, cutoff, cleanupBatch)
		if err != nil {
			return removed, err
		}
		if len(ids) == 0 {
			return removed, nil
		}
		for _, sid := range ids {
			if err := s.removeSession(ctx, sid); err != nil {
				logger.Error("remove idle session failed", zap.String("session_id", sid), zap.Error(err))
				return removed, err
			}
			removed++
		}
		if len(ids) < cleanupBatch {
			return removed, nil
		}
	}
}

func (s *CleanupService) removeSession(ctx context.Context, sessionID string) error {
	unlockIngest := s.locks.Lock("ingest:" + sessionID)
	defer unlockIngest()
	unlockChat := s.locks.Lock("chat:" + sessionID)
	defer unlockChat()

	if err := s.index.Delete(ctx, sessionID); err != nil {
		return err
	}
	turns, err := s.history.DeleteBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.summaries.DeleteBySession(ctx, sessionID); err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("idle session removed", zap.String("session_id", sessionID), zap.Int64("turns", turns))
	return nil
}
