package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/paperqa/internal/model"
	"github.com/xxxsen/paperqa/internal/pkg/keylock"
)

type fakeIdleFinder struct {
	ids    []string
	cutoff int64
}

func (f *fakeIdleFinder) ListIdle(_ context.Context, cutoff int64, limit int) ([]string, error) {
	f.cutoff = cutoff
	ids := f.ids
	if len(ids) > limit {
		ids = ids[:limit]
	}
	f.ids = f.ids[len(ids):]
	return ids, nil
}

func TestCleanupIdle_RemovesSessionState(t *testing.T) {
	ctx := context.Background()
	index := newMemIndex()
	history := &memHistory{}
	summaries := newMemSummaries()
	for _, sid := range []string{"old", "fresh"} {
		_, err := index.Insert(ctx, sid, "http://example.com/a.pdf", []model.Passage{{Text: "x"}}, [][]float32{{1, 1}})
		require.NoError(t, err)
		require.NoError(t, history.Append(ctx, sid, model.ChatTurn{Role: model.ChatRoleUser, Content: "hi"}))
		require.NoError(t, summaries.Upsert(ctx, &model.ChatSummary{SessionID: sid, Summary: "s"}))
	}
	finder := &fakeIdleFinder{ids: []string{"old"}}
	svc := NewCleanupService(finder, index, history, summaries, keylock.New(), 24*time.Hour)
	now := time.UnixMilli(1_700_000_000_000)
	svc.now = func() time.Time { return now }

	removed, err := svc.CleanupIdle(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.Equal(t, now.Add(-24*time.Hour).UnixMilli(), finder.cutoff)

	require.NotContains(t, index.sessions, "old")
	require.Contains(t, index.sessions, "fresh")
	require.NotContains(t, summaries.items, "old")
	left, err := history.ListAll(ctx, "old")
	require.NoError(t, err)
	require.Empty(t, left)
	left, err = history.ListAll(ctx, "fresh")
	require.NoError(t, err)
	require.Len(t, left, 1)
}
