package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/paperqa/internal/db"
	"github.com/xxxsen/paperqa/internal/model"
	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
	"github.com/xxxsen/paperqa/internal/repo"
	"github.com/xxxsen/paperqa/internal/testutil"
)

func TestPassageRepo_ReplaceAndSearch(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	passages := repo.NewPassageRepo(db.Static(conn))
	session := uuid.NewString()

	require.NoError(t, passages.Delete(ctx, session))
	_, err := passages.Resolve(ctx, session)
	require.ErrorIs(t, err, appErr.ErrNotFound)

	items := []model.Passage{
		{Ordinal: 0, Text: "attention", Metadata: map[string]interface{}{"page": 1}, SourceDocumentURL: "u"},
		{Ordinal: 1, Text: "training", Metadata: map[string]interface{}{"page": 2}, SourceDocumentURL: "u"},
	}
	n, err := passages.Insert(ctx, session, "u", items, [][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	count, err := passages.Count(ctx, session)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	hits, err := passages.SimilaritySearch(ctx, session, []float32{0.1, 0.9}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "training", hits[0].Text)
	require.EqualValues(t, 2, hits[0].Metadata["page"])

	col, err := passages.Resolve(ctx, session)
	require.NoError(t, err)
	require.Equal(t, 2, col.PassageCount)

	require.NoError(t, passages.Delete(ctx, session))
	require.NoError(t, passages.Delete(ctx, session))
	count, err = passages.Count(ctx, session)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestPassageRepo_InsertReplacesPreviousDocument(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	passages := repo.NewPassageRepo(db.Static(conn))
	session := uuid.NewString()
	defer func() { _ = passages.Delete(ctx, session) }()

	first := []model.Passage{
		{Ordinal: 0, Text: "old one", SourceDocumentURL: "a"},
		{Ordinal: 1, Text: "old two", SourceDocumentURL: "a"},
		{Ordinal: 2, Text: "old three", SourceDocumentURL: "a"},
	}
	_, err := passages.Insert(ctx, session, "a", first, [][]float32{{1, 0}, {0, 1}, {1, 1}})
	require.NoError(t, err)

	second := []model.Passage{{Ordinal: 0, Text: "new", SourceDocumentURL: "b"}}
	_, err = passages.Insert(ctx, session, "b", second, [][]float32{{1, 0}})
	require.NoError(t, err)

	count, err := passages.Count(ctx, session)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	hits, err := passages.SimilaritySearch(ctx, session, []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "new", hits[0].Text)

	idle, err := passages.ListIdle(ctx, time.Now().Add(-time.Hour).UnixMilli(), 1000)
	require.NoError(t, err)
	require.NotContains(t, idle, session)
}

func TestChatRepos(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	h := db.Static(conn)
	history := repo.NewChatHistoryRepo(h)
	summaries := repo.NewChatSummaryRepo(h)
	session := uuid.NewString()
	now := time.Now().Unix()

	require.NoError(t, history.Append(ctx, session,
		model.ChatTurn{Role: model.ChatRoleUser, Content: "q1", Ctime: now},
		model.ChatTurn{Role: model.ChatRoleAssistant, Content: "a1", Ctime: now},
	))
	turns, err := history.ListAll(ctx, session)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	require.Equal(t, model.ChatRoleUser, turns[0].Role)

	after, err := history.ListAfter(ctx, session, turns[0].ID)
	require.NoError(t, err)
	require.Len(t, after, 1)
	require.Equal(t, "a1", after[0].Content)

	_, err = summaries.Get(ctx, session)
	require.ErrorIs(t, err, appErr.ErrNotFound)
	require.NoError(t, summaries.Upsert(ctx, &model.ChatSummary{SessionID: session, Summary: "s", CoveredUntil: turns[0].ID, Mtime: now}))
	got, err := summaries.Get(ctx, session)
	require.NoError(t, err)
	require.Equal(t, "s", got.Summary)

	removed, err := history.DeleteBySession(ctx, session)
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)
	require.NoError(t, summaries.DeleteBySession(ctx, session))
}
