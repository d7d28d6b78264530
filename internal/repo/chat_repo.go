package repo

import (
	"context"
	"database/sql"

	"github.com/xxxsen/paperqa/internal/db"
	"github.com/xxxsen/paperqa/internal/model"
	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
)

type ChatHistoryRepo struct {
	h db.Handle
}

func NewChatHistoryRepo(h db.Handle) *ChatHistoryRepo {
	return &ChatHistoryRepo{h: h}
}

// Append stores turns atomically in the given order.
func (r *ChatHistoryRepo) Append(ctx context.Context, sessionID string, turns ...model.ChatTurn) error {
	if len(turns) == 0 {
		return nil
	}
	conn, err := r.h.Get(ctx)
	if err != nil {
		return err
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	const query = `INSERT INTO chat_messages (session_id, role, content, ctime) VALUES ($1, $2, $3, $4)`
	for _, turn := range turns {
		if _, err := tx.ExecContext(ctx, query, sessionID, string(turn.Role), turn.Content, turn.Ctime); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *ChatHistoryRepo) ListAll(ctx context.Context, sessionID string) ([]model.ChatTurn, error) {
	return r.ListAfter(ctx, sessionID, 0)
}

// ListAfter returns turns with id > afterID in insertion order.
func (r *ChatHistoryRepo) ListAfter(ctx context.Context, sessionID string, afterID int64) ([]model.ChatTurn, error) {
	conn, err := r.h.Get(ctx)
	if err != nil {
		return nil, err
	}
	const query = `
		SELECT id, session_id, role, content, ctime
		FROM chat_messages
		WHERE session_id = $1 AND id > $2
		ORDER BY id ASC
	`
	rows, err := conn.QueryContext(ctx, query, sessionID, afterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ChatTurn
	for rows.Next() {
		var t model.ChatTurn
		var role string
		if err := rows.Scan(&t.ID, &t.SessionID, &role, &t.Content, &t.Ctime); err != nil {
			return nil, err
		}
		t.Role = model.ChatRole(role)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *ChatHistoryRepo) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	conn, err := r.h.Get(ctx)
	if err != nil {
		return 0, err
	}
	res, err := conn.ExecContext(ctx, `DELETE FROM chat_messages WHERE session_id = $1`, sessionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type ChatSummaryRepo struct {
	h db.Handle
}

func NewChatSummaryRepo(h db.Handle) *ChatSummaryRepo {
	return &ChatSummaryRepo{h: h}
}

func (r *ChatSummaryRepo) Get(ctx context.Context, sessionID string) (*model.ChatSummary, error) {
	conn, err := r.h.Get(ctx)
	if err != nil {
		return nil, err
	}
	const query = `SELECT session_id, summary, covered_until, mtime FROM chat_summaries WHERE session_id = $1`
	var s model.ChatSummary
	err = conn.QueryRowContext(ctx, query, sessionID).Scan(&s.SessionID, &s.Summary, &s.CoveredUntil, &s.Mtime)
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *ChatSummaryRepo) Upsert(ctx context.Context, s *model.ChatSummary) error {
	conn, err := r.h.Get(ctx)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO chat_summaries (session_id, summary, covered_until, mtime)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id) DO UPDATE SET
			summary = EXCLUDED.summary,
			covered_until = EXCLUDED.covered_until,
			mtime = EXCLUDED.mtime
	`
	_, err = conn.ExecContext(ctx, query, s.SessionID, s.Summary, s.CoveredUntil, s.Mtime)
	return err
}

func (r *ChatSummaryRepo) DeleteBySession(ctx context.Context, sessionID string) error {
	conn, err := r.h.Get(ctx)
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, `DELETE FROM chat_summaries WHERE session_id = $1`, sessionID)
	return err
}
