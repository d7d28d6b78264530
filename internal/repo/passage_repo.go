package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/paperqa/internal/db"
	"github.com/xxxsen/paperqa/internal/model"
	"github.com/xxxsen/paperqa/internal/pkg/dbutil"
	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
)

const insertBatchSize = 200

// PassageRepo is the session retrieval index: one collection row per session
// and its embedded passages.
type PassageRepo struct {
	h db.Handle
}

func NewPassageRepo(h db.Handle) *PassageRepo {
	return &PassageRepo{h: h}
}

func (r *PassageRepo) Resolve(ctx context.Context, sessionID string) (*model.Collection, error) {
	conn, err := r.h.Get(ctx)
	if err != nil {
		return nil, err
	}
	const query = `
		SELECT name, session_id, document_url, passage_count, ctime, mtime
		FROM collections
		WHERE name = $1
	`
	var c model.Collection
	err = conn.QueryRowContext(ctx, query, CollectionName(sessionID)).
		Scan(&c.Name, &c.SessionID, &c.DocumentURL, &c.PassageCount, &c.Ctime, &c.Mtime)
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Delete drops the session collection and its passages. Deleting a missing
// collection is not an error.
func (r *PassageRepo) Delete(ctx context.Context, sessionID string) error {
	conn, err := r.h.Get(ctx)
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, `DELETE FROM collections WHERE name = $1`, CollectionName(sessionID))
	return err
}

// Insert replaces the passages of the session collection with passages in
// one transaction and returns the number of rows written. Rows of a previous
// document never survive a successful call.
func (r *PassageRepo) Insert(ctx context.Context, sessionID, documentURL string, passages []model.Passage, vectors [][]float32) (int, error) {
	if len(passages) != len(vectors) {
		return 0, fmt.Errorf("passage/vector count mismatch: %d != %d", len(passages), len(vectors))
	}
	conn, err := r.h.Get(ctx)
	if err != nil {
		return 0, err
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	name := CollectionName(sessionID)
	// millisecond activity time, compared with chat_messages.ctime by ListIdle
	now := time.Now().UnixMilli()
	const upsert = `
		INSERT INTO collections (name, session_id, document_url, passage_count, ctime, mtime)
		VALUES ($1, $2, $3, 0, $4, $4)
		ON CONFLICT (name) DO UPDATE SET
			session_id = EXCLUDED.session_id,
			document_url = EXCLUDED.document_url,
			mtime = EXCLUDED.mtime
	`
	if _, err := tx.ExecContext(ctx, upsert, name, sessionID, documentURL, now); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM passages WHERE collection = $1`, name); err != nil {
		return 0, err
	}

	written := 0
	for _, b := range dbutil.Batches(len(passages), insertBatchSize) {
		rows := make([]map[string]interface{}, 0, b[1]-b[0])
		for i := b[0]; i < b[1]; i++ {
			p := passages[i]
			meta, err := json.Marshal(p.Metadata)
			if err != nil {
				return 0, fmt.Errorf("encode passage metadata: %w", err)
			}
			rows = append(rows, map[string]interface{}{
				"collection": name,
				"ordinal":    p.Ordinal,
				"content":    p.Text,
				"metadata":   string(meta),
				"source_url": p.SourceDocumentURL,
				"embedding":  pgvector.NewVector(vectors[i]),
				"ctime":      now,
			})
		}
		query, args, err := dbutil.BuildInsert("passages", rows)
		if err != nil {
			return 0, err
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		written += int(n)
	}

	const updateCount = `
		UPDATE collections
		SET passage_count = (SELECT COUNT(1) FROM passages WHERE collection = $1)
		WHERE name = $1
	`
	if _, err := tx.ExecContext(ctx, updateCount, name); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return written, nil
}

func (r *PassageRepo) Count(ctx context.Context, sessionID string) (int, error) {
	conn, err := r.h.Get(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	err = conn.QueryRowContext(ctx, `SELECT COUNT(1) FROM passages WHERE collection = $1`, CollectionName(sessionID)).Scan(&n)
	return n, err
}

// SimilaritySearch returns the k passages nearest to vector by cosine
// distance, closest first.
func (r *PassageRepo) SimilaritySearch(ctx context.Context, sessionID string, vector []float32, k int) ([]model.Passage, error) {
	if k <= 0 {
		return nil, nil
	}
	conn, err := r.h.Get(ctx)
	if err != nil {
		return nil, err
	}
	const query = `
		SELECT id, ordinal, content, metadata, source_url, embedding <=> $2 AS distance
		FROM passages
		WHERE collection = $1
		ORDER BY distance ASC, ordinal ASC
		LIMIT $3
	`
	rows, err := conn.QueryContext(ctx, query, CollectionName(sessionID), pgvector.NewVector(vector), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Passage
	for rows.Next() {
		var p model.Passage
		var meta []byte
		if err := rows.Scan(&p.ID, &p.Ordinal, &p.Text, &meta, &p.SourceDocumentURL, &p.Distance); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &p.Metadata); err != nil {
				return nil, fmt.Errorf("decode passage metadata: %w", err)
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListIdle returns sessions whose last index write and last chat message are
// both older than cutoff.
func (r *PassageRepo) ListIdle(ctx context.Context, cutoff int64, limit int) ([]string, error) {
	conn, err := r.h.Get(ctx)
	if err != nil {
		return nil, err
	}
	const query = `
		SELECT session_id FROM (
			SELECT session_id, mtime AS t FROM collections
			UNION ALL
			SELECT session_id, ctime AS t FROM chat_messages
		) activity
		GROUP BY session_id
		HAVING MAX(t) < $1
		ORDER BY MAX(t) ASC
		LIMIT $2
	`
	rows, err := conn.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
