package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"data-sculptor/domain"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS conversations (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL DEFAULT '',
	code_lines   TEXT[] NOT NULL DEFAULT '{}',
	code_version BIGINT NOT NULL DEFAULT 0,
	snapshot     JSONB,
	stale        BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS messages (
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	seq             INTEGER NOT NULL,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	token_count     INTEGER NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (conversation_id, seq)
);`

// PostgresStore persists conversations in Postgres. Writers of one conversation
// are serialised by a row lock on its conversations row.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and creates the tables if they are missing.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", domain.ErrStoreUnavailable, err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: migrate: %v", domain.ErrStoreUnavailable, err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Get implements domain.SessionStore.
func (s *PostgresStore) Get(ctx context.Context, conversationID string) (*domain.ConversationState, bool, error) {
	var (
		rec      conversationRecord
		snapshot []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, code_lines, code_version, snapshot, stale FROM conversations WHERE id = $1`,
		conversationID,
	).Scan(&rec.ID, &rec.UserID, &rec.Lines, &rec.Version, &snapshot, &rec.Stale)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("load conversation", err)
	}
	if rec.Snapshot, err = decodeSnapshot(snapshot); err != nil {
		return nil, false, unavailable("decode snapshot", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT seq, role, content, token_count, created_at FROM messages WHERE conversation_id = $1 ORDER BY seq`,
		conversationID)
	if err != nil {
		return nil, false, unavailable("load messages", err)
	}
	rec.Messages, err = pgx.CollectRows(rows, scanMessage)
	if err != nil {
		return nil, false, unavailable("load messages", err)
	}
	return rec.state(), true, nil
}

// Put implements domain.SessionStore.
func (s *PostgresStore) Put(ctx context.Context, state *domain.ConversationState) error {
	rec := toRecord(state)
	if rec.Lines == nil {
		// A nil slice is encoded as NULL.
		rec.Lines = []string{}
	}
	snapshot, err := encodeSnapshot(rec.Snapshot)
	if err != nil {
		return unavailable("encode snapshot", err)
	}

	var saved []domain.Message
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO conversations (id, user_id, code_lines, code_version, snapshot, stale, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now())
			ON CONFLICT (id) DO UPDATE SET
				user_id = EXCLUDED.user_id,
				code_lines = EXCLUDED.code_lines,
				code_version = EXCLUDED.code_version,
				snapshot = EXCLUDED.snapshot,
				stale = EXCLUDED.stale,
				updated_at = now()`,
			rec.ID, rec.UserID, rec.Lines, rec.Version, snapshot, rec.Stale,
		); err != nil {
			return unavailable("save conversation", err)
		}

		last, err := lockAndLastSeq(ctx, tx, rec.ID)
		if err != nil {
			return err
		}
		saved = saved[:0]
		batch := &pgx.Batch{}
		for _, m := range state.Unsaved() {
			last++
			m.Seq = last
			queueInsertMessage(batch, rec.ID, m)
			saved = append(saved, m)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return unavailable("save messages", err)
		}
		return nil
	})
	if err != nil {
		return asUnavailable(err)
	}
	state.MarkSaved(saved)
	return nil
}

// AppendMessage implements domain.SessionStore.
func (s *PostgresStore) AppendMessage(ctx context.Context, conversationID string, m domain.Message) (domain.Message, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO conversations (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, conversationID,
		); err != nil {
			return unavailable("create conversation", err)
		}
		last, err := lockAndLastSeq(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		m.Seq = last + 1
		if _, err := tx.Exec(ctx,
			`INSERT INTO messages (conversation_id, seq, role, content, token_count, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			conversationID, m.Seq, string(m.Role), m.Text, m.TokenCount, m.CreatedAt,
		); err != nil {
			return unavailable("append message", err)
		}
		_, err = tx.Exec(ctx, `UPDATE conversations SET updated_at = now() WHERE id = $1`, conversationID)
		if err != nil {
			return unavailable("touch conversation", err)
		}
		return nil
	})
	if err != nil {
		return domain.Message{}, asUnavailable(err)
	}
	return m, nil
}

// lockAndLastSeq row-locks the conversation and returns its highest message seq.
func lockAndLastSeq(ctx context.Context, tx pgx.Tx, conversationID string) (int, error) {
	if _, err := tx.Exec(ctx, `SELECT 1 FROM conversations WHERE id = $1 FOR UPDATE`, conversationID); err != nil {
		return 0, unavailable("lock conversation", err)
	}
	var last int
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM messages WHERE conversation_id = $1`, conversationID,
	).Scan(&last); err != nil {
		return 0, unavailable("read last seq", err)
	}
	return last, nil
}

func queueInsertMessage(b *pgx.Batch, conversationID string, m domain.Message) {
	created := m.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	b.Queue(
		`INSERT INTO messages (conversation_id, seq, role, content, token_count, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		conversationID, m.Seq, string(m.Role), m.Text, m.TokenCount, created,
	)
}

func scanMessage(row pgx.CollectableRow) (domain.Message, error) {
	var (
		m    domain.Message
		role string
	)
	if err := row.Scan(&m.Seq, &role, &m.Text, &m.TokenCount, &m.CreatedAt); err != nil {
		return domain.Message{}, err
	}
	m.Role = domain.Role(role)
	return m, nil
}

func encodeSnapshot(r *snapshotRecord) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

func decodeSnapshot(raw []byte) (*snapshotRecord, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var r snapshotRecord
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
}

// asUnavailable keeps errors already classified and wraps the rest, such as a
// failed commit.
func asUnavailable(err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	return unavailable("transaction", err)
}
