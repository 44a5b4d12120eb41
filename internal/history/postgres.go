package history

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"github.com/cmdline-assistant/clad/internal/domain"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS history_sessions (
    session_id TEXT PRIMARY KEY,
    last_seq   BIGINT NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS history (
    session_id  TEXT        NOT NULL,
    sequence_no BIGINT      NOT NULL,
    question    TEXT        NOT NULL,
    answer      TEXT        NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (session_id, sequence_no)
);
`

// PostgresStore keeps history in a networked postgresql server. Sequence
// assignment locks the session's counter row, so concurrent appends to the
// same session are totally ordered while other sessions proceed
// unblocked.
type PostgresStore struct {
	db *sql.DB
}

func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, storageErr("open", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, storageErr("connect", err)
	}

	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, storageErr("migrate", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Append(ctx context.Context, sessionID, question, answer string) (*domain.HistoryEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("append", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO history_sessions (session_id, last_seq) VALUES ($1, 0)
		 ON CONFLICT (session_id) DO NOTHING`,
		sessionID,
	)
	if err != nil {
		return nil, storageErr("append", err)
	}

	var last int64
	err = tx.QueryRowContext(ctx,
		`SELECT last_seq FROM history_sessions WHERE session_id = $1 FOR UPDATE`,
		sessionID,
	).Scan(&last)
	if err != nil {
		return nil, storageErr("append", err)
	}

	entry := &domain.HistoryEntry{
		SessionID:  sessionID,
		SequenceNo: last + 1,
		Question:   question,
		Answer:     answer,
		CreatedAt:  time.Now().UTC(),
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE history_sessions SET last_seq = $1 WHERE session_id = $2`,
		entry.SequenceNo, sessionID,
	); err != nil {
		return nil, storageErr("append", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO history (session_id, sequence_no, question, answer, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.SessionID, entry.SequenceNo, entry.Question, entry.Answer, entry.CreatedAt,
	); err != nil {
		return nil, storageErr("append", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("append", err)
	}

	return entry, nil
}

func (s *PostgresStore) List(ctx context.Context, sessionID string, limit, offset int) ([]domain.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, sequence_no, question, answer, created_at
		 FROM history WHERE session_id = $1
		 ORDER BY sequence_no DESC LIMIT $2 OFFSET $3`,
		sessionID, normalizeLimit(limit), offset,
	)
	if err != nil {
		return nil, storageErr("list", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (s *PostgresStore) Purge(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("purge", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM history WHERE session_id = $1`, sessionID)
	if err != nil {
		return storageErr("purge", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM history_sessions WHERE session_id = $1`, sessionID); err != nil {
		return storageErr("purge", err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr("purge", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

var _ Store = (*PostgresStore)(nil)
