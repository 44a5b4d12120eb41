package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cmdline-assistant/clad/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS history (
    session_id  TEXT      NOT NULL,
    sequence_no INTEGER   NOT NULL,
    question    TEXT      NOT NULL,
    answer      TEXT      NOT NULL,
    created_at  TIMESTAMP NOT NULL,
    PRIMARY KEY (session_id, sequence_no)
);
`

// SQLiteStore is the embedded single-file store.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, storageErr("open", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, storageErr("open", err)
	}
	// sqlite allows one writer; a single pooled connection turns lock
	// contention into queueing.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, storageErr("migrate", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, sessionID, question, answer string) (*domain.HistoryEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("append", err)
	}
	defer tx.Rollback()

	var last int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence_no), 0) FROM history WHERE session_id = ?`,
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

	_, err = tx.ExecContext(ctx,
		`INSERT INTO history (session_id, sequence_no, question, answer, created_at) VALUES (?, ?, ?, ?, ?)`,
		entry.SessionID, entry.SequenceNo, entry.Question, entry.Answer, entry.CreatedAt,
	)
	if err != nil {
		return nil, storageErr("append", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("append", err)
	}

	return entry, nil
}

func (s *SQLiteStore) List(ctx context.Context, sessionID string, limit, offset int) ([]domain.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, sequence_no, question, answer, created_at
		 FROM history WHERE session_id = ?
		 ORDER BY sequence_no DESC LIMIT ? OFFSET ?`,
		sessionID, normalizeLimit(limit), offset,
	)
	if err != nil {
		return nil, storageErr("list", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (s *SQLiteStore) Purge(ctx context.Context, sessionID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE session_id = ?`, sessionID)
	if err != nil {
		return storageErr("purge", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanEntries(rows *sql.Rows) ([]domain.HistoryEntry, error) {
	var entries []domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		if err := rows.Scan(&e.SessionID, &e.SequenceNo, &e.Question, &e.Answer, &e.CreatedAt); err != nil {
			return nil, storageErr("scan", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("scan", err)
	}
	return entries, nil
}

func normalizeLimit(limit int) int {
	const defaultLimit = 50
	if limit <= 0 {
		return defaultLimit
	}
	return limit
}

var _ Store = (*SQLiteStore)(nil)
