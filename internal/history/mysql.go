package history

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/cmdline-assistant/clad/internal/domain"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS history_sessions (
	    session_id VARCHAR(64) PRIMARY KEY,
	    last_seq   BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS history (
	    session_id  VARCHAR(64) NOT NULL,
	    sequence_no BIGINT      NOT NULL,
	    question    TEXT        NOT NULL,
	    answer      TEXT        NOT NULL,
	    created_at  DATETIME(6) NOT NULL,
	    PRIMARY KEY (session_id, sequence_no)
	)`,
}

// MySQLStore keeps history in a networked mysql or mariadb server, using
// the same per-session counter-row locking as the postgres store.
type MySQLStore struct {
	db *sql.DB
}

func OpenMySQL(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
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

	// mysql cannot run multiple statements in one Exec by default
	for _, stmt := range mysqlSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, storageErr("migrate", err)
		}
	}

	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) Append(ctx context.Context, sessionID, question, answer string) (*domain.HistoryEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("append", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT IGNORE INTO history_sessions (session_id, last_seq) VALUES (?, 0)`,
		sessionID,
	)
	if err != nil {
		return nil, storageErr("append", err)
	}

	var last int64
	err = tx.QueryRowContext(ctx,
		`SELECT last_seq FROM history_sessions WHERE session_id = ? FOR UPDATE`,
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
		`UPDATE history_sessions SET last_seq = ? WHERE session_id = ?`,
		entry.SequenceNo, sessionID,
	); err != nil {
		return nil, storageErr("append", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO history (session_id, sequence_no, question, answer, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.SessionID, entry.SequenceNo, entry.Question, entry.Answer, entry.CreatedAt,
	); err != nil {
		return nil, storageErr("append", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("append", err)
	}

	return entry, nil
}

func (s *MySQLStore) List(ctx context.Context, sessionID string, limit, offset int) ([]domain.HistoryEntry, error) {
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

func (s *MySQLStore) Purge(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("purge", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM history WHERE session_id = ?`, sessionID)
	if err != nil {
		return storageErr("purge", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM history_sessions WHERE session_id = ?`, sessionID); err != nil {
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

func (s *MySQLStore) Close() error {
	return s.db.Close()
}

var _ Store = (*MySQLStore)(nil)
