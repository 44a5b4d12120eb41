// Package history persists conversation turns. Implementations exist for
// an embedded sqlite file and for networked postgresql and mysql servers;
// selection is configuration-driven and invisible to callers of Store.
package history

import (
	"context"
	"fmt"

	"github.com/cmdline-assistant/clad/internal/config"
	"github.com/cmdline-assistant/clad/internal/creds"
	"github.com/cmdline-assistant/clad/internal/domain"
)

// Store is the capability interface over conversation history. Entries are
// append-only; sequence numbers are assigned by the store, monotonic and
// gap-free per session, with appends to different sessions never blocking
// each other.
type Store interface {
	// Append records one completed turn and returns the stored entry
	// with its assigned sequence number.
	Append(ctx context.Context, sessionID, question, answer string) (*domain.HistoryEntry, error)

	// List returns entries for a session, most recent first.
	List(ctx context.Context, sessionID string, limit, offset int) ([]domain.HistoryEntry, error)

	// Purge removes every entry of a session.
	Purge(ctx context.Context, sessionID string) error

	Close() error
}

// Open selects and connects the configured store. Credential material is
// used to build the DSN and not retained.
func Open(cfg config.Database, cred creds.Credential) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return OpenSQLite(cfg.ConnectionString)
	case "postgresql":
		return OpenPostgres(postgresDSN(cfg, cred))
	case "mysql":
		return OpenMySQL(mysqlDSN(cfg, cred))
	default:
		return nil, &domain.ConfigError{Field: "database.type", Err: fmt.Errorf("unsupported store %q", cfg.Type)}
	}
}

func postgresDSN(cfg config.Database, cred creds.Credential) string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=prefer",
		cfg.Host, cfg.Port, cfg.Name, cred.Username, cred.Password)
}

func mysqlDSN(cfg config.Database, cred creds.Credential) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cred.Username, cred.Password, cfg.Host, cfg.Port, cfg.Name)
}

func storageErr(op string, err error) error {
	return &domain.StorageError{Op: op, Err: err}
}
