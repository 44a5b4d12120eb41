// Package creds resolves the history store credentials. Resolution is
// tried in a fixed priority order: the encrypted-at-rest credential store
// (a systemd credentials directory, where systemd places decrypted
// LoadCredentialEncrypted= material) first when configured, plaintext
// configuration fields otherwise. Resolved values are held only long
// enough to open the connection pool and are never logged.
package creds

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cmdline-assistant/clad/internal/config"
	"github.com/cmdline-assistant/clad/internal/domain"
)

// Fixed credential names inside the credential store.
const (
	UsernameCredential = "database-username"
	PasswordCredential = "database-password"
)

// Credential is a resolved username/password pair.
type Credential struct {
	Username string
	Password string
}

// Store reads named secrets from an encrypted-at-rest facility.
type Store interface {
	Get(name string) (string, error)
}

// Resolve returns the database credential for the given configuration.
func Resolve(db config.Database) (Credential, error) {
	if db.CredentialsDir != "" {
		return fromStore(NewDirStore(db.CredentialsDir))
	}
	return Credential{Username: db.User, Password: db.Password}, nil
}

func fromStore(store Store) (Credential, error) {
	username, err := store.Get(UsernameCredential)
	if err != nil {
		return Credential{}, &domain.ConfigError{Field: "database.credentials_dir", Err: err}
	}
	password, err := store.Get(PasswordCredential)
	if err != nil {
		return Credential{}, &domain.ConfigError{Field: "database.credentials_dir", Err: err}
	}
	return Credential{Username: username, Password: password}, nil
}

// DirStore reads credentials laid out one-per-file in a directory, the
// shape of $CREDENTIALS_DIRECTORY under systemd.
type DirStore struct {
	dir string

	mu    sync.RWMutex
	cache map[string]string
}

func NewDirStore(dir string) *DirStore {
	return &DirStore{dir: dir, cache: make(map[string]string)}
}

func (s *DirStore) Get(name string) (string, error) {
	s.mu.RLock()
	if value, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return value, nil
	}
	s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return "", fmt.Errorf("read credential %s: %w", name, err)
	}
	value := strings.TrimRight(string(data), "\n")

	s.mu.Lock()
	s.cache[name] = value
	s.mu.Unlock()

	return value, nil
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

func NewMemStore() *MemStore {
	return &MemStore{secrets: make(map[string]string)}
}

func (s *MemStore) Get(name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.secrets[name]
	if !ok {
		return "", fmt.Errorf("credential %s not found", name)
	}
	return value, nil
}

func (s *MemStore) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[name] = value
}
