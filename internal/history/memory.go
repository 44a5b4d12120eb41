package history

import (
	"context"
	"sync"
	"time"

	"github.com/cmdline-assistant/clad/internal/domain"
)

// MemoryStore holds history in process memory. Used in tests and as a
// stand-in when no durable store is wanted.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]domain.HistoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]domain.HistoryEntry)}
}

func (s *MemoryStore) Append(ctx context.Context, sessionID, question, answer string) (*domain.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := domain.HistoryEntry{
		SessionID:  sessionID,
		SequenceNo: int64(len(s.sessions[sessionID])) + 1,
		Question:   question,
		Answer:     answer,
		CreatedAt:  time.Now().UTC(),
	}
	s.sessions[sessionID] = append(s.sessions[sessionID], entry)

	return &entry, nil
}

func (s *MemoryStore) List(ctx context.Context, sessionID string, limit, offset int) ([]domain.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.sessions[sessionID]
	limit = normalizeLimit(limit)

	// most recent first
	var out []domain.HistoryEntry
	for i := len(entries) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

func (s *MemoryStore) Purge(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return domain.ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
