package history

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/cmdline-assistant/clad/internal/domain"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_AppendAssignsSequence(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		entry, err := store.Append(ctx, "session-a", "q", "a")
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if entry.SequenceNo != int64(i) {
			t.Errorf("SequenceNo = %d, want %d", entry.SequenceNo, i)
		}
	}
}

func TestSQLiteStore_ConcurrentAppendsGapFree(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	const n = 25
	var wg sync.WaitGroup
	seqs := make(chan int64, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := store.Append(ctx, "session-a", "q", "a")
			if err != nil {
				t.Errorf("Append() error = %v", err)
				return
			}
			seqs <- entry.SequenceNo
		}()
	}
	wg.Wait()
	close(seqs)

	var got []int64
	for s := range seqs {
		got = append(got, s)
	}
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })

	if len(got) != n {
		t.Fatalf("appended %d entries, want %d", len(got), n)
	}
	for i, s := range got {
		if s != int64(i+1) {
			t.Fatalf("sequence numbers have gaps or duplicates: %v", got)
		}
	}
}

func TestSQLiteStore_SessionIsolation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.Append(ctx, "session-a", "q", "a"); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	entry, err := store.Append(ctx, "session-b", "q", "a")
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if entry.SequenceNo != 1 {
		t.Errorf("session-b SequenceNo = %d, want 1", entry.SequenceNo)
	}
}

func TestSQLiteStore_ListMostRecentFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	questions := []string{"first", "second", "third"}
	for _, q := range questions {
		if _, err := store.Append(ctx, "session-a", q, "answer to "+q); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	entries, err := store.List(ctx, "session-a", 0, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	if entries[0].Question != "third" || entries[2].Question != "first" {
		t.Errorf("entries not in most-recent-first order: %v", entries)
	}

	limited, err := store.List(ctx, "session-a", 1, 1)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(limited) != 1 || limited[0].Question != "second" {
		t.Errorf("limit/offset result = %v, want [second]", limited)
	}
}

func TestSQLiteStore_Purge(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.Append(ctx, "session-a", "q", "a"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := store.Append(ctx, "session-b", "q", "a"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if err := store.Purge(ctx, "session-a"); err != nil {
		t.Fatalf("Purge() error = %v", err)
	}

	entries, err := store.List(ctx, "session-a", 0, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("purged session still has %d entries", len(entries))
	}

	// other sessions untouched
	remaining, err := store.List(ctx, "session-b", 0, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(remaining) != 1 {
		t.Errorf("session-b has %d entries, want 1", len(remaining))
	}
}

func TestSQLiteStore_PurgeUnknownSession(t *testing.T) {
	store := openTestStore(t)

	err := store.Purge(context.Background(), "missing")
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("error = %v, want ErrSessionNotFound", err)
	}
}
