package history

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/cmdline-assistant/clad/internal/domain"
)

func TestMemoryStore_ConcurrentAppendsGapFree(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	seqs := make(chan int64, 2*n)

	// interleave two sessions to check isolation under concurrency
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			entry, err := store.Append(ctx, "session-a", "q", "a")
			if err != nil {
				t.Errorf("Append() error = %v", err)
				return
			}
			seqs <- entry.SequenceNo
		}()
		go func() {
			defer wg.Done()
			if _, err := store.Append(ctx, "session-b", "q", "a"); err != nil {
				t.Errorf("Append() error = %v", err)
			}
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
		t.Fatalf("appended %d entries to session-a, want %d", len(got), n)
	}
	for i, s := range got {
		if s != int64(i+1) {
			t.Fatalf("sequence numbers have gaps or duplicates: %v", got)
		}
	}
}

func TestMemoryStore_ListOrderAndPaging(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, q := range []string{"first", "second", "third"} {
		if _, err := store.Append(ctx, "s", q, "a"); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	entries, err := store.List(ctx, "s", 2, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 || entries[0].Question != "third" || entries[1].Question != "second" {
		t.Errorf("List(2, 0) = %v", entries)
	}

	offset, err := store.List(ctx, "s", 2, 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(offset) != 1 || offset[0].Question != "first" {
		t.Errorf("List(2, 2) = %v", offset)
	}
}

func TestMemoryStore_Purge(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Append(ctx, "s", "q", "a"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := store.Purge(ctx, "s"); err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if err := store.Purge(ctx, "s"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("second purge error = %v, want ErrSessionNotFound", err)
	}
}
