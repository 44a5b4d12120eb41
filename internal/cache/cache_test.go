package cache

import (
	"context"
	"testing"
	"time"

	"github.com/cmdline-assistant/clad/internal/domain"
)

func TestKey(t *testing.T) {
	a := Key("assistant", "what is selinux?")
	b := Key("assistant", "what is selinux?")
	if a != b {
		t.Errorf("same inputs gave different keys: %q vs %q", a, b)
	}

	if Key("assistant", "q1") == Key("assistant", "q2") {
		t.Error("different questions collided")
	}
	if Key("model-a", "q") == Key("model-b", "q") {
		t.Error("different models collided")
	}
}

func TestInMemoryCache(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()
	key := Key("assistant", "q")

	if _, ok := c.Get(ctx, key); ok {
		t.Error("Get() on empty cache reported a hit")
	}

	if err := c.Set(ctx, key, &domain.BackendAnswer{Text: "answer"}, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	answer, ok := c.Get(ctx, key)
	if !ok || answer.Text != "answer" {
		t.Errorf("Get() = %+v, %v", answer, ok)
	}
}

func TestInMemoryCache_Expiry(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()
	key := Key("assistant", "q")

	if err := c.Set(ctx, key, &domain.BackendAnswer{Text: "answer"}, 10*time.Millisecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get(ctx, key); ok {
		t.Error("Get() returned an expired entry")
	}
}

func TestInMemoryCache_CopiesAnswer(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()
	key := Key("assistant", "q")

	original := &domain.BackendAnswer{Text: "answer"}
	c.Set(ctx, key, original, time.Minute)
	original.Text = "mutated"

	got, ok := c.Get(ctx, key)
	if !ok || got.Text != "answer" {
		t.Errorf("Get() = %+v, want the value as stored", got)
	}

	// mutating the returned answer must not poison the cache
	got.Text = "mutated again"
	again, _ := c.Get(ctx, key)
	if again.Text != "answer" {
		t.Errorf("cached value changed to %q", again.Text)
	}
}
