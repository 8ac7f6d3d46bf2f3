package fallback

import (
	"context"
	"testing"
	"time"

	"github.com/vietddude/stability/internal/core/domain"
)

func TestMemoryCache_TTL(t *testing.T) {
	c := NewMemoryCache(time.Minute, 10)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Put(ctx, "a", &domain.Response{Decision: 1})
	if _, ok := c.Get(ctx, "a"); !ok {
		t.Fatal("fresh entry should hit")
	}

	now = now.Add(time.Minute)
	if _, ok := c.Get(ctx, "a"); ok {
		t.Error("expired entry should miss")
	}
	if n := c.Prune(ctx); n != 1 || c.Len() != 0 {
		t.Errorf("Prune removed %d, len %d", n, c.Len())
	}
}

func TestMemoryCache_EvictsOldest(t *testing.T) {
	c := NewMemoryCache(time.Hour, 2)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Put(ctx, "first", &domain.Response{})
	now = now.Add(time.Second)
	c.Put(ctx, "second", &domain.Response{})
	now = now.Add(time.Second)
	c.Put(ctx, "third", &domain.Response{})

	if _, ok := c.Get(ctx, "first"); ok {
		t.Error("oldest entry should be evicted")
	}
	if c.Len() != 2 {
		t.Errorf("len = %d, want 2", c.Len())
	}

	// overwriting an existing key does not evict
	c.Put(ctx, "third", &domain.Response{Decision: "new"})
	if _, ok := c.Get(ctx, "second"); !ok {
		t.Error("overwrite evicted another entry")
	}

	if err := c.Clear(ctx); err != nil || c.Len() != 0 {
		t.Errorf("Clear: err=%v len=%d", err, c.Len())
	}
}
