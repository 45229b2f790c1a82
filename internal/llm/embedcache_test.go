package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func countingEmbed(calls *int) EmbedFunc {
	return func(_ context.Context, q string) ([]float32, error) {
		*calls++
		return []float32{float32(len(q))}, nil
	}
}

func TestEmbedCache_HitOnNormalizedKey(t *testing.T) {
	c := NewEmbedCache(10)
	calls := 0
	fn := countingEmbed(&calls)
	ctx := context.Background()

	if _, err := c.GetOrCompute(ctx, "Refund Policy", fn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Case-folded and trimmed variants hit the same entry.
	if _, err := c.GetOrCompute(ctx, "  refund policy  ", fn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 compute, got %d", calls)
	}

	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("expected 1 hit / 1 miss, got %d / %d", hits, misses)
	}
}

func TestEmbedCache_FIFOEviction(t *testing.T) {
	c := NewEmbedCache(3)
	calls := 0
	fn := countingEmbed(&calls)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.GetOrCompute(ctx, fmt.Sprintf("query-%d", i), fn); err != nil {
			t.Fatal(err)
		}
	}

	// Touch query-0 so LRU would keep it; FIFO must still evict it.
	if _, err := c.GetOrCompute(ctx, "query-0", fn); err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 computes before overflow, got %d", calls)
	}

	if _, err := c.GetOrCompute(ctx, "query-3", fn); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 3 {
		t.Errorf("expected capacity-bounded size 3, got %d", c.Len())
	}

	// query-0 was first-inserted and must be gone despite the recent read.
	if _, err := c.GetOrCompute(ctx, "query-0", fn); err != nil {
		t.Fatal(err)
	}
	if calls != 5 {
		t.Errorf("expected recompute of evicted query-0 (5 total computes), got %d", calls)
	}
}

func TestEmbedCache_ErrorNotCached(t *testing.T) {
	c := NewEmbedCache(10)
	ctx := context.Background()
	fail := errors.New("backend down")

	_, err := c.GetOrCompute(ctx, "q", func(context.Context, string) ([]float32, error) {
		return nil, fail
	})
	if !errors.Is(err, fail) {
		t.Fatalf("expected compute error, got %v", err)
	}
	if c.Len() != 0 {
		t.Error("failed compute must not be cached")
	}

	// Miss falls through to live computation on the next call.
	vec, err := c.GetOrCompute(ctx, "q", func(context.Context, string) ([]float32, error) {
		return []float32{1}, nil
	})
	if err != nil || len(vec) != 1 {
		t.Errorf("expected successful recompute, got %v / %v", vec, err)
	}
}

func TestEmbedCache_DefaultCapacity(t *testing.T) {
	c := NewEmbedCache(0)
	if c.capacity != DefaultEmbedCacheCapacity {
		t.Errorf("expected default capacity %d, got %d", DefaultEmbedCacheCapacity, c.capacity)
	}
}
