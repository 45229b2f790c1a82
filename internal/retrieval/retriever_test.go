package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

type fakeVectors struct {
	results []SearchResult
	err     error
	delay   time.Duration
	gotP    SearchParams
	calls   atomic.Int32
}

func (f *fakeVectors) Search(ctx context.Context, _ []float32, params SearchParams) ([]SearchResult, error) {
	f.calls.Add(1)
	f.gotP = params
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.results, f.err
}

type fakeKeywords struct {
	results   []SearchResult
	err       error
	delay     time.Duration
	gotLimit  int
	gotFilter *AccessFilter
	calls     atomic.Int32
}

func (f *fakeKeywords) Search(ctx context.Context, _ string, limit int, filter *AccessFilter) ([]SearchResult, error) {
	f.calls.Add(1)
	f.gotLimit = limit
	f.gotFilter = filter
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.results, f.err
}

func newTestRetriever(v *fakeVectors, k *fakeKeywords) *HybridRetriever {
	return NewHybridRetriever(v, k, Config{}, nil)
}

func TestRetrieve_FusesBothPaths(t *testing.T) {
	v := &fakeVectors{results: []SearchResult{res("shared"), res("sem-only")}}
	k := &fakeKeywords{results: []SearchResult{res("kw-only"), res("shared")}}
	r := newTestRetriever(v, k)

	fused, err := r.Retrieve(context.Background(), "q", []float32{1}, 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(fused) != 3 {
		t.Fatalf("expected 3 fused results, got %d", len(fused))
	}
	if fused[0].ID != "shared" {
		t.Errorf("dual-path hit should rank first, got %s", fused[0].ID)
	}
	if v.calls.Load() != 1 || k.calls.Load() != 1 {
		t.Error("each path must be searched exactly once")
	}
}

func TestRetrieve_SourceTagging(t *testing.T) {
	v := &fakeVectors{results: []SearchResult{res("a")}}
	k := &fakeKeywords{results: []SearchResult{res("b")}}
	r := newTestRetriever(v, k)

	fused, err := r.Retrieve(context.Background(), "q", []float32{1}, 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range fused {
		switch f.ID {
		case "a":
			if f.Source != SourceSemantic {
				t.Errorf("a tagged %s", f.Source)
			}
		case "b":
			if f.Source != SourceKeyword {
				t.Errorf("b tagged %s", f.Source)
			}
		}
	}
}

func TestRetrieve_CandidateLimitAndThreshold(t *testing.T) {
	v := &fakeVectors{}
	k := &fakeKeywords{}
	r := newTestRetriever(v, k)

	if _, err := r.Retrieve(context.Background(), "q", []float32{1}, 5, nil); err != nil {
		t.Fatal(err)
	}
	if v.gotP.Limit != 10 {
		t.Errorf("semantic limit = %d, want 2*topK", v.gotP.Limit)
	}
	if v.gotP.ScoreThreshold != DefaultScoreThreshold {
		t.Errorf("threshold = %v, want default", v.gotP.ScoreThreshold)
	}
	if k.gotLimit != 10 {
		t.Errorf("keyword limit = %d, want 2*topK", k.gotLimit)
	}
}

func TestRetrieve_FilterReachesBothPaths(t *testing.T) {
	v := &fakeVectors{}
	k := &fakeKeywords{}
	r := newTestRetriever(v, k)
	filter := &AccessFilter{PrincipalID: "user-7"}

	if _, err := r.Retrieve(context.Background(), "q", []float32{1}, 5, filter); err != nil {
		t.Fatal(err)
	}
	if v.gotP.Filter != filter {
		t.Error("semantic path missing access filter")
	}
	if k.gotFilter != filter {
		t.Error("keyword path missing access filter")
	}
}

func TestRetrieve_EitherErrorAborts(t *testing.T) {
	semErr := errors.New("vector store down")
	kwErr := errors.New("text index down")

	cases := []struct {
		name string
		v    *fakeVectors
		k    *fakeKeywords
		want error
	}{
		{"semantic", &fakeVectors{err: semErr}, &fakeKeywords{results: []SearchResult{res("a")}}, semErr},
		{"keyword", &fakeVectors{results: []SearchResult{res("a")}}, &fakeKeywords{err: kwErr}, kwErr},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRetriever(tc.v, tc.k)
			_, err := r.Retrieve(context.Background(), "q", []float32{1}, 5, nil)
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestRetrieve_TruncatesToTopK(t *testing.T) {
	var many []SearchResult
	for i := 0; i < 8; i++ {
		many = append(many, res(fmt.Sprintf("r%d", i)))
	}
	r := newTestRetriever(&fakeVectors{results: many}, &fakeKeywords{})

	fused, err := r.Retrieve(context.Background(), "q", []float32{1}, 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(fused) != 3 {
		t.Errorf("expected truncation to 3, got %d", len(fused))
	}
}

func TestRetrieve_PathsRunConcurrently(t *testing.T) {
	// Two 60ms paths should join well under 120ms if truly concurrent.
	v := &fakeVectors{delay: 60 * time.Millisecond}
	k := &fakeKeywords{delay: 60 * time.Millisecond}
	r := newTestRetriever(v, k)

	start := time.Now()
	if _, err := r.Retrieve(context.Background(), "q", []float32{1}, 5, nil); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 110*time.Millisecond {
		t.Errorf("paths appear sequential: took %v", elapsed)
	}
}

func TestRetrieve_ContextCancellation(t *testing.T) {
	v := &fakeVectors{delay: time.Second}
	k := &fakeKeywords{delay: time.Second}
	r := newTestRetriever(v, k)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := r.Retrieve(ctx, "q", []float32{1}, 5, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}
