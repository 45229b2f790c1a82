package poll

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWait_ImmediateSuccess(t *testing.T) {
	calls := 0
	done, err := Wait(context.Background(), time.Second, 100*time.Millisecond, func(context.Context) (bool, error) {
		calls++
		return true, nil
	})
	if err != nil || !done {
		t.Fatalf("done=%v err=%v", done, err)
	}
	if calls != 1 {
		t.Errorf("expected a single immediate check, got %d", calls)
	}
}

func TestWait_CompletesAfterRetries(t *testing.T) {
	calls := 0
	done, err := Wait(context.Background(), time.Second, 10*time.Millisecond, func(context.Context) (bool, error) {
		calls++
		return calls >= 3, nil
	})
	if err != nil || !done {
		t.Fatalf("done=%v err=%v", done, err)
	}
	if calls != 3 {
		t.Errorf("expected 3 checks, got %d", calls)
	}
}

func TestWait_TimeoutIsNotAnError(t *testing.T) {
	start := time.Now()
	done, err := Wait(context.Background(), 50*time.Millisecond, 10*time.Millisecond, func(context.Context) (bool, error) {
		return false, nil
	})
	if err != nil {
		t.Fatalf("timeout must not error, got %v", err)
	}
	if done {
		t.Error("unfinished work reported done")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("wait ran far past its deadline")
	}
}

func TestWait_FnErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	done, err := Wait(context.Background(), time.Second, 10*time.Millisecond, func(context.Context) (bool, error) {
		calls++
		return false, boom
	})
	if !errors.Is(err, boom) || done {
		t.Fatalf("done=%v err=%v", done, err)
	}
	if calls != 1 {
		t.Errorf("errors must not be retried, got %d calls", calls)
	}
}

func TestWait_CancellationSurfaces(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Wait(ctx, time.Second, 10*time.Millisecond, func(context.Context) (bool, error) {
		return false, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
