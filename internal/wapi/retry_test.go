package wapi

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
	}
}

func TestExecuteWithRetry_FirstAttemptSuccess(t *testing.T) {
	calls := 0
	result, err := executeWithRetry(context.Background(), fastRetry(3), func() (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %q, want ok", result)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestExecuteWithRetry_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	result, err := executeWithRetry(context.Background(), fastRetry(3), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 42 {
		t.Errorf("result = %d, want 42", result)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestExecuteWithRetry_Exhausted(t *testing.T) {
	calls := 0
	wantErr := errors.New("still broken")
	_, err := executeWithRetry(context.Background(), fastRetry(2), func() (int, error) {
		calls++
		return 0, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (initial + 2 retries)", calls)
	}
}

func TestExecuteWithRetry_PermanentNotRetried(t *testing.T) {
	permanent := []error{ErrNameInUse, ErrNotFound, context.Canceled, context.DeadlineExceeded}
	for _, perr := range permanent {
		calls := 0
		_, err := executeWithRetry(context.Background(), fastRetry(3), func() (int, error) {
			calls++
			return 0, perr
		})
		if !errors.Is(err, perr) {
			t.Errorf("%v: expected error to surface, got %v", perr, err)
		}
		if calls != 1 {
			t.Errorf("%v: calls = %d, want 1", perr, calls)
		}
	}
}

func TestExecuteWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cfg := RetryConfig{MaxRetries: 5, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second}
	done := make(chan error, 1)
	go func() {
		_, err := executeWithRetry(ctx, cfg, func() (int, error) {
			calls++
			return 0, errors.New("transient")
		})
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("retry loop did not stop on cancellation")
	}
}

func TestBackoffWithJitter_Ranges(t *testing.T) {
	base := 2 * time.Second
	max := 30 * time.Second

	cases := []struct {
		attempt int
		nominal time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
		{3, 16 * time.Second},
		{4, 30 * time.Second}, // capped: 32s -> 30s
		{10, 30 * time.Second},
	}

	for _, tc := range cases {
		for i := 0; i < 50; i++ {
			d := backoffWithJitter(base, max, tc.attempt)
			lo := tc.nominal - tc.nominal/4
			hi := tc.nominal + tc.nominal/4
			if d < lo || d > hi {
				t.Fatalf("attempt %d: delay %v outside [%v, %v]", tc.attempt, d, lo, hi)
			}
		}
	}
}

func TestRetryable(t *testing.T) {
	if retryable(nil) {
		t.Error("nil is not retryable")
	}
	if retryable(ErrNameInUse) {
		t.Error("conflict must surface immediately")
	}
	if !retryable(errors.New("connection reset")) {
		t.Error("transient errors are retryable")
	}
}
