package rag_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ragmix/src/core/rag"
)

func TestRetryPolicyDo(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name       string
		maxAttempt int
		failN      int
		wantCalls  int
		wantErr    bool
	}{
		{
			name:       "first attempt succeeds",
			maxAttempt: 3,
			failN:      0,
			wantCalls:  1,
			wantErr:    false,
		},
		{
			name:       "second attempt succeeds",
			maxAttempt: 3,
			failN:      1,
			wantCalls:  2,
			wantErr:    false,
		},
		{
			name:       "all attempts fail",
			maxAttempt: 3,
			failN:      5,
			wantCalls:  3,
			wantErr:    true,
		},
		{
			name:       "zero attempts treated as one",
			maxAttempt: 0,
			failN:      5,
			wantCalls:  1,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			policy := rag.RetryPolicy{
				MaxAttempts: tt.maxAttempt,
				BaseDelay:   time.Second,
				Sleep:       func(context.Context, time.Duration) error { return nil },
			}
			err := policy.Do(context.Background(), func() error {
				calls++
				if calls <= tt.failN {
					return errBoom
				}
				return nil
			})
			if calls != tt.wantCalls {
				t.Errorf("op ran %d times, want %d", calls, tt.wantCalls)
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("Do() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetryPolicyDelaysGrowLinearly(t *testing.T) {
	var delays []time.Duration
	policy := rag.RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   5 * time.Second,
		MaxDelay:    12 * time.Second,
		Sleep: func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		},
	}

	err := policy.Do(context.Background(), func() error { return errors.New("always") })
	if err == nil {
		t.Fatal("Do() = nil, want error after exhausting attempts")
	}

	want := []time.Duration{5 * time.Second, 10 * time.Second, 12 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("recorded %d delays, want %d", len(delays), len(want))
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay %d = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestRetryPolicyStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	policy := rag.RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}

	err := policy.Do(ctx, func() error {
		calls++
		cancel()
		return errors.New("fail then cancel")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("op ran %d times after cancellation, want 1", calls)
	}
}
