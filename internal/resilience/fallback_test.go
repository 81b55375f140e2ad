package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newGroup() *FallbackGroup[string] {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	})
	fg.AddFallback("secondary", "secondary")
	return fg
}

func TestFallbackGroup_Order(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		failing  map[string]bool
		want     string
		wantErr  error
		wantCall []string
	}{
		{name: "primary ok", want: "primary", wantCall: []string{"primary"}},
		{name: "primary down", failing: map[string]bool{"primary": true}, want: "secondary", wantCall: []string{"primary", "secondary"}},
		{name: "all down", failing: map[string]bool{"primary": true, "secondary": true}, wantErr: ErrAllFailed, wantCall: []string{"primary", "secondary"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls []string
			got, err := ExecuteWithResult(context.Background(), newGroup(), func(_ context.Context, v string) (string, error) {
				calls = append(calls, v)
				if tt.failing[v] {
					return "", errTest
				}
				return v, nil
			})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil && !errors.Is(err, errTest) {
				t.Errorf("err = %v should wrap the last backend error", err)
			}
			if got != tt.want {
				t.Errorf("result = %q, want %q", got, tt.want)
			}
			if len(calls) != len(tt.wantCall) {
				t.Errorf("calls = %v, want %v", calls, tt.wantCall)
			}
		})
	}
}

func TestFallbackGroup_SkipsOpenBreaker(t *testing.T) {
	t.Parallel()

	fg := newGroup()
	for range 2 {
		_ = fg.Execute(context.Background(), func(_ context.Context, v string) error {
			if v == "primary" {
				return errTest
			}
			return nil
		})
	}
	if fg.States()["primary"] != StateOpen {
		t.Fatalf("primary breaker = %v, want open", fg.States()["primary"])
	}

	var calls []string
	err := fg.Execute(context.Background(), func(_ context.Context, v string) error {
		calls = append(calls, v)
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(calls) != 1 || calls[0] != "secondary" {
		t.Errorf("calls = %v, want only secondary", calls)
	}
}

func TestFallbackGroup_StopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	fg := newGroup()
	var calls int
	err := fg.Execute(ctx, func(_ context.Context, v string) error {
		calls++
		cancel()
		return errTest
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestFallbackGroup_Names(t *testing.T) {
	t.Parallel()

	names := newGroup().Names()
	if len(names) != 2 || names[0] != "primary" || names[1] != "secondary" {
		t.Errorf("Names() = %v", names)
	}
}
