package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/provider/llm"
	llmmock "github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/provider/llm/mock"
)

func request() llm.CompletionRequest {
	return llm.CompletionRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "compose"}}}
}

func TestLLMFallback_Complete(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{Err: errors.New("rate limited"), ModelName: "gpt-4o-mini"}
	secondary := &llmmock.Provider{Response: &llm.CompletionResponse{Content: "[]"}}

	fb := NewLLMFallback(primary, "openai", FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3}})
	fb.AddFallback("ollama", secondary)

	resp, err := fb.Complete(context.Background(), request())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "[]" {
		t.Errorf("content = %q", resp.Content)
	}
	if primary.CallCount() != 1 || secondary.CallCount() != 1 {
		t.Errorf("calls = %d, %d; want 1, 1", primary.CallCount(), secondary.CallCount())
	}
	if fb.Model() != "gpt-4o-mini" {
		t.Errorf("Model() = %q, want the primary's", fb.Model())
	}
}

func TestLLMFallback_AllFail(t *testing.T) {
	t.Parallel()

	fb := NewLLMFallback(&llmmock.Provider{Err: errors.New("down")}, "a", FallbackConfig{})
	fb.AddFallback("b", &llmmock.Provider{Err: errors.New("down too")})

	if _, err := fb.Complete(context.Background(), request()); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if st := fb.States(); st["a"] != StateClosed || st["b"] != StateClosed {
		t.Errorf("one failure should not open the default breaker: %v", st)
	}
}
