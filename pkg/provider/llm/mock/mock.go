// Package mock provides a test double for the llm.Provider interface.
//
//	p := &mock.Provider{Response: &llm.CompletionResponse{Content: `[{"pitch":"C4","duration":1,"velocity":80}]`}}
package mock

import (
	"context"
	"sync"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/provider/llm"
)

// Call records one invocation of Complete.
type Call struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider is a mock llm.Provider. Set Err to inject failures.
type Provider struct {
	mu sync.Mutex

	// Response is returned by Complete. May be nil.
	Response *llm.CompletionResponse

	// Err, if non-nil, is returned by Complete.
	Err error

	// ModelName is returned by Model.
	ModelName string

	// Calls records every invocation of Complete in order.
	Calls []Call
}

var _ llm.Provider = (*Provider)(nil)

// Complete records the call and returns Response, Err.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, Call{Ctx: ctx, Req: req})
	return p.Response, p.Err
}

// Model returns ModelName.
func (p *Provider) Model() string { return p.ModelName }

// CallCount returns the number of Complete calls so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}
