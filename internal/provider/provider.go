package provider

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Client is the uniform transport every remote text-generation backend is
// reached through. Adapters must surface failures as errors, never as
// malformed success values.
type Client interface {
	Call(ctx context.Context, model, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error)
}

// Provider is an immutable capability record for one backend. Records are
// built once by Registry.Initialize and never mutate afterwards.
type Provider struct {
	ID            string
	Label         string
	Available     bool
	Model         string
	Temperature   float64
	MaxTokens     int
	MaxConcurrent int64

	Client  Client
	limiter *semaphore.Weighted
}

// Acquire blocks until the provider's own concurrency ceiling admits one
// more in-flight call.
func (p Provider) Acquire(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Acquire(ctx, 1)
}

// Release returns a slot taken by Acquire.
func (p Provider) Release() {
	if p.limiter != nil {
		p.limiter.Release(1)
	}
}
