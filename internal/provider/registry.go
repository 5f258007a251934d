package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"llm-fusion/internal/retry"
)

var (
	// ErrNoUsableProviders means every configured provider failed its probe.
	ErrNoUsableProviders = errors.New("no usable provider")

	// ErrNotFound means the requested provider id is not registered.
	ErrNotFound = errors.New("provider not found")

	// ErrAlreadyInitialized guards against a second probe pass.
	ErrAlreadyInitialized = errors.New("registry already initialized")
)

const (
	probePrompt = "Reply with OK if you receive this message."
	probeSystem = "Reply only with OK."
)

// ProbeOptions tunes the capability probe run by Initialize.
type ProbeOptions struct {
	Timeout  time.Duration
	Attempts int
	Backoff  time.Duration
}

// Registry holds the providers that survived the capability probe. It is
// read-only after Initialize and safe for unsynchronized concurrent reads.
type Registry struct {
	log         *slog.Logger
	candidates  []Provider
	probe       ProbeOptions
	order       []string
	providers   map[string]Provider
	initialized bool
}

// NewRegistry builds a registry over the configured candidates. Initialize
// must be called before any read.
func NewRegistry(log *slog.Logger, candidates []Provider, probe ProbeOptions) *Registry {
	if probe.Timeout <= 0 {
		probe.Timeout = 10 * time.Second
	}
	if probe.Attempts <= 0 {
		probe.Attempts = 1
	}
	if probe.Backoff <= 0 {
		probe.Backoff = 500 * time.Millisecond
	}
	return &Registry{
		log:        log,
		candidates: candidates,
		probe:      probe,
		providers:  make(map[string]Provider),
	}
}

// Initialize probes every candidate concurrently and keeps the ones that
// answer, preserving configuration order. Safe to call exactly once per
// process; a second call is rejected. Fails only if zero providers are
// usable.
func (r *Registry) Initialize(ctx context.Context) error {
	if r.initialized {
		return ErrAlreadyInitialized
	}

	passed := make([]bool, len(r.candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range r.candidates {
		g.Go(func() error {
			passed[i] = r.probeOne(gctx, r.candidates[i])
			return nil
		})
	}
	_ = g.Wait()

	for i, c := range r.candidates {
		if !passed[i] {
			r.log.Warn("provider excluded after failed probe", "provider", c.ID)
			continue
		}
		c.Available = true
		if c.MaxConcurrent > 0 {
			c.limiter = semaphore.NewWeighted(c.MaxConcurrent)
		}
		r.order = append(r.order, c.ID)
		r.providers[c.ID] = c
		r.log.Info("provider registered", "provider", c.ID, "model", c.Model)
	}
	r.initialized = true

	if len(r.order) == 0 {
		return fmt.Errorf("%w: %d candidates probed", ErrNoUsableProviders, len(r.candidates))
	}
	return nil
}

func (r *Registry) probeOne(ctx context.Context, c Provider) bool {
	if c.Client == nil {
		return false
	}
	for attempt := 0; attempt < r.probe.Attempts; attempt++ {
		pctx, cancel := context.WithTimeout(ctx, r.probe.Timeout)
		_, err := c.Client.Call(pctx, c.Model, probeSystem, probePrompt, 0, 8)
		cancel()
		if err == nil {
			return true
		}
		r.log.Debug("provider probe attempt failed", "provider", c.ID, "attempt", attempt+1, "err", err)
		if attempt < r.probe.Attempts-1 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(retry.CappedBackoff(attempt, r.probe.Backoff, 5*time.Second)):
			}
		}
	}
	return false
}

// ListAvailable returns the usable providers in registration order.
func (r *Registry) ListAvailable() []Provider {
	out := make([]Provider, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.providers[id])
	}
	return out
}

// Get returns the provider for id, or ErrNotFound.
func (r *Registry) Get(id string) (Provider, error) {
	p, ok := r.providers[id]
	if !ok {
		return Provider{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, nil
}
