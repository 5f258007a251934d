package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"llm-fusion/internal/provider"
)

// Mode selects how targeted providers are called.
type Mode string

const (
	ModeParallel   Mode = "parallel"
	ModeSequential Mode = "sequential"
)

// Request shape when neither the request nor the provider configures one.
const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 4000
)

var (
	// ErrNoProvidersRequested means the request targeted zero providers.
	ErrNoProvidersRequested = errors.New("no providers requested")

	// ErrUnknownProvider means a targeted id does not resolve via the registry.
	ErrUnknownProvider = errors.New("unknown provider")
)

// Request is one prompt aimed at an ordered set of providers. It is value
// data, constructed once per call.
type Request struct {
	Prompt       string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	Providers    []string
	Mode         Mode
}

// ProviderResult is the tagged outcome of one (request, provider) pair.
// Failures are recorded, never raised.
type ProviderResult struct {
	Provider string        `json:"provider"`
	Success  bool          `json:"success"`
	Response string        `json:"response,omitempty"`
	Err      string        `json:"error,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Options tunes a Dispatcher at construction time.
type Options struct {
	// MaxConcurrent bounds in-flight provider calls across all Dispatch
	// invocations, independent of how many providers exist.
	MaxConcurrent int64

	// CallTimeout is the per-provider deadline.
	CallTimeout time.Duration

	// SequentialPause is the inter-call pause in sequential mode.
	SequentialPause time.Duration
}

// Dispatcher fans a request out to providers and collects exactly one
// ProviderResult per targeted provider. It holds no per-call state; the
// semaphore is the only thing shared between invocations.
type Dispatcher struct {
	registry *provider.Registry
	log      *slog.Logger
	sem      *semaphore.Weighted
	timeout  time.Duration
	pause    time.Duration
}

func New(registry *provider.Registry, log *slog.Logger, opts Options) *Dispatcher {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 8
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 60 * time.Second
	}
	if opts.SequentialPause <= 0 {
		opts.SequentialPause = 500 * time.Millisecond
	}
	return &Dispatcher{
		registry: registry,
		log:      log,
		sem:      semaphore.NewWeighted(opts.MaxConcurrent),
		timeout:  opts.CallTimeout,
		pause:    opts.SequentialPause,
	}
}

// Dispatch executes the request against every targeted provider. Results
// come back in request order regardless of completion order. It returns an
// error only for input validation; individual provider failures are
// downgraded to failed results.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) ([]ProviderResult, error) {
	if len(req.Providers) == 0 {
		return nil, ErrNoProvidersRequested
	}
	targets := make([]provider.Provider, len(req.Providers))
	for i, id := range req.Providers {
		p, err := d.registry.Get(id)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
		}
		targets[i] = p
	}

	if req.Mode == ModeSequential {
		return d.dispatchSequential(ctx, req, targets), nil
	}
	return d.dispatchParallel(ctx, req, targets), nil
}

func (d *Dispatcher) dispatchParallel(ctx context.Context, req Request, targets []provider.Provider) []ProviderResult {
	results := make([]ProviderResult, len(targets))
	var wg sync.WaitGroup
	for i, p := range targets {
		wg.Add(1)
		go func(i int, p provider.Provider) {
			defer wg.Done()
			results[i] = d.callOne(ctx, p, req)
		}(i, p)
	}
	wg.Wait()
	return results
}

func (d *Dispatcher) dispatchSequential(ctx context.Context, req Request, targets []provider.Provider) []ProviderResult {
	results := make([]ProviderResult, len(targets))
	for i, p := range targets {
		results[i] = d.callOne(ctx, p, req)
		if i < len(targets)-1 {
			// Pause between calls to respect provider rate limits.
			select {
			case <-ctx.Done():
				for j := i + 1; j < len(targets); j++ {
					results[j] = failed(targets[j].ID, ctx.Err(), 0)
				}
				return results
			case <-time.After(d.pause):
			}
		}
	}
	return results
}

// callOne runs a single provider call under the global and per-provider
// concurrency ceilings and the per-call deadline. A call that outlives its
// deadline is abandoned; its late response is discarded.
func (d *Dispatcher) callOne(ctx context.Context, p provider.Provider, req Request) ProviderResult {
	start := time.Now()
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return failed(p.ID, err, time.Since(start))
	}
	defer d.sem.Release(1)
	if err := p.Acquire(ctx); err != nil {
		return failed(p.ID, err, time.Since(start))
	}
	defer p.Release()

	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	// The request wins; a zero value defers to the provider's configured
	// shape, then to the fixed defaults.
	temperature := req.Temperature
	if temperature <= 0 {
		temperature = p.Temperature
	}
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		text, err := p.Client.Call(cctx, p.Model, req.SystemPrompt, req.Prompt, temperature, maxTokens)
		done <- outcome{text: text, err: err}
	}()

	select {
	case o := <-done:
		elapsed := time.Since(start)
		if o.err != nil {
			d.log.Warn("provider call failed", "provider", p.ID, "err", o.err, "elapsed_ms", elapsed.Milliseconds())
			return failed(p.ID, o.err, elapsed)
		}
		return ProviderResult{
			Provider: p.ID,
			Success:  true,
			Response: o.text,
			Elapsed:  elapsed,
		}
	case <-cctx.Done():
		elapsed := time.Since(start)
		d.log.Warn("provider call timed out", "provider", p.ID, "timeout", d.timeout)
		return failed(p.ID, fmt.Errorf("timeout after %s: %w", d.timeout, cctx.Err()), elapsed)
	}
}

func failed(id string, err error, elapsed time.Duration) ProviderResult {
	return ProviderResult{
		Provider: id,
		Success:  false,
		Err:      err.Error(),
		Elapsed:  elapsed,
	}
}
