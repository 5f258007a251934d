// Package orchestrator is the single entry point callers use: cache lookup,
// dispatch on miss, fusion, cache write-back.
package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"llm-fusion/internal/cache"
	"llm-fusion/internal/dispatch"
	"llm-fusion/internal/document"
	"llm-fusion/internal/fusion"
)

// Request is the inbound contract from UI and business modules.
type Request struct {
	Prompt        string          `json:"prompt"`
	SystemPrompt  string          `json:"system_prompt,omitempty"`
	Providers     []string        `json:"providers"`
	Strategy      fusion.Strategy `json:"strategy,omitempty"`
	CacheCategory string          `json:"cache_category,omitempty"`
	Temperature   float64         `json:"temperature,omitempty"`
	MaxTokens     int             `json:"max_tokens,omitempty"`
	Mode          dispatch.Mode   `json:"mode,omitempty"`
	Fusion        fusion.Options  `json:"-"`
}

// Response wraps the fusion result with call metadata.
type Response struct {
	Result  fusion.Result `json:"result"`
	Cached  bool          `json:"cached"`
	Elapsed time.Duration `json:"elapsed"`
}

// Defaults applied when a request leaves a field empty. Temperature and
// MaxTokens left zero defer to the targeted provider's configured shape.
type Defaults struct {
	Strategy          fusion.Strategy
	Category          string
	SystemPrompt      string
	SynthesisProvider string
	Temperature       float64
	MaxTokens         int
}

// Orchestrator wires the registry, dispatcher, fusion engine, cache, and
// document library behind one call. Two independently configured
// orchestrators can coexist in a process.
type Orchestrator struct {
	dispatcher *dispatch.Dispatcher
	engine     *fusion.Engine
	cache      cache.Cache
	docs       *document.Library
	log        *slog.Logger
	defaults   Defaults
}

func New(dispatcher *dispatch.Dispatcher, engine *fusion.Engine, c cache.Cache, docs *document.Library, log *slog.Logger, defaults Defaults) *Orchestrator {
	if defaults.Strategy == "" {
		defaults.Strategy = fusion.StrategyBestOf
	}
	if defaults.Category == "" {
		defaults.Category = "general"
	}
	return &Orchestrator{
		dispatcher: dispatcher,
		engine:     engine,
		cache:      c,
		docs:       docs,
		log:        log,
		defaults:   defaults,
	}
}

// Orchestrate runs cache lookup, dispatch, fusion, and write-back, in that
// order, and returns the consolidated answer either way. Identical
// back-to-back calls dispatch only once; the second is a cache hit.
func (o *Orchestrator) Orchestrate(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	req = o.applyDefaults(req)

	key := cache.Key(req.Prompt, req.SystemPrompt, req.Providers, string(req.Strategy), req.Temperature, req.MaxTokens)
	if payload, ok := o.cache.Get(ctx, key, req.CacheCategory); ok {
		var result fusion.Result
		if err := json.Unmarshal(payload, &result); err == nil {
			o.log.Info("cache hit", "key", key, "category", req.CacheCategory)
			return Response{Result: result, Cached: true, Elapsed: time.Since(start)}, nil
		}
		// Undecodable payload: recompute.
		o.log.Warn("failed to decode cached result, recomputing", "key", key)
	}

	results, err := o.dispatcher.Dispatch(ctx, dispatch.Request{
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		Providers:    req.Providers,
		Mode:         req.Mode,
	})
	if err != nil {
		return Response{}, err
	}

	result, err := o.engine.Fuse(ctx, dispatch.Request{
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		Providers:    req.Providers,
	}, results, req.Strategy, req.Fusion)
	if err != nil {
		return Response{}, err
	}

	payload, err := json.Marshal(result)
	if err != nil {
		o.log.Warn("failed to marshal result, skipping cache", "err", err)
	} else {
		metadata := map[string]string{
			"strategy":   string(result.Strategy),
			"providers":  strings.Join(req.Providers, ","),
			"prompt_len": strconv.Itoa(len(req.Prompt)),
		}
		if err := o.cache.Put(ctx, key, req.CacheCategory, payload, metadata); err != nil {
			// Log cache write failure but don't fail the request
			o.log.Warn("failed to cache result", "err", err)
		}
	}

	return Response{Result: result, Cached: false, Elapsed: time.Since(start)}, nil
}

func (o *Orchestrator) applyDefaults(req Request) Request {
	if req.Strategy == "" {
		req.Strategy = o.defaults.Strategy
	}
	if req.CacheCategory == "" {
		req.CacheCategory = o.defaults.Category
	}
	if req.SystemPrompt == "" {
		req.SystemPrompt = o.defaults.SystemPrompt
	}
	if req.Temperature <= 0 {
		req.Temperature = o.defaults.Temperature
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = o.defaults.MaxTokens
	}
	if req.Fusion.SynthesisProvider == "" {
		req.Fusion.SynthesisProvider = o.defaults.SynthesisProvider
	}
	if req.Mode == "" {
		req.Mode = dispatch.ModeParallel
	}
	if o.docs != nil {
		if preamble := o.docs.Preamble(); preamble != "" {
			req.Prompt = preamble + req.Prompt
		}
	}
	return req
}
