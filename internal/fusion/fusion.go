package fusion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"llm-fusion/internal/dispatch"
	"llm-fusion/internal/provider"
)

// Strategy names a reduction of many provider answers into one.
type Strategy string

const (
	StrategyBestOf    Strategy = "best_of"
	StrategyVote      Strategy = "vote"
	StrategySynthesis Strategy = "synthesis"

	// strategyWeightedMerge is an accepted alias of vote.
	strategyWeightedMerge Strategy = "weighted_merge"
)

var (
	// ErrNoSuccessfulProvider means every targeted provider failed; fusion
	// refuses to fabricate an answer.
	ErrNoSuccessfulProvider = errors.New("no successful provider")

	// ErrUnknownStrategy rejects strategy names outside the fixed set.
	ErrUnknownStrategy = errors.New("unknown fusion strategy")
)

// Options tunes a single Fuse call.
type Options struct {
	// LengthBand is the expected [min, max] rune count of a good answer.
	// Zero values fall back to a broad default.
	LengthBand [2]int

	// RequiredMarkers are substrings a complete answer is expected to carry.
	RequiredMarkers []string

	// SynthesisProvider overrides the delegate for the synthesis strategy.
	// Empty selects the first available provider in registration order.
	SynthesisProvider string
}

// Result is the consolidated answer. It is derived data, recomputed from a
// given result set; it holds no provider or cache handles.
type Result struct {
	Text      string             `json:"text"`
	Strategy  Strategy           `json:"strategy"`
	Providers []string           `json:"providers"`
	Scores    map[string]float64 `json:"scores,omitempty"`
}

// Engine reduces dispatch results under a named strategy. best_of and vote
// are pure and deterministic; synthesis performs one further dispatch and
// therefore needs the dispatcher and registry.
type Engine struct {
	registry   *provider.Registry
	dispatcher *dispatch.Dispatcher
	log        *slog.Logger
}

func NewEngine(registry *provider.Registry, dispatcher *dispatch.Dispatcher, log *slog.Logger) *Engine {
	return &Engine{registry: registry, dispatcher: dispatcher, log: log}
}

// Fuse consolidates results into one Result. At least one result must be
// successful or ErrNoSuccessfulProvider is returned.
func (e *Engine) Fuse(ctx context.Context, req dispatch.Request, results []dispatch.ProviderResult, strategy Strategy, opts Options) (Result, error) {
	candidates := successful(results)
	if len(candidates) == 0 {
		return Result{}, ErrNoSuccessfulProvider
	}

	switch strategy {
	case StrategyBestOf, "":
		return bestOf(candidates, opts), nil
	case StrategyVote, strategyWeightedMerge:
		return vote(candidates, opts), nil
	case StrategySynthesis:
		return e.synthesize(ctx, req, candidates, opts), nil
	default:
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownStrategy, strategy)
	}
}

func successful(results []dispatch.ProviderResult) []dispatch.ProviderResult {
	var out []dispatch.ProviderResult
	for _, r := range results {
		if r.Success && r.Response != "" {
			out = append(out, r)
		}
	}
	return out
}

// bestOf scores every candidate and returns the highest-scoring answer
// verbatim. Ties break toward the earliest provider in request order, which
// is preserved by the dispatcher's result ordering.
func bestOf(candidates []dispatch.ProviderResult, opts Options) Result {
	scores := make(map[string]float64, len(candidates))
	best := 0
	for i, c := range candidates {
		s := scoreCandidate(c.Response, opts)
		scores[c.Provider] = s
		if s > scores[candidates[best].Provider] {
			best = i
		}
	}
	return Result{
		Text:      candidates[best].Response,
		Strategy:  StrategyBestOf,
		Providers: []string{candidates[best].Provider},
		Scores:    scores,
	}
}

// vote partitions candidates into paragraph-level segments and keeps, per
// segment, the variant shared by the most candidates. Segments with no
// plurality fall back to the best_of winner's paragraph.
func vote(candidates []dispatch.ProviderResult, opts Options) Result {
	if len(candidates) == 1 {
		r := bestOf(candidates, opts)
		r.Strategy = StrategyVote
		return r
	}

	winner := bestOf(candidates, opts)
	skeleton := paragraphs(winner.Text)

	split := make([][]string, len(candidates))
	for i, c := range candidates {
		split[i] = paragraphs(c.Response)
	}

	fused := make([]string, len(skeleton))
	contributed := make(map[string]bool)
	for seg := range skeleton {
		variant, voters := pluralityVariant(split, seg)
		if len(voters) >= 2 {
			fused[seg] = variant
			for _, v := range voters {
				contributed[candidates[v].Provider] = true
			}
			continue
		}
		fused[seg] = skeleton[seg]
		contributed[winner.Providers[0]] = true
	}

	var providers []string
	for _, c := range candidates {
		if contributed[c.Provider] {
			providers = append(providers, c.Provider)
		}
	}
	return Result{
		Text:      strings.Join(fused, "\n\n"),
		Strategy:  StrategyVote,
		Providers: providers,
	}
}

// pluralityVariant returns the most-shared paragraph at index seg along
// with the candidate indexes that voted for it. Ties break toward the
// earliest candidate's variant.
func pluralityVariant(split [][]string, seg int) (string, []int) {
	votes := make(map[string][]int)
	var order []string
	for i, paras := range split {
		if seg >= len(paras) {
			continue
		}
		key := normalizeSegment(paras[seg])
		if key == "" {
			continue
		}
		if _, seen := votes[key]; !seen {
			order = append(order, key)
		}
		votes[key] = append(votes[key], i)
	}

	bestKey := ""
	for _, key := range order {
		if bestKey == "" || len(votes[key]) > len(votes[bestKey]) {
			bestKey = key
		}
	}
	if bestKey == "" {
		return "", nil
	}
	voters := votes[bestKey]
	// Return the first voter's original (un-normalized) paragraph.
	return split[voters[0]][seg], voters
}

// synthesize asks a delegate provider to re-summarize the candidates. The
// extra call goes through the dispatcher so its own failure degrades
// gracefully to best_of over the original candidates.
func (e *Engine) synthesize(ctx context.Context, req dispatch.Request, candidates []dispatch.ProviderResult, opts Options) Result {
	delegate := opts.SynthesisProvider
	if delegate == "" {
		available := e.registry.ListAvailable()
		if len(available) > 0 {
			delegate = available[0].ID
		}
	}
	if delegate == "" || len(candidates) == 1 {
		r := bestOf(candidates, opts)
		if len(candidates) == 1 {
			r.Strategy = StrategySynthesis
			r.Providers = []string{candidates[0].Provider}
		}
		return r
	}

	subReq := dispatch.Request{
		Prompt:       synthesisPrompt(candidates),
		SystemPrompt: "You are an expert editor. Merge the analyses, keeping the best elements of each.",
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		Providers:    []string{delegate},
		Mode:         dispatch.ModeParallel,
	}
	subResults, err := e.dispatcher.Dispatch(ctx, subReq)
	if err != nil || len(subResults) == 0 || !subResults[0].Success {
		e.log.Warn("synthesis delegate failed, falling back to best_of", "delegate", delegate, "err", err)
		return bestOf(candidates, opts)
	}

	providers := make([]string, 0, len(candidates))
	for _, c := range candidates {
		providers = append(providers, c.Provider)
	}
	return Result{
		Text:      subResults[0].Response,
		Strategy:  StrategySynthesis,
		Providers: providers,
	}
}

// synthesisPrompt lays the candidates out as numbered expert analyses for
// the delegate to merge.
func synthesisPrompt(candidates []dispatch.ProviderResult) string {
	var b strings.Builder
	b.WriteString("Here are several analyses of the same subject by different experts.\n")
	b.WriteString("Merge them, keeping the best elements of each analysis.\n")
	b.WriteString("Present a structured, complete synthesis.\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "\n### Analysis %d (%s):\n%s\n", i+1, c.Provider, c.Response)
	}
	b.WriteString("\n### Merged synthesis:\n")
	return b.String()
}
