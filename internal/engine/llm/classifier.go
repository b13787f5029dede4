package llm

import (
	"context"
	"strings"
	"time"

	"github.com/openevent-ai/conversation-engine/common/retry"
	"github.com/openevent-ai/conversation-engine/internal/engine/model"
)

// Guarded wraps a Provider with per-thread rate limiting, a daily token
// budget, retry-with-backoff, and fail-closed degradation: any adapter
// error, timeout, or rate/budget exhaustion returns a model.FallbackReason
// instead of propagating the raw error, so callers always get a value they
// can act on (use the deterministic template, or raise manual review).
type Guarded struct {
	provider Provider
	limiter  *RateLimiter
	budget   *TokenBudget
	retryCfg retry.Config
}

// NewGuarded wraps provider with the given rate limiter and token budget.
// Pass nil for either to use the package defaults.
func NewGuarded(provider Provider, limiter *RateLimiter, budget *TokenBudget) *Guarded {
	if limiter == nil {
		limiter = NewRateLimiter(DefaultRateLimit, time.Minute)
	}
	if budget == nil {
		budget = NewTokenBudget(DefaultTokenBudget)
	}
	return &Guarded{
		provider: provider,
		limiter:  limiter,
		budget:   budget,
		retryCfg: retry.Config{MaxAttempts: 2, InitialDelay: 300 * time.Millisecond, MaxDelay: 2 * time.Second},
	}
}

// estimateRequestTokens is a rough per-call token accounting heuristic used
// only to debit the daily budget, not to size any wire request.
const estimateRequestTokens = 400

// ClassifyIntent classifies an inbound message, failing closed to a
// model.FallbackReason when the thread is rate- or budget-limited, the
// adapter call errors out after retries, or the result is empty.
func (g *Guarded) ClassifyIntent(ctx context.Context, threadID string, req ClassifyRequest) (*ClassifyResponse, *model.FallbackReason) {
	if !g.limiter.Allow(threadID) {
		return nil, &model.FallbackReason{Source: model.SourceIntentClassifier, Trigger: "rate_limit"}
	}
	if !g.budget.Allow(threadID) {
		return nil, &model.FallbackReason{Source: model.SourceIntentClassifier, Trigger: "token_budget_exhausted"}
	}

	var resp *ClassifyResponse
	err := retry.Do(ctx, g.retryCfg, func() error {
		r, err := g.provider.ClassifyIntent(ctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, &model.FallbackReason{Source: model.SourceIntentClassifier, Trigger: "llm_exception", Err: err}
	}
	if resp == nil || resp.Intent == "" {
		return nil, &model.FallbackReason{Source: model.SourceIntentClassifier, Trigger: "empty_output"}
	}

	g.budget.RecordUsage(threadID, estimateRequestTokens)
	return resp, nil
}

// ExtractEntities extracts structured facts from a message, failing closed
// under the same conditions as ClassifyIntent.
func (g *Guarded) ExtractEntities(ctx context.Context, threadID string, req ExtractRequest) (*ExtractResponse, *model.FallbackReason) {
	if !g.limiter.Allow(threadID) {
		return nil, &model.FallbackReason{Source: model.SourceEntityExtractor, Trigger: "rate_limit"}
	}
	if !g.budget.Allow(threadID) {
		return nil, &model.FallbackReason{Source: model.SourceEntityExtractor, Trigger: "token_budget_exhausted"}
	}

	var resp *ExtractResponse
	err := retry.Do(ctx, g.retryCfg, func() error {
		r, err := g.provider.ExtractEntities(ctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, &model.FallbackReason{Source: model.SourceEntityExtractor, Trigger: "llm_exception", Err: err}
	}
	if resp == nil {
		return nil, &model.FallbackReason{Source: model.SourceEntityExtractor, Trigger: "empty_output"}
	}

	g.budget.RecordUsage(threadID, estimateRequestTokens)
	return resp, nil
}

// Verbalize renders facts into prose, failing closed under the same
// conditions. Callers should fall back to a deterministic template on a
// non-nil FallbackReason (§4.5 step 3).
func (g *Guarded) Verbalize(ctx context.Context, threadID string, req VerbalizeRequest) (*VerbalizeResponse, *model.FallbackReason) {
	if !g.limiter.Allow(threadID) {
		return nil, &model.FallbackReason{Source: model.SourceVerbalizer, Trigger: "rate_limit"}
	}
	if !g.budget.Allow(threadID) {
		return nil, &model.FallbackReason{Source: model.SourceVerbalizer, Trigger: "token_budget_exhausted"}
	}

	var resp *VerbalizeResponse
	err := retry.Do(ctx, g.retryCfg, func() error {
		r, err := g.provider.Verbalize(ctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, &model.FallbackReason{Source: model.SourceVerbalizer, Trigger: "llm_exception", Err: err}
	}
	if resp == nil || strings.TrimSpace(resp.Body) == "" {
		return nil, &model.FallbackReason{Source: model.SourceVerbalizer, Trigger: "empty_output"}
	}

	g.budget.RecordUsage(threadID, estimateRequestTokens)
	return resp, nil
}

// HighConfidenceThreshold and MidConfidenceThreshold mirror
// catalog.DefaultThresholds — duplicated here as package-level fallbacks for
// callers that construct a Guarded without a ConfigStore at hand.
const (
	HighConfidenceThreshold = 0.85
	MidConfidenceThreshold  = 0.5
)
