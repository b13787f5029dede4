package llm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openevent-ai/conversation-engine/internal/engine/llm"
	"github.com/openevent-ai/conversation-engine/internal/engine/model"
)

func TestGuarded_ClassifyIntent_Success(t *testing.T) {
	p := &mockProvider{classifyResp: &llm.ClassifyResponse{Intent: llm.IntentAcceptance, Confidence: 0.8}}
	g := llm.NewGuarded(p, nil, nil)

	resp, fb := g.ClassifyIntent(context.Background(), "thread-1", llm.ClassifyRequest{Message: "sounds great, let's do it"})
	require.Nil(t, fb)
	require.Equal(t, llm.IntentAcceptance, resp.Intent)
}

func TestGuarded_ClassifyIntent_RateLimited(t *testing.T) {
	p := &mockProvider{classifyResp: &llm.ClassifyResponse{Intent: llm.IntentOther}}
	limiter := llm.NewRateLimiter(1, time.Minute)
	g := llm.NewGuarded(p, limiter, nil)

	_, fb := g.ClassifyIntent(context.Background(), "thread-2", llm.ClassifyRequest{Message: "hi"})
	require.Nil(t, fb)

	_, fb = g.ClassifyIntent(context.Background(), "thread-2", llm.ClassifyRequest{Message: "hi again"})
	require.NotNil(t, fb)
	require.Equal(t, model.SourceIntentClassifier, fb.Source)
	require.Equal(t, "rate_limit", fb.Trigger)
}

func TestGuarded_ClassifyIntent_BudgetExhausted(t *testing.T) {
	p := &mockProvider{classifyResp: &llm.ClassifyResponse{Intent: llm.IntentOther}}
	budget := llm.NewTokenBudget(1)
	g := llm.NewGuarded(p, nil, budget)

	_, fb := g.ClassifyIntent(context.Background(), "thread-3", llm.ClassifyRequest{Message: "hi"})
	require.NotNil(t, fb)
	require.Equal(t, "token_budget_exhausted", fb.Trigger)
}

func TestGuarded_ClassifyIntent_ProviderError(t *testing.T) {
	p := &mockProvider{err: errors.New("upstream exploded")}
	g := llm.NewGuarded(p, nil, nil)

	_, fb := g.ClassifyIntent(context.Background(), "thread-4", llm.ClassifyRequest{Message: "hi"})
	require.NotNil(t, fb)
	require.Equal(t, "llm_exception", fb.Trigger)
	require.ErrorContains(t, fb.Err, "upstream exploded")
}

func TestGuarded_ClassifyIntent_EmptyOutput(t *testing.T) {
	p := &mockProvider{classifyResp: &llm.ClassifyResponse{}}
	g := llm.NewGuarded(p, nil, nil)

	_, fb := g.ClassifyIntent(context.Background(), "thread-5", llm.ClassifyRequest{Message: "hi"})
	require.NotNil(t, fb)
	require.Equal(t, "empty_output", fb.Trigger)
}

func TestGuarded_ExtractEntities_Success(t *testing.T) {
	p := &mockProvider{extractResp: &llm.ExtractResponse{RoomMention: "Garden Room"}}
	g := llm.NewGuarded(p, nil, nil)

	resp, fb := g.ExtractEntities(context.Background(), "thread-6", llm.ExtractRequest{Message: "the garden room please"})
	require.Nil(t, fb)
	require.Equal(t, "Garden Room", resp.RoomMention)
}

func TestGuarded_ExtractEntities_ProviderError(t *testing.T) {
	p := &mockProvider{err: errors.New("timeout")}
	g := llm.NewGuarded(p, nil, nil)

	_, fb := g.ExtractEntities(context.Background(), "thread-7", llm.ExtractRequest{Message: "hi"})
	require.NotNil(t, fb)
	require.Equal(t, model.SourceEntityExtractor, fb.Source)
	require.Equal(t, "llm_exception", fb.Trigger)
}

func TestGuarded_Verbalize_Success(t *testing.T) {
	p := &mockProvider{verbalizeResp: &llm.VerbalizeResponse{Body: "Your booking is confirmed for 14.09.2026."}}
	g := llm.NewGuarded(p, nil, nil)

	resp, fb := g.Verbalize(context.Background(), "thread-8", llm.VerbalizeRequest{StepPromptKey: "confirmation"})
	require.Nil(t, fb)
	require.Contains(t, resp.Body, "14.09.2026")
}

func TestGuarded_Verbalize_EmptyBody(t *testing.T) {
	p := &mockProvider{verbalizeResp: &llm.VerbalizeResponse{Body: "   "}}
	g := llm.NewGuarded(p, nil, nil)

	_, fb := g.Verbalize(context.Background(), "thread-9", llm.VerbalizeRequest{})
	require.NotNil(t, fb)
	require.Equal(t, model.SourceVerbalizer, fb.Source)
	require.Equal(t, "empty_output", fb.Trigger)
}

func TestGuarded_RetriesBeforeFailing(t *testing.T) {
	calls := 0
	p := &countingProvider{
		classify: func() (*llm.ClassifyResponse, error) {
			calls++
			if calls < 2 {
				return nil, errors.New("transient")
			}
			return &llm.ClassifyResponse{Intent: llm.IntentQuestion}, nil
		},
	}
	g := llm.NewGuarded(p, nil, nil)

	resp, fb := g.ClassifyIntent(context.Background(), "thread-10", llm.ClassifyRequest{Message: "what time works?"})
	require.Nil(t, fb)
	require.Equal(t, llm.IntentQuestion, resp.Intent)
	require.Equal(t, 2, calls)
}

func TestGuarded_ConfidenceThresholds(t *testing.T) {
	require.Equal(t, 0.85, llm.HighConfidenceThreshold)
	require.Equal(t, 0.5, llm.MidConfidenceThreshold)
}

// countingProvider lets tests control ClassifyIntent's per-call behavior,
// e.g. to simulate a transient failure recovered by Guarded's retry.
type countingProvider struct {
	classify func() (*llm.ClassifyResponse, error)
}

func (c *countingProvider) ClassifyIntent(_ context.Context, _ llm.ClassifyRequest) (*llm.ClassifyResponse, error) {
	return c.classify()
}
func (c *countingProvider) ExtractEntities(_ context.Context, _ llm.ExtractRequest) (*llm.ExtractResponse, error) {
	return nil, nil
}
func (c *countingProvider) Verbalize(_ context.Context, _ llm.VerbalizeRequest) (*llm.VerbalizeResponse, error) {
	return nil, nil
}

var _ llm.Provider = (*countingProvider)(nil)
