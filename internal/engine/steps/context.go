// Package steps implements the seven Step Handlers (C6): intake, date
// confirmation, room availability, offer preparation, negotiation close,
// transition checkpoint, and event confirmation. Every handler follows the
// same shape — guard, detour check, deterministic extraction, optional LLM
// extraction, draft production, verbalization, state persistence, exit
// decision — and returns a model.StepDecision so the orchestrator owns all
// control flow.
package steps

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/openevent-ai/conversation-engine/internal/engine/catalog"
	"github.com/openevent-ai/conversation-engine/internal/engine/llm"
	"github.com/openevent-ai/conversation-engine/internal/engine/store"
	"github.com/openevent-ai/conversation-engine/internal/engine/verbalize"
)

// Context bundles every collaborator a step handler may need. A single
// Context is constructed once at startup and shared across all handlers and
// all conversations.
type Context struct {
	Venue      *catalog.Venue
	Config     catalog.ConfigStore
	Store      *store.Store
	LLM        *llm.Guarded
	Verbalizer *verbalize.Verbalizer
	Now        func() time.Time

	// Env selects the fallback-diagnostic verbosity: "dev", "staging", or
	// "prod" (§6, §4.2). Empty behaves like a non-prod environment.
	Env string
	// FallbackDiagnostics forces verbose fallback diagnostics even in prod
	// (OE_FALLBACK_DIAGNOSTICS, §6).
	FallbackDiagnostics bool
}

// now returns hc.Now(), defaulting to time.Now when unset (tests only — a
// wired Context always sets Now explicitly).
func (hc *Context) now() time.Time {
	if hc.Now != nil {
		return hc.Now()
	}
	return time.Now()
}

// hashRequirements derives Event.RequirementsHash from the normalized set of
// capacity/layout/product requirements. Equal inputs always hash equal
// regardless of product ordering, so a pure reordering is never mistaken for
// a requirements change.
func hashRequirements(participants int, seatingLayout string, products []string) string {
	sorted := append([]string(nil), products...)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(seatingLayout))
	h.Write([]byte{0})
	for _, p := range sorted {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	h.Write([]byte{byte(participants), byte(participants >> 8)})
	return hex.EncodeToString(h.Sum(nil))
}

// normalizeApostrophes replaces curly single quotes with a plain apostrophe
// so "that's fine" and "that's fine" (curly) match the same pattern.
func normalizeApostrophes(s string) string {
	return strings.NewReplacer("‘", "'", "’", "'").Replace(s)
}

// resolveThresholds loads confidence thresholds from hc.Config, falling back
// to the compiled-in defaults when hc or its config store is unset (tests).
func resolveThresholds(ctx context.Context, hc *Context) catalog.Thresholds {
	if hc == nil || hc.Config == nil {
		return catalog.DefaultThresholds()
	}
	return catalog.LoadThresholds(ctx, hc.Config)
}

// Input carries the raw inbound message text alongside the unified signal
// bundle every handler reads instead of re-deriving signals from text.
type Input struct {
	Message    string
	Transcript string
}

