package conversation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/openevent-ai/conversation-engine/internal/engine/model"
)

// DefaultMaxContextTokens bounds how much of a Conversation's message_history
// feeds the context hash and the LLM-facing context window.
const DefaultMaxContextTokens = 4000

// ContextAssembler builds the bounded context snapshot used for Client's
// ContextHash and for LLM prompt assembly. The long-term embedding-search
// half of the original memory assembler (LTM, Embedder) has no analogue
// here: a booking thread has one client and one active conversation, never
// a corpus of sealed past conversations to search, so only the short-term,
// token-budgeted half survives.
type ContextAssembler struct {
	MaxTokens int
}

// NewContextAssembler returns an assembler with the given token budget,
// falling back to DefaultMaxContextTokens when maxTokens <= 0.
func NewContextAssembler(maxTokens int) *ContextAssembler {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxContextTokens
	}
	return &ContextAssembler{MaxTokens: maxTokens}
}

// Window returns the trailing slice of conv.MessageHistory that fits within
// the assembler's token budget, oldest-first.
func (a *ContextAssembler) Window(_ context.Context, conv *model.Conversation) []model.HistoryEntry {
	if conv == nil || len(conv.MessageHistory) == 0 {
		return nil
	}
	if estimateTokens(conv.MessageHistory) <= a.MaxTokens {
		return conv.MessageHistory
	}
	return trimToTokenBudget(conv.MessageHistory, a.MaxTokens)
}

// Hash computes a deterministic context hash over the windowed history, for
// Client.ContextHash — a cheap fingerprint managers can compare across
// conversations without re-reading the full thread.
func (a *ContextAssembler) Hash(ctx context.Context, conv *model.Conversation) string {
	window := a.Window(ctx, conv)
	h := sha256.New()
	for _, e := range window {
		h.Write([]byte(string(e.Role)))
		h.Write([]byte{0})
		h.Write([]byte(e.Preview))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatInt(e.Timestamp.Unix(), 10)))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// FormatTranscript renders window as a plain-text transcript suitable for
// inclusion in an LLM prompt, one "role: body" line per turn.
func FormatTranscript(window []model.HistoryEntry) string {
	var b strings.Builder
	for _, e := range window {
		b.WriteString(string(e.Role))
		b.WriteString(": ")
		b.WriteString(e.Body)
		b.WriteString("\n")
	}
	return b.String()
}

// StaleSince reports whether conv has had no activity since the given
// duration elapsed relative to now — used by the HIL expiry sweep and by
// diagnostics only; a booking thread has no seal/reseal lifecycle of its own.
func StaleSince(conv *model.Conversation, now time.Time, d time.Duration) bool {
	if conv == nil {
		return false
	}
	return now.Sub(conv.UpdatedAt) > d
}
