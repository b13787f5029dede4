// Package verbalize implements the Verbalizer + Safety Verifier (C5): it
// renders a deterministic facts bundle into client-facing prose via the LLM
// Verbalizer adapter, then verifies that every hard fact survived the
// rewrite unaltered and that no fact was invented. A failed verification
// gets one patch attempt; if that still fails, the deterministic body is
// used verbatim.
package verbalize

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/openevent-ai/conversation-engine/internal/engine/llm"
	"github.com/openevent-ai/conversation-engine/internal/engine/model"
)

// Tone selects the verbalizer's register.
type Tone string

const (
	TonePlain       Tone = "plain"
	ToneEmpathetic  Tone = "empathetic"
)

// DefaultTone is empathetic in production; callers force TonePlain in
// CI/tests for deterministic output, or via an env-level override when the
// LLM is unavailable (§4.5).
const DefaultTone = ToneEmpathetic

// unitAliases groups interchangeable unit phrasings into one equivalence
// class so neither side of a comparison is penalized for using the other
// (§4.5): "per person" ↔ "per guest", "per event" ↔ "per booking".
var unitAliases = map[string]string{
	"per person": "per-head",
	"per guest":  "per-head",
	"per event":  "per-booking",
	"per booking": "per-booking",
}

func normalizeUnit(s string) string {
	lower := strings.ToLower(s)
	for phrase, class := range unitAliases {
		lower = strings.ReplaceAll(lower, phrase, class)
	}
	return lower
}

// Verbalizer renders a model.Draft's facts bundle into prose via the LLM
// adapter, with safety verification and deterministic fallback.
type Verbalizer struct {
	provider *llm.Guarded
	tone     Tone
}

// New returns a Verbalizer. tone == "" defaults to DefaultTone.
func New(provider *llm.Guarded, tone Tone) *Verbalizer {
	if tone == "" {
		tone = DefaultTone
	}
	return &Verbalizer{provider: provider, tone: tone}
}

// stepPromptKeys maps a workflow step to its verbalization angle (§4.5).
var stepPromptKeys = map[model.Step]string{
	model.StepDate:         "choose_date_empathy",
	model.StepRoom:         "lead_with_recommendation",
	model.StepOffer:        "justify_total",
	model.StepNegotiation:  "acknowledge",
	model.StepConfirmation: "celebrate",
}

// Render produces the client-facing body for draft at step. On any adapter
// failure, or a verification failure that survives one patch attempt, it
// returns draft.Body (the deterministic template) unchanged, alongside the
// model.FallbackReason that triggered it (nil when the LLM rewrite was used
// as-is) so the caller can record a diagnostic (§4.2, §7).
func (v *Verbalizer) Render(ctx context.Context, threadID string, step model.Step, draft *model.Draft) (string, *model.FallbackReason) {
	if v.provider == nil || draft == nil {
		return draftBody(draft), nil
	}

	promptKey := stepPromptKeys[step]
	req := llm.VerbalizeRequest{
		StepPromptKey: promptKey,
		Dates:         draft.Facts.Dates,
		Amounts:       draft.Facts.Amounts,
		RoomNames:     draft.Facts.RoomNames,
		TimeWindows:   draft.Facts.TimeWindows,
		Participants:  draft.Facts.ParticipantCounts,
		Tone:          string(v.tone),
	}

	resp, fb := v.provider.Verbalize(ctx, threadID, req)
	if fb != nil {
		slog.Debug("verbalize: adapter fallback, using deterministic body", "trigger", fb.Trigger)
		return draft.Body, fb
	}

	missing, invented := Verify(draft.Facts, resp.Body)
	if len(missing) == 0 && len(invented) == 0 {
		return resp.Body, nil
	}

	patched, ok := patch(resp.Body, draft.Facts, missing, invented)
	if ok {
		return patched, nil
	}

	slog.Warn("verbalize: verification failed after patch, falling back to deterministic body",
		"missing", missing, "invented", invented)
	return draft.Body, &model.FallbackReason{
		Source:       model.SourceVerbalizer,
		Trigger:      "verification_failed",
		FailedChecks: append(append([]string{}, missing...), invented...),
	}
}

func draftBody(draft *model.Draft) string {
	if draft == nil {
		return ""
	}
	return draft.Body
}

// Verify extracts hard facts from rendered and reports which of facts'
// dates/amounts/rooms/time-windows/participant-counts are missing, and which
// fact-shaped substrings in rendered are not grounded in facts ("invented").
// Unit aliases are folded to one equivalence class before comparison (§4.5).
func Verify(facts model.FactsBundle, rendered string) (missing, invented []string) {
	for _, d := range facts.Dates {
		if !strings.Contains(rendered, d) {
			missing = append(missing, d)
		}
	}
	for _, a := range facts.Amounts {
		if !containsNormalized(rendered, a) {
			missing = append(missing, a)
		}
	}
	for _, r := range facts.RoomNames {
		if !strings.Contains(rendered, r) {
			missing = append(missing, r)
		}
	}
	for _, w := range facts.TimeWindows {
		if !strings.Contains(rendered, w) {
			missing = append(missing, w)
		}
	}
	for _, n := range facts.ParticipantCounts {
		if !containsIntExact(rendered, n) {
			missing = append(missing, strconv.Itoa(n))
		}
	}

	for _, foundDate := range datePattern.FindAllString(rendered, -1) {
		if !containsExact(facts.Dates, foundDate) {
			invented = append(invented, foundDate)
		}
	}
	for _, foundAmount := range amountPattern.FindAllString(rendered, -1) {
		if !containsAmountNormalized(facts.Amounts, foundAmount) {
			invented = append(invented, foundAmount)
		}
	}
	for _, foundWindow := range timeWindowPattern.FindAllString(rendered, -1) {
		if !containsExact(facts.TimeWindows, foundWindow) {
			invented = append(invented, foundWindow)
		}
	}
	for _, m := range participantPattern.FindAllStringSubmatch(rendered, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if !containsIntList(facts.ParticipantCounts, n) {
			invented = append(invented, m[0])
		}
	}
	return missing, invented
}

var (
	datePattern        = regexp.MustCompile(`\b\d{2}\.\d{2}\.\d{4}\b`)
	amountPattern      = regexp.MustCompile(`\bCHF\s?\d+(?:[.,]\d{2})?(?:\s+per[\w\s-]*)?\b`)
	timeWindowPattern  = regexp.MustCompile(`\b\d{2}:\d{2}\s?[-–]\s?\d{2}:\d{2}\b`)
	participantPattern = regexp.MustCompile(`(?i)\b(\d+)\s+(?:guests?|participants?|people|attendees?)\b`)
)

func containsExact(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsIntExact(rendered string, n int) bool {
	return strings.Contains(rendered, strconv.Itoa(n))
}

func containsIntList(list []int, n int) bool {
	for _, v := range list {
		if v == n {
			return true
		}
	}
	return false
}

func containsNormalized(rendered, amount string) bool {
	return strings.Contains(normalizeUnit(rendered), normalizeUnit(amount))
}

func containsAmountNormalized(list []string, s string) bool {
	target := normalizeUnit(s)
	for _, v := range list {
		if normalizeUnit(v) == target {
			return true
		}
	}
	return false
}

// patch attempts to repair a rendered body by appending any missing facts
// verbatim — e.g. a missing unit after its price — and re-verifying. It
// never attempts to strip invented facts (that would require guessing what
// the model meant); an invented fact always falls through to the
// deterministic template (§4.5).
func patch(rendered string, facts model.FactsBundle, missing, invented []string) (string, bool) {
	if len(invented) > 0 {
		return rendered, false
	}
	if len(missing) == 0 {
		return rendered, true
	}
	var b strings.Builder
	b.WriteString(rendered)
	for _, m := range missing {
		fmt.Fprintf(&b, " %s", m)
	}
	patched := b.String()

	stillMissing, stillInvented := Verify(facts, patched)
	if len(stillMissing) == 0 && len(stillInvented) == 0 {
		return patched, true
	}
	return rendered, false
}
