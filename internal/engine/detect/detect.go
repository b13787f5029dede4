// Package detect implements Unified Detection (C3): it merges pre-filter
// heuristics, regex/keyword matchers, and LLM intent classification into one
// model.UnifiedSignals bundle per inbound message, so every downstream step
// handler and the change-propagation router reads exactly one signal shape
// instead of re-deriving it from raw text.
package detect

import (
	"context"
	"regexp"
	"strings"

	"github.com/openevent-ai/conversation-engine/internal/engine/llm"
	"github.com/openevent-ai/conversation-engine/internal/engine/model"
)

// quotedLinePrefixes strips quoted email history before any regex runs
// against the body, so a reply-with-quote never re-triggers signals that
// belong to the message being replied to.
var quotedLinePrefixes = regexp.MustCompile(`(?m)^\s*>.*$`)

// StripQuotedHistory removes quoted lines (leading ">") from body.
func StripQuotedHistory(body string) string {
	return strings.TrimSpace(quotedLinePrefixes.ReplaceAllString(body, ""))
}

var (
	singleWordInterrogatives = map[string]bool{
		"what": true, "which": true, "when": true, "where": true, "who": true, "how": true,
	}

	acknowledgmentPattern = regexp.MustCompile(`(?i)^\s*(thanks|thank you|ok(ay)?(,)?\s*noted|got it|noted|sounds good)\s*[.!]*\s*$`)

	roomChoiceTokenPattern = regexp.MustCompile(`(?i)proceed with room\b|is room\s+\S+\s+available\??`)

	acceptancePattern = regexp.MustCompile(`(?i)\b(yes|sounds? (great|good)|that('s| is) (fine|great|good)|let'?s do it|go ahead|works for (us|me))\b`)
	rejectionPattern  = regexp.MustCompile(`(?i)\b(no(,)? thanks|not interested|won'?t work|decline|cancel)\b`)

	billingKeywordPattern = regexp.MustCompile(`(?i)\b(billing address|invoice address|vat number|company name|deposit|bank transfer|payment (made|sent|received))\b`)
	depositPaidPattern    = regexp.MustCompile(`(?i)\b(deposit (is )?paid|paid the deposit|transferred the deposit|sent the deposit)\b`)

	qnaKeywordPatterns = map[string]*regexp.Regexp{
		"catering":           regexp.MustCompile(`(?i)\b(catering|menu|food|drinks?)\b`),
		"pricing":            regexp.MustCompile(`(?i)\b(price|cost|how much|rate)\b`),
		"parking":            regexp.MustCompile(`(?i)\bparking\b`),
		"site_visit_request": regexp.MustCompile(`(?i)\b(site visit|visit the venue|come (and )?(see|view) the (room|venue))\b`),
	}
)

// Detector assembles UnifiedSignals from an LLM provider plus the regex/
// keyword layer. It fails closed: a classifier fallback never blocks
// detection, it just means the regex layer carries more weight for the
// question/acceptance/rejection signals.
type Detector struct {
	provider *llm.Guarded
}

// New returns a Detector backed by provider. provider may be nil, in which
// case detection runs on the regex/keyword layer alone (used in tests and
// when DETECTION_MODE forces a plain/no-LLM run).
func New(provider *llm.Guarded) *Detector {
	return &Detector{provider: provider}
}

// Input is everything Detect needs about the inbound message and the
// conversation it belongs to.
type Input struct {
	ThreadID    string
	Message     string
	Transcript  string
	CurrentStep model.Step
}

// Detect produces the UnifiedSignals bundle for one inbound message,
// applying the rules in §4.3.
func (d *Detector) Detect(ctx context.Context, in Input) model.UnifiedSignals {
	clean := StripQuotedHistory(in.Message)

	sig := model.UnifiedSignals{
		IsAcceptance:  hasAcceptanceSignal(clean),
		IsRejection:   rejectionPattern.MatchString(clean),
		BillingSignal: billingKeywordPattern.MatchString(clean),
	}
	sig.DepositJustPaid = depositPaidPattern.MatchString(clean)
	if sig.DepositJustPaid {
		sig.BillingSignal = true
	}

	acknowledged := acknowledgmentPattern.MatchString(clean)
	keywordQuestion := hasKeywordQuestionSignal(clean)
	sig.QnATypes = matchQnATypes(clean)

	llmAvailable := false
	if d.provider != nil {
		resp, fb := d.provider.ClassifyIntent(ctx, in.ThreadID, llm.ClassifyRequest{
			Message:     clean,
			Transcript:  in.Transcript,
			CurrentStep: int(in.CurrentStep),
		})
		if fb != nil {
			sig.Fallback = fb
		} else {
			applyLLMClassification(&sig, resp)
			llmAvailable = true
		}
	}

	// LLM is_question wins over keyword Q&A matches: keyword-based Q&A types
	// are retained only if the LLM agrees, or the LLM produced Q&A types of
	// its own (§4.3). Without a usable LLM signal (no provider, or it failed
	// closed), the keyword-derived question signal is all we have.
	if !llmAvailable {
		sig.IsQuestion = keywordQuestion
	} else if !sig.IsQuestion && len(sig.QnATypes) > 0 {
		sig.QnATypes = nil
	}

	// Acknowledgments short-circuit Q&A, but never override an explicit
	// acceptance+question hybrid.
	if acknowledged && !sig.IsQuestion {
		sig.QnATypes = nil
	}

	if roomChoiceTokenPattern.MatchString(clean) {
		sig.IsAcceptance = false
	}

	if sig.Intent == "" {
		sig.Intent = model.IntentOther
	}
	sig.LLMAvailable = llmAvailable
	return sig
}

// hasAcceptanceSignal recognizes an acceptance statement even in a hybrid
// "accept + ask" message, where the acceptance appears before a "?" and the
// question after it (§4.3).
func hasAcceptanceSignal(clean string) bool {
	if q := strings.Index(clean, "?"); q >= 0 {
		return acceptancePattern.MatchString(clean[:q])
	}
	return acceptancePattern.MatchString(clean)
}

// hasKeywordQuestionSignal implements the single-word-interrogative rule:
// triggers only if the message has a "?" or the interrogative is
// sentence-initial (§4.3).
func hasKeywordQuestionSignal(clean string) bool {
	if strings.Contains(clean, "?") {
		return true
	}
	fields := strings.Fields(strings.ToLower(clean))
	if len(fields) == 0 {
		return false
	}
	first := strings.Trim(fields[0], ".,!;:")
	return singleWordInterrogatives[first]
}

// matchQnATypes returns the keyword-matched Q&A categories present in clean.
func matchQnATypes(clean string) []string {
	var types []string
	for name, re := range qnaKeywordPatterns {
		if re.MatchString(clean) {
			types = append(types, name)
		}
	}
	return types
}

// applyLLMClassification copies the adapter's response fields onto sig.
func applyLLMClassification(sig *model.UnifiedSignals, resp *llm.ClassifyResponse) {
	sig.Intent = mapIntent(resp.Intent)
	sig.IntentDetail = resp.IntentDetail
	sig.Confidence = resp.Confidence
	sig.IsQuestion = resp.IsQuestion
	sig.IsGeneral = resp.IsGeneral
	sig.IsCounterOffer = resp.IsCounterOffer
	sig.IsChangeRequest = resp.IsChangeRequest

	// Confirmation language does not suppress Q&A: both acceptance and
	// question signals are preserved for hybrid messages (§4.3).
	if resp.IsAcceptance {
		sig.IsAcceptance = true
	}
	if resp.IsRejection {
		sig.IsRejection = true
	}

	// When the LLM extracts a concrete date/time, force is_general=false so
	// a confirmed date doesn't get deferred to a generic Q&A response
	// (§4.6.2 hybrid-message override).
	if sig.StartTime != "" || sig.EndTime != "" {
		sig.IsGeneral = false
	}
}

func mapIntent(i llm.Intent) model.Intent {
	switch i {
	case llm.IntentEventRequest:
		return model.IntentEventRequest
	case llm.IntentChangeRequest:
		return model.IntentChangeRequest
	case llm.IntentCounterOffer:
		return model.IntentNegotiation
	default:
		return model.IntentOther
	}
}
