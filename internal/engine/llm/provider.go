// Package llm implements the three LLM Adapters (C2): intent classification,
// entity/fact extraction, and prose verbalization. Every call degrades to a
// model.FallbackReason on timeout, malformed output, or a failed safety
// check — callers never block on the network and never surface raw LLM
// errors to a client.
package llm

import "context"

// Intent is the high-level category an inbound message is classified into.
type Intent string

const (
	IntentEventRequest   Intent = "event_request"
	IntentQuestion       Intent = "question"
	IntentAcceptance     Intent = "acceptance"
	IntentRejection      Intent = "rejection"
	IntentCounterOffer   Intent = "counter_offer"
	IntentChangeRequest  Intent = "change_request"
	IntentOther          Intent = "other"
)

// ClassifyRequest is the input to an intent-classification call.
type ClassifyRequest struct {
	Message      string
	Transcript   string // recent conversation window, oldest-first
	CurrentStep  int
	DetailLabel  string // hint for intent_detail, e.g. prior turn's label
}

// ClassifyResponse is the structured output of intent classification.
type ClassifyResponse struct {
	Intent       Intent  `json:"intent"`
	IntentDetail string  `json:"intent_detail,omitempty"`
	Confidence   float64 `json:"confidence"`

	// The following are coarse detection hints the caller folds into
	// UnifiedSignals alongside its own regex/keyword pass.
	IsQuestion        bool `json:"is_question,omitempty"`
	IsAcceptance      bool `json:"is_acceptance,omitempty"`
	IsRejection       bool `json:"is_rejection,omitempty"`
	IsCounterOffer    bool `json:"is_counter,omitempty"`
	IsChangeRequest   bool `json:"is_change_request,omitempty"`
	IsGeneral         bool `json:"is_general,omitempty"`
}

// ExtractRequest is the input to the entity/fact-extraction call — pulling
// structured values (dates, times, room preferences, product mentions) out
// of free text that deterministic regex matching left ambiguous.
type ExtractRequest struct {
	Message     string
	CurrentStep int
	// KnownRoomNames and KnownProductNames ground the extraction so the
	// model only ever references catalog entries that actually exist.
	KnownRoomNames    []string
	KnownProductNames []string
}

// ExtractResponse is the structured output of entity extraction.
type ExtractResponse struct {
	Dates             []string `json:"dates,omitempty"`             // ISO YYYY-MM-DD
	Times             []string `json:"times,omitempty"`              // HH:MM
	RoomMention       string   `json:"room_mention,omitempty"`
	ProductsAdd       []string `json:"products_add,omitempty"`
	ParticipantsCount int      `json:"participants_count,omitempty"`
	Confidence        float64  `json:"confidence"`
}

// VerbalizeRequest is the input to the prose-rendering call. Facts is the
// deterministic step handler's factual payload (model.FactsBundle, passed as
// its field values to avoid an import cycle with the model package at the
// adapter layer — callers populate these from a model.FactsBundle).
type VerbalizeRequest struct {
	StepPromptKey string // "date_empathy" | "room_recommendation" | "offer_justify" | "negotiation_acknowledge" | "confirmation_celebrate" | "plain"
	Dates         []string
	Amounts       []string
	RoomNames     []string
	TimeWindows   []string
	Participants  []int
	Tone          string // "empathetic" | "plain"
}

// VerbalizeResponse is the rendered prose plus the facts the model actually
// used, so the safety verifier can diff against what was supplied.
type VerbalizeResponse struct {
	Body string `json:"body"`
}

// Provider is the LLM adapter surface. Implementations must be safe for
// concurrent use and must never panic on malformed upstream output — return
// an error instead so the caller can fail closed.
type Provider interface {
	ClassifyIntent(ctx context.Context, req ClassifyRequest) (*ClassifyResponse, error)
	ExtractEntities(ctx context.Context, req ExtractRequest) (*ExtractResponse, error)
	Verbalize(ctx context.Context, req VerbalizeRequest) (*VerbalizeResponse, error)
}
