package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 20 * time.Second
)

// Config configures the OpenAI-compatible adapter.
type Config struct {
	APIKey string

	// BaseURL overrides the API endpoint — useful for local models or any
	// other OpenAI-compatible endpoint. Defaults to the public OpenAI API.
	BaseURL string

	// Model is the chat model used for all three adapter calls.
	Model string

	Timeout time.Duration
}

// openAIProvider implements Provider via the OpenAI chat completions API in
// JSON mode, giving a parseable structured response for each adapter call.
type openAIProvider struct {
	cfg    Config
	client *http.Client
}

// New returns a Provider backed by the OpenAI (or compatible) chat API.
// The returned provider is safe for concurrent use.
func New(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &openAIProvider{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiRequest struct {
	Model          string       `json:"model"`
	Messages       []oaiMessage `json:"messages"`
	MaxTokens      int          `json:"max_tokens,omitempty"`
	ResponseFormat *oaiFormat   `json:"response_format,omitempty"`
}

type oaiFormat struct {
	Type string `json:"type"`
}

type oaiResponse struct {
	Choices []oaiChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type oaiChoice struct {
	Message      oaiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

// complete issues one JSON-mode chat completion and decodes the response
// content into out. Shared by all three adapter calls below.
func (p *openAIProvider) complete(ctx context.Context, system, user string, maxTokens int, out any) error {
	body := oaiRequest{
		Model: p.cfg.Model,
		Messages: []oaiMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:      maxTokens,
		ResponseFormat: &oaiFormat{Type: "json_object"},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("llm: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("llm: create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("llm: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("llm: read response body: %w", err)
	}

	var oaiResp oaiResponse
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		return fmt.Errorf("llm: decode api response: %w", err)
	}
	if oaiResp.Error != nil {
		return fmt.Errorf("llm: api error (%s): %s", oaiResp.Error.Type, oaiResp.Error.Message)
	}
	if len(oaiResp.Choices) == 0 {
		return fmt.Errorf("llm: no choices returned (http %d)", resp.StatusCode)
	}

	content := oaiResp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("llm: decode json content: %w (raw: %.200s)", err, content)
	}
	return nil
}

const classifySystemTmpl = `You classify an inbound venue-booking message into one intent.
Conversation so far:
%s

Current workflow step: %d

Respond ONLY with JSON:
{"intent":"event_request|question|acceptance|rejection|counter_offer|change_request|other",
 "intent_detail":"<short label>","confidence":0.0-1.0,
 "is_question":bool,"is_acceptance":bool,"is_rejection":bool,"is_counter":bool,
 "is_change_request":bool,"is_general":bool}

Rules:
- "is_question" must be true whenever the message asks the reader something, even if it also
  states an acceptance or a counter-offer (hybrid messages keep both signals).
- Never invent an intent_detail that isn't grounded in the message text.
- If unsure, set intent="other" and confidence below 0.5.`

func (p *openAIProvider) ClassifyIntent(ctx context.Context, req ClassifyRequest) (*ClassifyResponse, error) {
	system := fmt.Sprintf(classifySystemTmpl, req.Transcript, req.CurrentStep)
	var out ClassifyResponse
	if err := p.complete(ctx, system, req.Message, 256, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

const extractSystemTmpl = `You extract structured booking details from a message.
Current workflow step: %d
Known rooms: %s
Known products: %s

Respond ONLY with JSON:
{"dates":["YYYY-MM-DD",...],"times":["HH:MM",...],"room_mention":"<room name or empty>",
 "products_add":["<product name>",...],"participants_count":<int or 0>,"confidence":0.0-1.0}

Only reference room or product names from the known lists above; never invent one.`

func (p *openAIProvider) ExtractEntities(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	rooms := strings.Join(req.KnownRoomNames, ", ")
	if rooms == "" {
		rooms = "(none)"
	}
	products := strings.Join(req.KnownProductNames, ", ")
	if products == "" {
		products = "(none)"
	}
	system := fmt.Sprintf(extractSystemTmpl, req.CurrentStep, rooms, products)
	var out ExtractResponse
	if err := p.complete(ctx, system, req.Message, 256, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

const verbalizeSystemTmpl = `You rewrite a factual booking message into natural prose for a venue's client.

Tone: %s
Prompt angle: %s

Facts you MUST include, verbatim, and MUST NOT alter or omit:
Dates: %s
Amounts: %s
Rooms: %s
Time windows: %s
Participant counts: %s

Never invent a date, amount, room name, time window, or participant count beyond what is listed above.
Respond ONLY with JSON: {"body":"<rendered message>"}`

func (p *openAIProvider) Verbalize(ctx context.Context, req VerbalizeRequest) (*VerbalizeResponse, error) {
	tone := req.Tone
	if tone == "" {
		tone = "empathetic"
	}
	participants := make([]string, len(req.Participants))
	for i, n := range req.Participants {
		participants[i] = strconv.Itoa(n)
	}
	system := fmt.Sprintf(verbalizeSystemTmpl, tone, req.StepPromptKey,
		strings.Join(req.Dates, ", "), strings.Join(req.Amounts, ", "),
		strings.Join(req.RoomNames, ", "), strings.Join(req.TimeWindows, ", "),
		strings.Join(participants, ", "))

	var out VerbalizeResponse
	if err := p.complete(ctx, system, "Rewrite the above facts into a client-facing reply.", 400, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
