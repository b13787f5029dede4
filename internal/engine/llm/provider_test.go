package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openevent-ai/conversation-engine/internal/engine/llm"
)

// mockProvider is a test double for llm.Provider.
type mockProvider struct {
	classifyResp *llm.ClassifyResponse
	extractResp  *llm.ExtractResponse
	verbalizeResp *llm.VerbalizeResponse
	err          error
	captured     llm.ClassifyRequest
}

func (m *mockProvider) ClassifyIntent(_ context.Context, req llm.ClassifyRequest) (*llm.ClassifyResponse, error) {
	m.captured = req
	return m.classifyResp, m.err
}
func (m *mockProvider) ExtractEntities(_ context.Context, _ llm.ExtractRequest) (*llm.ExtractResponse, error) {
	return m.extractResp, m.err
}
func (m *mockProvider) Verbalize(_ context.Context, _ llm.VerbalizeRequest) (*llm.VerbalizeResponse, error) {
	return m.verbalizeResp, m.err
}

var _ llm.Provider = (*mockProvider)(nil)

func TestMockProvider_ClassifyIntent(t *testing.T) {
	want := &llm.ClassifyResponse{Intent: llm.IntentEventRequest, Confidence: 0.95}
	p := &mockProvider{classifyResp: want}

	got, err := p.ClassifyIntent(context.Background(), llm.ClassifyRequest{Message: "we'd like to book a room"})
	require.NoError(t, err)
	require.Equal(t, want.Intent, got.Intent)
	require.Equal(t, "we'd like to book a room", p.captured.Message)
}

func TestMockProvider_Error(t *testing.T) {
	p := &mockProvider{err: context.DeadlineExceeded}
	_, err := p.ClassifyIntent(context.Background(), llm.ClassifyRequest{Message: "hi"})
	require.Error(t, err)
}

// buildOAIResponse builds a minimal OpenAI-style response body whose single
// choice message has the given content string.
func buildOAIResponse(content string) []byte {
	type msg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	type choice struct {
		Message      msg    `json:"message"`
		FinishReason string `json:"finish_reason"`
	}
	type resp struct {
		Choices []choice `json:"choices"`
	}
	data, _ := json.Marshal(resp{Choices: []choice{{
		Message:      msg{Role: "assistant", Content: content},
		FinishReason: "stop",
	}}})
	return data
}

func TestOpenAIProvider_ClassifyIntent(t *testing.T) {
	classified := llm.ClassifyResponse{
		Intent:       llm.IntentEventRequest,
		IntentDetail: "event_intake",
		Confidence:   0.92,
	}
	classifiedJSON, _ := json.Marshal(classified)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.Path, "/chat/completions")
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(buildOAIResponse(string(classifiedJSON)))
	}))
	defer srv.Close()

	p := llm.New(llm.Config{APIKey: "test-key", BaseURL: srv.URL})

	got, err := p.ClassifyIntent(context.Background(), llm.ClassifyRequest{
		Message: "we'd like to book the garden room for 80 guests",
	})
	require.NoError(t, err)
	require.Equal(t, llm.IntentEventRequest, got.Intent)
	require.Equal(t, "event_intake", got.IntentDetail)
}

func TestOpenAIProvider_ExtractEntities(t *testing.T) {
	extracted := llm.ExtractResponse{
		Dates:             []string{"2026-09-14"},
		RoomMention:       "Garden Room",
		ParticipantsCount: 80,
		Confidence:        0.9,
	}
	extractedJSON, _ := json.Marshal(extracted)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(buildOAIResponse(string(extractedJSON)))
	}))
	defer srv.Close()

	p := llm.New(llm.Config{APIKey: "test-key", BaseURL: srv.URL})
	got, err := p.ExtractEntities(context.Background(), llm.ExtractRequest{
		Message:        "the 14th of September works, garden room for 80 people",
		KnownRoomNames: []string{"Garden Room", "Loft"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"2026-09-14"}, got.Dates)
	require.Equal(t, "Garden Room", got.RoomMention)
	require.Equal(t, 80, got.ParticipantsCount)
}

func TestOpenAIProvider_Verbalize(t *testing.T) {
	verbalized := llm.VerbalizeResponse{Body: "Your event on 14.09.2026 totals CHF 75.00 per person."}
	verbalizedJSON, _ := json.Marshal(verbalized)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(buildOAIResponse(string(verbalizedJSON)))
	}))
	defer srv.Close()

	p := llm.New(llm.Config{APIKey: "test-key", BaseURL: srv.URL})
	got, err := p.Verbalize(context.Background(), llm.VerbalizeRequest{
		StepPromptKey: "offer_justify",
		Dates:         []string{"14.09.2026"},
		Amounts:       []string{"CHF 75.00 per person"},
	})
	require.NoError(t, err)
	require.Contains(t, got.Body, "14.09.2026")
}

func TestOpenAIProvider_APIErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Incorrect API key provided.","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	p := llm.New(llm.Config{APIKey: "bad-key", BaseURL: srv.URL})
	_, err := p.ClassifyIntent(context.Background(), llm.ClassifyRequest{Message: "hello"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "api error")
}

func TestOpenAIProvider_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	p := llm.New(llm.Config{APIKey: "test-key", BaseURL: srv.URL})
	_, err := p.ClassifyIntent(context.Background(), llm.ClassifyRequest{Message: "hello"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no choices")
}

func TestOpenAIProvider_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(buildOAIResponse("I cannot understand the request."))
	}))
	defer srv.Close()

	p := llm.New(llm.Config{APIKey: "test-key", BaseURL: srv.URL})
	_, err := p.ClassifyIntent(context.Background(), llm.ClassifyRequest{Message: "something"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode json content")
}

func TestOpenAIProvider_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // closed before any request

	p := llm.New(llm.Config{APIKey: "key", BaseURL: srv.URL})
	_, err := p.ClassifyIntent(context.Background(), llm.ClassifyRequest{Message: "hello"})
	require.Error(t, err)
}

func TestOpenAIProvider_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := llm.New(llm.Config{APIKey: "key", BaseURL: "http://127.0.0.1:1"})
	_, err := p.ClassifyIntent(ctx, llm.ClassifyRequest{Message: "hello"})
	require.Error(t, err)
}

func TestIntentConstants(t *testing.T) {
	require.Equal(t, llm.Intent("event_request"), llm.IntentEventRequest)
	require.Equal(t, llm.Intent("question"), llm.IntentQuestion)
	require.Equal(t, llm.Intent("acceptance"), llm.IntentAcceptance)
	require.Equal(t, llm.Intent("other"), llm.IntentOther)
}
