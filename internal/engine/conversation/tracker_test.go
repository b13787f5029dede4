package conversation

import (
	"strings"
	"testing"
	"time"

	"github.com/openevent-ai/conversation-engine/internal/engine/model"
	"github.com/stretchr/testify/require"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name    string
		entries []model.HistoryEntry
		wantMin int
		wantMax int
	}{
		{name: "empty", entries: nil, wantMin: 0, wantMax: 0},
		{
			name:    "single short message",
			entries: []model.HistoryEntry{{Body: "hello"}},
			wantMin: 4,
			wantMax: 10,
		},
		{
			name: "multiple messages",
			entries: []model.HistoryEntry{
				{Body: "hello world this is a test"},
				{Body: "I understand your request"},
			},
			wantMin: 10,
			wantMax: 30,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := estimateTokens(tt.entries)
			require.GreaterOrEqual(t, got, tt.wantMin)
			require.LessOrEqual(t, got, tt.wantMax)
		})
	}
}

func TestTracker_AppendContiguous(t *testing.T) {
	tracker := NewTracker(BufferConfig{MaxMessages: 50, MaxTokens: 8000})
	conv := model.NewConversation("thread-1", "client@example.com", time.Now())

	now := time.Date(2026, 2, 24, 10, 0, 0, 0, time.UTC)
	tracker.Append(conv, model.RoleUser, "hello", "", now)
	tracker.Append(conv, model.RoleAssistant, "hi there", "", now.Add(time.Minute))
	tracker.Append(conv, model.RoleUser, "how are you?", "", now.Add(5*time.Minute))

	require.Len(t, conv.MessageHistory, 3)
	require.Equal(t, "hello", conv.MessageHistory[0].Body)
	require.Equal(t, model.RoleAssistant, conv.MessageHistory[1].Role)
	require.Equal(t, now.Add(5*time.Minute), conv.UpdatedAt)
}

func TestTracker_BufferLimitMessages(t *testing.T) {
	tracker := NewTracker(BufferConfig{MaxMessages: 5, MaxTokens: 100000})
	conv := model.NewConversation("thread-1", "client@example.com", time.Now())

	now := time.Date(2026, 2, 24, 10, 0, 0, 0, time.UTC)
	for i := range 8 {
		tracker.Append(conv, model.RoleUser, "msg", "", now.Add(time.Duration(i)*time.Second))
	}

	require.Len(t, conv.MessageHistory, 5)
	require.Equal(t, now.Add(3*time.Second), conv.MessageHistory[0].Timestamp)
}

func TestTracker_BufferLimitTokens(t *testing.T) {
	tracker := NewTracker(BufferConfig{MaxMessages: 1000, MaxTokens: 50})
	conv := model.NewConversation("thread-1", "client@example.com", time.Now())

	now := time.Date(2026, 2, 24, 10, 0, 0, 0, time.UTC)
	longContent := strings.Repeat("a", 100)
	for i := range 5 {
		tracker.Append(conv, model.RoleUser, longContent, "", now.Add(time.Duration(i)*time.Second))
	}

	require.LessOrEqual(t, len(conv.MessageHistory), 2)
	require.GreaterOrEqual(t, len(conv.MessageHistory), 1)
}

func TestTracker_InvalidConfigUsesDefaults(t *testing.T) {
	tracker := NewTracker(BufferConfig{MaxMessages: 0, MaxTokens: -100})
	defaults := DefaultBufferConfig()
	require.Equal(t, defaults.MaxMessages, tracker.config.MaxMessages)
	require.Equal(t, defaults.MaxTokens, tracker.config.MaxTokens)
}

func TestHistoryEntryPreviewTruncation(t *testing.T) {
	body := strings.Repeat("x", 200)
	e := model.NewHistoryEntry(model.RoleUser, body, "", time.Now())
	require.LessOrEqual(t, len([]rune(e.Preview)), 161)
	require.Equal(t, body, e.Body)
}
