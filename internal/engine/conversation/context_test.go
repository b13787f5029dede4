package conversation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/openevent-ai/conversation-engine/internal/engine/model"
	"github.com/stretchr/testify/require"
)

func TestContextAssembler_WindowWithinBudget(t *testing.T) {
	conv := model.NewConversation("thread-1", "client@example.com", time.Now())
	now := time.Date(2026, 2, 24, 10, 0, 0, 0, time.UTC)
	conv.MessageHistory = []model.HistoryEntry{
		model.NewHistoryEntry(model.RoleUser, "hello there", "", now),
		model.NewHistoryEntry(model.RoleAssistant, "hi, how can I help?", "", now.Add(time.Minute)),
	}

	a := NewContextAssembler(4000)
	window := a.Window(context.Background(), conv)
	require.Len(t, window, 2)
}

func TestContextAssembler_WindowTrimmedWhenOverBudget(t *testing.T) {
	conv := model.NewConversation("thread-1", "client@example.com", time.Now())
	now := time.Date(2026, 2, 24, 10, 0, 0, 0, time.UTC)
	for i := range 20 {
		conv.MessageHistory = append(conv.MessageHistory,
			model.NewHistoryEntry(model.RoleUser, strings.Repeat("word ", 20), "", now.Add(time.Duration(i)*time.Second)))
	}

	a := NewContextAssembler(50)
	window := a.Window(context.Background(), conv)
	require.NotEmpty(t, window)
	require.Less(t, len(window), 20)
}

func TestContextAssembler_Hash_Deterministic(t *testing.T) {
	now := time.Date(2026, 2, 24, 10, 0, 0, 0, time.UTC)
	conv1 := model.NewConversation("thread-1", "client@example.com", now)
	conv1.MessageHistory = []model.HistoryEntry{model.NewHistoryEntry(model.RoleUser, "hello", "", now)}

	conv2 := model.NewConversation("thread-2", "other@example.com", now)
	conv2.MessageHistory = []model.HistoryEntry{model.NewHistoryEntry(model.RoleUser, "hello", "", now)}

	a := NewContextAssembler(4000)
	h1 := a.Hash(context.Background(), conv1)
	h2 := a.Hash(context.Background(), conv2)
	require.Equal(t, h1, h2, "hash depends only on the windowed history, not thread identity")

	conv2.MessageHistory = append(conv2.MessageHistory, model.NewHistoryEntry(model.RoleAssistant, "hi", "", now.Add(time.Minute)))
	h3 := a.Hash(context.Background(), conv2)
	require.NotEqual(t, h1, h3)
}

func TestContextAssembler_EmptyConversation(t *testing.T) {
	a := NewContextAssembler(4000)
	require.Nil(t, a.Window(context.Background(), nil))
	require.Nil(t, a.Window(context.Background(), model.NewConversation("t", "c@example.com", time.Now())))
}

func TestFormatTranscript(t *testing.T) {
	now := time.Now()
	window := []model.HistoryEntry{
		model.NewHistoryEntry(model.RoleUser, "hi", "", now),
		model.NewHistoryEntry(model.RoleAssistant, "hello!", "", now),
	}
	out := FormatTranscript(window)
	require.Contains(t, out, "user: hi")
	require.Contains(t, out, "assistant: hello!")
}

func TestStaleSince(t *testing.T) {
	now := time.Date(2026, 2, 24, 10, 0, 0, 0, time.UTC)
	conv := model.NewConversation("t", "c@example.com", now)
	conv.UpdatedAt = now
	require.False(t, StaleSince(conv, now.Add(5*time.Minute), 10*time.Minute))
	require.True(t, StaleSince(conv, now.Add(15*time.Minute), 10*time.Minute))
	require.False(t, StaleSince(nil, now, 10*time.Minute))
}
