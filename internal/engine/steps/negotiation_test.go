package steps_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openevent-ai/conversation-engine/internal/engine/model"
	"github.com/openevent-ai/conversation-engine/internal/engine/steps"
)

func TestHandleNegotiation_DateChange_DetoursToDate(t *testing.T) {
	hc := &steps.Context{Now: fixedNow(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))}
	conv := model.NewConversation("t1", "c@example.com", time.Now())
	event := &model.Event{RoomEvalHash: "req-1"}

	decision := steps.HandleNegotiation(context.Background(), hc, conv, event, steps.Input{Message: "Actually can we do 2026-07-01 instead?"}, model.UnifiedSignals{})
	require.Equal(t, model.DecisionDetour, decision.Kind)
	require.Equal(t, model.StepDate, decision.NextStep)
	require.Empty(t, event.RoomEvalHash)
}

func TestHandleNegotiation_CounterOffer_EscalatesAfterFourRounds(t *testing.T) {
	hc := &steps.Context{Now: fixedNow(time.Now())}
	conv := model.NewConversation("t1", "c@example.com", time.Now())
	event := &model.Event{NegotiationCounterCount: 3}

	decision := steps.HandleNegotiation(context.Background(), hc, conv, event, steps.Input{Message: "Can you do a better price?"}, model.UnifiedSignals{IsCounterOffer: true})
	require.Equal(t, model.DecisionHalt, decision.Kind)
	require.True(t, decision.Draft.RequiresApproval)
	require.Equal(t, model.TaskTooManyAttempts, decision.Draft.HilTaskType)
}

func TestHandleNegotiation_CounterOffer_HoldsBelowThreshold(t *testing.T) {
	hc := &steps.Context{Now: fixedNow(time.Now())}
	conv := model.NewConversation("t1", "c@example.com", time.Now())
	event := &model.Event{NegotiationCounterCount: 1}

	decision := steps.HandleNegotiation(context.Background(), hc, conv, event, steps.Input{Message: "Could you do a better price?"}, model.UnifiedSignals{IsCounterOffer: true})
	require.Equal(t, model.DecisionHalt, decision.Kind)
	require.False(t, decision.Draft.RequiresApproval)
	require.Equal(t, 2, event.NegotiationCounterCount)
}

func TestHandleNegotiation_Decline_Acknowledges(t *testing.T) {
	hc := &steps.Context{Now: fixedNow(time.Now())}
	conv := model.NewConversation("t1", "c@example.com", time.Now())
	event := &model.Event{}

	decision := steps.HandleNegotiation(context.Background(), hc, conv, event, steps.Input{Message: "No thanks, we'll pass"}, model.UnifiedSignals{IsRejection: true})
	require.Equal(t, model.DecisionHalt, decision.Kind)
	require.Contains(t, decision.Draft.Body, "hope to host")
}

func TestHandleNegotiation_AcceptWithCompleteBillingAndNoDeposit_AdvancesToTransition(t *testing.T) {
	hc := &steps.Context{Now: fixedNow(time.Now())}
	conv := model.NewConversation("t1", "c@example.com", time.Now())
	event := &model.Event{
		BillingDetails: model.BillingDetails{Name: "Jane Doe", Street: "Main St 1", Postal: "8000", City: "Zurich", Country: "CH"},
	}

	decision := steps.HandleNegotiation(context.Background(), hc, conv, event, steps.Input{Message: "That sounds great, let's do it"}, model.UnifiedSignals{IsAcceptance: true})
	require.Equal(t, model.DecisionAdvance, decision.Kind)
	require.Equal(t, model.StepTransition, decision.NextStep)
	require.True(t, event.OfferAccepted)
}

func TestHandleNegotiation_AcceptWithIncompleteBilling_HoldsForApproval(t *testing.T) {
	hc := &steps.Context{Now: fixedNow(time.Now())}
	conv := model.NewConversation("t1", "c@example.com", time.Now())
	event := &model.Event{}

	decision := steps.HandleNegotiation(context.Background(), hc, conv, event, steps.Input{Message: "Sounds good. Street: Main St 1"}, model.UnifiedSignals{IsAcceptance: true})
	require.Equal(t, model.DecisionHalt, decision.Kind)
	require.True(t, decision.Draft.RequiresApproval)
	require.Equal(t, model.TaskAIReplyApproval, decision.Draft.HilTaskType)
	require.Equal(t, "Main St 1", event.BillingDetails.Street)
	require.True(t, event.BillingRequirements.AwaitingBillingForAccept)
}

func TestHandleNegotiation_Clarification_Default(t *testing.T) {
	hc := &steps.Context{Now: fixedNow(time.Now())}
	conv := model.NewConversation("t1", "c@example.com", time.Now())
	event := &model.Event{}

	decision := steps.HandleNegotiation(context.Background(), hc, conv, event, steps.Input{Message: "hmm not sure"}, model.UnifiedSignals{})
	require.Equal(t, model.DecisionHalt, decision.Kind)
	require.False(t, decision.Draft.RequiresApproval)
}
