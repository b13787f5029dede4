package steps_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openevent-ai/conversation-engine/internal/engine/catalog"
	"github.com/openevent-ai/conversation-engine/internal/engine/model"
	"github.com/openevent-ai/conversation-engine/internal/engine/steps"
)

func confirmationTestVenue() *catalog.Venue {
	return &catalog.Venue{
		Rooms: []catalog.Room{{ID: "garden", Name: "Garden Room", Capacity: 40, OperatingHours: []string{"10:00-22:00"}}},
	}
}

func TestHandleConfirmation_Acceptance_ConfirmsEvent(t *testing.T) {
	hc := &steps.Context{Venue: confirmationTestVenue(), Now: fixedNow(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))}
	conv := model.NewConversation("t1", "c@example.com", time.Now())
	date := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	event := &model.Event{EventDate: &date}

	decision := steps.HandleConfirmation(context.Background(), hc, conv, event, steps.Input{Message: "Yes, let's confirm it"}, model.UnifiedSignals{IsAcceptance: true})
	require.Equal(t, model.DecisionHalt, decision.Kind)
	require.True(t, decision.Draft.RequiresApproval)
	require.Equal(t, model.TaskConfirmationMessage, decision.Draft.HilTaskType)
	require.Equal(t, model.EventConfirmed, event.Status)
}

// A cross-client booking race can take the locked room between selection and
// this final step; the booking must detour back to Step 3 instead of
// confirming onto a room someone else now holds (§5).
func TestHandleConfirmation_Acceptance_RoomTakenByOtherClient_DetoursToRoom(t *testing.T) {
	s := newRoomTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	date := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertClient(ctx, &model.Client{Email: "other@example.com", CreatedAt: now, UpdatedAt: now}))
	otherConv := model.NewConversation("thread-other", "other@example.com", now)
	require.NoError(t, s.CreateConversation(ctx, otherConv))
	otherEvent := &model.Event{
		EventID: "evt-other", ClientID: "other@example.com", ThreadID: "thread-other",
		Status: model.EventConfirmed, EventDate: &date, LockedRoomID: "garden",
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateEvent(ctx, otherEvent))

	hc := &steps.Context{Venue: confirmationTestVenue(), Store: s, Now: fixedNow(now)}
	conv := model.NewConversation("t1", "c@example.com", now)
	event := &model.Event{EventID: "evt-mine", EventDate: &date, LockedRoomID: "garden", RoomEvalHash: "req-1"}

	decision := steps.HandleConfirmation(ctx, hc, conv, event, steps.Input{Message: "Yes, let's confirm it"}, model.UnifiedSignals{IsAcceptance: true})
	require.Equal(t, model.DecisionDetour, decision.Kind)
	require.Equal(t, model.StepRoom, decision.NextStep)
	require.Equal(t, model.StepConfirmation, decision.CallerStep)
	require.NotEqual(t, model.EventConfirmed, event.Status)
	require.Empty(t, event.RoomEvalHash)
	require.True(t, conv.Extras.LockedRoomUnavailableOnDate)
}

func TestHandleConfirmation_Rejection_Declines(t *testing.T) {
	hc := &steps.Context{Venue: confirmationTestVenue(), Now: fixedNow(time.Now())}
	conv := model.NewConversation("t1", "c@example.com", time.Now())
	event := &model.Event{}

	decision := steps.HandleConfirmation(context.Background(), hc, conv, event, steps.Input{Message: "No thanks, cancel it"}, model.UnifiedSignals{IsRejection: true})
	require.Equal(t, model.DecisionHalt, decision.Kind)
	require.True(t, decision.Draft.RequiresApproval)
	require.Contains(t, decision.Draft.Body, "cancel")
}

func TestHandleConfirmation_DepositJustPaid_OverridesEverything(t *testing.T) {
	hc := &steps.Context{Venue: confirmationTestVenue(), Now: fixedNow(time.Now())}
	conv := model.NewConversation("t1", "c@example.com", time.Now())
	event := &model.Event{}

	decision := steps.HandleConfirmation(context.Background(), hc, conv, event, steps.Input{Message: "We've sent the deposit"}, model.UnifiedSignals{DepositJustPaid: true, IsRejection: true})
	require.Equal(t, model.DecisionHalt, decision.Kind)
	require.True(t, event.DepositState.Paid)
	require.NotNil(t, event.DepositState.PaidAt)
	require.Equal(t, model.TaskConfirmationMessage, decision.Draft.HilTaskType)
}

func TestHandleConfirmation_SiteVisitRequest_ProposesDates(t *testing.T) {
	hc := &steps.Context{Venue: confirmationTestVenue(), Now: fixedNow(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))}
	conv := model.NewConversation("t1", "c@example.com", time.Now())
	event := &model.Event{}

	decision := steps.HandleConfirmation(context.Background(), hc, conv, event, steps.Input{Message: "Could we do a site visit first?"}, model.UnifiedSignals{QnATypes: []string{"site_visit_request"}})
	require.Equal(t, model.DecisionHalt, decision.Kind)
	require.Equal(t, model.SiteVisitProposed, event.SiteVisitState.Status)
	require.Len(t, event.SiteVisitState.ProposedDates, 5)
}

func TestHandleConfirmation_SiteVisitDatePick_ProposesTimes(t *testing.T) {
	hc := &steps.Context{Venue: confirmationTestVenue(), Now: fixedNow(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))}
	conv := model.NewConversation("t1", "c@example.com", time.Now())
	event := &model.Event{SiteVisitState: model.SiteVisitState{Status: model.SiteVisitProposed, ProposedDates: []time.Time{time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)}}}

	decision := steps.HandleConfirmation(context.Background(), hc, conv, event, steps.Input{Message: "2026-06-10 works"}, model.UnifiedSignals{})
	require.Equal(t, model.DecisionHalt, decision.Kind)
	require.Equal(t, model.SiteVisitTimePending, event.SiteVisitState.Status)
	require.NotNil(t, event.SiteVisitState.SelectedDate)
}

func TestHandleConfirmation_SiteVisitTimePick_Schedules(t *testing.T) {
	hc := &steps.Context{Venue: confirmationTestVenue(), Now: fixedNow(time.Now())}
	conv := model.NewConversation("t1", "c@example.com", time.Now())
	selected := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	event := &model.Event{SiteVisitState: model.SiteVisitState{Status: model.SiteVisitTimePending, SelectedDate: &selected}}

	decision := steps.HandleConfirmation(context.Background(), hc, conv, event, steps.Input{Message: "14:00 works great"}, model.UnifiedSignals{})
	require.Equal(t, model.DecisionHalt, decision.Kind)
	require.Equal(t, model.SiteVisitScheduled, event.SiteVisitState.Status)
	require.Equal(t, "14:00", event.SiteVisitState.ConfirmedTime)
	require.True(t, decision.Draft.RequiresApproval)
	require.Equal(t, model.TaskTransitionMessage, decision.Draft.HilTaskType)
}

func TestHandleConfirmation_NoSignal_AsksToConfirm(t *testing.T) {
	hc := &steps.Context{Venue: confirmationTestVenue(), Now: fixedNow(time.Now())}
	conv := model.NewConversation("t1", "c@example.com", time.Now())
	event := &model.Event{}

	decision := steps.HandleConfirmation(context.Background(), hc, conv, event, steps.Input{Message: "hmm"}, model.UnifiedSignals{})
	require.Equal(t, model.DecisionHalt, decision.Kind)
	require.False(t, decision.Draft.RequiresApproval)
}
