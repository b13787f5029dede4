package app_test

import (
	"context"
	"strings"
	"testing"

	"github.com/openevent-ai/conversation-engine/internal/engine/app"
	"github.com/openevent-ai/conversation-engine/internal/engine/model"
)

func TestRunHilConsole_ApproveAndReject(t *testing.T) {
	a, err := app.New(minimalConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Stop()

	ctx := context.Background()
	approveTask, err := a.HilStore().Create(ctx, &model.HilTask{
		ThreadID: "t1", Step: model.StepOffer, TaskType: model.TaskOfferMessage, Body: "body",
	}, model.DefaultHilTTL)
	if err != nil {
		t.Fatalf("create approve task: %v", err)
	}
	rejectTask, err := a.HilStore().Create(ctx, &model.HilTask{
		ThreadID: "t2", Step: model.StepConfirmation, TaskType: model.TaskConfirmationMessage, Body: "body",
	}, model.DefaultHilTTL)
	if err != nil {
		t.Fatalf("create reject task: %v", err)
	}

	input := strings.NewReader(
		"approve " + approveTask.TaskID + "\n" +
			"reject " + rejectTask.TaskID + " manager declined\n" +
			"not a command\n",
	)
	var out strings.Builder
	if err := a.RunHilConsole(ctx, input, &out); err != nil {
		t.Fatalf("RunHilConsole() error = %v", err)
	}

	got, err := a.HilStore().Get(ctx, approveTask.TaskID)
	if err != nil {
		t.Fatalf("get approved task: %v", err)
	}
	if got.Status != model.HilApproved {
		t.Fatalf("expected task approved, got %s", got.Status)
	}

	got, err = a.HilStore().Get(ctx, rejectTask.TaskID)
	if err != nil {
		t.Fatalf("get rejected task: %v", err)
	}
	if got.Status != model.HilRejected {
		t.Fatalf("expected task rejected, got %s", got.Status)
	}
	if got.Notes != "manager declined" {
		t.Fatalf("expected rejection reason recorded, got %q", got.Notes)
	}

	if !strings.Contains(out.String(), "error:") {
		t.Fatalf("expected the malformed line to be reported, got %q", out.String())
	}
}
