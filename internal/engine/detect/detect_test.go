package detect_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openevent-ai/conversation-engine/internal/engine/detect"
	"github.com/openevent-ai/conversation-engine/internal/engine/model"
)

func TestDetect_StripsQuotedHistory(t *testing.T) {
	msg := "Sounds great, let's do it.\n> On Monday you wrote: is room X available?\nThanks!"
	clean := detect.StripQuotedHistory(msg)
	require.NotContains(t, clean, "is room X available")
}

func TestDetect_SingleWordInterrogative_RequiresQuestionMarkOrSentenceInitial(t *testing.T) {
	d := detect.New(nil)

	sig := d.Detect(context.Background(), detect.Input{Message: "What time works for you?"})
	require.True(t, sig.IsQuestion)

	sig = d.Detect(context.Background(), detect.Input{Message: "we discussed what happened yesterday"})
	require.False(t, sig.IsQuestion)
}

func TestDetect_AcknowledgmentShortCircuitsQnA(t *testing.T) {
	d := detect.New(nil)
	sig := d.Detect(context.Background(), detect.Input{Message: "Thanks, noted."})
	require.Empty(t, sig.QnATypes)
}

func TestDetect_HybridAcceptAndQuestion_PreservesBothSignals(t *testing.T) {
	d := detect.New(nil)
	sig := d.Detect(context.Background(), detect.Input{Message: "Yes, that's fine. What about parking?"})
	require.True(t, sig.IsAcceptance)
	require.True(t, sig.IsQuestion)
}

func TestDetect_RoomChoiceTokenSuppressesAcceptance(t *testing.T) {
	d := detect.New(nil)
	sig := d.Detect(context.Background(), detect.Input{Message: "Yes, let's proceed with Room Garden."})
	require.False(t, sig.IsAcceptance)
}

func TestDetect_IsRoomAvailableQuestionSuppressesAcceptance(t *testing.T) {
	d := detect.New(nil)
	sig := d.Detect(context.Background(), detect.Input{Message: "Is Room Garden available?"})
	require.False(t, sig.IsAcceptance)
}

func TestDetect_BillingKeywordSetsBillingSignal(t *testing.T) {
	d := detect.New(nil)
	sig := d.Detect(context.Background(), detect.Input{Message: "Here is our billing address and VAT number."})
	require.True(t, sig.BillingSignal)
}

func TestDetect_DepositPaidSetsDepositJustPaidAndBillingSignal(t *testing.T) {
	d := detect.New(nil)
	sig := d.Detect(context.Background(), detect.Input{Message: "We just transferred the deposit."})
	require.True(t, sig.DepositJustPaid)
	require.True(t, sig.BillingSignal)
}

func TestDetect_DefaultsToOtherIntentWithoutProvider(t *testing.T) {
	d := detect.New(nil)
	sig := d.Detect(context.Background(), detect.Input{Message: "hello"})
	require.Equal(t, model.IntentOther, sig.Intent)
}

func TestDetect_KeywordQnAMatchedWithoutLLM(t *testing.T) {
	d := detect.New(nil)
	sig := d.Detect(context.Background(), detect.Input{Message: "What's on the catering menu?"})
	require.Contains(t, sig.QnATypes, "catering")
}
