package catalog_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/openevent-ai/conversation-engine/internal/engine/catalog"
	appstore "github.com/openevent-ai/conversation-engine/internal/engine/store"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) catalog.ConfigStore {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "eventengine-config-test-*.db")
	require.NoError(t, err)
	f.Close()

	s, err := appstore.New(f.Name())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return catalog.NewConfigStore(s)
}

func TestGetNotFound(t *testing.T) {
	cs := newTestStore(t)
	_, err := cs.Get(context.Background(), "missing.key")
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestSetAndGet(t *testing.T) {
	cs := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, cs.Set(ctx, "verbalizer.tone", "empathetic"))

	got, err := cs.Get(ctx, "verbalizer.tone")
	require.NoError(t, err)
	require.Equal(t, "empathetic", got)
}

func TestSetOverwrite(t *testing.T) {
	cs := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, cs.Set(ctx, "detection.mode", "regex_only"))
	require.NoError(t, cs.Set(ctx, "detection.mode", "hybrid"))

	got, err := cs.Get(ctx, "detection.mode")
	require.NoError(t, err)
	require.Equal(t, "hybrid", got)
}

func TestDelete(t *testing.T) {
	cs := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, cs.Set(ctx, "hil.all_llm_replies", "true"))
	require.NoError(t, cs.Delete(ctx, "hil.all_llm_replies"))

	_, err := cs.Get(ctx, "hil.all_llm_replies")
	require.ErrorIs(t, err, catalog.ErrNotFound)

	require.NoError(t, cs.Delete(ctx, "hil.all_llm_replies"), "delete must be idempotent")
}

func TestList(t *testing.T) {
	cs := newTestStore(t)
	ctx := context.Background()

	m, err := cs.List(ctx)
	require.NoError(t, err)
	require.NotNil(t, m)
	require.Empty(t, m)

	pairs := map[string]string{
		catalog.KeyHighConfidenceThreshold: "0.85",
		catalog.KeyMidConfidenceThreshold:  "0.5",
		catalog.KeyVerbalizerTone:          "plain",
	}
	for k, v := range pairs {
		require.NoError(t, cs.Set(ctx, k, v))
	}

	m, err = cs.List(ctx)
	require.NoError(t, err)
	for k, want := range pairs {
		require.Equal(t, want, m[k])
	}
}

func TestConcurrentAccess(t *testing.T) {
	cs := newTestStore(t)
	ctx := context.Background()

	const goroutines = 5
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("concurrent.key.%d", i)
			value := fmt.Sprintf("value-%d", i)
			require.NoError(t, cs.Set(ctx, key, value))
			got, err := cs.Get(ctx, key)
			require.NoError(t, err)
			require.Equal(t, value, got)
		}(i)
	}
	wg.Wait()
}

func TestLoadThresholds_Defaults(t *testing.T) {
	cs := newTestStore(t)
	th := catalog.LoadThresholds(context.Background(), cs)
	require.Equal(t, catalog.DefaultThresholds(), th)
}

func TestLoadThresholds_Override(t *testing.T) {
	cs := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, cs.Set(ctx, catalog.KeyHighConfidenceThreshold, "0.9"))

	th := catalog.LoadThresholds(ctx, cs)
	require.InDelta(t, 0.9, th.HighConfidence, 0.0001)
	require.InDelta(t, catalog.DefaultThresholds().MidConfidence, th.MidConfidence, 0.0001)
}
