package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aetherflow/internal/emissions"
	"aetherflow/internal/log"
	"aetherflow/internal/storage/memory"
)

type stubReloader struct {
	mu     sync.Mutex
	owners []string
	fail   map[string]bool
}

func (r *stubReloader) Reload(_ context.Context, ownerID string, force bool) (ReloadResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners = append(r.owners, ownerID)
	if r.fail[ownerID] {
		return ReloadResult{}, errors.New("boom")
	}
	return ReloadResult{OwnerID: ownerID, Rebuilt: true}, nil
}

func (r *stubReloader) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.owners...)
}

func TestDefaultReloadProcessorConfig(t *testing.T) {
	config := DefaultReloadProcessorConfig()
	assert.Equal(t, 30*time.Second, config.PollInterval)
	assert.Equal(t, 20, config.BatchSize)
	assert.Equal(t, 4, config.Concurrency)

	p := NewReloadProcessor(memory.New(), &stubReloader{}, ReloadProcessorConfig{}, log.Discard())
	assert.Equal(t, config, p.config, "zero values fall back to defaults")
}

func TestReloadProcessorProcessBatch(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	for _, owner := range []string{"a", "b", "c"} {
		require.NoError(t, store.MarkDirty(ctx, owner))
	}
	r := &stubReloader{fail: map[string]bool{"b": true}}
	p := NewReloadProcessor(store, r, ReloadProcessorConfig{BatchSize: 10, Concurrency: 2}, log.Discard())

	rebuilt := p.ProcessBatch(ctx)
	assert.Equal(t, 2, rebuilt)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, r.calls())
}

func TestReloadProcessorRespectsBatchSize(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	for _, owner := range []string{"a", "b", "c", "d"} {
		require.NoError(t, store.MarkDirty(ctx, owner))
	}
	r := &stubReloader{}
	p := NewReloadProcessor(store, r, ReloadProcessorConfig{BatchSize: 2}, log.Discard())

	p.ProcessBatch(ctx)
	assert.Len(t, r.calls(), 2)
}

func TestReloadProcessorNothingDirty(t *testing.T) {
	r := &stubReloader{}
	p := NewReloadProcessor(memory.New(), r, ReloadProcessorConfig{}, log.Discard())
	assert.Zero(t, p.ProcessBatch(context.Background()))
	assert.Empty(t, r.calls())
}

func TestReloadProcessorLifecycle(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seed(t, store, "u1", emissions.Fuel, 10, fixedNow.Add(-time.Hour))
	metrics := newMetricsService(store, &fakeCalculator{}, nil, nil)
	p := NewReloadProcessor(store, metrics, ReloadProcessorConfig{PollInterval: 10 * time.Millisecond}, log.Discard())

	assert.False(t, p.IsRunning())
	require.NoError(t, p.Start(ctx))
	assert.True(t, p.IsRunning())
	require.Error(t, p.Start(ctx), "second start must fail")

	require.Eventually(t, func() bool {
		v, _ := store.DirtyVersion(ctx, "u1")
		return v == 0
	}, time.Second, 5*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, p.Stop(stopCtx))
	assert.False(t, p.IsRunning())
	require.NoError(t, p.Stop(stopCtx), "stopping twice is a no-op")

	summaries, err := metrics.Summaries(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}
