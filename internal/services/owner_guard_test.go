package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOwnerGuardFillAfterInvalidate(t *testing.T) {
	var g ownerGuard

	gen := g.generation("u1")
	assert.True(t, g.fill("u1", gen, func() {}))

	stale := g.generation("u1")
	dropped := false
	g.invalidate("u1", func() { dropped = true })
	assert.True(t, dropped)

	called := false
	assert.False(t, g.fill("u1", stale, func() { called = true }))
	assert.False(t, called)

	assert.True(t, g.fill("u2", g.generation("u2"), func() {}), "other owners unaffected")
}

func TestOwnerGuardLockSerializesPerOwner(t *testing.T) {
	var g ownerGuard
	var mu sync.Mutex
	inFlight, peak := 0, 0

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := g.lock("u1")
			defer unlock()
			mu.Lock()
			inFlight++
			peak = max(peak, inFlight)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inFlight--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, peak)
	assert.Empty(t, g.locks, "released locks are dropped")
}

func TestOwnerGuardLockIndependentOwners(t *testing.T) {
	var g ownerGuard
	unlock := g.lock("u1")
	defer unlock()

	done := make(chan struct{})
	go func() {
		g.lock("u2")()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock for u2 blocked behind u1")
	}
}
