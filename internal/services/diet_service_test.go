package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aetherflow/internal/challenges"
	"aetherflow/internal/core"
	"aetherflow/internal/log"
	"aetherflow/internal/storage/memory"
)

func newDietService() *DietService {
	s := NewDietService(memory.New(), log.Discard())
	tick := fixedNow
	s.now = func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}
	return s
}

func TestDietLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newDietService()

	d, err := svc.Start(ctx, "u1", "Use public transport")
	require.NoError(t, err)
	assert.NotEmpty(t, d.ID)
	assert.False(t, d.IsComplete)

	_, err = svc.Start(ctx, "u1", "Use public transport")
	require.ErrorIs(t, err, ErrDietInProgress)

	done, err := svc.Complete(ctx, "u1", d.ID)
	require.NoError(t, err)
	assert.True(t, done.IsComplete)

	// a completed challenge can be taken on again
	again, err := svc.Start(ctx, "u1", "Use public transport")
	require.NoError(t, err)
	_, err = svc.Complete(ctx, "u1", again.ID)
	require.NoError(t, err)

	_, err = svc.Start(ctx, "u1", "Wash cold")
	require.NoError(t, err)

	list, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "Wash cold", list[0].Challenge)

	counts, err := svc.Counts(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []challenges.ChallengeCount{{Challenge: "Use public transport", Count: 2}}, counts)
}

func TestDietStartValidation(t *testing.T) {
	ctx := context.Background()
	svc := newDietService()

	_, err := svc.Start(ctx, "", "Wash cold")
	require.ErrorIs(t, err, core.ErrEmptyOwner)

	_, err = svc.Start(ctx, "u1", " ")
	require.ErrorIs(t, err, core.ErrEmptyChallenge)

	_, err = svc.Start(ctx, "u1", "Teleport to work")
	require.ErrorIs(t, err, ErrUnknownChallenge)
}

func TestDietCompleteUnknown(t *testing.T) {
	_, err := newDietService().Complete(context.Background(), "u1", "missing")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestDietCatalog(t *testing.T) {
	svc := newDietService()

	all, err := svc.Catalog("")
	require.NoError(t, err)
	food, err := svc.Catalog("Food")
	require.NoError(t, err)

	assert.NotEmpty(t, food)
	assert.Less(t, len(food), len(all))
	for _, c := range food {
		assert.Equal(t, "food", c.Category)
	}
}
