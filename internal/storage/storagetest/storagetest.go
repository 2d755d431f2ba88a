// Package storagetest holds the behaviour every storage.Store must share.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aetherflow/internal/core"
	"aetherflow/internal/emissions"
	"aetherflow/internal/storage"
	"aetherflow/internal/widget"
)

// Run exercises s through the storage.Store contract. newStore must return
// an empty store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("transactions", func(t *testing.T) { testTransactions(t, newStore(t)) })
	t.Run("summaries", func(t *testing.T) { testSummaries(t, newStore(t)) })
	t.Run("reload state", func(t *testing.T) { testReloadState(t, newStore(t)) })
	t.Run("widgets", func(t *testing.T) { testWidgets(t, newStore(t)) })
	t.Run("diets", func(t *testing.T) { testDiets(t, newStore(t)) })
}

var base = time.Date(2024, 10, 15, 9, 30, 0, 0, time.UTC)

func txn(id, owner string, cat emissions.FineCategory, at time.Time) core.Transaction {
	return core.Transaction{
		ID: id, OwnerID: owner, Name: "Shop " + id, Category: cat,
		Price: core.Money{Cents: 1999}, KgCO2e: 4.2, MtCO2e: 0.0042,
		Equivalents: []string{"driving 10km"}, Timestamp: at,
	}
}

func testTransactions(t *testing.T, s storage.Store) {
	ctx := context.Background()

	require.NoError(t, s.SaveTransaction(ctx, txn("a", "u1", emissions.Fuel, base.Add(-48*time.Hour))))
	require.NoError(t, s.SaveTransaction(ctx, txn("b", "u1", emissions.Groceries, base)))
	require.NoError(t, s.SaveTransaction(ctx, txn("c", "u2", emissions.Airfare, base)))

	bad := txn("d", "u1", "Pets", base)
	assert.ErrorIs(t, s.SaveTransaction(ctx, bad), core.ErrUnknownCategory)

	got, err := s.ListTransactions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID, "newest first")
	assert.Equal(t, emissions.Groceries, got[0].Category)
	assert.Equal(t, int64(1999), got[0].Price.Cents)
	assert.InDelta(t, 4.2, got[0].KgCO2e, 1e-9)
	assert.Equal(t, []string{"driving 10km"}, got[0].Equivalents)
	assert.True(t, base.Equal(got[0].Timestamp))

	assert.ErrorIs(t, s.DeleteTransaction(ctx, "u2", "a"), core.ErrNotFound, "owner scoped")
	require.NoError(t, s.DeleteTransaction(ctx, "u1", "a"))
	assert.ErrorIs(t, s.DeleteTransaction(ctx, "u1", "a"), core.ErrNotFound)

	got, err = s.ListTransactions(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	none, err := s.ListTransactions(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func summary(owner string, year int, month time.Month, total float64) core.MonthlySummary {
	return core.MonthlySummary{
		ID:               owner + "-" + time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01"),
		OwnerID:          owner,
		EmissionsTotal:   total,
		TransactionCount: 2,
		Equivalents:      []string{"This is equivalent to the emissions of 1 flight"},
		Label:            month.String(),
		Year:             year,
		Month:            month,
		Start:            time.Date(year, month, 1, 0, 0, 0, 0, time.UTC),
		Groups: []core.GroupBreakdown{
			{Group: emissions.Food, Emissions: total / 2, Count: 1, FractionOfTotal: 0.5},
			{Group: emissions.Clothing},
			{Group: emissions.Energy},
			{Group: emissions.Transport, Emissions: total / 2, Count: 1, FractionOfTotal: 0.5},
		},
	}
}

func testSummaries(t *testing.T, s storage.Store) {
	ctx := context.Background()

	first := []core.MonthlySummary{
		summary("u1", 2024, time.September, 10),
		summary("u1", 2024, time.October, 20),
		summary("u1", 2023, time.December, 30),
	}
	require.NoError(t, s.ReplaceSummaries(ctx, "u1", first))
	require.NoError(t, s.ReplaceSummaries(ctx, "u2", []core.MonthlySummary{summary("u2", 2024, time.October, 99)}))

	got, err := s.ListSummaries(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, time.October, got[0].Month)
	assert.Equal(t, time.September, got[1].Month)
	assert.Equal(t, 2023, got[2].Year)
	assert.Equal(t, "October", got[0].Label)
	require.Len(t, got[0].Groups, 4)
	assert.InDelta(t, 10.0, got[0].Groups[emissions.Transport].Emissions, 1e-9)
	assert.Equal(t, first[0].Equivalents, got[1].Equivalents)

	// results are copies
	got[0].Equivalents[0] = "mutated"
	got[0].Groups[0].Emissions = -1
	again, err := s.ListSummaries(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first[1].Equivalents, again[0].Equivalents)
	assert.InDelta(t, 10.0, again[0].Groups[0].Emissions, 1e-9)

	// second generation replaces the first entirely
	require.NoError(t, s.ReplaceSummaries(ctx, "u1", []core.MonthlySummary{summary("u1", 2024, time.October, 5)}))
	got, err = s.ListSummaries(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 5.0, got[0].EmissionsTotal, 1e-9)

	other, err := s.ListSummaries(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, other, 1, "other owners untouched")

	require.NoError(t, s.ReplaceSummaries(ctx, "u1", nil))
	got, err = s.ListSummaries(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testReloadState(t *testing.T, s storage.Store) {
	ctx := context.Background()

	v, err := s.DirtyVersion(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, v, "unknown owner is clean")

	require.NoError(t, s.MarkDirty(ctx, "u1"))
	require.NoError(t, s.MarkDirty(ctx, "u2"))

	owners, err := s.DirtyOwners(ctx, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, owners)

	limited, err := s.DirtyOwners(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	v1, err := s.DirtyVersion(ctx, "u1")
	require.NoError(t, err)
	require.NotZero(t, v1)

	// a mark that arrives after the rebuild started must survive the clear
	require.NoError(t, s.MarkDirty(ctx, "u1"))
	require.NoError(t, s.ClearDirty(ctx, "u1", v1))
	v2, err := s.DirtyVersion(ctx, "u1")
	require.NoError(t, err)
	assert.Greater(t, v2, v1)

	require.NoError(t, s.ClearDirty(ctx, "u1", v2))
	v, err = s.DirtyVersion(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, v)

	owners, err = s.DirtyOwners(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, owners)

	// clearing a clean owner is harmless
	require.NoError(t, s.ClearDirty(ctx, "u3", 0))
	v, err = s.DirtyVersion(ctx, "u3")
	require.NoError(t, err)
	assert.Zero(t, v)
}

func testWidgets(t *testing.T, s storage.Store) {
	ctx := context.Background()

	_, ok, err := s.GetWidgetSnapshot(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	snap := widget.Snapshot{TotalEmissions: 12, Month: "October", TransportEmissions: 12}
	require.NoError(t, s.SaveWidgetSnapshot(ctx, "u1", snap))
	got, ok, err := s.GetWidgetSnapshot(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap, got)

	require.NoError(t, s.ResetWidget(ctx, "u1"))
	got, ok, err = s.GetWidgetSnapshot(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, widget.Fallback(), got)
}

func testDiets(t *testing.T, s storage.Store) {
	ctx := context.Background()

	require.NoError(t, s.SaveDiet(ctx, core.Diet{ID: "d1", OwnerID: "u1", Challenge: "Use car less", Timestamp: base.Add(-time.Hour)}))
	require.NoError(t, s.SaveDiet(ctx, core.Diet{ID: "d2", OwnerID: "u1", Challenge: "Wash cold", Timestamp: base}))
	assert.ErrorIs(t, s.SaveDiet(ctx, core.Diet{ID: "d3", OwnerID: "u1"}), core.ErrEmptyChallenge)
	assert.ErrorIs(t, s.SaveDiet(ctx, core.Diet{ID: "d4", Challenge: "Wash cold"}), core.ErrEmptyOwner)

	diets, err := s.ListDiets(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, diets, 2)
	assert.Equal(t, "d2", diets[0].ID)
	assert.False(t, diets[0].IsComplete)

	d, err := s.CompleteDiet(ctx, "u1", "d1")
	require.NoError(t, err)
	assert.True(t, d.IsComplete)
	assert.Equal(t, "Use car less", d.Challenge)

	_, err = s.CompleteDiet(ctx, "u2", "d1")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.CompleteDiet(ctx, "u1", "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	diets, err = s.ListDiets(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, diets[1].IsComplete)
}
