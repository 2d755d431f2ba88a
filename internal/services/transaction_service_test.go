package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aetherflow/internal/amqp"
	"aetherflow/internal/core"
	"aetherflow/internal/emissions"
	"aetherflow/internal/log"
	"aetherflow/internal/storage/memory"
)

func newTransactionService(store *memory.Store, calc *fakeCalculator, pub ReloadPublisher, rec Recorder) *TransactionService {
	s := NewTransactionService(store, calc, pub, rec, log.Discard())
	s.now = fixedClock
	return s
}

func TestSubmitStoresPricedTransaction(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	calc := &fakeCalculator{}
	pub := &fakePublisher{}
	rec := newFakeRecorder()
	svc := newTransactionService(store, calc, pub, rec)

	got, err := svc.Submit(ctx, "u1", core.Submission{
		Name:     "  Petrol  ",
		Price:    "45.50",
		Category: "fuel",
		Date:     fixedNow.Add(-time.Hour),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "Petrol", got.Name)
	assert.Equal(t, emissions.Fuel, got.Category)
	assert.Equal(t, int64(4550), got.Price.Cents)
	assert.InDelta(t, 45.5, got.KgCO2e, 1e-9)
	assert.Equal(t, []string{"This is equivalent to the emissions from driving"}, got.Equivalents)

	stored, err := store.ListTransactions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, got.ID, stored[0].ID)

	version, err := store.DirtyVersion(ctx, "u1")
	require.NoError(t, err)
	assert.NotZero(t, version, "owner should be dirty after a submit")

	require.Len(t, pub.sent, 1)
	assert.Equal(t, publishedReload{"u1", amqp.ReasonTransactionAdded, false}, pub.sent[0])
	assert.Equal(t, []string{"create:Fuel"}, rec.transactions)
	assert.Equal(t, []bool{true}, rec.published)
}

func TestSubmitValidation(t *testing.T) {
	valid := core.Submission{Name: "Coffee", Price: "4.00", Category: "Cafes and Restaurants", Date: fixedNow.Add(-time.Hour)}

	tests := []struct {
		name  string
		owner string
		edit  func(*core.Submission)
		want  error
	}{
		{"empty owner", " ", func(*core.Submission) {}, core.ErrEmptyOwner},
		{"empty name", "u1", func(s *core.Submission) { s.Name = "" }, core.ErrEmptyName},
		{"bad price", "u1", func(s *core.Submission) { s.Price = "abc" }, core.ErrInvalidPrice},
		{"future date", "u1", func(s *core.Submission) { s.Date = fixedNow.Add(24 * time.Hour) }, core.ErrFutureDate},
		{"unknown category", "u1", func(s *core.Submission) { s.Category = "Spaceflight" }, core.ErrUnknownCategory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			calc := &fakeCalculator{}
			svc := newTransactionService(store, calc, nil, nil)

			sub := valid
			tt.edit(&sub)
			_, err := svc.Submit(context.Background(), tt.owner, sub)
			require.ErrorIs(t, err, tt.want)
			assert.True(t, core.IsValidation(err))
			assert.Zero(t, calc.txCalls, "invalid input must not reach the calculator")
		})
	}
}

func TestSubmitCalculatorFailureStoresNothing(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := newTransactionService(store, &fakeCalculator{failTx: errUpstream}, nil, nil)

	_, err := svc.Submit(ctx, "u1", core.Submission{Name: "Flight", Price: "300", Category: "Airfare", Date: fixedNow})
	require.ErrorIs(t, err, errUpstream)

	stored, err := store.ListTransactions(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestSubmitPublishFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	rec := newFakeRecorder()
	svc := newTransactionService(store, &fakeCalculator{}, &fakePublisher{err: errUpstream}, rec)

	_, err := svc.Submit(ctx, "u1", core.Submission{Name: "Jeans", Price: "80", Category: "Clothing", Date: fixedNow})
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, rec.published)

	version, err := store.DirtyVersion(ctx, "u1")
	require.NoError(t, err)
	assert.NotZero(t, version)
}

func TestDeleteTransaction(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	pub := &fakePublisher{}
	svc := newTransactionService(store, &fakeCalculator{}, pub, nil)

	tx, err := svc.Submit(ctx, "u1", core.Submission{Name: "Hotel", Price: "200", Category: "Lodging", Date: fixedNow})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "u1", tx.ID))
	require.ErrorIs(t, svc.Delete(ctx, "u1", tx.ID), core.ErrNotFound)

	list, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)

	require.Len(t, pub.sent, 2)
	assert.Equal(t, amqp.ReasonTransactionDeleted, pub.sent[1].reason)
}
