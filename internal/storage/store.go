// Package storage persists transactions, monthly summaries, diets, widget
// snapshots and reload state.
package storage

import (
	"context"

	"aetherflow/internal/core"
	"aetherflow/internal/widget"
)

// TransactionStore keeps an owner's priced transactions.
type TransactionStore interface {
	SaveTransaction(ctx context.Context, t core.Transaction) error
	// ListTransactions returns the owner's transactions, newest first.
	ListTransactions(ctx context.Context, ownerID string) ([]core.Transaction, error)
	// DeleteTransaction returns core.ErrNotFound when nothing matched.
	DeleteTransaction(ctx context.Context, ownerID, id string) error
}

// SummaryStore keeps the current generation of monthly summaries.
type SummaryStore interface {
	// ReplaceSummaries swaps the owner's summaries atomically. Readers see
	// either the old set or the new one, never a mix.
	ReplaceSummaries(ctx context.Context, ownerID string, summaries []core.MonthlySummary) error
	// ListSummaries returns summaries newest month first.
	ListSummaries(ctx context.Context, ownerID string) ([]core.MonthlySummary, error)
}

// ReloadState tracks which owners need their summaries rebuilt.
//
// MarkDirty bumps a per-owner version. DirtyVersion returns the version to
// rebuild against (0 when clean) and ClearDirty only clears up to that
// version, so a mark that lands mid-rebuild survives.
type ReloadState interface {
	MarkDirty(ctx context.Context, ownerID string) error
	DirtyVersion(ctx context.Context, ownerID string) (int64, error)
	DirtyOwners(ctx context.Context, limit int) ([]string, error)
	ClearDirty(ctx context.Context, ownerID string, version int64) error
}

// WidgetStore keeps the last projected widget snapshot per owner.
type WidgetStore interface {
	SaveWidgetSnapshot(ctx context.Context, ownerID string, s widget.Snapshot) error
	GetWidgetSnapshot(ctx context.Context, ownerID string) (widget.Snapshot, bool, error)
	ResetWidget(ctx context.Context, ownerID string) error
}

// DietStore keeps the challenges an owner has taken on.
type DietStore interface {
	SaveDiet(ctx context.Context, d core.Diet) error
	// ListDiets returns diets newest first.
	ListDiets(ctx context.Context, ownerID string) ([]core.Diet, error)
	// CompleteDiet marks a diet complete and returns it. Unknown ids yield core.ErrNotFound.
	CompleteDiet(ctx context.Context, ownerID, id string) (core.Diet, error)
}

// Store is everything the services need from persistence.
type Store interface {
	TransactionStore
	SummaryStore
	ReloadState
	WidgetStore
	DietStore
	Ping(ctx context.Context) error
	Close() error
}
