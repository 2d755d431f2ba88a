// Package worker consumes metrics reload requests and rebuilds summaries.
package worker

import (
	"context"
	"fmt"

	"aetherflow/internal/amqp"
	"aetherflow/internal/log"
	"aetherflow/internal/services"
)

// Reloader rebuilds an owner's summaries. *services.MetricsService implements it.
type Reloader interface {
	Reload(ctx context.Context, ownerID string, force bool) (services.ReloadResult, error)
}

// DirtyLister lists owners whose summaries are stale.
type DirtyLister interface {
	DirtyOwners(ctx context.Context, limit int) ([]string, error)
}

// ReloadWorker handles reload messages from AMQP and recovers owners left
// dirty while the worker was down.
type ReloadWorker struct {
	metrics   Reloader
	state     DirtyLister
	batchSize int
	logger    *log.Logger
}

func NewReloadWorker(metrics Reloader, state DirtyLister, batchSize int, logger *log.Logger) *ReloadWorker {
	if batchSize <= 0 {
		batchSize = 20
	}
	if logger == nil {
		logger = log.Default(log.ComponentWorker)
	}
	return &ReloadWorker{
		metrics:   metrics,
		state:     state,
		batchSize: batchSize,
		logger:    logger,
	}
}

// HandleReloadMessage processes a single reload message from AMQP.
// A returned error requeues the message.
func (w *ReloadWorker) HandleReloadMessage(ctx context.Context, msg *amqp.MetricsReloadMessage) error {
	w.logger.InfoContext(ctx, "Processing reload message",
		log.FieldOwnerID, msg.OwnerID,
		log.FieldReason, msg.Reason,
		log.FieldForce, msg.Force)

	res, err := w.metrics.Reload(ctx, msg.OwnerID, msg.Force)
	if err != nil {
		return fmt.Errorf("reload %s: %w", msg.OwnerID, err)
	}

	w.logger.InfoContext(ctx, "Reload message handled",
		log.FieldOwnerID, msg.OwnerID,
		"rebuilt", res.Rebuilt,
		log.FieldMonths, res.Months,
		"shared", res.Shared)
	return nil
}

// StartupCheck rebuilds owners that are still dirty, e.g. after missed
// messages or worker downtime.
func (w *ReloadWorker) StartupCheck(ctx context.Context) error {
	owners, err := w.state.DirtyOwners(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("list dirty owners for startup check: %w", err)
	}
	if len(owners) == 0 {
		w.logger.InfoContext(ctx, "No dirty owners found on startup")
		return nil
	}

	w.logger.InfoContext(ctx, "Found dirty owners on startup, rebuilding...", "count", len(owners))

	rebuilt, failed := 0, 0
	for _, owner := range owners {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := w.metrics.Reload(ctx, owner, false); err != nil {
			w.logger.ErrorContext(ctx, "Failed to rebuild during startup",
				log.FieldOwnerID, owner, log.FieldError, err.Error())
			failed++
			continue
		}
		rebuilt++
	}

	w.logger.InfoContext(ctx, "Startup check completed",
		"total", len(owners),
		"rebuilt", rebuilt,
		"errors", failed)
	return nil
}
