package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"aetherflow/internal/amqp"
	"aetherflow/internal/connectearth"
	"aetherflow/internal/core"
	"aetherflow/internal/log"
	"aetherflow/internal/storage"
)

type transactionStore interface {
	storage.TransactionStore
	MarkDirty(ctx context.Context, ownerID string) error
}

// TransactionService prices, stores and removes transactions. Each change
// marks the owner's summaries dirty and publishes a reload request.
type TransactionService struct {
	store     transactionStore
	calc      EmissionsCalculator
	publisher ReloadPublisher
	metrics   Recorder
	logger    *log.Logger
	events    *log.StructuredLogger
	now       func() time.Time
}

// NewTransactionService wires the service. publisher and metrics may be nil.
func NewTransactionService(store transactionStore, calc EmissionsCalculator, publisher ReloadPublisher, metrics Recorder, logger *log.Logger) *TransactionService {
	if logger == nil {
		logger = log.Default(log.ComponentTransaction)
	}
	return &TransactionService{
		store:     store,
		calc:      calc,
		publisher: publisher,
		metrics:   recorderOrNoop(metrics),
		logger:    logger,
		events:    log.NewStructuredLogger(logger),
		now:       time.Now,
	}
}

// Submit validates sub, prices it with the emissions API and stores the result.
func (s *TransactionService) Submit(ctx context.Context, ownerID string, sub core.Submission) (core.Transaction, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return core.Transaction{}, core.ErrEmptyOwner
	}
	price, category, err := sub.Validate(s.now())
	if err != nil {
		return core.Transaction{}, err
	}
	name := strings.TrimSpace(sub.Name)

	res, err := s.calc.CalculateTransaction(ctx, connectearth.TransactionRequest{
		Name:     name,
		Category: category,
		Price:    price,
		Date:     sub.Date,
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("calculate emissions: %w", err)
	}

	t := core.Transaction{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Name:        name,
		Category:    category,
		Price:       price,
		KgCO2e:      res.KgCO2e,
		MtCO2e:      res.MtCO2e,
		Equivalents: res.SimilarTo,
		Timestamp:   sub.Date,
	}
	if err := s.store.SaveTransaction(ctx, t); err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	s.metrics.TransactionRecorded(log.OpCreate, string(category))
	s.events.LogTransactionSubmitted(ctx, ownerID, t.ID, string(category), price.Cents, t.KgCO2e)
	s.invalidate(ctx, ownerID, amqp.ReasonTransactionAdded)
	return t, nil
}

// Delete removes a transaction. Unknown ids yield core.ErrNotFound.
func (s *TransactionService) Delete(ctx context.Context, ownerID, id string) error {
	if strings.TrimSpace(ownerID) == "" {
		return core.ErrEmptyOwner
	}
	if err := s.store.DeleteTransaction(ctx, ownerID, id); err != nil {
		return err
	}
	s.metrics.TransactionRecorded(log.OpDelete, "")
	s.logger.InfoContext(ctx, "Transaction deleted",
		log.FieldOwnerID, ownerID,
		log.FieldTransactionID, id)
	s.invalidate(ctx, ownerID, amqp.ReasonTransactionDeleted)
	return nil
}

// List returns the owner's transactions, newest first.
func (s *TransactionService) List(ctx context.Context, ownerID string) ([]core.Transaction, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, core.ErrEmptyOwner
	}
	return s.store.ListTransactions(ctx, ownerID)
}

// invalidate marks the owner dirty and publishes a reload. Neither step
// fails the request: the transaction is already stored and the reload
// poller picks up dirty owners.
func (s *TransactionService) invalidate(ctx context.Context, ownerID, reason string) {
	if err := s.store.MarkDirty(ctx, ownerID); err != nil {
		s.logger.ErrorContext(ctx, "Failed to mark metrics dirty",
			log.FieldOwnerID, ownerID, log.FieldError, err.Error())
	}

	if s.publisher == nil {
		s.logger.WarnContext(ctx, "AMQP client not available, skipping reload message", log.FieldOwnerID, ownerID)
		return
	}
	err := s.publisher.PublishReload(ctx, ownerID, reason, false)
	s.metrics.ReloadPublished(err == nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish reload message",
			log.FieldOwnerID, ownerID, log.FieldError, err.Error())
	}
}
