package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"aetherflow/internal/challenges"
	"aetherflow/internal/core"
	"aetherflow/internal/log"
	"aetherflow/internal/storage"
)

var (
	// ErrUnknownChallenge is returned for a challenge missing from the catalog.
	ErrUnknownChallenge = errors.New("unknown challenge")
	// ErrDietInProgress is returned when the owner already runs the challenge.
	ErrDietInProgress = errors.New("challenge already in progress")
)

// DietService tracks the reduction challenges an owner takes on.
type DietService struct {
	store  storage.DietStore
	logger *log.Logger
	now    func() time.Time
}

func NewDietService(store storage.DietStore, logger *log.Logger) *DietService {
	if logger == nil {
		logger = log.Default(log.ComponentDiet)
	}
	return &DietService{store: store, logger: logger, now: time.Now}
}

// Catalog returns challenges, optionally filtered by category.
func (s *DietService) Catalog(category string) ([]core.Challenge, error) {
	all, err := challenges.Catalog()
	if err != nil {
		return nil, err
	}
	return challenges.FilterByCategory(all, category), nil
}

// Start begins a challenge. A challenge can be repeated once the previous
// run is complete.
func (s *DietService) Start(ctx context.Context, ownerID, challenge string) (core.Diet, error) {
	ownerID = strings.TrimSpace(ownerID)
	challenge = strings.TrimSpace(challenge)
	if ownerID == "" {
		return core.Diet{}, core.ErrEmptyOwner
	}
	if challenge == "" {
		return core.Diet{}, core.ErrEmptyChallenge
	}

	all, err := challenges.Catalog()
	if err != nil {
		return core.Diet{}, err
	}
	if _, ok := challenges.Find(all, challenge); !ok {
		return core.Diet{}, fmt.Errorf("%w: %q", ErrUnknownChallenge, challenge)
	}

	existing, err := s.store.ListDiets(ctx, ownerID)
	if err != nil {
		return core.Diet{}, fmt.Errorf("list diets: %w", err)
	}
	if challenges.ContainsChallenge(challenges.Ongoing(existing), challenge) {
		return core.Diet{}, fmt.Errorf("%w: %q", ErrDietInProgress, challenge)
	}

	d := core.Diet{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Challenge: challenge,
		Timestamp: s.now().UTC(),
	}
	if err := s.store.SaveDiet(ctx, d); err != nil {
		return core.Diet{}, fmt.Errorf("save diet: %w", err)
	}

	s.logger.InfoContext(ctx, "Diet started",
		log.FieldOwnerID, ownerID,
		"challenge", challenge,
		"diet_id", d.ID)
	return d, nil
}

// Complete marks a diet complete.
func (s *DietService) Complete(ctx context.Context, ownerID, dietID string) (core.Diet, error) {
	if strings.TrimSpace(ownerID) == "" {
		return core.Diet{}, core.ErrEmptyOwner
	}
	d, err := s.store.CompleteDiet(ctx, ownerID, dietID)
	if err != nil {
		return core.Diet{}, err
	}
	s.logger.InfoContext(ctx, "Diet completed",
		log.FieldOwnerID, ownerID,
		"challenge", d.Challenge,
		"diet_id", d.ID)
	return d, nil
}

// List returns the owner's diets, newest first.
func (s *DietService) List(ctx context.Context, ownerID string) ([]core.Diet, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, core.ErrEmptyOwner
	}
	return s.store.ListDiets(ctx, ownerID)
}

// Counts returns how often each challenge was completed, ordered by name.
func (s *DietService) Counts(ctx context.Context, ownerID string) ([]challenges.ChallengeCount, error) {
	diets, err := s.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return challenges.SortedCounts(challenges.CountCompleted(diets)), nil
}
