// Package memory is an in-process implementation of storage.Store used by
// tests and the memory data backend.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"aetherflow/internal/core"
	"aetherflow/internal/storage"
	"aetherflow/internal/widget"
)

type reloadState struct {
	version, cleared int64
	dirtySince       time.Time
}

type Store struct {
	mu           sync.RWMutex
	transactions map[string][]core.Transaction
	summaries    map[string][]core.MonthlySummary
	state        map[string]*reloadState
	widgets      map[string]widget.Snapshot
	diets        map[string][]core.Diet
	now          func() time.Time
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		transactions: make(map[string][]core.Transaction),
		summaries:    make(map[string][]core.MonthlySummary),
		state:        make(map[string]*reloadState),
		widgets:      make(map[string]widget.Snapshot),
		diets:        make(map[string][]core.Diet),
		now:          time.Now,
	}
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

func (s *Store) SaveTransaction(_ context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	t.Equivalents = append([]string(nil), t.Equivalents...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[t.OwnerID] = append(s.transactions[t.OwnerID], t)
	return nil
}

func (s *Store) ListTransactions(_ context.Context, ownerID string) ([]core.Transaction, error) {
	s.mu.RLock()
	out := append([]core.Transaction(nil), s.transactions[ownerID]...)
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) DeleteTransaction(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	txns := s.transactions[ownerID]
	for i, t := range txns {
		if t.ID == id {
			s.transactions[ownerID] = append(txns[:i:i], txns[i+1:]...)
			return nil
		}
	}
	return core.ErrNotFound
}

func (s *Store) ReplaceSummaries(_ context.Context, ownerID string, summaries []core.MonthlySummary) error {
	next := core.CloneSummaries(summaries)
	sort.SliceStable(next, func(i, j int) bool { return next[i].Start.After(next[j].Start) })

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(next) == 0 {
		delete(s.summaries, ownerID)
		return nil
	}
	s.summaries[ownerID] = next
	return nil
}

func (s *Store) ListSummaries(_ context.Context, ownerID string) ([]core.MonthlySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.summaries[ownerID]
	if len(src) == 0 {
		return nil, nil
	}
	return core.CloneSummaries(src), nil
}

func (s *Store) MarkDirty(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stateFor(ownerID)
	if st.version <= st.cleared {
		st.dirtySince = s.now()
	}
	st.version++
	return nil
}

func (s *Store) DirtyVersion(_ context.Context, ownerID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.state[ownerID]; ok && st.version > st.cleared {
		return st.version, nil
	}
	return 0, nil
}

func (s *Store) DirtyOwners(_ context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	type entry struct {
		owner string
		since time.Time
	}
	var dirty []entry
	for owner, st := range s.state {
		if st.version > st.cleared {
			dirty = append(dirty, entry{owner, st.dirtySince})
		}
	}
	s.mu.RUnlock()

	sort.Slice(dirty, func(i, j int) bool {
		if !dirty[i].since.Equal(dirty[j].since) {
			return dirty[i].since.Before(dirty[j].since)
		}
		return dirty[i].owner < dirty[j].owner
	})
	if len(dirty) > limit {
		dirty = dirty[:limit]
	}
	out := make([]string, len(dirty))
	for i, e := range dirty {
		out[i] = e.owner
	}
	return out, nil
}

func (s *Store) ClearDirty(_ context.Context, ownerID string, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stateFor(ownerID)
	if version > st.version {
		version = st.version
	}
	if version > st.cleared {
		st.cleared = version
	}
	return nil
}

func (s *Store) stateFor(ownerID string) *reloadState {
	st, ok := s.state[ownerID]
	if !ok {
		st = &reloadState{}
		s.state[ownerID] = st
	}
	return st
}

func (s *Store) SaveWidgetSnapshot(_ context.Context, ownerID string, snap widget.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.widgets[ownerID] = snap
	return nil
}

func (s *Store) GetWidgetSnapshot(_ context.Context, ownerID string) (widget.Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.widgets[ownerID]
	return snap, ok, nil
}

func (s *Store) ResetWidget(ctx context.Context, ownerID string) error {
	return s.SaveWidgetSnapshot(ctx, ownerID, widget.Fallback())
}

func (s *Store) SaveDiet(_ context.Context, d core.Diet) error {
	if strings.TrimSpace(d.OwnerID) == "" {
		return core.ErrEmptyOwner
	}
	if strings.TrimSpace(d.Challenge) == "" {
		return core.ErrEmptyChallenge
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diets[d.OwnerID] = append(s.diets[d.OwnerID], d)
	return nil
}

func (s *Store) ListDiets(_ context.Context, ownerID string) ([]core.Diet, error) {
	s.mu.RLock()
	out := append([]core.Diet(nil), s.diets[ownerID]...)
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (s *Store) CompleteDiet(_ context.Context, ownerID, id string) (core.Diet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.diets[ownerID] {
		if d.ID == id {
			s.diets[ownerID][i].IsComplete = true
			return s.diets[ownerID][i], nil
		}
	}
	return core.Diet{}, core.ErrNotFound
}
