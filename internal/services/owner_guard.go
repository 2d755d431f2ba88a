package services

import "sync"

// ownerGuard serializes rebuilds per owner and versions cache fills so a
// read that started before an invalidation cannot repopulate the cache.
type ownerGuard struct {
	mu    sync.Mutex
	locks map[string]*ownerLock
	gens  map[string]uint64
}

type ownerLock struct {
	sync.Mutex
	refs int
}

// lock blocks until the owner's rebuild slot is free. The returned func
// releases it.
func (g *ownerGuard) lock(ownerID string) func() {
	g.mu.Lock()
	if g.locks == nil {
		g.locks = make(map[string]*ownerLock)
	}
	l, ok := g.locks[ownerID]
	if !ok {
		l = &ownerLock{}
		g.locks[ownerID] = l
	}
	l.refs++
	g.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		g.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(g.locks, ownerID)
		}
		g.mu.Unlock()
	}
}

// generation returns the owner's current cache generation.
func (g *ownerGuard) generation(ownerID string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gens[ownerID]
}

// invalidate bumps the owner's generation and runs drop while no fill can
// interleave.
func (g *ownerGuard) invalidate(ownerID string, drop func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gens == nil {
		g.gens = make(map[string]uint64)
	}
	g.gens[ownerID]++
	drop()
}

// fill runs set only if the owner's generation is still gen.
func (g *ownerGuard) fill(ownerID string, gen uint64, set func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gens[ownerID] != gen {
		return false
	}
	set()
	return true
}
