package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/eddiefleurent/chainlens/internal/models"
)

// MemoryStore is an in-memory position store for tests and replay mode.
type MemoryStore struct {
	mu        sync.RWMutex
	positions []models.Position
	watchlist []string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

// ListPositions returns a copy of all records.
func (s *MemoryStore) ListPositions() []models.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Position, len(s.positions))
	copy(out, s.positions)
	return out
}

// OpenPositions returns only open records.
func (s *MemoryStore) OpenPositions() []models.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Position
	for _, p := range s.positions {
		if p.Status == models.StatusOpen {
			out = append(out, p)
		}
	}
	return out
}

// GetPosition looks up a record by ID.
func (s *MemoryStore) GetPosition(id string) (models.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.positions {
		if p.ID == id {
			return p, true
		}
	}
	return models.Position{}, false
}

// AddPosition validates and appends a record.
func (s *MemoryStore) AddPosition(pos models.Position) error {
	if err := pos.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.positions {
		if p.ID == pos.ID {
			return fmt.Errorf("position %s already exists", pos.ID)
		}
	}
	s.positions = append(s.positions, pos)
	return nil
}

// UpdatePosition overwrites an existing record.
func (s *MemoryStore) UpdatePosition(pos models.Position) error {
	if err := pos.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.positions {
		if p.ID == pos.ID {
			s.positions[i] = pos
			return nil
		}
	}
	return fmt.Errorf("updating position %s: %w", pos.ID, ErrPositionNotFound)
}

// ClosePosition transitions a record to closed.
func (s *MemoryStore) ClosePosition(id string, exitPrice float64, reason string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.positions {
		if s.positions[i].ID != id {
			continue
		}
		return s.positions[i].Close(exitPrice, reason, now)
	}
	return fmt.Errorf("closing position %s: %w", id, ErrPositionNotFound)
}

// Watchlist returns a copy of the watched symbols.
func (s *MemoryStore) Watchlist() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.watchlist))
	copy(out, s.watchlist)
	return out
}

// SetWatchlist replaces the watchlist.
func (s *MemoryStore) SetWatchlist(symbols []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchlist = append([]string(nil), symbols...)
	return nil
}

// Save is a no-op for the in-memory store.
func (s *MemoryStore) Save() error { return nil }

// Load is a no-op for the in-memory store.
func (s *MemoryStore) Load() error { return nil }

// MemoryBreakerStore is an in-memory circuit-breaker document.
type MemoryBreakerStore struct {
	mu    sync.Mutex
	state models.BreakerState
}

// NewMemoryBreakerStore creates an empty in-memory breaker store.
func NewMemoryBreakerStore() *MemoryBreakerStore { return &MemoryBreakerStore{} }

// LoadBreakerState returns the stored state.
func (s *MemoryBreakerStore) LoadBreakerState() (models.BreakerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

// SaveBreakerState replaces the stored state.
func (s *MemoryBreakerStore) SaveBreakerState(state models.BreakerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	return nil
}
