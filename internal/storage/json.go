package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/eddiefleurent/chainlens/internal/models"
)

// ErrPositionNotFound is returned when a position ID is not in the store.
var ErrPositionNotFound = errors.New("position not found")

// document is the on-disk position store shape.
type document struct {
	Positions   []models.Position `json:"positions"`
	Watchlist   []string          `json:"watchlist"`
	LastUpdated time.Time         `json:"last_updated"`
}

// JSONStore is a file-backed position store. The whole document is read
// and overwritten on every save; writes go to a temp file first and are
// renamed into place so a crash never leaves a torn document.
type JSONStore struct {
	mu       sync.RWMutex
	filepath string
	data     document
}

// NewJSONStore opens or creates the store at path.
func NewJSONStore(path string) (*JSONStore, error) {
	s := &JSONStore{filepath: path}
	if _, err := os.Stat(path); err == nil {
		if err := s.Load(); err != nil {
			return nil, fmt.Errorf("loading position store: %w", err)
		}
	}
	return s, nil
}

// Load replaces the in-memory document with the file contents.
func (s *JSONStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filepath)
	if err != nil {
		return err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing position store: %w", err)
	}
	s.data = doc
	return nil
}

// Save writes the whole document atomically.
func (s *JSONStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *JSONStore) saveLocked() error {
	s.data.LastUpdated = time.Now().UTC()

	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.filepath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.filepath)
}

// ListPositions returns a copy of all position records.
func (s *JSONStore) ListPositions() []models.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Position, len(s.data.Positions))
	copy(out, s.data.Positions)
	return out
}

// OpenPositions returns only the currently open positions.
func (s *JSONStore) OpenPositions() []models.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Position
	for _, p := range s.data.Positions {
		if p.Status == models.StatusOpen {
			out = append(out, p)
		}
	}
	return out
}

// GetPosition looks up a position by ID.
func (s *JSONStore) GetPosition(id string) (models.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.data.Positions {
		if p.ID == id {
			return p, true
		}
	}
	return models.Position{}, false
}

// AddPosition validates and appends a new position record.
func (s *JSONStore) AddPosition(pos models.Position) error {
	if err := pos.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.data.Positions {
		if p.ID == pos.ID {
			return fmt.Errorf("position %s already exists", pos.ID)
		}
	}
	s.data.Positions = append(s.data.Positions, pos)
	return s.saveLocked()
}

// UpdatePosition overwrites an existing record in place.
func (s *JSONStore) UpdatePosition(pos models.Position) error {
	if err := pos.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.data.Positions {
		if p.ID == pos.ID {
			s.data.Positions[i] = pos
			return s.saveLocked()
		}
	}
	return fmt.Errorf("updating position %s: %w", pos.ID, ErrPositionNotFound)
}

// ClosePosition transitions a position to closed and persists.
func (s *JSONStore) ClosePosition(id string, exitPrice float64, reason string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.Positions {
		if s.data.Positions[i].ID != id {
			continue
		}
		if err := s.data.Positions[i].Close(exitPrice, reason, now); err != nil {
			return err
		}
		return s.saveLocked()
	}
	return fmt.Errorf("closing position %s: %w", id, ErrPositionNotFound)
}

// Watchlist returns a copy of the watched symbols.
func (s *JSONStore) Watchlist() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.data.Watchlist))
	copy(out, s.data.Watchlist)
	return out
}

// SetWatchlist replaces the watchlist and persists.
func (s *JSONStore) SetWatchlist(symbols []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Watchlist = append([]string(nil), symbols...)
	return s.saveLocked()
}

// JSONBreakerStore is the file-backed circuit-breaker document.
type JSONBreakerStore struct {
	mu       sync.Mutex
	filepath string
}

// NewJSONBreakerStore creates a breaker store at path.
func NewJSONBreakerStore(path string) *JSONBreakerStore {
	return &JSONBreakerStore{filepath: path}
}

// LoadBreakerState reads the persisted state; a missing file yields the
// zero state so first use starts clean.
func (s *JSONBreakerStore) LoadBreakerState() (models.BreakerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filepath)
	if errors.Is(err, os.ErrNotExist) {
		return models.BreakerState{}, nil
	}
	if err != nil {
		return models.BreakerState{}, err
	}
	var state models.BreakerState
	if err := json.Unmarshal(data, &state); err != nil {
		return models.BreakerState{}, fmt.Errorf("parsing breaker store: %w", err)
	}
	return state, nil
}

// SaveBreakerState overwrites the document atomically.
func (s *JSONBreakerStore) SaveBreakerState(state models.BreakerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.filepath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.filepath)
}
