// Package storage persists position and circuit-breaker documents. The
// JSON implementations do whole-document read/overwrite with atomic
// renames; in-memory implementations back tests.
package storage

import (
	"time"

	"github.com/eddiefleurent/chainlens/internal/models"
)

// Interface is the contract for position and watchlist persistence.
//
// Implementations must be safe for concurrent use: callers can invoke any
// method from multiple goroutines. Multi-process access is a different
// matter - the document stores assume at most one writer process.
type Interface interface {
	// Position management
	ListPositions() []models.Position
	OpenPositions() []models.Position
	GetPosition(id string) (models.Position, bool)
	AddPosition(pos models.Position) error
	UpdatePosition(pos models.Position) error
	ClosePosition(id string, exitPrice float64, reason string, now time.Time) error

	// Watchlist management
	Watchlist() []string
	SetWatchlist(symbols []string) error

	// Data persistence
	Save() error
	Load() error
}

// BreakerInterface persists the daily circuit-breaker document.
type BreakerInterface interface {
	LoadBreakerState() (models.BreakerState, error)
	SaveBreakerState(models.BreakerState) error
}

// Compile-time interface checks.
var (
	_ Interface        = (*JSONStore)(nil)
	_ Interface        = (*MemoryStore)(nil)
	_ BreakerInterface = (*JSONBreakerStore)(nil)
	_ BreakerInterface = (*MemoryBreakerStore)(nil)
)
