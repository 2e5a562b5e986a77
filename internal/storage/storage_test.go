package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/eddiefleurent/chainlens/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var storeNow = time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)

func samplePosition(id string) models.Position {
	return models.Position{
		ID:         id,
		Symbol:     "SPY",
		Strategy:   models.StrategyIronCondor,
		EntryPrice: 2.60,
		Contracts:  3,
		MaxRisk:    2.40,
		Expiration: storeNow.AddDate(0, 0, 45),
		Strike:     580,
		Status:     models.StatusOpen,
		EntryDate:  storeNow,
	}
}

func TestJSONStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")

	store, err := NewJSONStore(path)
	require.NoError(t, err)
	require.NoError(t, store.AddPosition(samplePosition("p1")))
	require.NoError(t, store.SetWatchlist([]string{"SPY", "QQQ"}))

	reopened, err := NewJSONStore(path)
	require.NoError(t, err)
	assert.Len(t, reopened.ListPositions(), 1)
	assert.Equal(t, []string{"SPY", "QQQ"}, reopened.Watchlist())

	got, ok := reopened.GetPosition("p1")
	require.True(t, ok)
	assert.Equal(t, models.StatusOpen, got.Status)
	assert.InDelta(t, 2.40, got.MaxRisk, 1e-9)
}

func TestJSONStoreAtomicWriteLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "positions.json")

	store, err := NewJSONStore(path)
	require.NoError(t, err)
	require.NoError(t, store.AddPosition(samplePosition("p1")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "positions.json", entries[0].Name())
}

func TestJSONStoreRejectsDuplicateID(t *testing.T) {
	store, err := NewJSONStore(filepath.Join(t.TempDir(), "positions.json"))
	require.NoError(t, err)
	require.NoError(t, store.AddPosition(samplePosition("p1")))

	err = store.AddPosition(samplePosition("p1"))
	assert.ErrorContains(t, err, "already exists")
}

func TestJSONStoreClosePosition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	store, err := NewJSONStore(path)
	require.NoError(t, err)
	require.NoError(t, store.AddPosition(samplePosition("p1")))

	require.NoError(t, store.ClosePosition("p1", 1.10, "profit target", storeNow.Add(time.Hour)))

	got, ok := store.GetPosition("p1")
	require.True(t, ok)
	assert.Equal(t, models.StatusClosed, got.Status)
	assert.Equal(t, "profit target", got.ExitReason)
	assert.Empty(t, store.OpenPositions())

	// Double close surfaces, never silently rewrites.
	err = store.ClosePosition("p1", 1.00, "again", storeNow.Add(2*time.Hour))
	assert.ErrorContains(t, err, "already closed")
}

func TestJSONStoreUpdateMissingPosition(t *testing.T) {
	store, err := NewJSONStore(filepath.Join(t.TempDir(), "positions.json"))
	require.NoError(t, err)

	err = store.UpdatePosition(samplePosition("ghost"))
	assert.ErrorIs(t, err, ErrPositionNotFound)
}

func TestJSONStoreRejectsInvalidPosition(t *testing.T) {
	store, err := NewJSONStore(filepath.Join(t.TempDir(), "positions.json"))
	require.NoError(t, err)

	bad := samplePosition("p1")
	bad.Contracts = 0
	assert.Error(t, store.AddPosition(bad))
}

func TestJSONBreakerStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "breakers.json")
	store := NewJSONBreakerStore(path)

	// Missing file starts clean.
	state, err := store.LoadBreakerState()
	require.NoError(t, err)
	assert.Empty(t, state.LastReset)

	state = models.BreakerState{
		LastReset:   "2025-06-02",
		DailyPnL:    -450.25,
		TradesToday: 3,
		Tripped:     []string{"daily_loss_abs"},
	}
	require.NoError(t, store.SaveBreakerState(state))

	got, err := NewJSONBreakerStore(path).LoadBreakerState()
	require.NoError(t, err)
	assert.Equal(t, state.LastReset, got.LastReset)
	assert.InDelta(t, -450.25, got.DailyPnL, 1e-9)
	assert.True(t, got.IsTripped("daily_loss_abs"))
}

func TestMemoryStoreLifecycle(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.AddPosition(samplePosition("p1")))
	require.NoError(t, store.AddPosition(samplePosition("p2")))

	assert.Len(t, store.OpenPositions(), 2)
	require.NoError(t, store.ClosePosition("p2", 0.50, "stop", storeNow.Add(time.Hour)))
	assert.Len(t, store.OpenPositions(), 1)

	err := store.ClosePosition("nope", 0, "x", storeNow)
	assert.ErrorIs(t, err, ErrPositionNotFound)
}

func TestMemoryStoreCopiesOnRead(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.AddPosition(samplePosition("p1")))

	list := store.ListPositions()
	list[0].Symbol = "MUTATED"

	got, ok := store.GetPosition("p1")
	require.True(t, ok)
	assert.Equal(t, "SPY", got.Symbol)
}
