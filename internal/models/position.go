package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PositionStatus is the lifecycle state of a tracked position.
type PositionStatus string

const (
	// StatusOpen marks a position currently held.
	StatusOpen PositionStatus = "open"
	// StatusClosed marks a position that has been exited.
	StatusClosed PositionStatus = "closed"
)

// Position is one tracked position record as persisted in the position
// store. The engine only reads and overwrites whole records; live Greeks
// are re-derived from fresh chain data, never persisted.
type Position struct {
	ID         string         `json:"id"`
	Symbol     string         `json:"symbol"`
	Strategy   StrategyType   `json:"strategy"`
	Legs       []Leg          `json:"legs,omitempty"`
	EntryPrice float64        `json:"entry_price"`
	ExitPrice  float64        `json:"exit_price,omitempty"`
	Contracts  int            `json:"contracts"`
	// MaxRisk is the per-contract per-share max loss captured at entry,
	// kept on the record so portfolio risk does not need the full chain.
	MaxRisk float64 `json:"max_risk,omitempty"`
	Expiration time.Time      `json:"expiration"`
	Strike     float64        `json:"strike"`
	Status     PositionStatus `json:"status"`
	EntryDate  time.Time      `json:"entry_date"`
	ExitDate   time.Time      `json:"exit_date,omitempty"`
	ExitReason string         `json:"exit_reason,omitempty"`
}

// NewPosition creates an open position record with a fresh ID.
func NewPosition(symbol string, strategy StrategyType, legs []Leg, entryPrice float64, contracts int, expiration time.Time, strike float64, now time.Time) *Position {
	return &Position{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Strategy:   strategy,
		Legs:       legs,
		EntryPrice: entryPrice,
		Contracts:  contracts,
		Expiration: expiration,
		Strike:     strike,
		Status:     StatusOpen,
		EntryDate:  now.UTC(),
	}
}

// Close marks the position closed. Closing an already-closed position is
// an error so double exits surface instead of silently rewriting history.
func (p *Position) Close(exitPrice float64, reason string, now time.Time) error {
	if p.Status == StatusClosed {
		return fmt.Errorf("position %s already closed", p.ID)
	}
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("position %s: exit reason is required", p.ID)
	}
	p.Status = StatusClosed
	p.ExitPrice = exitPrice
	p.ExitReason = reason
	p.ExitDate = now.UTC()
	return nil
}

// DTE returns days to expiration relative to now, floored at zero.
func (p *Position) DTE(now time.Time) int {
	d := int(p.Expiration.UTC().Truncate(24*time.Hour).Sub(now.UTC().Truncate(24*time.Hour)).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// Validate checks the record invariants shared by open and closed
// positions.
func (p *Position) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("position: id is required")
	}
	if p.Symbol == "" {
		return fmt.Errorf("position %s: symbol is required", p.ID)
	}
	if p.Contracts <= 0 {
		return fmt.Errorf("position %s: contracts must be positive (got %d)", p.ID, p.Contracts)
	}
	switch p.Status {
	case StatusOpen:
		if !p.ExitDate.IsZero() {
			return fmt.Errorf("position %s: open position has exit date", p.ID)
		}
	case StatusClosed:
		if p.ExitDate.IsZero() {
			return fmt.Errorf("position %s: closed position missing exit date", p.ID)
		}
		if strings.TrimSpace(p.ExitReason) == "" {
			return fmt.Errorf("position %s: closed position missing exit reason", p.ID)
		}
		if !p.EntryDate.Before(p.ExitDate) {
			return fmt.Errorf("position %s: entry date %v not before exit date %v", p.ID, p.EntryDate, p.ExitDate)
		}
	default:
		return fmt.Errorf("position %s: invalid status %q", p.ID, p.Status)
	}
	return nil
}
