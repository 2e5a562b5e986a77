// Package models defines the core data types shared by the analytics engine:
// option contracts, chain snapshots, strategies, positions, and price history.
package models

import (
	"fmt"
	"sort"
	"time"
)

// SharesPerContract is the standard option contract multiplier.
const SharesPerContract = 100.0

// OptionType represents the type of option contract.
type OptionType string

const (
	// OptionTypeCall represents a call option contract.
	OptionTypeCall OptionType = "call"
	// OptionTypePut represents a put option contract.
	OptionTypePut OptionType = "put"
)

// Valid returns true if the OptionType is one of the defined constants.
func (t OptionType) Valid() bool {
	return t == OptionTypeCall || t == OptionTypePut
}

// Quote holds the market quote fields for a single contract.
type Quote struct {
	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
	Last         float64 `json:"last"`
	Volume       int64   `json:"volume"`
	OpenInterest int64   `json:"open_interest"`
}

// Mid returns the bid/ask midpoint, falling back to last when the
// book is empty.
func (q Quote) Mid() float64 {
	if q.Bid > 0 && q.Ask > 0 {
		return (q.Bid + q.Ask) / 2
	}
	return q.Last
}

// Greeks holds the standard option sensitivities.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
}

// OptionContract is an immutable snapshot of one listed option. Contracts
// are re-fetched rather than mutated in place.
type OptionContract struct {
	Symbol            string     `json:"symbol"`
	Strike            float64    `json:"strike"`
	Expiration        time.Time  `json:"expiration"`
	Type              OptionType `json:"type"`
	Quote             Quote      `json:"quote"`
	Greeks            Greeks     `json:"greeks"`
	ImpliedVolatility float64    `json:"implied_volatility"`
}

// DTE returns the contract's days to expiration relative to now,
// floored at zero.
func (c *OptionContract) DTE(now time.Time) int {
	d := int(c.Expiration.UTC().Truncate(24*time.Hour).Sub(now.UTC().Truncate(24*time.Hour)).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// Premium returns the total dollar premium traded today (volume x price x 100).
func (c *OptionContract) Premium() float64 {
	return float64(c.Quote.Volume) * c.Quote.Last * SharesPerContract
}

// ExpirationContracts groups the calls and puts listed for one expiration.
type ExpirationContracts struct {
	Calls []OptionContract `json:"calls"`
	Puts  []OptionContract `json:"puts"`
}

// ChainSnapshot is a point-in-time view of an option chain. It is owned by
// the caller for the duration of one analysis pass; the engine never
// mutates it.
type ChainSnapshot struct {
	Symbol          string                         `json:"symbol"`
	UnderlyingPrice float64                        `json:"underlying_price"`
	Expirations     map[string]ExpirationContracts `json:"expirations"`
	FetchedAt       time.Time                      `json:"fetched_at"`
}

// Validate checks that the snapshot carries the inputs every analyzer
// requires. A missing underlying price or empty expiration set is fatal
// for the whole analysis pass.
func (s *ChainSnapshot) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("chain snapshot: symbol is required")
	}
	if s.UnderlyingPrice <= 0 {
		return fmt.Errorf("chain snapshot %s: underlying price must be positive (got %.4f)", s.Symbol, s.UnderlyingPrice)
	}
	if len(s.Expirations) == 0 {
		return fmt.Errorf("chain snapshot %s: no expirations", s.Symbol)
	}
	return nil
}

// SortedExpirations returns the expiration keys in ascending date order.
// Keys use the 2006-01-02 layout, so lexical order is date order.
func (s *ChainSnapshot) SortedExpirations() []string {
	keys := make([]string, 0, len(s.Expirations))
	for k := range s.Expirations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AllContracts returns every contract in the snapshot across expirations
// and sides. The order is expiration-ascending, calls before puts.
func (s *ChainSnapshot) AllContracts() []OptionContract {
	var out []OptionContract
	for _, exp := range s.SortedExpirations() {
		ec := s.Expirations[exp]
		out = append(out, ec.Calls...)
		out = append(out, ec.Puts...)
	}
	return out
}

// ExpirationDateLayout is the wire format for expiration dates.
const ExpirationDateLayout = "2006-01-02"

// ParseExpiration parses an expiration key into a UTC date.
func ParseExpiration(s string) (time.Time, error) {
	t, err := time.Parse(ExpirationDateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing expiration %q: %w", s, err)
	}
	return t.UTC(), nil
}
