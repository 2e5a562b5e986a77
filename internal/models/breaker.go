package models

import "time"

// BreakerState is the durable circuit-breaker document. DailyPnL and
// TradesToday accumulate within one trading day keyed by LastReset; the
// engine resets them when the stored date differs from the current date.
type BreakerState struct {
	LastReset   string    `json:"last_reset"` // YYYY-MM-DD
	DailyPnL    float64   `json:"daily_pnl"`
	TradesToday int       `json:"trades_today"`
	Tripped     []string  `json:"tripped,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsTripped reports whether the named breaker is currently tripped.
func (s *BreakerState) IsTripped(name string) bool {
	for _, t := range s.Tripped {
		if t == name {
			return true
		}
	}
	return false
}

// Trip records a breaker once.
func (s *BreakerState) Trip(name string) {
	if !s.IsTripped(name) {
		s.Tripped = append(s.Tripped, name)
	}
}
