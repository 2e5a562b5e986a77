package models

import (
	"math"
	"time"
)

// PricePoint is one observed underlying price.
type PricePoint struct {
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// TrendDirection classifies a short-window price trend.
type TrendDirection string

const (
	// TrendUp indicates the window moved up beyond the flat threshold.
	TrendUp TrendDirection = "up"
	// TrendDown indicates the window moved down beyond the flat threshold.
	TrendDown TrendDirection = "down"
	// TrendFlat indicates no meaningful move over the window.
	TrendFlat TrendDirection = "flat"
)

// trendFlatThresholdPct is the fractional move below which a window is
// classified flat.
const trendFlatThresholdPct = 0.001

// PriceHistory is a bounded, time-ordered ring buffer of price points for
// one underlying. The oldest entry is evicted on overflow; the buffer
// never exceeds its capacity. It assumes a single writer (one monitoring
// loop per symbol) and is not safe for concurrent use.
type PriceHistory struct {
	points   []PricePoint
	head     int
	size     int
	capacity int
}

// NewPriceHistory creates a history with the given capacity. Capacities
// below 1 are raised to 1 so the buffer always holds the latest point.
func NewPriceHistory(capacity int) *PriceHistory {
	if capacity < 1 {
		capacity = 1
	}
	return &PriceHistory{
		points:   make([]PricePoint, capacity),
		capacity: capacity,
	}
}

// Add appends a price observation, evicting the oldest point when full.
func (h *PriceHistory) Add(price float64, ts time.Time) {
	idx := (h.head + h.size) % h.capacity
	h.points[idx] = PricePoint{Price: price, Timestamp: ts}
	if h.size < h.capacity {
		h.size++
		return
	}
	h.head = (h.head + 1) % h.capacity
}

// Len returns the number of stored points.
func (h *PriceHistory) Len() int { return h.size }

// Capacity returns the fixed buffer capacity.
func (h *PriceHistory) Capacity() int { return h.capacity }

// Latest returns the most recent point, or false when empty.
func (h *PriceHistory) Latest() (PricePoint, bool) {
	if h.size == 0 {
		return PricePoint{}, false
	}
	return h.points[(h.head+h.size-1)%h.capacity], true
}

// Points returns the stored points oldest-first.
func (h *PriceHistory) Points() []PricePoint {
	out := make([]PricePoint, 0, h.size)
	for i := 0; i < h.size; i++ {
		out = append(out, h.points[(h.head+i)%h.capacity])
	}
	return out
}

// HasTouched reports whether any stored price came within tolerancePct of
// the level.
func (h *PriceHistory) HasTouched(level, tolerancePct float64) bool {
	return h.TouchCount(level, tolerancePct) > 0
}

// TouchCount returns how many stored points came within tolerancePct of
// the level.
func (h *PriceHistory) TouchCount(level, tolerancePct float64) int {
	if level <= 0 {
		return 0
	}
	count := 0
	for _, p := range h.Points() {
		if math.Abs(p.Price-level)/level <= tolerancePct {
			count++
		}
	}
	return count
}

// DwellBeyond returns how long the price has been continuously beyond the
// level up to the latest observation: above the level when above is true,
// below it otherwise. Zero when the latest point is not beyond the level.
func (h *PriceHistory) DwellBeyond(level float64, above bool) time.Duration {
	pts := h.Points()
	if len(pts) == 0 {
		return 0
	}
	beyond := func(p float64) bool {
		if above {
			return p > level
		}
		return p < level
	}
	last := pts[len(pts)-1]
	if !beyond(last.Price) {
		return 0
	}
	start := last.Timestamp
	for i := len(pts) - 2; i >= 0; i-- {
		if !beyond(pts[i].Price) {
			break
		}
		start = pts[i].Timestamp
	}
	return last.Timestamp.Sub(start)
}

// HasBounced reports whether the price touched the level and has since
// moved away from it by more than reboundPct on the side it came from.
func (h *PriceHistory) HasBounced(level, tolerancePct, reboundPct float64) bool {
	if level <= 0 {
		return false
	}
	pts := h.Points()
	touchIdx := -1
	for i, p := range pts {
		if math.Abs(p.Price-level)/level <= tolerancePct {
			touchIdx = i
		}
	}
	if touchIdx < 0 || touchIdx == len(pts)-1 {
		return false
	}
	last := pts[len(pts)-1]
	return math.Abs(last.Price-level)/level >= reboundPct
}

// Trend classifies the price direction over the trailing window by
// comparing the first in-window point with the latest.
func (h *PriceHistory) Trend(window time.Duration) TrendDirection {
	pts := h.Points()
	if len(pts) < 2 {
		return TrendFlat
	}
	last := pts[len(pts)-1]
	cutoff := last.Timestamp.Add(-window)
	first := pts[0]
	for _, p := range pts {
		if !p.Timestamp.Before(cutoff) {
			first = p
			break
		}
	}
	if first.Price <= 0 {
		return TrendFlat
	}
	change := (last.Price - first.Price) / first.Price
	switch {
	case change > trendFlatThresholdPct:
		return TrendUp
	case change < -trendFlatThresholdPct:
		return TrendDown
	default:
		return TrendFlat
	}
}
