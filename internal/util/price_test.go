package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundToTick(t *testing.T) {
	tests := []struct {
		name string
		x    float64
		tick float64
		want float64
	}{
		{"round down", 1.234, 0.01, 1.23},
		{"round up", 1.236, 0.01, 1.24},
		{"nickel tick", 5.12, 0.05, 5.10},
		{"zero tick passthrough", 1.234, 0, 1.234},
		{"negative tick passthrough", 1.234, -0.01, 1.234},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, RoundToTick(tt.x, tt.tick), 1e-9)
		})
	}
}

func TestClamp(t *testing.T) {
	assert.InDelta(t, 0.10, Clamp(0.25, 0.005, 0.10), 1e-9)
	assert.InDelta(t, 0.005, Clamp(-1, 0.005, 0.10), 1e-9)
	assert.InDelta(t, 0.05, Clamp(0.05, 0.005, 0.10), 1e-9)
}

func TestPctDiff(t *testing.T) {
	assert.InDelta(t, 0.05, PctDiff(105, 100), 1e-9)
	assert.InDelta(t, 0.05, PctDiff(95, 100), 1e-9)
	assert.Zero(t, PctDiff(95, 0))
}
