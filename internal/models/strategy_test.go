package models

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expiry(days int) time.Time {
	return time.Now().UTC().AddDate(0, 0, days).Truncate(24 * time.Hour)
}

func bullCallSpread() *Strategy {
	exp := expiry(30)
	return &Strategy{
		Type:   StrategyBullVertical,
		Symbol: "SPY",
		Legs: []Leg{
			{Action: ActionBuy, Type: OptionTypeCall, Strike: 570, Expiration: exp, Price: 8.50},
			{Action: ActionSell, Type: OptionTypeCall, Strike: 580, Expiration: exp, Price: 3.50},
		},
		NetDebit:          5.00,
		MaxProfit:         5.00,
		MaxRisk:           5.00,
		Breakevens:        []float64{575.00},
		ProbabilityProfit: 0.55,
	}
}

func TestStrategyValidate_BullCallSpread(t *testing.T) {
	s := bullCallSpread()
	require.NoError(t, s.Validate())

	assert.InDelta(t, 5.00, s.NetDebit, 1e-9)
	assert.InDelta(t, 5.00, s.MaxProfit, 1e-9)
	assert.InDelta(t, 5.00, s.MaxRisk, 1e-9)
	assert.InDelta(t, 1.00, s.RiskReward(), 1e-9)
	require.Len(t, s.Breakevens, 1)
	assert.InDelta(t, 575.00, s.Breakevens[0], 1e-9)
}

func TestStrategyValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Strategy)
	}{
		{"invalid type", func(s *Strategy) { s.Type = "butterfly" }},
		{"no legs", func(s *Strategy) { s.Legs = nil }},
		{"debit and credit both set", func(s *Strategy) { s.NetCredit = 1.0 }},
		{"neither debit nor credit", func(s *Strategy) { s.NetDebit = 0 }},
		{"legs do not reconcile", func(s *Strategy) { s.Legs[0].Price = 9.99 }},
		{"negative max risk", func(s *Strategy) { s.MaxRisk = -1 }},
		{"negative max profit", func(s *Strategy) { s.MaxProfit = -1 }},
		{"probability above one", func(s *Strategy) { s.ProbabilityProfit = 1.2 }},
		{"probability below zero", func(s *Strategy) { s.ProbabilityProfit = -0.1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := bullCallSpread()
			tt.mutate(s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestStrategyRiskReward(t *testing.T) {
	s := bullCallSpread()

	s.MaxRisk = 0
	assert.Zero(t, s.RiskReward(), "undefined ratio must not propagate NaN")

	s.MaxRisk = 2.5
	s.MaxProfit = 5.0
	assert.InDelta(t, 2.0, s.RiskReward(), 1e-9)

	s.MaxProfit = UnboundedProfit
	assert.True(t, s.IsUnboundedProfit())
	assert.True(t, math.IsInf(s.RiskReward(), 1))
	require.NoError(t, s.Validate(), "unbounded sentinel is a valid max profit")
}

func TestStrategyCreditReconciliation(t *testing.T) {
	exp := expiry(45)
	s := &Strategy{
		Type:   StrategyIronCondor,
		Symbol: "SPY",
		Legs: []Leg{
			{Action: ActionSell, Type: OptionTypeCall, Strike: 580, Expiration: exp, Price: 3.20},
			{Action: ActionBuy, Type: OptionTypeCall, Strike: 590, Expiration: exp, Price: 1.10},
			{Action: ActionSell, Type: OptionTypePut, Strike: 560, Expiration: exp, Price: 3.00},
			{Action: ActionBuy, Type: OptionTypePut, Strike: 550, Expiration: exp, Price: 1.30},
		},
		NetCredit:         3.80,
		MaxProfit:         3.80,
		MaxRisk:           6.20,
		Breakevens:        []float64{556.20, 583.80},
		ProbabilityProfit: 0.62,
	}
	require.NoError(t, s.Validate())
	assert.True(t, s.IsCredit())
	assert.InDelta(t, -3.80, s.NetPremium(), 1e-9)
}

func TestStrategyExpectedValue(t *testing.T) {
	s := bullCallSpread()
	s.ProbabilityProfit = 0.6
	// 0.6*5 - 0.4*5 = 1.0
	assert.InDelta(t, 1.0, s.ExpectedValue(), 1e-9)

	s.MaxProfit = UnboundedProfit
	assert.False(t, math.IsInf(s.ExpectedValue(), 0), "expected value stays finite for unbounded strategies")
}

func TestStrategyAvgLegVolume(t *testing.T) {
	s := bullCallSpread()
	s.Legs[0].Volume = 900
	s.Legs[1].Volume = 300
	assert.InDelta(t, 600, s.AvgLegVolume(), 1e-9)
}
