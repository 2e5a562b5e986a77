package decision

import (
	"testing"
	"time"

	"github.com/eddiefleurent/chainlens/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var entryNow = time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

func entryStrategy(shortStrike float64) *models.Strategy {
	exp := entryNow.AddDate(0, 0, 45)
	longPrice, shortPrice := 8.50, 3.50
	return &models.Strategy{
		Type:   models.StrategyBullVertical,
		Symbol: "SPY",
		Legs: []models.Leg{
			{Action: models.ActionBuy, Type: models.OptionTypeCall, Strike: 570, Expiration: exp, Price: longPrice},
			{Action: models.ActionSell, Type: models.OptionTypeCall, Strike: shortStrike, Expiration: exp, Price: shortPrice},
		},
		NetDebit:          longPrice - shortPrice,
		MaxProfit:         shortStrike - 570 - (longPrice - shortPrice),
		MaxRisk:           longPrice - shortPrice,
		Breakevens:        []float64{570 + longPrice - shortPrice},
		ProbabilityProfit: 0.40,
	}
}

func fixedTouch(p float64) func(spot, strike, vol, years, riskFree float64) float64 {
	return func(_, _, _, _, _ float64) float64 { return p }
}

func entryCtx(shortStrike, atr, iv, touch float64) *EntryContext {
	return &EntryContext{
		Strategy:  entryStrategy(shortStrike),
		Spot:      575,
		ATR:       atr,
		IV:        iv,
		Now:       entryNow,
		TouchProb: fixedTouch(touch),
	}
}

func TestEntryRejectsInvalidStrategy(t *testing.T) {
	e := NewEngine(nil, nil, nil)
	bad := entryStrategy(605)
	bad.NetDebit = 0

	d := e.EvaluateEntry(&EntryContext{Strategy: bad, Spot: 575, Now: entryNow, TouchProb: fixedTouch(0.1)})
	assert.Equal(t, EntryReject, d.Action)
	assert.Equal(t, "validation", d.Rule)
}

func TestEntryRejectsHighTouchProbability(t *testing.T) {
	e := NewEngine(nil, nil, nil)

	d := e.EvaluateEntry(entryCtx(605, 5, 0.20, 0.80))
	assert.Equal(t, EntryReject, d.Action)
	assert.Equal(t, "touch_probability", d.Rule)
	assert.InDelta(t, 0.80, d.MaxTouchProbability, 1e-9)
}

func TestEntryRejectsCloseStrikeInATRUnits(t *testing.T) {
	e := NewEngine(nil, nil, nil)

	// Short strike 580, spot 575, ATR 5: one ATR away, below the 1.5 floor.
	d := e.EvaluateEntry(entryCtx(580, 5, 0.20, 0.10))
	assert.Equal(t, EntryReject, d.Action)
	assert.Equal(t, "atr_distance", d.Rule)
	assert.InDelta(t, 1.0, d.MinATRDistance, 1e-9)
}

func TestEntryRejectsExtremeIV(t *testing.T) {
	e := NewEngine(nil, nil, nil)

	d := e.EvaluateEntry(entryCtx(605, 5, 0.95, 0.10))
	assert.Equal(t, EntryReject, d.Action)
	assert.Equal(t, "extreme_iv", d.Rule)
}

func TestEntryRuleOrderTouchBeforeIV(t *testing.T) {
	e := NewEngine(nil, nil, nil)

	// Both touch probability and IV are disqualifying; the earlier rule wins.
	d := e.EvaluateEntry(entryCtx(605, 5, 0.95, 0.80))
	assert.Equal(t, "touch_probability", d.Rule)
}

func TestEntryReducesSizeOnModerateRisk(t *testing.T) {
	e := NewEngine(nil, nil, nil)

	d := e.EvaluateEntry(entryCtx(605, 5, 0.20, 0.60))
	assert.Equal(t, EntryReduce, d.Action)
	assert.Equal(t, "moderate_risk", d.Rule)
	assert.InDelta(t, 0.50, d.SizeMultiplier, 1e-9)
}

func TestEntryReducesSizeOnLowRisk(t *testing.T) {
	e := NewEngine(nil, nil, nil)

	d := e.EvaluateEntry(entryCtx(605, 5, 0.20, 0.35))
	assert.Equal(t, EntryReduce, d.Action)
	assert.Equal(t, "low_risk", d.Rule)
	assert.InDelta(t, 0.75, d.SizeMultiplier, 1e-9)
}

func TestEntryApprovesFullSize(t *testing.T) {
	e := NewEngine(nil, nil, nil)

	d := e.EvaluateEntry(entryCtx(605, 5, 0.20, 0.10))
	assert.Equal(t, EntryApprove, d.Action)
	assert.Equal(t, "approve", d.Rule)
	assert.InDelta(t, 1.0, d.SizeMultiplier, 1e-9)
}

func TestEntryCustomRuleList(t *testing.T) {
	alwaysReject := []EntryRule{{
		Name: "blackout",
		Check: func(_ *EntryContext, _ entryMetrics) *EntryDecision {
			return &EntryDecision{Action: EntryReject, Reason: "trading window closed"}
		},
	}}
	e := NewEngine(alwaysReject, nil, nil)

	d := e.EvaluateEntry(entryCtx(605, 5, 0.20, 0.10))
	assert.Equal(t, "blackout", d.Rule)
	require.Equal(t, EntryReject, d.Action)
}
