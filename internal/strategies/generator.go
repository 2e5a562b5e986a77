// Package strategies constructs candidate multi-leg option strategies
// from chain data and ranks them against risk thresholds.
package strategies

import (
	"fmt"
	"math"
	"sort"

	"github.com/eddiefleurent/chainlens/internal/models"
	"github.com/eddiefleurent/chainlens/internal/pricing"
	"github.com/eddiefleurent/chainlens/internal/util"
	"github.com/sirupsen/logrus"
)

// CalendarYieldPolicy maps a calendar spread's net debit to its assumed
// max profit. The default 30%-of-debit model is a deliberately coarse
// time-decay heuristic; override the policy rather than changing the
// default, since downstream fixtures are calibrated to it.
type CalendarYieldPolicy func(netDebit float64) float64

// DefaultCalendarYield is the reference 30%-of-debit policy.
func DefaultCalendarYield(netDebit float64) float64 { return 0.30 * netDebit }

// GeneratorConfig tunes the combinatorial search.
type GeneratorConfig struct {
	// Vertical spread width bounds as a fraction of the long strike.
	MinWidthPct float64
	MaxWidthPct float64
	// MaxVerticals caps the vertical candidates per side and direction.
	MaxVerticals int

	// Condor construction: strikes considered per side, allowed wing
	// width mismatch, and the result cap.
	CondorStrikesPerSide  int
	CondorWingMismatchPct float64
	CondorMaxResults      int

	// CalendarWindowPct bounds calendar strikes to within this fraction
	// of spot.
	CalendarWindowPct float64
	CalendarYield     CalendarYieldPolicy

	RiskFreeRate float64

	// BiasStrikes are institutional/unusual strikes from the exposure
	// and flow analyzers; candidates whose short strike sits on one are
	// preferred when capping.
	BiasStrikes []float64
}

// DefaultGeneratorConfig returns the reference configuration.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		MinWidthPct:           0.05,
		MaxWidthPct:           0.25,
		MaxVerticals:          20,
		CondorStrikesPerSide:  5,
		CondorWingMismatchPct: 0.30,
		CondorMaxResults:      10,
		CalendarWindowPct:     0.05,
		CalendarYield:         DefaultCalendarYield,
		RiskFreeRate:          0.03,
	}
}

// Generator builds candidate strategies from a chain snapshot.
type Generator struct {
	cfg    GeneratorConfig
	logger *logrus.Logger
}

// NewGenerator creates a generator, defaulting any unset config fields.
func NewGenerator(cfg GeneratorConfig, logger *logrus.Logger) *Generator {
	def := DefaultGeneratorConfig()
	if cfg.MinWidthPct == 0 {
		cfg.MinWidthPct = def.MinWidthPct
	}
	if cfg.MaxWidthPct == 0 {
		cfg.MaxWidthPct = def.MaxWidthPct
	}
	if cfg.MaxVerticals == 0 {
		cfg.MaxVerticals = def.MaxVerticals
	}
	if cfg.CondorStrikesPerSide == 0 {
		cfg.CondorStrikesPerSide = def.CondorStrikesPerSide
	}
	if cfg.CondorWingMismatchPct == 0 {
		cfg.CondorWingMismatchPct = def.CondorWingMismatchPct
	}
	if cfg.CondorMaxResults == 0 {
		cfg.CondorMaxResults = def.CondorMaxResults
	}
	if cfg.CalendarWindowPct == 0 {
		cfg.CalendarWindowPct = def.CalendarWindowPct
	}
	if cfg.CalendarYield == nil {
		cfg.CalendarYield = def.CalendarYield
	}
	if cfg.RiskFreeRate == 0 {
		cfg.RiskFreeRate = def.RiskFreeRate
	}
	return &Generator{cfg: cfg, logger: logger}
}

// Generate builds every strategy variant the snapshot supports: vertical
// spreads (both directions) and iron condors on the nearest two
// expirations, plus calendars across them. Per-expiration failures are
// logged and skipped, never fatal.
func (g *Generator) Generate(snapshot *models.ChainSnapshot) ([]models.Strategy, error) {
	if err := snapshot.Validate(); err != nil {
		return nil, err
	}

	var out []models.Strategy
	exps := snapshot.SortedExpirations()
	limit := 2
	if len(exps) < limit {
		limit = len(exps)
	}
	for _, exp := range exps[:limit] {
		for _, dir := range []models.StrategyType{models.StrategyBullVertical, models.StrategyBearVertical} {
			verticals, err := g.Verticals(snapshot, exp, dir, nil)
			if err != nil {
				if g.logger != nil {
					g.logger.WithError(err).WithField("expiration", exp).Warn("vertical generation failed")
				}
				continue
			}
			out = append(out, verticals...)
		}
		condors, err := g.IronCondors(snapshot, exp)
		if err != nil {
			if g.logger != nil {
				g.logger.WithError(err).WithField("expiration", exp).Warn("condor generation failed")
			}
		} else {
			out = append(out, condors...)
		}
	}
	calendars, err := g.Calendars(snapshot)
	if err != nil {
		if g.logger != nil {
			g.logger.WithError(err).Warn("calendar generation failed")
		}
	} else {
		out = append(out, calendars...)
	}
	return out, nil
}

// Verticals builds debit vertical spreads at one expiration. With target
// strikes supplied they are paired in order; otherwise the chain is
// scanned outward from the money with leg widths between MinWidthPct and
// MaxWidthPct of the long strike. Candidates with non-positive net debit
// are rejected.
func (g *Generator) Verticals(snapshot *models.ChainSnapshot, expiration string, direction models.StrategyType, targetStrikes []float64) ([]models.Strategy, error) {
	if direction != models.StrategyBullVertical && direction != models.StrategyBearVertical {
		return nil, fmt.Errorf("verticals: direction must be bull or bear vertical, got %q", direction)
	}
	ec, ok := snapshot.Expirations[expiration]
	if !ok {
		return nil, fmt.Errorf("verticals: expiration %s not in snapshot", expiration)
	}

	bullish := direction == models.StrategyBullVertical
	side := ec.Calls
	if !bullish {
		side = ec.Puts
	}
	contracts := validContracts(side)
	if len(contracts) < 2 {
		return nil, fmt.Errorf("verticals %s: need at least 2 valid contracts, have %d", expiration, len(contracts))
	}
	sort.Slice(contracts, func(i, j int) bool { return contracts[i].Strike < contracts[j].Strike })

	byStrike := make(map[float64]*models.OptionContract, len(contracts))
	for i := range contracts {
		byStrike[contracts[i].Strike] = &contracts[i]
	}

	var spreads []models.Strategy
	if len(targetStrikes) >= 2 {
		for i := 0; i+1 < len(targetStrikes); i += 2 {
			long, short := targetStrikes[i], targetStrikes[i+1]
			if s := g.buildVertical(snapshot.Symbol, byStrike[long], byStrike[short], bullish); s != nil {
				spreads = append(spreads, *s)
			}
		}
		return spreads, nil
	}

	atmIdx := nearestStrikeIdx(contracts, snapshot.UnderlyingPrice)
	if bullish {
		// Long legs from ATM upward, shorts further out.
		for li := atmIdx; li < len(contracts); li++ {
			long := &contracts[li]
			for si := li + 1; si < len(contracts); si++ {
				short := &contracts[si]
				if !g.widthOK(short.Strike-long.Strike, long.Strike) {
					continue
				}
				if s := g.buildVertical(snapshot.Symbol, long, short, true); s != nil {
					spreads = append(spreads, *s)
				}
			}
		}
	} else {
		// Long legs from ATM downward, shorts further down.
		for li := atmIdx; li >= 0; li-- {
			long := &contracts[li]
			for si := li - 1; si >= 0; si-- {
				short := &contracts[si]
				if !g.widthOK(long.Strike-short.Strike, long.Strike) {
					continue
				}
				if s := g.buildVertical(snapshot.Symbol, long, short, false); s != nil {
					spreads = append(spreads, *s)
				}
			}
		}
	}

	spreads = g.preferBiased(spreads)
	if len(spreads) > g.cfg.MaxVerticals {
		spreads = spreads[:g.cfg.MaxVerticals]
	}
	return spreads, nil
}

func (g *Generator) widthOK(width, longStrike float64) bool {
	if width <= 0 || longStrike <= 0 {
		return false
	}
	frac := width / longStrike
	return frac >= g.cfg.MinWidthPct && frac <= g.cfg.MaxWidthPct
}

// buildVertical assembles one debit vertical, or nil when the legs are
// missing or the debit is non-positive.
func (g *Generator) buildVertical(symbol string, long, short *models.OptionContract, bullish bool) *models.Strategy {
	if long == nil || short == nil {
		return nil
	}
	debit := long.Quote.Last - short.Quote.Last
	if debit <= 0 {
		return nil
	}
	width := math.Abs(short.Strike - long.Strike)

	sType := models.StrategyBearVertical
	breakeven := long.Strike - debit
	if bullish {
		sType = models.StrategyBullVertical
		breakeven = long.Strike + debit
	}

	return &models.Strategy{
		Type:   sType,
		Symbol: symbol,
		Legs: []models.Leg{
			legFrom(long, models.ActionBuy),
			legFrom(short, models.ActionSell),
		},
		NetDebit:          debit,
		MaxProfit:         width - debit,
		MaxRisk:           debit,
		Breakevens:        []float64{breakeven},
		ProbabilityProfit: util.Clamp(math.Abs(short.Greeks.Delta), 0, 1),
	}
}

// IronCondors builds credit condors at one expiration: short call/long
// call pairs from the first strikes above spot combined with short
// put/long put pairs below, keeping wings whose widths differ by no more
// than the configured mismatch. The result is capped.
func (g *Generator) IronCondors(snapshot *models.ChainSnapshot, expiration string) ([]models.Strategy, error) {
	ec, ok := snapshot.Expirations[expiration]
	if !ok {
		return nil, fmt.Errorf("condors: expiration %s not in snapshot", expiration)
	}
	spot := snapshot.UnderlyingPrice

	calls := validContracts(ec.Calls)
	puts := validContracts(ec.Puts)
	sort.Slice(calls, func(i, j int) bool { return calls[i].Strike < calls[j].Strike })
	sort.Slice(puts, func(i, j int) bool { return puts[i].Strike > puts[j].Strike })

	// First N strikes beyond spot on each side.
	var aboveCalls, belowPuts []models.OptionContract
	for _, c := range calls {
		if c.Strike > spot {
			aboveCalls = append(aboveCalls, c)
		}
	}
	for _, p := range puts {
		if p.Strike < spot {
			belowPuts = append(belowPuts, p)
		}
	}
	if len(aboveCalls) < 2 || len(belowPuts) < 2 {
		return nil, fmt.Errorf("condors %s: not enough OTM strikes (calls %d, puts %d)", expiration, len(aboveCalls), len(belowPuts))
	}
	if len(aboveCalls) > g.cfg.CondorStrikesPerSide+1 {
		aboveCalls = aboveCalls[:g.cfg.CondorStrikesPerSide+1]
	}
	if len(belowPuts) > g.cfg.CondorStrikesPerSide+1 {
		belowPuts = belowPuts[:g.cfg.CondorStrikesPerSide+1]
	}

	var condors []models.Strategy
	for sc := 0; sc < len(aboveCalls)-1 && sc < g.cfg.CondorStrikesPerSide; sc++ {
		for lc := sc + 1; lc < len(aboveCalls); lc++ {
			callWidth := aboveCalls[lc].Strike - aboveCalls[sc].Strike
			for sp := 0; sp < len(belowPuts)-1 && sp < g.cfg.CondorStrikesPerSide; sp++ {
				for lp := sp + 1; lp < len(belowPuts); lp++ {
					putWidth := belowPuts[sp].Strike - belowPuts[lp].Strike
					if !wingsMatch(callWidth, putWidth, g.cfg.CondorWingMismatchPct) {
						continue
					}
					if s := g.buildCondor(snapshot.Symbol, &aboveCalls[sc], &aboveCalls[lc], &belowPuts[sp], &belowPuts[lp], callWidth, putWidth); s != nil {
						condors = append(condors, *s)
					}
				}
			}
		}
	}

	condors = g.preferBiased(condors)
	if len(condors) > g.cfg.CondorMaxResults {
		condors = condors[:g.cfg.CondorMaxResults]
	}
	return condors, nil
}

func wingsMatch(callWidth, putWidth, mismatchPct float64) bool {
	if callWidth <= 0 || putWidth <= 0 {
		return false
	}
	larger := math.Max(callWidth, putWidth)
	return math.Abs(callWidth-putWidth)/larger <= mismatchPct
}

func (g *Generator) buildCondor(symbol string, shortCall, longCall, shortPut, longPut *models.OptionContract, callWidth, putWidth float64) *models.Strategy {
	credit := shortCall.Quote.Last - longCall.Quote.Last + shortPut.Quote.Last - longPut.Quote.Last
	if credit <= 0 {
		return nil
	}
	maxRisk := math.Max(callWidth, putWidth) - credit
	if maxRisk <= 0 {
		return nil
	}
	prob := util.Clamp(1-(math.Abs(shortCall.Greeks.Delta)+math.Abs(shortPut.Greeks.Delta)), 0, 1)

	return &models.Strategy{
		Type:   models.StrategyIronCondor,
		Symbol: symbol,
		Legs: []models.Leg{
			legFrom(shortCall, models.ActionSell),
			legFrom(longCall, models.ActionBuy),
			legFrom(shortPut, models.ActionSell),
			legFrom(longPut, models.ActionBuy),
		},
		NetCredit:         credit,
		MaxProfit:         credit,
		MaxRisk:           maxRisk,
		Breakevens:        []float64{shortPut.Strike - credit, shortCall.Strike + credit},
		ProbabilityProfit: prob,
	}
}

// Calendars builds time spreads at near-the-money strikes across the two
// nearest expirations: sell the near-term leg, buy the far-term leg at
// the same strike. Max profit uses the configured yield policy.
func (g *Generator) Calendars(snapshot *models.ChainSnapshot) ([]models.Strategy, error) {
	exps := snapshot.SortedExpirations()
	if len(exps) < 2 {
		return nil, fmt.Errorf("calendars: need two expirations, have %d", len(exps))
	}
	near, far := snapshot.Expirations[exps[0]], snapshot.Expirations[exps[1]]
	spot := snapshot.UnderlyingPrice

	farByStrike := make(map[float64]*models.OptionContract)
	for i := range far.Calls {
		farByStrike[far.Calls[i].Strike] = &far.Calls[i]
	}

	var calendars []models.Strategy
	for i := range near.Calls {
		nearLeg := &near.Calls[i]
		if util.PctDiff(nearLeg.Strike, spot) > g.cfg.CalendarWindowPct {
			continue
		}
		farLeg, ok := farByStrike[nearLeg.Strike]
		if !ok || nearLeg.Quote.Last <= 0 || farLeg.Quote.Last <= 0 {
			continue
		}
		debit := farLeg.Quote.Last - nearLeg.Quote.Last
		if debit <= 0 {
			continue
		}

		lower, upper := nearLeg.Strike-debit, nearLeg.Strike+debit
		calendars = append(calendars, models.Strategy{
			Type:   models.StrategyCalendar,
			Symbol: snapshot.Symbol,
			Legs: []models.Leg{
				legFrom(nearLeg, models.ActionSell),
				legFrom(farLeg, models.ActionBuy),
			},
			NetDebit:          debit,
			MaxProfit:         g.cfg.CalendarYield(debit),
			MaxRisk:           debit,
			Breakevens:        []float64{lower, upper},
			ProbabilityProfit: g.calendarProb(snapshot, nearLeg, lower, upper),
		})
	}
	return calendars, nil
}

// calendarProb estimates the probability the underlying finishes between
// the calendar's breakevens at the near expiration.
func (g *Generator) calendarProb(snapshot *models.ChainSnapshot, nearLeg *models.OptionContract, lower, upper float64) float64 {
	years := pricing.YearsBetween(snapshot.FetchedAt, nearLeg.Expiration)
	vol := nearLeg.ImpliedVolatility
	spot := snapshot.UnderlyingPrice
	// P(lower < S_T < upper) = P(S_T < upper) - P(S_T < lower)
	p := pricing.ProbITM(spot, upper, vol, years, g.cfg.RiskFreeRate, models.OptionTypePut) -
		pricing.ProbITM(spot, lower, vol, years, g.cfg.RiskFreeRate, models.OptionTypePut)
	return util.Clamp(p, 0, 1)
}

// preferBiased moves candidates whose short strike sits on a bias strike
// (institutional walls, unusual flow) to the front, preserving relative
// order otherwise.
func (g *Generator) preferBiased(strategies []models.Strategy) []models.Strategy {
	if len(g.cfg.BiasStrikes) == 0 || len(strategies) < 2 {
		return strategies
	}
	biased := make(map[float64]bool, len(g.cfg.BiasStrikes))
	for _, s := range g.cfg.BiasStrikes {
		biased[s] = true
	}
	isBiased := func(s models.Strategy) bool {
		for _, leg := range s.Legs {
			if leg.Action == models.ActionSell && biased[leg.Strike] {
				return true
			}
		}
		return false
	}
	sort.SliceStable(strategies, func(i, j int) bool {
		return isBiased(strategies[i]) && !isBiased(strategies[j])
	})
	return strategies
}

// validContracts filters to contracts with a positive last price and a
// known delta.
func validContracts(contracts []models.OptionContract) []models.OptionContract {
	out := make([]models.OptionContract, 0, len(contracts))
	for _, c := range contracts {
		if c.Quote.Last > 0 && c.Greeks.Delta != 0 {
			out = append(out, c)
		}
	}
	return out
}

func nearestStrikeIdx(contracts []models.OptionContract, spot float64) int {
	best, bestDiff := 0, math.Inf(1)
	for i, c := range contracts {
		if d := math.Abs(c.Strike - spot); d < bestDiff {
			best, bestDiff = i, d
		}
	}
	return best
}

func legFrom(c *models.OptionContract, action models.LegAction) models.Leg {
	return models.Leg{
		Action:     action,
		Type:       c.Type,
		Strike:     c.Strike,
		Expiration: c.Expiration,
		Price:      c.Quote.Last,
		Greeks:     c.Greeks,
		Volume:     c.Quote.Volume,
	}
}
