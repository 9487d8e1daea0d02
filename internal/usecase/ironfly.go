package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"

	"EarnScan/internal/domain/models"
	domsvc "EarnScan/internal/domain/service"
	applogger "EarnScan/pkg/logger"
)

// wingCreditMultiple sizes the wing distance as a multiple of the credit
// received for the short strikes.
const wingCreditMultiple = 3.0

// IronFlySelector picks iron-fly strikes for the nearest expiration: shorts at
// the 50-delta call and put (nearest-to-spot when the chain has no Greeks),
// wings at the listed strikes closest to shorts +/- 3x credit.
type IronFlySelector struct {
	market domsvc.MarketDataProvider
	logger *applogger.Logger
}

func NewIronFlySelector(market domsvc.MarketDataProvider, l *applogger.Logger) *IronFlySelector {
	return &IronFlySelector{market: market, logger: l}
}

// Plan builds the iron-fly plan for symbol's nearest expiration.
func (s *IronFlySelector) Plan(ctx context.Context, symbol string) (*models.IronFlyPlan, error) {
	expirations, err := s.market.Expirations(ctx, symbol)
	if err != nil && !errors.Is(err, domsvc.ErrNoOptions) {
		return nil, fmt.Errorf("fetch expirations for %s: %w", symbol, err)
	}
	if len(expirations) == 0 {
		return nil, fmt.Errorf("iron fly for %s: %w", symbol, domsvc.ErrNoOptions)
	}
	expiry := expirations[0]

	chain, err := s.market.Chain(ctx, symbol, expiry)
	if err != nil {
		return nil, fmt.Errorf("fetch chain for %s %s: %w", symbol, expiry, err)
	}
	if len(chain.Calls) == 0 || len(chain.Puts) == 0 {
		return nil, fmt.Errorf("iron fly for %s: %w", symbol, domsvc.ErrNoOptions)
	}

	quote, err := s.market.Quote(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("fetch quote for %s: %w", symbol, err)
	}

	return s.planFromChain(symbol, quote.Price, chain), nil
}

// planFromChain does the pure arithmetic once the market data is in hand.
func (s *IronFlySelector) planFromChain(symbol string, price float64, chain *models.OptionChain) *models.IronFlyPlan {
	var shortCall, shortPut models.OptionQuote
	if chain.HasDeltas() {
		shortCall = nearestByDelta(chain.Calls)
		shortPut = nearestByDelta(chain.Puts)
	} else {
		s.logger.Debug("chain has no deltas, selecting shorts by spot distance",
			applogger.String("symbol", symbol))
		shortCall = nearestByStrike(chain.Calls, price)
		shortPut = nearestByStrike(chain.Puts, price)
	}

	shortCallPremium := shortCall.Mid()
	shortPutPremium := shortPut.Mid()
	totalCredit := shortCallPremium + shortPutPremium
	wingWidth := wingCreditMultiple * totalCredit

	longCall := nearestByStrike(chain.Calls, shortCall.Strike+wingWidth)
	longPut := nearestByStrike(chain.Puts, shortPut.Strike-wingWidth)
	longCallPremium := round2(longCall.Mid())
	longPutPremium := round2(longPut.Mid())

	putWingWidth := shortPut.Strike - longPut.Strike
	callWingWidth := longCall.Strike - shortCall.Strike

	totalDebit := longPutPremium + longCallPremium
	netCredit := totalCredit - totalDebit
	maxProfit := netCredit
	maxRisk := math.Min(putWingWidth, callWingWidth) - netCredit

	var riskReward *float64
	if maxProfit > 0 {
		rr := round1(maxRisk / maxProfit)
		riskReward = &rr
	}

	return &models.IronFlyPlan{
		Symbol:           symbol,
		Expiration:       chain.Expiration,
		ShortCallStrike:  round2(shortCall.Strike),
		ShortPutStrike:   round2(shortPut.Strike),
		LongCallStrike:   round2(longCall.Strike),
		LongPutStrike:    round2(longPut.Strike),
		ShortCallPremium: round2(shortCallPremium),
		ShortPutPremium:  round2(shortPutPremium),
		LongCallPremium:  longCallPremium,
		LongPutPremium:   longPutPremium,
		TotalCredit:      round2(totalCredit),
		TotalDebit:       round2(totalDebit),
		NetCredit:        round2(netCredit),
		PutWingWidth:     round2(putWingWidth),
		CallWingWidth:    round2(callWingWidth),
		MaxProfit:        round2(maxProfit),
		MaxRisk:          round2(maxRisk),
		UpperBreakeven:   round2(shortCall.Strike + netCredit),
		LowerBreakeven:   round2(shortPut.Strike - netCredit),
		RiskReward:       riskReward,
	}
}

// nearestByDelta returns the row whose |delta| is closest to 0.50. Rows must
// all carry deltas; HasDeltas guards the call sites.
func nearestByDelta(rows []models.OptionQuote) models.OptionQuote {
	best := rows[0]
	bestDiff := math.Abs(math.Abs(*best.Delta) - 0.5)
	for _, r := range rows[1:] {
		if d := math.Abs(math.Abs(*r.Delta) - 0.5); d < bestDiff {
			best, bestDiff = r, d
		}
	}
	return best
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
func round1(f float64) float64 { return math.Round(f*10) / 10 }
