package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/veritas/backend/internal/contracts"
	"github.com/wonny/veritas/backend/pkg/logger"
)

// 52 weeks, matching the trailing window of the daily review
const window52W = 364 * 24 * time.Hour

// PriceRangeResolver derives the 52-week high/low for a ticker from
// historical close prices.
type PriceRangeResolver struct {
	provider       contracts.PriceHistoryProvider
	minTradingDays int
	logger         *logger.Logger
}

// NewPriceRangeResolver creates a new price range resolver.
func NewPriceRangeResolver(provider contracts.PriceHistoryProvider, minTradingDays int, log *logger.Logger) *PriceRangeResolver {
	return &PriceRangeResolver{
		provider:       provider,
		minTradingDays: minTradingDays,
		logger:         log.WithField("module", "pricerange"),
	}
}

// Resolve returns (high_52w, low_52w) as the max/min close price in the
// trailing 52-week window ending at tradeDate. Fewer than minTradingDays
// observations yields ErrInsufficientHistory, which callers treat as a
// soft failure (skip ticker, continue batch).
func (r *PriceRangeResolver) Resolve(ctx context.Context, ticker string, tradeDate time.Time) (high, low float64, err error) {
	from := tradeDate.Add(-window52W)

	prices, err := r.provider.GetHistory(ctx, ticker, from, tradeDate)
	if err != nil {
		return 0, 0, fmt.Errorf("get history for %s: %w", ticker, err)
	}

	if len(prices) < r.minTradingDays {
		return 0, 0, fmt.Errorf("%w: %s has %d trading days in 52w window (need %d)",
			contracts.ErrInsufficientHistory, ticker, len(prices), r.minTradingDays)
	}

	high, low = prices[0].Close, prices[0].Close
	for _, p := range prices[1:] {
		if p.Close > high {
			high = p.Close
		}
		if p.Close < low {
			low = p.Close
		}
	}

	r.logger.WithFields(map[string]interface{}{
		"ticker":   ticker,
		"days":     len(prices),
		"high_52w": high,
		"low_52w":  low,
	}).Debug("Resolved 52-week price range")

	return high, low, nil
}
