package contracts

import (
	"context"
	"time"
)

// ClosePrice is a single (date, close) observation from a price history source.
type ClosePrice struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// PriceHistoryProvider supplies daily close prices for a ticker.
// Implementations: marketdata.PriceRepository (Postgres), eastmoney.Client.
type PriceHistoryProvider interface {
	// GetHistory returns close prices for [from, to], ordered by date ascending.
	GetHistory(ctx context.Context, ticker string, from, to time.Time) ([]ClosePrice, error)
}

// FinancialDataProvider supplies quarterly financial indicators for a ticker,
// most-recent-first. Implementations classify provider failures into
// ErrRateLimited (retryable) and ErrDataUnavailable (no usable record).
type FinancialDataProvider interface {
	GetQuarterlyIndicators(ctx context.Context, ticker string, limit int) ([]FinancialIndicatorRecord, error)
}

// IndustryDirectory resolves industry classification and peer sets.
type IndustryDirectory interface {
	// GetIndustry returns the industry code for a ticker, or ErrIndustryMissing.
	GetIndustry(ctx context.Context, ticker string) (string, error)

	// GetPeers returns all tickers classified under an industry.
	GetPeers(ctx context.Context, industry string) ([]string, error)
}
