package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/wonny/veritas/backend/internal/contracts"
	"github.com/wonny/veritas/backend/pkg/config"
	"github.com/wonny/veritas/backend/pkg/logger"
)

// testLogger returns a quiet logger for tests.
func testLogger() *logger.Logger {
	return logger.New(&config.Config{
		Env:       "development",
		LogLevel:  "error",
		LogFormat: "json",
	})
}

func f64(v float64) *float64 {
	return &v
}

// record builds a quarterly record with the metrics tests care about.
func record(period string, roe, yoy *float64) contracts.FinancialIndicatorRecord {
	return contracts.FinancialIndicatorRecord{
		Period:       period,
		ROE:          roe,
		NetProfitYoY: yoy,
	}
}

// fakeFinancials is an in-memory FinancialDataProvider with call counting.
type fakeFinancials struct {
	mu      sync.Mutex
	records map[string][]contracts.FinancialIndicatorRecord
	errs    map[string]error
	calls   map[string]int

	// failuresBeforeSuccess returns errs[ticker] this many times, then
	// succeeds with records[ticker]
	failuresBeforeSuccess int
}

func newFakeFinancials() *fakeFinancials {
	return &fakeFinancials{
		records: make(map[string][]contracts.FinancialIndicatorRecord),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

func (f *fakeFinancials) GetQuarterlyIndicators(ctx context.Context, ticker string, limit int) ([]contracts.FinancialIndicatorRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[ticker]++

	if err, ok := f.errs[ticker]; ok {
		if f.failuresBeforeSuccess == 0 || f.calls[ticker] <= f.failuresBeforeSuccess {
			return nil, err
		}
	}
	return f.records[ticker], nil
}

func (f *fakeFinancials) callCount(ticker string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[ticker]
}

// fakePrices is an in-memory PriceHistoryProvider that remembers the last
// requested window.
type fakePrices struct {
	mu       sync.Mutex
	prices   map[string][]contracts.ClosePrice
	errs     map[string]error
	lastFrom time.Time
	lastTo   time.Time
}

func newFakePrices() *fakePrices {
	return &fakePrices{
		prices: make(map[string][]contracts.ClosePrice),
		errs:   make(map[string]error),
	}
}

func (f *fakePrices) GetHistory(ctx context.Context, ticker string, from, to time.Time) ([]contracts.ClosePrice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFrom, f.lastTo = from, to

	if err, ok := f.errs[ticker]; ok {
		return nil, err
	}
	return f.prices[ticker], nil
}

// setDays fills n trading days ending at end, closing at base and peaking
// at high halfway through.
func (f *fakePrices) setDays(ticker string, end time.Time, n int, base, high float64) {
	prices := make([]contracts.ClosePrice, n)
	for i := 0; i < n; i++ {
		c := base
		if i == n/2 {
			c = high
		}
		prices[i] = contracts.ClosePrice{
			Date:  end.AddDate(0, 0, -(n - 1 - i)),
			Close: c,
		}
	}
	f.mu.Lock()
	f.prices[ticker] = prices
	f.mu.Unlock()
}

// fakeDirectory is an in-memory IndustryDirectory.
type fakeDirectory struct {
	industries map[string]string   // ticker → industry
	peers      map[string][]string // industry → tickers
	errs       map[string]error    // ticker → GetIndustry error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		industries: make(map[string]string),
		peers:      make(map[string][]string),
		errs:       make(map[string]error),
	}
}

func (f *fakeDirectory) GetIndustry(ctx context.Context, ticker string) (string, error) {
	if err, ok := f.errs[ticker]; ok {
		return "", err
	}
	return f.industries[ticker], nil
}

func (f *fakeDirectory) GetPeers(ctx context.Context, industry string) ([]string, error) {
	return f.peers[industry], nil
}

// add registers a ticker in an industry.
func (f *fakeDirectory) add(ticker, industry string) {
	f.industries[ticker] = industry
	f.peers[industry] = append(f.peers[industry], ticker)
}

// fastFetcher builds a fetcher with a high rate budget so tests don't wait.
func fastFetcher(provider contracts.FinancialDataProvider) *IndicatorFetcher {
	return NewIndicatorFetcher(provider, FetcherConfig{
		MaxPeriods:     8,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		RatePerSecond:  10000,
		Burst:          100,
	}, testLogger())
}
