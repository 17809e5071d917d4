package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/veritas/backend/internal/contracts"
	"github.com/wonny/veritas/backend/pkg/logger"
)

// IndicatorFetcher retrieves quarterly fundamentals through a
// FinancialDataProvider with a per-run cache and rate-aware retries.
// ⭐ SSOT: 배치 내 재무지표 조회는 이 Fetcher를 통해서만
//
// The cache is write-once per ticker: concurrent requests for the same
// ticker are deduplicated, followers wait for the first fetch to settle.
type IndicatorFetcher struct {
	provider       contracts.FinancialDataProvider
	limiter        *rate.Limiter // shared gate across all workers
	maxPeriods     int
	maxAttempts    int
	initialBackoff time.Duration
	logger         *logger.Logger

	mu    sync.Mutex
	cache map[string]*fetchEntry
}

// fetchEntry is one settled or in-flight cache slot.
type fetchEntry struct {
	done    chan struct{}
	records []contracts.FinancialIndicatorRecord
	err     error
}

// FetcherConfig holds fetcher tuning values.
type FetcherConfig struct {
	MaxPeriods     int           // quarterly records per ticker (default 8)
	MaxAttempts    int           // total attempts for rate-limited calls
	InitialBackoff time.Duration // first retry delay, doubled per attempt
	RatePerSecond  float64       // provider call budget
	Burst          int
}

// NewIndicatorFetcher creates a new fetcher with a fresh per-run cache.
func NewIndicatorFetcher(provider contracts.FinancialDataProvider, cfg FetcherConfig, log *logger.Logger) *IndicatorFetcher {
	if cfg.MaxPeriods <= 0 {
		cfg.MaxPeriods = 8
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 3
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	return &IndicatorFetcher{
		provider:       provider,
		limiter:        rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		maxPeriods:     cfg.MaxPeriods,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		logger:         log.WithField("module", "fetcher"),
		cache:          make(map[string]*fetchEntry),
	}
}

// Fetch returns up to MaxPeriods quarterly records for a ticker,
// most-recent-first. Results (including failures) are cached for the run.
func (f *IndicatorFetcher) Fetch(ctx context.Context, ticker string) ([]contracts.FinancialIndicatorRecord, error) {
	f.mu.Lock()
	if entry, ok := f.cache[ticker]; ok {
		f.mu.Unlock()

		select {
		case <-entry.done:
			return entry.records, entry.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	entry := &fetchEntry{done: make(chan struct{})}
	f.cache[ticker] = entry
	f.mu.Unlock()

	entry.records, entry.err = f.fetchWithRetry(ctx, ticker)
	close(entry.done)

	return entry.records, entry.err
}

// Latest returns the most recent record of a fetched sequence.
// During reporting season the newest quarter may not be published yet; the
// provider already returns the most recent available one first.
func Latest(records []contracts.FinancialIndicatorRecord) (contracts.FinancialIndicatorRecord, bool) {
	if len(records) == 0 {
		return contracts.FinancialIndicatorRecord{}, false
	}
	return records[0], true
}

// fetchWithRetry calls the provider under the shared rate gate, retrying
// ErrRateLimited with exponential backoff up to maxAttempts.
func (f *IndicatorFetcher) fetchWithRetry(ctx context.Context, ticker string) ([]contracts.FinancialIndicatorRecord, error) {
	backoff := f.initialBackoff

	for attempt := 1; ; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate gate wait for %s: %w", ticker, err)
		}

		records, err := f.provider.GetQuarterlyIndicators(ctx, ticker, f.maxPeriods)
		if err == nil {
			if len(records) == 0 {
				return nil, fmt.Errorf("%w: no quarterly records for %s", contracts.ErrDataUnavailable, ticker)
			}
			if len(records) > f.maxPeriods {
				records = records[:f.maxPeriods]
			}

			f.logger.WithFields(map[string]interface{}{
				"ticker":  ticker,
				"periods": len(records),
				"latest":  records[0].Period,
			}).Debug("Fetched financial indicators")

			return records, nil
		}

		if !errors.Is(err, contracts.ErrRateLimited) || attempt >= f.maxAttempts {
			return nil, fmt.Errorf("fetch indicators for %s: %w", ticker, err)
		}

		f.logger.WithFields(map[string]interface{}{
			"ticker":  ticker,
			"attempt": attempt,
			"backoff": backoff,
		}).Warn("Provider rate limited, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
