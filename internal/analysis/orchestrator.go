package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wonny/veritas/backend/internal/contracts"
	"github.com/wonny/veritas/backend/pkg/config"
	"github.com/wonny/veritas/backend/pkg/logger"
)

// Orchestrator drives the per-ticker analysis pipeline over a bounded
// sample set with bounded parallelism and partial-failure tolerance.
// ⭐ SSOT: 배치 분석 오케스트레이션은 이 패키지에서만
type Orchestrator struct {
	resolver   *PriceRangeResolver
	fetcher    *IndicatorFetcher
	classifier *DivergenceClassifier
	ranker     *IndustryRanker
	cfg        config.AnalysisConfig
	logger     *logger.Logger
}

// NewOrchestrator creates a new batch orchestrator. All shared state (the
// rate gate, the per-run indicator cache) lives in the injected components,
// which are constructed once per run.
func NewOrchestrator(
	resolver *PriceRangeResolver,
	fetcher *IndicatorFetcher,
	classifier *DivergenceClassifier,
	ranker *IndustryRanker,
	cfg config.AnalysisConfig,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		resolver:   resolver,
		fetcher:    fetcher,
		classifier: classifier,
		ranker:     ranker,
		cfg:        cfg,
		logger:     log.WithField("module", "orchestrator"),
	}
}

// outcome carries everything one per-ticker pipeline produced. A ticker can
// have both an alert and a skip entry (e.g. classified fine but its industry
// ranking was not computable).
type outcome struct {
	sample     contracts.SampleStock
	assessment Assessment
	snapshot   contracts.PriceSnapshot
	ranking    *contracts.IndustryRankingResult
	skips      []contracts.SkippedStock
	evaluated  bool // divergence/risk inputs were computed
}

// Run analyzes the sample set for one trade date and aggregates the three
// result buckets. Output ordering is deterministic for frozen inputs,
// independent of fetch completion order.
func (o *Orchestrator) Run(ctx context.Context, tradeDate time.Time, samples []contracts.SampleStock) (*contracts.BatchResult, error) {
	// Configuration defects fail the whole batch before any work starts.
	if err := ValidateMetric(o.cfg.Metric); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.BatchDeadline)
	defer cancel()

	o.logger.WithFields(map[string]interface{}{
		"trade_date": tradeDate.Format("2006-01-02"),
		"stocks":     len(samples),
		"workers":    o.cfg.Workers,
		"metric":     o.cfg.Metric,
	}).Info("Starting fundamental batch analysis")

	sampleCh := make(chan contracts.SampleStock, len(samples))
	resultCh := make(chan outcome, len(samples))

	var wg sync.WaitGroup
	for i := 0; i < o.cfg.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			o.worker(ctx, workerID, tradeDate, sampleCh, resultCh)
		}(i)
	}

	for _, s := range samples {
		sampleCh <- s
	}
	close(sampleCh)

	// Aggregation happens only after every per-ticker task has settled.
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	outcomes := make([]outcome, 0, len(samples))
	for out := range resultCh {
		outcomes = append(outcomes, out)
	}

	result := o.aggregate(tradeDate, outcomes)

	alerts, quality, risk, skipped := result.Counts()
	o.logger.WithFields(map[string]interface{}{
		"divergence_alerts": alerts,
		"quality_stocks":    quality,
		"risk_stocks":       risk,
		"skipped":           skipped,
	}).Info("Batch analysis completed")

	return result, nil
}

// worker processes per-ticker pipelines until the sample channel drains.
// Work past the batch deadline is abandoned and recorded as a timeout skip.
func (o *Orchestrator) worker(ctx context.Context, workerID int, tradeDate time.Time, sampleCh <-chan contracts.SampleStock, resultCh chan<- outcome) {
	for s := range sampleCh {
		select {
		case <-ctx.Done():
			resultCh <- outcome{
				sample: s,
				skips: []contracts.SkippedStock{
					{Ticker: s.Ticker, Reason: skipReason(ctx.Err())},
				},
			}
			continue
		default:
		}

		out := o.analyzeOne(ctx, tradeDate, s)

		if len(out.skips) > 0 {
			o.logger.WithFields(map[string]interface{}{
				"worker": workerID,
				"ticker": s.Ticker,
				"reason": out.skips[0].Reason,
			}).Warn("Ticker partially or fully skipped")
		}

		resultCh <- out
	}
}

// analyzeOne runs resolve → fetch → classify → rank for a single ticker.
// Data errors become skip entries and never abort the batch.
func (o *Orchestrator) analyzeOne(ctx context.Context, tradeDate time.Time, s contracts.SampleStock) outcome {
	out := outcome{sample: s}

	rangeCtx, cancel := context.WithTimeout(ctx, o.cfg.FetchTimeout)
	high, low, err := o.resolver.Resolve(rangeCtx, s.Ticker, tradeDate)
	cancel()
	if err != nil {
		out.skips = append(out.skips, contracts.SkippedStock{Ticker: s.Ticker, Reason: skipReason(err)})
		return out
	}

	out.snapshot = contracts.PriceSnapshot{
		CurrentPrice:   s.CurrentPrice,
		PctChangeToday: s.PctChangeToday,
		High52W:        high,
		Low52W:         low,
	}

	fetchCtx, cancel := context.WithTimeout(ctx, o.cfg.FetchTimeout)
	records, err := o.fetcher.Fetch(fetchCtx, s.Ticker)
	cancel()
	if err != nil {
		out.skips = append(out.skips, contracts.SkippedStock{Ticker: s.Ticker, Reason: skipReason(err)})
		return out
	}

	latest, _ := Latest(records)
	out.assessment = o.classifier.Classify(s.Stock, s.CurrentPrice, high, latest)
	out.evaluated = true

	ranking, err := o.ranker.Rank(ctx, s.Ticker)
	if err != nil {
		// Ranking failures only exclude the ticker from the quality bucket;
		// its divergence and risk classification still stand.
		out.skips = append(out.skips, contracts.SkippedStock{
			Ticker: s.Ticker,
			Reason: fmt.Sprintf("industry ranking: %s", skipReason(err)),
		})
		return out
	}
	out.ranking = ranking

	return out
}

// aggregate builds the deterministic result buckets from settled outcomes.
func (o *Orchestrator) aggregate(tradeDate time.Time, outcomes []outcome) *contracts.BatchResult {
	result := &contracts.BatchResult{
		TradeDate:        tradeDate,
		DivergenceAlerts: []contracts.DivergenceAlert{},
		QualityStocks:    []contracts.QualityStock{},
		RiskStocks:       []contracts.RiskStock{},
		Skipped:          []contracts.SkippedStock{},
	}

	for _, out := range outcomes {
		result.Skipped = append(result.Skipped, out.skips...)

		if out.assessment.Alert != nil {
			result.DivergenceAlerts = append(result.DivergenceAlerts, *out.assessment.Alert)
		}

		if out.ranking != nil {
			result.Rankings = append(result.Rankings, *out.ranking)
			if out.ranking.IsTop20 {
				result.QualityStocks = append(result.QualityStocks, contracts.QualityStock{
					Ticker:       out.sample.Ticker,
					Name:         out.sample.Name,
					Industry:     out.ranking.Industry,
					ROE:          out.ranking.Value,
					Rank:         out.ranking.Rank,
					Percentile:   out.ranking.Percentile,
					NetProfitYoY: out.ranking.NetProfitYoY,
				})
			}
		}

		if out.evaluated && o.isRiskStock(out) {
			result.RiskStocks = append(result.RiskStocks, contracts.RiskStock{
				Ticker:         out.sample.Ticker,
				Name:           out.sample.Name,
				ROE:            out.assessment.ROE,
				ProfitYoY:      out.assessment.NetProfitYoY,
				PctChangeToday: out.sample.PctChangeToday,
				Warning: fmt.Sprintf("price up %.1f%% today without fundamental support (trend=%s)",
					out.sample.PctChangeToday, out.assessment.Trend),
			})
		}
	}

	// Severity first, then proximity descending, then ticker ascending
	sort.Slice(result.DivergenceAlerts, func(i, j int) bool {
		a, b := result.DivergenceAlerts[i], result.DivergenceAlerts[j]
		if a.Level != b.Level {
			return severityOrder(a.Level) < severityOrder(b.Level)
		}
		if a.Proximity != b.Proximity {
			return a.Proximity > b.Proximity
		}
		return a.Ticker < b.Ticker
	})

	sort.Slice(result.QualityStocks, func(i, j int) bool {
		a, b := result.QualityStocks[i], result.QualityStocks[j]
		if a.Percentile != b.Percentile {
			return a.Percentile > b.Percentile
		}
		return a.Ticker < b.Ticker
	})

	sort.Slice(result.RiskStocks, func(i, j int) bool {
		a, b := result.RiskStocks[i], result.RiskStocks[j]
		if a.PctChangeToday != b.PctChangeToday {
			return a.PctChangeToday > b.PctChangeToday
		}
		return a.Ticker < b.Ticker
	})

	sort.Slice(result.Rankings, func(i, j int) bool {
		a, b := result.Rankings[i], result.Rankings[j]
		if a.Percentile != b.Percentile {
			return a.Percentile > b.Percentile
		}
		return a.Ticker < b.Ticker
	})

	sort.Slice(result.Skipped, func(i, j int) bool {
		a, b := result.Skipped[i], result.Skipped[j]
		if a.Ticker != b.Ticker {
			return a.Ticker < b.Ticker
		}
		return a.Reason < b.Reason
	})

	return result
}

// isRiskStock flags a surge without fundamental support: pct change above
// the surge threshold with a loss trend or a steep profit decline.
func (o *Orchestrator) isRiskStock(out outcome) bool {
	if out.sample.PctChangeToday <= o.cfg.SurgeThreshold {
		return false
	}
	if out.assessment.Trend == contracts.TrendLoss {
		return true
	}
	yoy := out.assessment.NetProfitYoY
	return yoy != nil && *yoy < o.cfg.SteepDeclineCutoff
}

// severityOrder maps levels to sort precedence (severe before moderate).
func severityOrder(level contracts.DivergenceLevel) int {
	switch level {
	case contracts.DivergenceSevere:
		return 0
	case contracts.DivergenceModerate:
		return 1
	default:
		return 2
	}
}

// skipReason classifies an error into the stable reason strings surfaced in
// the skipped list.
func skipReason(err error) string {
	switch {
	case errors.Is(err, contracts.ErrInsufficientHistory):
		return "insufficient price history"
	case errors.Is(err, contracts.ErrDataUnavailable):
		return "financial data unavailable"
	case errors.Is(err, contracts.ErrRateLimited):
		return "rate limited (retries exhausted)"
	case errors.Is(err, contracts.ErrIndustryMissing):
		return "industry missing or no comparable peers"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return err.Error()
	}
}
