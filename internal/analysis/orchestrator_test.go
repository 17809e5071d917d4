package analysis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/veritas/backend/internal/contracts"
	"github.com/wonny/veritas/backend/pkg/config"
)

func testAnalysisConfig() config.AnalysisConfig {
	return config.AnalysisConfig{
		NearHighProximity:    0.95,
		ModerateGrowthCutoff: 10,
		Metric:               MetricROE,
		Top20Percentile:      80,
		SurgeThreshold:       5,
		SteepDeclineCutoff:   -20,
		MinTradingDays:       60,
		MaxPeriods:           8,
		MaxAttempts:          3,
		Workers:              4,
		FetchTimeout:         time.Second,
		BatchDeadline:        5 * time.Second,
		InitialBackoff:       time.Millisecond,
	}
}

// batchFixture bundles the fakes behind one orchestrator.
type batchFixture struct {
	prices    *fakePrices
	provider  *fakeFinancials
	directory *fakeDirectory
	tradeDate time.Time
}

func newBatchFixture() *batchFixture {
	return &batchFixture{
		prices:    newFakePrices(),
		provider:  newFakeFinancials(),
		directory: newFakeDirectory(),
		tradeDate: time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC),
	}
}

// addStock registers a ticker with price history and one quarterly record.
func (fx *batchFixture) addStock(ticker, industry string, high float64, roe, yoy *float64) {
	fx.directory.add(ticker, industry)
	fx.prices.setDays(ticker, fx.tradeDate, 240, high*0.8, high)
	fx.provider.records[ticker] = []contracts.FinancialIndicatorRecord{
		record("20260630", roe, yoy),
	}
}

func (fx *batchFixture) orchestrator(cfg config.AnalysisConfig) *Orchestrator {
	log := testLogger()
	fetcher := fastFetcher(fx.provider)
	return NewOrchestrator(
		NewPriceRangeResolver(fx.prices, cfg.MinTradingDays, log),
		fetcher,
		NewDivergenceClassifier(cfg.NearHighProximity, cfg.ModerateGrowthCutoff),
		NewIndustryRanker(fx.directory, fetcher, cfg.Metric, cfg.Top20Percentile, log),
		cfg,
		log,
	)
}

func sample(ticker, name, industry string, price, pct float64) contracts.SampleStock {
	return contracts.SampleStock{
		Stock: contracts.Stock{
			Ticker:   ticker,
			Name:     name,
			Industry: industry,
			Market:   "SH",
		},
		CurrentPrice:   price,
		PctChangeToday: pct,
	}
}

func TestRunPartialFailure(t *testing.T) {
	fx := newBatchFixture()

	// Five healthy stocks in one industry so rankings are computable
	for i := 0; i < 5; i++ {
		fx.addStock(fmt.Sprintf("60000%d", i), "白酒", 100, f64(float64(20-i)), f64(8.0))
	}

	// One ticker with no fundamentals at the provider
	fx.directory.add("600100", "白酒")
	fx.prices.setDays("600100", fx.tradeDate, 240, 80, 100)
	fx.provider.errs["600100"] = fmt.Errorf("%w: no rows", contracts.ErrDataUnavailable)

	// One recent IPO without enough price history
	fx.directory.add("301999", "白酒")
	fx.prices.setDays("301999", fx.tradeDate, 20, 80, 100)

	samples := []contracts.SampleStock{
		sample("600000", "甲", "白酒", 90, 1.0),
		sample("600001", "乙", "白酒", 90, 1.0),
		sample("600100", "丙", "白酒", 90, 1.0),
		sample("301999", "丁", "白酒", 90, 1.0),
	}

	o := fx.orchestrator(testAnalysisConfig())
	result, err := o.Run(context.Background(), fx.tradeDate, samples)
	require.NoError(t, err)

	// The two broken tickers are skipped; the healthy ones still rank
	require.Len(t, result.Skipped, 2)
	assert.Equal(t, "301999", result.Skipped[0].Ticker)
	assert.Equal(t, "insufficient price history", result.Skipped[0].Reason)
	assert.Equal(t, "600100", result.Skipped[1].Ticker)
	assert.Equal(t, "financial data unavailable", result.Skipped[1].Reason)

	assert.Len(t, result.Rankings, 2)
	for _, r := range result.Rankings {
		assert.Equal(t, "白酒", r.Industry)
		assert.Equal(t, 5, r.TotalCount)
	}
}

func TestRunOneFetchFailureAmongEight(t *testing.T) {
	fx := newBatchFixture()

	samples := make([]contracts.SampleStock, 0, 8)
	for i := 0; i < 8; i++ {
		ticker := fmt.Sprintf("60050%d", i)
		fx.addStock(ticker, "白酒", 100, f64(float64(20-i)), f64(8.0))
		samples = append(samples, sample(ticker, fmt.Sprintf("股%d", i), "白酒", 90, 1.0))
	}

	// Exactly one indicator fetch fails; the other seven still classify and rank
	fx.provider.errs["600503"] = fmt.Errorf("%w: no rows", contracts.ErrDataUnavailable)

	o := fx.orchestrator(testAnalysisConfig())
	result, err := o.Run(context.Background(), fx.tradeDate, samples)
	require.NoError(t, err)

	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "600503", result.Skipped[0].Ticker)
	assert.Equal(t, "financial data unavailable", result.Skipped[0].Reason)

	require.Len(t, result.Rankings, 7)
	seen := make(map[int]bool)
	for _, r := range result.Rankings {
		assert.Equal(t, 7, r.TotalCount)
		seen[r.Rank] = true
	}
	for rank := 1; rank <= 7; rank++ {
		assert.True(t, seen[rank], "missing rank %d", rank)
	}
}

func TestRunSevereDivergenceAndQuality(t *testing.T) {
	fx := newBatchFixture()

	// Industry of five; the target is near its high with declining profit
	fx.addStock("600519", "白酒", 50.04, f64(5.3), f64(-10.18))
	for i := 0; i < 4; i++ {
		fx.addStock(fmt.Sprintf("60080%d", i), "白酒", 100, f64(float64(3-i)), f64(8.0))
	}

	samples := []contracts.SampleStock{
		sample("600519", "贵州茅台", "白酒", 48.5, 1.2),
	}

	o := fx.orchestrator(testAnalysisConfig())
	result, err := o.Run(context.Background(), fx.tradeDate, samples)
	require.NoError(t, err)

	require.Len(t, result.DivergenceAlerts, 1)
	alert := result.DivergenceAlerts[0]
	assert.Equal(t, contracts.DivergenceSevere, alert.Level)
	assert.Equal(t, contracts.TrendDeclining, alert.Trend)
	assert.InDelta(t, 0.9692, alert.Proximity, 0.0001)

	// ROE 5.3 leads the peer group, so the same stock is also a quality pick
	require.Len(t, result.QualityStocks, 1)
	q := result.QualityStocks[0]
	assert.Equal(t, "600519", q.Ticker)
	assert.Equal(t, 1, q.Rank)
	assert.Equal(t, 100.0, q.Percentile)
	assert.Empty(t, result.Skipped)
}

func TestRunRiskStock(t *testing.T) {
	fx := newBatchFixture()

	// Loss-making stock surging 12.38% today, far from its 52-week high
	fx.addStock("300999", "养殖", 100, f64(-7.56), f64(-35.0))
	for i := 0; i < 3; i++ {
		fx.addStock(fmt.Sprintf("30090%d", i), "养殖", 100, f64(float64(10-i)), f64(5.0))
	}

	samples := []contracts.SampleStock{
		sample("300999", "亏损股", "养殖", 70, 12.38),
	}

	o := fx.orchestrator(testAnalysisConfig())
	result, err := o.Run(context.Background(), fx.tradeDate, samples)
	require.NoError(t, err)

	require.Len(t, result.RiskStocks, 1)
	risk := result.RiskStocks[0]
	assert.Equal(t, "300999", risk.Ticker)
	assert.Equal(t, 12.38, risk.PctChangeToday)
	assert.Contains(t, risk.Warning, "without fundamental support")

	// Far from the high, so no divergence alert accompanies the risk flag
	assert.Empty(t, result.DivergenceAlerts)
}

func TestRunRankingFailureKeepsAlert(t *testing.T) {
	fx := newBatchFixture()

	// Near-high loss-maker whose industry has no comparable peers
	fx.addStock("688001", "稀土", 50, f64(-2.0), f64(-15.0))

	samples := []contracts.SampleStock{
		sample("688001", "孤股", "稀土", 49, 1.0),
	}

	o := fx.orchestrator(testAnalysisConfig())
	result, err := o.Run(context.Background(), fx.tradeDate, samples)
	require.NoError(t, err)

	// The divergence alert stands even though ranking was not computable
	require.Len(t, result.DivergenceAlerts, 1)
	assert.Equal(t, contracts.DivergenceSevere, result.DivergenceAlerts[0].Level)

	require.Len(t, result.Skipped, 1)
	assert.Contains(t, result.Skipped[0].Reason, "industry ranking")
	assert.Empty(t, result.QualityStocks)
}

func TestRunDeterministicOrdering(t *testing.T) {
	fx := newBatchFixture()

	// Two severe, one moderate alert across two industries
	fx.addStock("600001", "白酒", 100, f64(5.0), f64(-5.0))
	fx.addStock("600002", "白酒", 100, f64(6.0), f64(-8.0))
	fx.addStock("600003", "白酒", 100, f64(12.0), f64(4.0))
	for i := 0; i < 3; i++ {
		fx.addStock(fmt.Sprintf("60070%d", i), "白酒", 100, f64(float64(2-i)), f64(8.0))
	}

	samples := []contracts.SampleStock{
		sample("600003", "缓丙", "白酒", 97, 1.0), // moderate, proximity 0.97
		sample("600001", "严甲", "白酒", 96, 1.0), // severe, proximity 0.96
		sample("600002", "严乙", "白酒", 98, 1.0), // severe, proximity 0.98
	}

	o := fx.orchestrator(testAnalysisConfig())

	first, err := o.Run(context.Background(), fx.tradeDate, samples)
	require.NoError(t, err)

	// Severity first, then proximity descending
	require.Len(t, first.DivergenceAlerts, 3)
	assert.Equal(t, "600002", first.DivergenceAlerts[0].Ticker)
	assert.Equal(t, "600001", first.DivergenceAlerts[1].Ticker)
	assert.Equal(t, "600003", first.DivergenceAlerts[2].Ticker)

	// A rerun over frozen inputs reproduces the result exactly
	second, err := o.Run(context.Background(), fx.tradeDate, samples)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRunInvalidMetricFailsFast(t *testing.T) {
	fx := newBatchFixture()
	cfg := testAnalysisConfig()
	cfg.Metric = "pe_ratio"

	o := fx.orchestrator(cfg)

	_, err := o.Run(context.Background(), fx.tradeDate, []contracts.SampleStock{
		sample("600519", "贵州茅台", "白酒", 48.5, 1.2),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrInvalidMetric)
}

func TestRunEmptySample(t *testing.T) {
	fx := newBatchFixture()
	o := fx.orchestrator(testAnalysisConfig())

	result, err := o.Run(context.Background(), fx.tradeDate, nil)
	require.NoError(t, err)

	assert.Empty(t, result.DivergenceAlerts)
	assert.Empty(t, result.QualityStocks)
	assert.Empty(t, result.RiskStocks)
	assert.Empty(t, result.Skipped)
}
