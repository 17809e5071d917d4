package analysis

import (
	"context"
	"fmt"
	"sort"

	"github.com/wonny/veritas/backend/internal/contracts"
	"github.com/wonny/veritas/backend/pkg/logger"
)

// Supported ranking metrics
const (
	MetricROE         = "roe"
	MetricProfitYoY   = "profit_yoy"
	MetricGrossMargin = "gross_margin"
)

// ValidateMetric fails fast on an unsupported ranking metric. This is a
// configuration defect, not a per-ticker data problem, so the orchestrator
// checks it before any work is scheduled.
func ValidateMetric(metric string) error {
	switch metric {
	case MetricROE, MetricProfitYoY, MetricGrossMargin:
		return nil
	default:
		return fmt.Errorf("%w: %q (supported: %s, %s, %s)",
			contracts.ErrInvalidMetric, metric, MetricROE, MetricProfitYoY, MetricGrossMargin)
	}
}

// IndustryRanker ranks a stock's chosen metric against same-industry peers.
// Peer metric values are resolved through the shared IndicatorFetcher, so
// peers overlapping across sample stocks hit the per-run cache.
type IndustryRanker struct {
	directory       contracts.IndustryDirectory
	fetcher         *IndicatorFetcher
	metric          string
	top20Percentile float64
	logger          *logger.Logger
}

// NewIndustryRanker creates a new industry ranker.
func NewIndustryRanker(directory contracts.IndustryDirectory, fetcher *IndicatorFetcher, metric string, top20Percentile float64, log *logger.Logger) *IndustryRanker {
	return &IndustryRanker{
		directory:       directory,
		fetcher:         fetcher,
		metric:          metric,
		top20Percentile: top20Percentile,
		logger:          log.WithField("module", "ranker"),
	}
}

// peerValue is one peer with a defined metric value.
type peerValue struct {
	ticker string
	value  float64
}

// Rank computes the 1-indexed rank and percentile of a ticker's metric
// within its industry peer group. Ties are broken by ticker ascending so
// reruns are reproducible.
func (r *IndustryRanker) Rank(ctx context.Context, ticker string) (*contracts.IndustryRankingResult, error) {
	industry, err := r.directory.GetIndustry(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("industry for %s: %w", ticker, err)
	}
	if industry == "" {
		return nil, fmt.Errorf("%w: %s has no industry classification", contracts.ErrIndustryMissing, ticker)
	}

	peers, err := r.directory.GetPeers(ctx, industry)
	if err != nil {
		return nil, fmt.Errorf("peers of %s: %w", industry, err)
	}

	values := make([]peerValue, 0, len(peers))
	var targetYoY *float64

	for _, peer := range peers {
		records, err := r.fetcher.Fetch(ctx, peer)
		if err != nil {
			// Peers without usable fundamentals are simply not comparable;
			// only context cancellation aborts the ranking.
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		latest, ok := Latest(records)
		if !ok {
			continue
		}

		value := metricValue(latest, r.metric)
		if value == nil {
			continue
		}
		values = append(values, peerValue{ticker: peer, value: *value})

		if peer == ticker {
			targetYoY = latest.NetProfitYoY
		}
	}

	if len(values) < 2 {
		return nil, fmt.Errorf("%w: industry %s has %d comparable peers (need 2)",
			contracts.ErrIndustryMissing, industry, len(values))
	}

	// Descending by value, ties broken by ticker ascending
	sort.Slice(values, func(i, j int) bool {
		if values[i].value != values[j].value {
			return values[i].value > values[j].value
		}
		return values[i].ticker < values[j].ticker
	})

	rank := 0
	var targetValue float64
	for i, pv := range values {
		if pv.ticker == ticker {
			rank = i + 1
			targetValue = pv.value
			break
		}
	}
	if rank == 0 {
		return nil, fmt.Errorf("%w: no %s value for %s", contracts.ErrDataUnavailable, r.metric, ticker)
	}

	total := len(values)
	percentile := (1 - float64(rank-1)/float64(total)) * 100

	result := &contracts.IndustryRankingResult{
		Ticker:       ticker,
		Industry:     industry,
		Metric:       r.metric,
		Value:        targetValue,
		Rank:         rank,
		TotalCount:   total,
		Percentile:   percentile,
		IsTop20:      percentile >= r.top20Percentile,
		NetProfitYoY: targetYoY,
	}

	r.logger.WithFields(map[string]interface{}{
		"ticker":     ticker,
		"industry":   industry,
		"metric":     r.metric,
		"rank":       rank,
		"total":      total,
		"percentile": percentile,
	}).Debug("Computed industry ranking")

	return result, nil
}

// metricValue selects the configured metric from a quarterly record.
func metricValue(rec contracts.FinancialIndicatorRecord, metric string) *float64 {
	switch metric {
	case MetricROE:
		return rec.ROE
	case MetricProfitYoY:
		return rec.NetProfitYoY
	case MetricGrossMargin:
		return rec.GrossMargin
	default:
		return nil
	}
}
