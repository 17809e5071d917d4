package analysis

import (
	"fmt"

	"github.com/wonny/veritas/backend/internal/contracts"
)

// DivergenceClassifier decides whether a stock's proximity to its 52-week
// high is unsupported by its fundamental trend.
// ⭐ SSOT: 가격-펀더멘털 괴리 판정은 여기서만
//
// Pure function over its inputs; no provider access, no hidden state.
type DivergenceClassifier struct {
	nearHighProximity    float64 // near-high cutoff on price/high_52w
	moderateGrowthCutoff float64 // netprofit_yoy (%) below this is sluggish growth
}

// NewDivergenceClassifier creates a classifier with the given thresholds.
func NewDivergenceClassifier(nearHighProximity, moderateGrowthCutoff float64) *DivergenceClassifier {
	return &DivergenceClassifier{
		nearHighProximity:    nearHighProximity,
		moderateGrowthCutoff: moderateGrowthCutoff,
	}
}

// Assessment is the full classification outcome for one stock.
type Assessment struct {
	Proximity    float64
	Trend        contracts.ProfitTrend
	Level        contracts.DivergenceLevel
	ROE          *float64
	NetProfitYoY *float64
	Alert        *contracts.DivergenceAlert // nil when Level == none
}

// Classify grades price/fundamental divergence from the current price, the
// 52-week high and the most recent quarterly record.
func (c *DivergenceClassifier) Classify(stock contracts.Stock, currentPrice, high52w float64, latest contracts.FinancialIndicatorRecord) Assessment {
	trend := ProfitTrendOf(latest)

	out := Assessment{
		Trend:        trend,
		Level:        contracts.DivergenceNone,
		ROE:          latest.ROE,
		NetProfitYoY: latest.NetProfitYoY,
	}

	if high52w <= 0 {
		return out
	}
	out.Proximity = currentPrice / high52w

	nearHigh := out.Proximity >= c.nearHighProximity
	if !nearHigh {
		return out
	}

	switch {
	case trend == contracts.TrendLoss || trend == contracts.TrendDeclining:
		out.Level = contracts.DivergenceSevere
	case latest.NetProfitYoY != nil && *latest.NetProfitYoY < c.moderateGrowthCutoff:
		out.Level = contracts.DivergenceModerate
	default:
		return out
	}

	out.Alert = &contracts.DivergenceAlert{
		Ticker:    stock.Ticker,
		Name:      stock.Name,
		Level:     out.Level,
		Proximity: out.Proximity,
		Trend:     trend,
		Warning:   c.warningText(out),
	}
	return out
}

// ProfitTrendOf derives the fundamental trend from the latest record:
// loss when ROE or net margin is negative, declining when net profit
// shrank year over year, stable_or_growing otherwise.
func ProfitTrendOf(latest contracts.FinancialIndicatorRecord) contracts.ProfitTrend {
	if latest.ROE != nil && *latest.ROE < 0 {
		return contracts.TrendLoss
	}
	if latest.NetMargin != nil && *latest.NetMargin < 0 {
		return contracts.TrendLoss
	}
	if latest.NetProfitYoY != nil && *latest.NetProfitYoY < 0 {
		return contracts.TrendDeclining
	}
	return contracts.TrendStableOrGrowing
}

func (c *DivergenceClassifier) warningText(a Assessment) string {
	switch a.Level {
	case contracts.DivergenceSevere:
		return fmt.Sprintf("price at %.1f%% of 52-week high while profit trend is %s (roe=%s, netprofit_yoy=%s)",
			a.Proximity*100, a.Trend, fmtMetric(a.ROE), fmtMetric(a.NetProfitYoY))
	case contracts.DivergenceModerate:
		return fmt.Sprintf("price at %.1f%% of 52-week high but profit growth is sluggish (roe=%s, netprofit_yoy=%s)",
			a.Proximity*100, fmtMetric(a.ROE), fmtMetric(a.NetProfitYoY))
	default:
		return ""
	}
}

// fmtMetric renders an optional metric for warning text.
func fmtMetric(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *v)
}
