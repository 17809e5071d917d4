package contracts

import "time"

// Stock is immutable reference data for one sample stock in a run.
type Stock struct {
	Ticker   string `json:"ticker"`
	Name     string `json:"name"`
	Industry string `json:"industry"`
	Market   string `json:"market"`
}

// SampleStock pairs reference data with today's quote, as handed to the
// orchestrator by the caller.
type SampleStock struct {
	Stock
	CurrentPrice   float64 `json:"current_price"`
	PctChangeToday float64 `json:"pct_change_today"`
}

// PriceSnapshot holds per-(ticker, trade date) price state. Computed fresh
// each run, never persisted.
type PriceSnapshot struct {
	CurrentPrice   float64 `json:"current_price"`
	PctChangeToday float64 `json:"pct_change_today"`
	High52W        float64 `json:"high_52w"`
	Low52W         float64 `json:"low_52w"`
}

// FinancialIndicatorRecord is one normalized quarterly record.
// Sequences are ordered most-recent-first, up to 8 entries per ticker.
type FinancialIndicatorRecord struct {
	Period       string   `json:"period"` // quarter end date, YYYYMMDD
	ROE          *float64 `json:"roe"`
	NetProfitYoY *float64 `json:"netprofit_yoy"`
	GrossMargin  *float64 `json:"grossprofit_margin"`
	NetMargin    *float64 `json:"netprofit_margin"`
	RevenueYoY   *float64 `json:"revenue_yoy"`
}

// ProfitTrend classifies the latest fundamental trend of a company.
type ProfitTrend string

const (
	TrendLoss            ProfitTrend = "loss"
	TrendDeclining       ProfitTrend = "declining"
	TrendStableOrGrowing ProfitTrend = "stable_or_growing"
)

// DivergenceLevel grades how far price action has run ahead of fundamentals.
type DivergenceLevel string

const (
	DivergenceSevere   DivergenceLevel = "severe"
	DivergenceModerate DivergenceLevel = "moderate"
	DivergenceNone     DivergenceLevel = "none"
)

// DivergenceAlert flags a stock whose price proximity to its 52-week high is
// not supported by its fundamental trend. At most one per ticker per run.
type DivergenceAlert struct {
	Ticker    string          `json:"ticker"`
	Name      string          `json:"name"`
	Warning   string          `json:"warning"`
	Level     DivergenceLevel `json:"divergence_level"`
	Proximity float64         `json:"proximity"` // current_price / high_52w
	Trend     ProfitTrend     `json:"profit_trend"`
}

// IndustryRankingResult places a stock's metric among same-industry peers.
type IndustryRankingResult struct {
	Ticker       string   `json:"ticker"`
	Industry     string   `json:"industry"`
	Metric       string   `json:"metric"`
	Value        float64  `json:"value"`
	Rank         int      `json:"rank"` // 1-indexed
	TotalCount   int      `json:"total_count"`
	Percentile   float64  `json:"percentile"` // [0, 100], 100 = best
	IsTop20      bool     `json:"is_top20"`   // percentile >= top-20 cutoff
	NetProfitYoY *float64 `json:"netprofit_yoy,omitempty"`
}

// QualityStock is the top-20% subset of ranking results.
type QualityStock struct {
	Ticker       string   `json:"ticker"`
	Name         string   `json:"name"`
	Industry     string   `json:"industry"`
	ROE          float64  `json:"roe"`
	Rank         int      `json:"rank"`
	Percentile   float64  `json:"percentile"`
	NetProfitYoY *float64 `json:"profit_yoy,omitempty"`
}

// RiskStock flags a price surge without fundamental support.
type RiskStock struct {
	Ticker         string   `json:"ticker"`
	Name           string   `json:"name"`
	Warning        string   `json:"warning"`
	ROE            *float64 `json:"roe"`
	ProfitYoY      *float64 `json:"profit_yoy"`
	PctChangeToday float64  `json:"pct_change_today"`
}

// SkippedStock records why a ticker could not be evaluated, so callers can
// distinguish "no alert" from "could not evaluate".
type SkippedStock struct {
	Ticker string `json:"ticker"`
	Reason string `json:"reason"`
}

// BatchResult is the aggregate output of one orchestrator run.
// ⭐ SSOT: 배치 분석 결과 구조는 여기서만 정의
type BatchResult struct {
	TradeDate        time.Time               `json:"trade_date"`
	DivergenceAlerts []DivergenceAlert       `json:"divergence_alerts"`
	QualityStocks    []QualityStock          `json:"quality_stocks"`
	RiskStocks       []RiskStock             `json:"risk_stocks"`
	Skipped          []SkippedStock          `json:"skipped"`
	Rankings         []IndustryRankingResult `json:"rankings,omitempty"`
}

// Counts returns bucket sizes for logging.
func (r *BatchResult) Counts() (alerts, quality, risk, skipped int) {
	return len(r.DivergenceAlerts), len(r.QualityStocks), len(r.RiskStocks), len(r.Skipped)
}
