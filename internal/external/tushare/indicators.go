package tushare

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/wonny/veritas/backend/internal/contracts"
)

// fina_indicator fields we normalize. Tushare names them after the Chinese
// accounting standard exports: or_yoy is operating revenue YoY.
const finaIndicatorFields = "ts_code,ann_date,end_date,roe,netprofit_yoy,grossprofit_margin,netprofit_margin,or_yoy"

// GetQuarterlyIndicators implements contracts.FinancialDataProvider.
// Records come back most-recent-first by report period (end_date); during
// reporting season the newest published quarter leads the slice.
func (c *Client) GetQuarterlyIndicators(ctx context.Context, ticker string, limit int) ([]contracts.FinancialIndicatorRecord, error) {
	body, err := c.call(ctx, "fina_indicator", map[string]string{
		"ts_code": TsCode(ticker),
	}, finaIndicatorFields)
	if err != nil {
		return nil, err
	}

	records, err := parseIndicators(body)
	if err != nil {
		return nil, fmt.Errorf("parse fina_indicator for %s: %w", ticker, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: tushare has no fina_indicator rows for %s", contracts.ErrDataUnavailable, ticker)
	}

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	c.logger.WithFields(map[string]interface{}{
		"ticker":  ticker,
		"periods": len(records),
	}).Debug("Fetched quarterly indicators")

	return records, nil
}

// parseIndicators decodes the columnar fields/items payload into records
// sorted most-recent-first by period.
func parseIndicators(body []byte) ([]contracts.FinancialIndicatorRecord, error) {
	fields := gjson.GetBytes(body, "data.fields")
	items := gjson.GetBytes(body, "data.items")
	if !fields.IsArray() || !items.IsArray() {
		return nil, fmt.Errorf("missing data.fields or data.items")
	}

	idx := make(map[string]int)
	for i, f := range fields.Array() {
		idx[f.String()] = i
	}
	endDateIdx, ok := idx["end_date"]
	if !ok {
		return nil, fmt.Errorf("missing end_date column")
	}

	seen := make(map[string]bool)
	var records []contracts.FinancialIndicatorRecord

	for _, row := range items.Array() {
		cols := row.Array()
		period := columnString(cols, endDateIdx)
		if period == "" || seen[period] {
			// Tushare repeats periods when reports are restated; first row wins
			continue
		}
		seen[period] = true

		records = append(records, contracts.FinancialIndicatorRecord{
			Period:       period,
			ROE:          columnFloat(cols, idx, "roe"),
			NetProfitYoY: columnFloat(cols, idx, "netprofit_yoy"),
			GrossMargin:  columnFloat(cols, idx, "grossprofit_margin"),
			NetMargin:    columnFloat(cols, idx, "netprofit_margin"),
			RevenueYoY:   columnFloat(cols, idx, "or_yoy"),
		})
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Period > records[j].Period
	})

	return records, nil
}

func columnString(cols []gjson.Result, i int) string {
	if i < 0 || i >= len(cols) {
		return ""
	}
	return cols[i].String()
}

// columnFloat returns nil for absent columns and JSON nulls, so sparse
// reporting-season rows keep their gaps instead of collapsing to zero.
func columnFloat(cols []gjson.Result, idx map[string]int, name string) *float64 {
	i, ok := idx[name]
	if !ok || i >= len(cols) {
		return nil
	}
	col := cols[i]
	if col.Type == gjson.Null {
		return nil
	}
	if col.Type == gjson.String {
		v, err := strconv.ParseFloat(col.String(), 64)
		if err != nil {
			return nil
		}
		return &v
	}
	v := col.Float()
	return &v
}
