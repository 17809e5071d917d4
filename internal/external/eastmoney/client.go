package eastmoney

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/wonny/veritas/backend/internal/contracts"
	"github.com/wonny/veritas/backend/pkg/config"
	"github.com/wonny/veritas/backend/pkg/httputil"
	"github.com/wonny/veritas/backend/pkg/logger"
)

// Quote endpoint fields: f12 code, f14 name, f2 price, f3 pct change
const quoteFields = "f12,f14,f2,f3"

// Kline request shape: klt=101 daily bars, fqt=1 forward-adjusted
const klineQuery = "secid=%s&fields1=f1,f2,f3&fields2=f51,f52,f53&klt=101&fqt=1&beg=%s&end=%s"

// Client fetches quotes and daily klines from the Eastmoney push API.
// ⭐ SSOT: Eastmoney API 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	quoteURL   string
	klineURL   string
}

// NewClient creates a new Eastmoney client.
func NewClient(cfg *config.Config, httpClient *httputil.Client, log *logger.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log.WithField("module", "eastmoney"),
		quoteURL:   cfg.Eastmoney.QuoteURL,
		klineURL:   cfg.Eastmoney.KlineURL,
	}
}

// Quote is one current-session snapshot from the ulist endpoint.
type Quote struct {
	Ticker    string
	Name      string
	Price     float64
	ChangePct float64
}

// fetch executes a GET and returns the body, classifying throttling.
func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.httpClient.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: eastmoney returned HTTP 429", contracts.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("eastmoney: unexpected status code %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// GetHistory implements contracts.PriceHistoryProvider using the daily
// kline endpoint. Close prices come back ordered by date ascending.
func (c *Client) GetHistory(ctx context.Context, ticker string, from, to time.Time) ([]contracts.ClosePrice, error) {
	url := fmt.Sprintf("%s?"+klineQuery, c.klineURL, SecID(ticker),
		from.Format("20060102"), to.Format("20060102"))

	body, err := c.fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("eastmoney klines for %s: %w", ticker, err)
	}

	klines := gjson.GetBytes(body, "data.klines")
	if !klines.IsArray() {
		return nil, fmt.Errorf("eastmoney: no data.klines for %s", ticker)
	}

	arr := klines.Array()
	out := make([]contracts.ClosePrice, 0, len(arr))
	for _, v := range arr {
		// Each kline is "date,open,close,..." comma-joined
		parts := strings.Split(strings.TrimSpace(v.String()), ",")
		if len(parts) < 3 {
			continue
		}
		date, err := time.Parse("2006-01-02", parts[0])
		if err != nil {
			continue
		}
		closeVal, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			continue
		}
		out = append(out, contracts.ClosePrice{Date: date, Close: closeVal})
	}

	c.logger.WithFields(map[string]interface{}{
		"ticker": ticker,
		"bars":   len(out),
	}).Debug("Fetched daily klines")

	return out, nil
}

// GetQuotes fetches current price and pct change for a bounded ticker set.
func (c *Client) GetQuotes(ctx context.Context, tickers []string) ([]Quote, error) {
	if len(tickers) == 0 {
		return nil, nil
	}

	secids := make([]string, len(tickers))
	for i, t := range tickers {
		secids[i] = SecID(t)
	}

	url := fmt.Sprintf("%s?secids=%s&fields=%s", c.quoteURL, strings.Join(secids, ","), quoteFields)
	body, err := c.fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("eastmoney quotes: %w", err)
	}

	diff := gjson.GetBytes(body, "data.diff")
	if !diff.IsArray() {
		return nil, fmt.Errorf("eastmoney: no data.diff in quote response")
	}

	var quotes []Quote
	for _, v := range diff.Array() {
		ticker := strings.TrimSpace(v.Get("f12").String())
		if ticker == "" {
			continue
		}
		quotes = append(quotes, Quote{
			Ticker:    ticker,
			Name:      v.Get("f14").String(),
			Price:     v.Get("f2").Float(),
			ChangePct: v.Get("f3").Float(),
		})
	}

	return quotes, nil
}

// SecID converts a bare ticker into Eastmoney's exchange-prefixed form:
// Shanghai listings (6/5/9 prefix) are market 1, Shenzhen market 0.
func SecID(ticker string) string {
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return "0.000000"
	}
	switch ticker[0] {
	case '6', '5', '9':
		return "1." + ticker
	default:
		return "0." + ticker
	}
}
