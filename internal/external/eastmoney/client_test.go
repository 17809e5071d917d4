package eastmoney

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/veritas/backend/internal/contracts"
	"github.com/wonny/veritas/backend/pkg/config"
	"github.com/wonny/veritas/backend/pkg/httputil"
	"github.com/wonny/veritas/backend/pkg/logger"
)

// newTestClient routes both endpoints at a local test server.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Config{
		Env:       "development",
		LogLevel:  "error",
		LogFormat: "json",
		Eastmoney: config.EastmoneyConfig{
			QuoteURL: server.URL + "/quotes",
			KlineURL: server.URL + "/klines",
		},
	}
	log := logger.New(cfg)
	return NewClient(cfg, httputil.New(cfg, log).DisableRetry(), log)
}

const klinePayload = `{
	"data": {
		"code": "600519",
		"klines": [
			"2026-08-26,1420.00,1435.50,1440.00,1418.00",
			"2026-08-27,1436.00,1452.04,1455.00,1430.00",
			"2026-08-28,1450.00,1448.20,1460.00,1445.00",
			"garbage-row",
			"2026-08-29,notanumber,alsonot"
		]
	}
}`

func TestGetHistory(t *testing.T) {
	var gotQuery string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(klinePayload))
	})

	from := time.Date(2025, 8, 29, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

	prices, err := client.GetHistory(context.Background(), "600519", from, to)
	require.NoError(t, err)

	// Shanghai secid prefix and compact date bounds
	assert.Contains(t, gotQuery, "secid=1.600519")
	assert.Contains(t, gotQuery, "beg=20250829")
	assert.Contains(t, gotQuery, "end=20260828")
	assert.Contains(t, gotQuery, "klt=101")

	// Malformed rows are dropped; close is the third column
	require.Len(t, prices, 3)
	assert.Equal(t, time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC), prices[0].Date)
	assert.Equal(t, 1435.50, prices[0].Close)
	assert.Equal(t, 1448.20, prices[2].Close)
}

func TestGetHistoryNoData(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": null}`))
	})

	_, err := client.GetHistory(context.Background(), "999999", time.Now().AddDate(-1, 0, 0), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data.klines")
}

func TestGetHistoryRateLimited(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.GetHistory(context.Background(), "600519", time.Now().AddDate(-1, 0, 0), time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrRateLimited)
}

func TestGetQuotes(t *testing.T) {
	var gotQuery string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{
			"data": {
				"diff": [
					{"f12": "600519", "f14": "贵州茅台", "f2": 1448.20, "f3": -0.26},
					{"f12": "000858", "f14": "五粮液", "f2": 128.91, "f3": 1.73},
					{"f12": "", "f14": "ignored", "f2": 1, "f3": 1}
				]
			}
		}`))
	})

	quotes, err := client.GetQuotes(context.Background(), []string{"600519", "000858"})
	require.NoError(t, err)

	assert.Contains(t, gotQuery, "secids=1.600519,0.000858")

	require.Len(t, quotes, 2)
	assert.Equal(t, "600519", quotes[0].Ticker)
	assert.Equal(t, "贵州茅台", quotes[0].Name)
	assert.Equal(t, 1448.20, quotes[0].Price)
	assert.Equal(t, -0.26, quotes[0].ChangePct)
	assert.Equal(t, 1.73, quotes[1].ChangePct)
}

func TestGetQuotesEmptyInput(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for an empty ticker set")
	})

	quotes, err := client.GetQuotes(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, quotes)
}

func TestSecID(t *testing.T) {
	tests := []struct {
		ticker string
		want   string
	}{
		{"600519", "1.600519"},
		{"688001", "1.688001"}, // STAR board lists in Shanghai
		{"510300", "1.510300"},
		{"900901", "1.900901"},
		{"000858", "0.000858"},
		{"300750", "0.300750"},
		{"002594", "0.002594"},
		{" 600519 ", "1.600519"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SecID(tt.ticker), tt.ticker)
	}
}
