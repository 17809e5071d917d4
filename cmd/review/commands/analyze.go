package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/veritas/backend/internal/analysis"
	"github.com/wonny/veritas/backend/internal/contracts"
	"github.com/wonny/veritas/backend/internal/external/eastmoney"
	"github.com/wonny/veritas/backend/internal/external/tushare"
	"github.com/wonny/veritas/backend/internal/marketdata"
	"github.com/wonny/veritas/backend/pkg/config"
	"github.com/wonny/veritas/backend/pkg/database"
	"github.com/wonny/veritas/backend/pkg/httputil"
	"github.com/wonny/veritas/backend/pkg/logger"
	"github.com/wonny/veritas/backend/pkg/redis"
)

var (
	analyzeDate   string
	analyzeStocks string
	analyzeJSON   bool
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze [tickers...]",
	Short: "샘플 종목 일일 펀더멘털 리뷰 실행",
	Long: `샘플 종목 집합에 대해 일일 펀더멘털 리뷰 배치를 실행합니다.

이 명령어는:
- 종목별 52주 가격 범위 계산 (DB 또는 Eastmoney)
- Tushare 분기 재무지표 조회 (요율 제한 준수)
- 가격-펀더멘털 괴리 판정
- 업종 내 수익성 랭킹 및 상위 20% 선별
- 급등 + 펀더멘털 악화 리스크 플래그

샘플은 티커 인자(현재가는 Eastmoney 시세로 채움) 또는
--stocks JSON 파일로 지정합니다.

Example:
  go run ./cmd/review analyze 600519 000858 300750
  go run ./cmd/review analyze --stocks sample.json --date 2026-08-28 --json`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeDate, "date", "", "trade date YYYY-MM-DD (default: today)")
	analyzeCmd.Flags().StringVar(&analyzeStocks, "stocks", "", "JSON file with the sample stock set")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the full result as JSON")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	start := time.Now()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("❌ Failed to load config: %w", err)
	}
	log := logger.New(cfg)

	tradeDate, err := resolveTradeDate(analyzeDate)
	if err != nil {
		return err
	}

	// The symbol directory lives in PostgreSQL. Without DATABASE_URL
	// (possible when ANALYSIS_PRICE_SOURCE=eastmoney) rankings degrade to
	// per-ticker industry-missing skips; divergence and risk still run.
	var db *database.DB
	if cfg.Database.URL != "" {
		db, err = database.New(cfg)
		if err != nil {
			return fmt.Errorf("❌ Failed to connect to database: %w", err)
		}
		defer db.Close()
	} else {
		PrintWarning("DATABASE_URL not set; industry rankings will be skipped")
	}

	// Optional cross-process rate gate. The in-process limiter inside the
	// fetcher applies either way.
	rdb, err := redis.New(cfg)
	if err != nil {
		return fmt.Errorf("❌ Failed to connect to redis: %w", err)
	}
	defer rdb.Close()

	tushareHTTP := httputil.NewWithTimeout(cfg, log, cfg.Analysis.FetchTimeout).DisableRetry()
	eastmoneyHTTP := httputil.NewWithTimeout(cfg, log, cfg.Analysis.FetchTimeout)
	if rdb.Enabled() {
		limiter := redis.NewRateLimiter(rdb, "veritas")
		tushareHTTP = tushareHTTP.WithRateLimiter(limiter, redis.TushareRateLimit)
		eastmoneyHTTP = eastmoneyHTTP.WithRateLimiter(limiter, redis.EastmoneyRateLimit)
	}

	tushareClient := tushare.NewClient(cfg, tushareHTTP, log)
	eastmoneyClient := eastmoney.NewClient(cfg, eastmoneyHTTP, log)

	var priceProvider contracts.PriceHistoryProvider
	if cfg.Analysis.PriceSource == "eastmoney" {
		priceProvider = eastmoneyClient
	} else {
		priceProvider = marketdata.NewPriceRepository(db.Pool)
	}

	var directory contracts.IndustryDirectory = noDirectory{}
	if db != nil {
		directory = marketdata.NewSymbolRepository(db.Pool)
	}

	samples, err := loadSamples(cmd.Context(), args, eastmoneyClient, directory)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return fmt.Errorf("❌ No sample stocks given (pass tickers or --stocks)")
	}

	fetcher := analysis.NewIndicatorFetcher(tushareClient, analysis.FetcherConfig{
		MaxPeriods:     cfg.Analysis.MaxPeriods,
		MaxAttempts:    cfg.Analysis.MaxAttempts,
		InitialBackoff: cfg.Analysis.InitialBackoff,
		RatePerSecond:  float64(cfg.Tushare.RateLimit) / cfg.Tushare.RateWindow.Seconds(),
		Burst:          1,
	}, log)

	orchestrator := analysis.NewOrchestrator(
		analysis.NewPriceRangeResolver(priceProvider, cfg.Analysis.MinTradingDays, log),
		fetcher,
		analysis.NewDivergenceClassifier(cfg.Analysis.NearHighProximity, cfg.Analysis.ModerateGrowthCutoff),
		analysis.NewIndustryRanker(directory, fetcher, cfg.Analysis.Metric, cfg.Analysis.Top20Percentile, log),
		cfg.Analysis,
		log,
	)

	PrintRunHeader(RunMetadata{
		RunType:   "Daily Fundamental Review",
		TradeDate: tradeDate.Format("2006-01-02"),
		Metric:    cfg.Analysis.Metric,
		Symbols:   fmt.Sprintf("%d stocks", len(samples)),
	})

	result, err := orchestrator.Run(cmd.Context(), tradeDate, samples)
	if err != nil {
		return fmt.Errorf("❌ Batch failed: %w", err)
	}

	if analyzeJSON {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("❌ Failed to marshal result: %w", err)
		}
		fmt.Println(string(out))
	} else {
		printResult(result)
	}

	PrintRunCompletion(time.Since(start).Seconds())
	return nil
}

// resolveTradeDate parses --date or falls back to today (local date).
func resolveTradeDate(value string) (time.Time, error) {
	if value == "" {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("❌ Invalid --date %q (want YYYY-MM-DD)", value)
	}
	return d, nil
}

// loadSamples builds the sample set from --stocks, or from positional
// tickers via a live Eastmoney quote snapshot.
func loadSamples(ctx context.Context, tickers []string, quotes *eastmoney.Client, directory contracts.IndustryDirectory) ([]contracts.SampleStock, error) {
	if analyzeStocks != "" {
		data, err := os.ReadFile(analyzeStocks)
		if err != nil {
			return nil, fmt.Errorf("❌ Failed to read %s: %w", analyzeStocks, err)
		}
		var samples []contracts.SampleStock
		if err := json.Unmarshal(data, &samples); err != nil {
			return nil, fmt.Errorf("❌ Failed to parse %s: %w", analyzeStocks, err)
		}
		return samples, nil
	}

	if len(tickers) == 0 {
		return nil, nil
	}

	quoted, err := quotes.GetQuotes(ctx, tickers)
	if err != nil {
		return nil, fmt.Errorf("❌ Failed to fetch quotes: %w", err)
	}

	samples := make([]contracts.SampleStock, 0, len(quoted))
	for _, q := range quoted {
		industry := ""
		if directory != nil {
			// Missing industry is not fatal here; the ranker reports it per ticker
			industry, _ = directory.GetIndustry(ctx, q.Ticker)
		}
		samples = append(samples, contracts.SampleStock{
			Stock: contracts.Stock{
				Ticker:   q.Ticker,
				Name:     q.Name,
				Industry: industry,
				Market:   marketOf(q.Ticker),
			},
			CurrentPrice:   q.Price,
			PctChangeToday: q.ChangePct,
		})
	}
	return samples, nil
}

// noDirectory stands in when no database is configured. Every lookup is an
// industry-missing soft failure, so the orchestrator records a ranking skip
// per ticker instead of aborting the batch.
type noDirectory struct{}

func (noDirectory) GetIndustry(ctx context.Context, ticker string) (string, error) {
	return "", fmt.Errorf("%w: no symbol directory configured", contracts.ErrIndustryMissing)
}

func (noDirectory) GetPeers(ctx context.Context, industry string) ([]string, error) {
	return nil, nil
}

// marketOf labels the listing exchange from the secid prefix convention.
func marketOf(ticker string) string {
	if strings.HasPrefix(eastmoney.SecID(ticker), "1.") {
		return "SH"
	}
	return "SZ"
}

// printResult renders the three result buckets plus skips as tables.
func printResult(result *contracts.BatchResult) {
	alerts, quality, risk, skipped := result.Counts()

	fmt.Println()
	fmt.Printf("📋 Divergence Alerts (%d)\n", alerts)
	PrintSeparator()
	if alerts == 0 {
		fmt.Println("   (none)")
	} else {
		widths := []int{8, 12, 8, 10, 18}
		PrintTableHeader([]string{"Ticker", "Name", "Level", "Proximity", "Trend"}, widths)
		for _, a := range result.DivergenceAlerts {
			PrintTableRow([]string{
				a.Ticker, a.Name, string(a.Level),
				fmt.Sprintf("%.3f", a.Proximity), string(a.Trend),
			}, widths)
		}
	}

	fmt.Println()
	fmt.Printf("🏆 Quality Stocks (%d)\n", quality)
	PrintSeparator()
	if quality == 0 {
		fmt.Println("   (none)")
	} else {
		widths := []int{8, 12, 14, 8, 8, 10}
		PrintTableHeader([]string{"Ticker", "Name", "Industry", "Value", "Rank", "Pctile"}, widths)
		for _, q := range result.QualityStocks {
			PrintTableRow([]string{
				q.Ticker, q.Name, q.Industry,
				fmt.Sprintf("%.2f", q.ROE),
				fmt.Sprintf("%d", q.Rank),
				fmt.Sprintf("%.1f", q.Percentile),
			}, widths)
		}
	}

	fmt.Println()
	fmt.Printf("🚨 Risk Stocks (%d)\n", risk)
	PrintSeparator()
	if risk == 0 {
		fmt.Println("   (none)")
	} else {
		for _, r := range result.RiskStocks {
			fmt.Printf("   • %s %s: %s\n", r.Ticker, r.Name, r.Warning)
		}
	}

	if skipped > 0 {
		fmt.Println()
		fmt.Printf("⏭️  Skipped (%d)\n", skipped)
		PrintSeparator()
		for _, s := range result.Skipped {
			fmt.Printf("   • %s: %s\n", s.Ticker, s.Reason)
		}
	}
}
