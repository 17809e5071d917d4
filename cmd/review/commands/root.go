package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	env        string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "review",
	Short: "Veritas - 일일 펀더멘털 품질 분석 엔진",
	Long: `Veritas Review CLI

가격-펀더멘털 괴리 탐지와 업종 내 수익성 랭킹을 수행하는
일일 리뷰 배치 엔진.

Usage:
  go run ./cmd/review [command]

Examples:
  go run ./cmd/review analyze 600519 000858 300750
  go run ./cmd/review analyze --stocks sample.json --date 2026-08-28
  go run ./cmd/review doctor`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "development", "environment (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
