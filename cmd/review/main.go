package main

import (
	"os"

	"github.com/wonny/veritas/backend/cmd/review/commands"
)

// main is the entry point for the Veritas review CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/review [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
