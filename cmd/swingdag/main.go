package main

import (
	"os"

	"github.com/wonny/swingdag/cmd/swingdag/commands"
)

// main is the entry point for the swingdag CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/swingdag [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
