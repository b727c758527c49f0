package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	detectorConfig string
	verbose        bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "swingdag",
	Short: "swingdag - 증분형 스윙 레그 탐지기",
	Long: `swingdag Unified CLI

OHLC 바를 한 개씩 받아 스윙 레그 계층(DAG)을 증분으로 유지합니다.
레그 생성/형성/무효화/정리 이벤트를 순서대로 내보냅니다.

Usage:
  go run ./cmd/swingdag [command]

Examples:
  go run ./cmd/swingdag replay --csv data/es_1m.csv
  go run ./cmd/swingdag serve --csv data/es_1m.csv --rate 50
  go run ./cmd/swingdag config check configs/detector.yaml
  go run ./cmd/swingdag snapshot inspect snapshot.json`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&detectorConfig, "detector-config", "", "detector threshold YAML (default: DETECTOR_CONFIG or built-in defaults)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (LOG_LEVEL=debug)")
}
