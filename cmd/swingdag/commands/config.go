package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wonny/swingdag/internal/swing"
)

// configCmd groups detector config helpers
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "탐지기 설정 관리",
}

var configCheckCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "탐지기 설정 검증 및 해시 출력",
	Long: `탐지기 임계값 YAML 을 검증하고 정규화된 값과 해시를 출력합니다.
파일을 생략하면 기본값을 검증합니다.

해시가 다르면 기존 스냅샷은 stale 로 판정되어 재생성이 필요합니다.

Example:
  go run ./cmd/swingdag config check configs/detector.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigCheck,
}

var configDefaultsCmd = &cobra.Command{
	Use:   "defaults",
	Short: "기본 탐지기 설정을 YAML 로 출력",
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := yaml.NewEncoder(os.Stdout)
		defer enc.Close()
		return enc.Encode(swing.DefaultConfig())
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configCheckCmd)
	configCmd.AddCommand(configDefaultsCmd)
}

func runConfigCheck(cmd *cobra.Command, args []string) error {
	cfg := swing.DefaultConfig()
	source := "built-in defaults"
	if len(args) == 1 {
		loaded, _, err := swing.LoadConfig(args[0])
		if err != nil {
			return fmt.Errorf("❌ invalid config: %w", err)
		}
		cfg, source = loaded, args[0]
	}

	hash, err := cfg.Hash()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printHeader(out, "Detector config ("+source+")")
	printField(out, "bull formation", cfg.BullFormationThreshold)
	printField(out, "bear formation", cfg.BearFormationThreshold)
	printField(out, "engulfed", cfg.EngulfedBreachThreshold)
	printField(out, "legs / pivot", cfg.MaxLegsPerPivot)
	printField(out, "prox. range", cfg.ProximityRangeTolerance)
	printField(out, "prox. time", cfg.ProximityTimeTolerance)
	printField(out, "stale", cfg.StaleExtensionThreshold)
	fmt.Fprintln(out, ruleLight)
	printField(out, "algorithm", swing.AlgorithmVersion)
	printField(out, "hash", hash)
	fmt.Fprintln(out, ruleHeavy)
	fmt.Fprintln(out, "✅ config is valid")
	return nil
}
