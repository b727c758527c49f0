package commands

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "PostgreSQL 연결 확인 및 마이그레이션",
	Long: `데이터베이스 연결을 테스트하고 swing 스키마를 생성합니다.

이 명령어는:
- config에서 DATABASE_URL 로드
- 스키마 마이그레이션 (swing.bars, swing.checkpoints)
- Health Check 실행
- Connection Pool 통계 표시

Example:
  go run ./cmd/swingdag db`,
	RunE: runDB,
}

func init() {
	rootCmd.AddCommand(dbCmd)
}

func runDB(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Connecting to database...")

	// newRuntime migrates on connect
	rt, err := newRuntime(ctx, true)
	if err != nil {
		return fmt.Errorf("❌ %w", err)
	}
	defer rt.close()
	fmt.Fprintf(out, "✅ Connected and migrated (%s)\n", maskPassword(rt.cfg.Database.URL))

	health, err := rt.db.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("❌ health check failed: %w", err)
	}

	printHeader(out, "Connection Pool")
	printField(out, "Response", health.ResponseTime)
	printField(out, "Total", health.Stats.TotalConns)
	printField(out, "Acquired", health.Stats.AcquiredConns)
	printField(out, "Idle", health.Stats.IdleConns)
	printField(out, "Max", health.Stats.MaxConns)
	fmt.Fprintln(out, ruleHeavy)
	return nil
}

// maskPassword hides the password of a connection URL
func maskPassword(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
