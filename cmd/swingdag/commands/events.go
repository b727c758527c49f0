package commands

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/swingdag/internal/api"
	"github.com/wonny/swingdag/internal/eventbus"
	"github.com/wonny/swingdag/internal/swing"
	"github.com/wonny/swingdag/pkg/httputil"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "원격 서버 이벤트 조회",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail <session>",
	Short: "원격 세션의 이벤트를 이어서 출력",
	Long: `serve 로 띄운 서버의 /events 엔드포인트를 폴링하며
새 이벤트를 JSON Lines 로 출력합니다.

백로그가 잘려 이어받을 수 없으면 오류로 종료합니다 (스냅샷에서 재구성 필요).

Example:
  go run ./cmd/swingdag events tail es-1m --server http://localhost:8080 --after 120`,
	Args: cobra.ExactArgs(1),
	RunE: runEventsTail,
}

var (
	tailServer   string
	tailAfter    uint64
	tailInterval time.Duration
)

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)

	eventsTailCmd.Flags().StringVar(&tailServer, "server", "http://localhost:8080", "swingdag API base URL")
	eventsTailCmd.Flags().Uint64Var(&tailAfter, "after", 0, "start after this event sequence")
	eventsTailCmd.Flags().DurationVar(&tailInterval, "interval", time.Second, "poll interval")
}

func runEventsTail(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := api.NewClient(tailServer, httputil.New(cliLogger(), 10*time.Second))
	enc := json.NewEncoder(cmd.OutOrStdout())
	sessionID := args[0]

	err := client.Tail(ctx, sessionID, tailAfter, tailInterval, func(events []swing.Event) error {
		for _, e := range events {
			if err := enc.Encode(eventbus.Envelope{Session: sessionID, Event: e}); err != nil {
				return err
			}
		}
		return nil
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}
