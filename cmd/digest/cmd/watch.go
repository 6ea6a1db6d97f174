package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"concept-digest-be/internal/config"
	"concept-digest-be/internal/pkg/logger"
	"concept-digest-be/pkg/events"
	pktNats "concept-digest-be/pkg/nats"

	"github.com/spf13/cobra"
)

var durable string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print digest runs as they complete",
	Long: `Subscribe to DIGEST_COMPLETED events on NATS and print one line per run.

Examples:
  digest watch
  digest watch --durable dashboard`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&durable, "durable", "", "Durable consumer name (empty for an ephemeral consumer)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.App.NatsURL == "" {
		return fmt.Errorf("NATS_URL is not set")
	}

	sub, err := pktNats.NewSubscriber(cfg.App.NatsURL, logger.NewConsoleLogger(verbose))
	if err != nil {
		return err
	}
	defer sub.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err = sub.Subscribe(ctx, events.TypeDigestCompleted, durable, func(ctx context.Context, event events.Event) error {
		p := event.Payload()
		fmt.Printf("%s  user=%v  %q  new=%v known=%v\n",
			event.Timestamp().Format(time.RFC3339), p["user_id"], p["title"], p["new"], p["known"])
		return nil
	})
	if err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}
