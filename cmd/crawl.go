package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ipowatch/internal/progress"
	"ipowatch/internal/progress/sinks"
)

func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Runs a single crawl and exits",
		Long: `Walks the subscription, bookbuilding, and listing boards once,
stores every new upcoming schedule, and exits. Interrupting the crawl
keeps the records collected before the interrupt.`,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	hub := progress.NewHub(progress.Config{Logger: rt.logger}, sinks.NewLogSink(rt.logger))
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			rt.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}()

	w, err := rt.buildWorker(hub)
	if err != nil {
		return err
	}

	summary, err := w.RunOnce(ctx, uuid.New())
	if err != nil {
		return err
	}
	rt.logger.Info("crawl finished",
		zap.Int("inserted", summary.Inserted),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("skipped", summary.Skipped),
		zap.Bool("canceled", summary.Canceled),
	)
	return nil
}
