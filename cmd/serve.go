package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ipowatch/internal/api"
	"ipowatch/internal/clock/system"
	"ipowatch/internal/export"
	"ipowatch/internal/progress"
	"ipowatch/internal/progress/sinks"
	"ipowatch/internal/worker"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the collector as an HTTP service",
		Long: `Starts the control API: crawls are triggered and canceled over HTTP,
collected schedules are browsable as JSON, and metrics are exported for
Prometheus. An optional cron expression in the config starts crawls on
a schedule.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	registry := prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		return err
	}
	recent := sinks.NewRecentSink(256)
	hub := progress.NewHub(progress.Config{Logger: rt.logger},
		sinks.NewLogSink(rt.logger),
		promSink,
		recent,
	)
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

	exporter := export.New(rt.store, system.Clock{}, rt.cfg.Export.Dir)
	srv := api.NewServer(api.Config{
		Worker:   w,
		Reader:   rt.store,
		Exporter: exporter,
		Activity: recent,
		Clock:    system.Clock{},
		Logger:   rt.logger,
		Metrics:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	if expr := rt.cfg.Crawler.Schedule; expr != "" {
		c := cron.New()
		if _, err := c.AddFunc(expr, func() { scheduledCrawl(w, rt.logger) }); err != nil {
			return fmt.Errorf("parse crawler.schedule: %w", err)
		}
		c.Start()
		defer c.Stop()
		rt.logger.Info("crawl scheduler enabled", zap.String("schedule", expr))
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", rt.cfg.Server.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info("http server listening", zap.Int("port", rt.cfg.Server.Port))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		rt.logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		rt.logger.Warn("http shutdown failed", zap.Error(err))
	}

	// Let an in-flight crawl finish its page and commit.
	w.Cancel()
	if err := w.Wait(shutdownCtx); err != nil {
		rt.logger.Warn("crawl did not finish before shutdown", zap.Error(err))
	}
	return nil
}

func scheduledCrawl(w *worker.Worker, logger *zap.Logger) {
	runID, err := w.StartCrawl()
	switch {
	case errors.Is(err, worker.ErrRunInProgress):
		logger.Warn("scheduled crawl skipped, run already in progress")
	case err != nil:
		logger.Error("scheduled crawl failed to start", zap.Error(err))
	default:
		logger.Info("scheduled crawl started", zap.String("run_id", runID.String()))
	}
}
