// Package cmd defines the CLI commands for the ipowatch executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ipowatch/internal/clock/system"
	"ipowatch/internal/config"
	"ipowatch/internal/crawler"
	collyfetcher "ipowatch/internal/fetcher/colly"
	"ipowatch/internal/logging"
	"ipowatch/internal/progress"
	"ipowatch/internal/schedule"
	"ipowatch/internal/store"
	"ipowatch/internal/worker"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ipowatch",
		Short: "Collects upcoming IPO schedules from the 38 Communications bulletin.",
		Long: `ipowatch crawls the public IPO bulletin boards (subscription windows,
bookbuilding windows, and new listings), normalizes the rows into a
Postgres table, and serves them for browsing and spreadsheet export.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newUpcomingCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// runtime holds the services shared by every subcommand.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
	store  *store.Store
}

func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	st, err := store.New(ctx, store.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: cfg.ConnLifetime(),
	})
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		st.Close()
		_ = logger.Sync()
		return nil, err
	}
	return &runtime{cfg: cfg, logger: logger, store: st}, nil
}

func (r *runtime) Close() {
	r.store.Close()
	_ = r.logger.Sync()
}

// categories applies config overrides on top of the built-in boards.
func (r *runtime) categories() map[schedule.Category]schedule.CategoryConfig {
	base := schedule.Categories()
	for name, override := range r.cfg.Categories {
		cfg, ok := base[schedule.Category(name)]
		if !ok {
			r.logger.Warn("ignoring override for unknown category", zap.String("category", name))
			continue
		}
		if override.BaseURL != "" {
			cfg.BaseURL = override.BaseURL
		}
		if override.MaxPages > 0 {
			cfg.MaxPages = override.MaxPages
		}
		base[schedule.Category(name)] = cfg
	}
	return base
}

func (r *runtime) buildWorker(emitter progress.Emitter) (*worker.Worker, error) {
	f := collyfetcher.New(collyfetcher.Config{
		UserAgent: r.cfg.Crawler.UserAgent,
		Timeout:   r.cfg.HTTPTimeout(),
	})
	orch, err := crawler.New(crawler.Config{
		Fetcher:    f,
		Clock:      system.Clock{},
		Emitter:    emitter,
		Logger:     r.logger,
		Categories: r.categories(),
	})
	if err != nil {
		return nil, fmt.Errorf("init orchestrator: %w", err)
	}
	w, err := worker.New(worker.Config{
		Open: func(ctx context.Context) (worker.Session, error) {
			return r.store.Begin(ctx)
		},
		Runner:  orch,
		Clock:   system.Clock{},
		Emitter: emitter,
		Logger:  r.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init worker: %w", err)
	}
	return w, nil
}
