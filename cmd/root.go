// Package cmd defines the CLI for the jadwal-sholat crawler.
//
// The root command runs one batch crawl: it resolves city slugs from the
// listing page, fetches every (city, month) page through a bounded worker
// pool, writes {root}/{city}/{year}/{MM}.json and finally prunes old years.
// SIGINT and SIGTERM cancel the run; files already written stay intact.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/jadwal-sholat-crawler/internal/app"
	"github.com/JakeFAU/jadwal-sholat-crawler/internal/config"
	"github.com/JakeFAU/jadwal-sholat-crawler/internal/crawler"
	"github.com/JakeFAU/jadwal-sholat-crawler/internal/logging"
	"github.com/JakeFAU/jadwal-sholat-crawler/internal/retention"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the subset of *app.App the commands use.
type App interface {
	Run(ctx context.Context) (crawler.Summary, error)
	Sweep(ctx context.Context) (retention.Report, error)
	Close()
}

// appFactory builds the application from loaded configuration.
type appFactory func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error)

func defaultAppFactory(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	a, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// newRootCmd creates the root command. It takes no positional arguments.
func newRootCmd(factory appFactory) *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "jadwal-sholat-crawler",
		Short: "Crawls monthly prayer schedules for every listed city.",
		Long: `jadwal-sholat-crawler resolves the city list from the upstream listing page,
fetches each city's monthly prayer schedule and writes one JSON file per
city and month. In refresh mode it rewrites the current and upcoming months;
in backfill mode it fills the whole year and skips files that already exist.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			appInstance, err := factory(cmd.Context(), cfg, logger)
			if err != nil {
				_ = logger.Sync()
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},

		RunE: runCrawlCommand,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env vars use the JADWAL_ prefix")
	cmd.AddCommand(newSweepCmd())

	return cmd
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	if _, err := appInstance.Run(cmd.Context()); err != nil {
		// PersistentPostRun is skipped when RunE fails.
		appInstance.Close()
		return fmt.Errorf("crawl: %w", err)
	}
	return nil
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd(defaultAppFactory).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
