package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/web3-feed/internal/app"
	"github.com/web3-feed/internal/config"
	"github.com/web3-feed/internal/httpserver"
	"github.com/web3-feed/pkg/logger"
)

var (
	cfgFile string
	noAPI   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "web3-feed-scheduler",
		Short: "Background scheduler and API server for the Web3 feed",
		Long: `Refreshes content for the configured users on a cron schedule and
serves the scrape, content and notification API.`,
		RunE: runScheduler,
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.Flags().BoolVar(&noAPI, "no-api", false, "run the scheduler without the HTTP API")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runScheduler(cmd *cobra.Command, args []string) error {
	// Load config
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := app.NewLogger(cfg)
	log.Info().Msg("Starting Web3 feed scheduler")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stack, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stack.Close()

	// Create cron scheduler
	c := cron.New(cron.WithLogger(cronLogger{log}), cron.WithChain(cron.SkipIfStillRunning(cronLogger{log})))

	// Schedule refresh job
	_, err = c.AddFunc(cfg.Scheduler.RefreshCron, func() {
		refreshAll(ctx, stack, cfg.Scheduler, log)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule refresh job: %w", err)
	}
	log.Info().
		Str("cron", cfg.Scheduler.RefreshCron).
		Int("users", len(cfg.Scheduler.Users)).
		Msg("Refresh job scheduled")

	// Start scheduler
	c.Start()
	log.Info().Msg("Scheduler started")

	if noAPI {
		<-ctx.Done()
	} else {
		server := httpserver.New(stack.Feed, log)
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		if err := server.Run(ctx, addr, cfg.Server.ShutdownTimeout); err != nil {
			log.Error().Err(err).Msg("API server stopped")
			stop()
		}
	}

	log.Info().Msg("Shutting down scheduler")
	<-c.Stop().Done()

	return nil
}

func refreshAll(ctx context.Context, stack *app.App, sc config.SchedulerConfig, log *logger.Logger) {
	log.Info().Int("users", len(sc.Users)).Msg("Running scheduled refresh")

	for _, user := range sc.Users {
		if ctx.Err() != nil {
			return
		}

		result, _, err := stack.Feed.RefreshContent(ctx, user, sc.Platforms)
		if err != nil {
			log.Error().Err(err).Str("caller_id", user).Msg("Scheduled refresh failed")
			continue
		}

		log.Info().
			Str("caller_id", user).
			Int("stored", len(result.Items)).
			Int("inserted", result.Inserted).
			Int("failed_platforms", len(result.Failures)).
			Msg("Scheduled refresh completed")
	}
}

// cronLogger adapts our logger for cron
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
