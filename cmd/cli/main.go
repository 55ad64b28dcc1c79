package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/web3-feed/internal/agent/ingest"
	"github.com/web3-feed/internal/app"
	"github.com/web3-feed/internal/config"
	"github.com/web3-feed/internal/feed"
	"github.com/web3-feed/internal/models"
	"github.com/web3-feed/internal/source/linkedin"
	"github.com/web3-feed/internal/storage"
	"github.com/web3-feed/pkg/logger"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
	stack   *app.App
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "web3-feed",
		Short: "Web3 social feed scraper",
		Long: `Scrapes Web3 content from social platforms, enriches it with hashtags
and sentiment, and stores it per user.`,
		PersistentPreRunE:  initializeApp,
		PersistentPostRunE: closeApp,
		SilenceUsage:       true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/config.yaml)")

	// Add subcommands
	rootCmd.AddCommand(scrapeCmd())
	rootCmd.AddCommand(refreshCmd())
	rootCmd.AddCommand(contentCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(oauthCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initializeApp(cmd *cobra.Command, args []string) error {
	var err error

	// Load config
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log = app.NewLogger(cfg)

	stack, err = app.New(cmd.Context(), cfg, log)
	return err
}

func closeApp(cmd *cobra.Command, args []string) error {
	if stack == nil {
		return nil
	}
	return stack.Close()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// ============ SCRAPE COMMANDS ============

func scrapeCmd() *cobra.Command {
	var user string
	var platforms []string
	var keywords []string
	var maxResults int
	var timeRange string

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape platforms for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			result, notice, err := stack.Feed.ScrapeContent(ctx, user, models.ScrapeRequest{
				Platforms:  platforms,
				Keywords:   keywords,
				MaxResults: maxResults,
				TimeRange:  timeRange,
			})
			printNotice(notice)
			if err != nil {
				return err
			}

			printResult(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Caller id to scrape for (required)")
	cmd.Flags().StringSliceVar(&platforms, "platform", nil, "Platforms to scrape (repeatable)")
	cmd.Flags().StringSliceVar(&keywords, "keyword", nil, "Keywords to search for (repeatable)")
	cmd.Flags().IntVar(&maxResults, "max-results", 0, "Maximum items per platform")
	cmd.Flags().StringVar(&timeRange, "time-range", "", "Lookback window: 1h, 24h, 7d or 30d")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("platform")

	return cmd
}

func refreshCmd() *cobra.Command {
	var user string
	var platforms []string

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refresh recent content for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			result, notice, err := stack.Feed.RefreshContent(ctx, user, platforms)
			printNotice(notice)
			if err != nil {
				return err
			}

			printResult(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Caller id to refresh for (required)")
	cmd.Flags().StringSliceVar(&platforms, "platform", nil, "Platforms to refresh (default all)")
	cmd.MarkFlagRequired("user")

	return cmd
}

func printNotice(n feed.Notice) {
	if n.Title == "" {
		return
	}
	fmt.Printf("\n%s: %s\n", n.Title, n.Description)
}

func printResult(result *ingest.ScrapeResult) {
	if result == nil {
		return
	}

	fmt.Printf("\n=== Scrape Results ===\n")
	fmt.Printf("Run ID:     %s\n", result.RunID)
	fmt.Printf("Fetched:    %d\n", result.Fetched)
	fmt.Printf("Filtered:   %d\n", result.Stats.Filtered)
	fmt.Printf("Duplicates: %d\n", result.Stats.Duplicates)
	fmt.Printf("Stored:     %d\n", len(result.Items))
	fmt.Printf("New:        %d\n", result.Inserted)
	fmt.Printf("Duration:   %s\n", result.Duration)

	if len(result.Skipped) > 0 {
		fmt.Printf("Skipped:    %s\n", strings.Join(result.Skipped, ", "))
	}

	if len(result.Failures) > 0 {
		fmt.Printf("\nFailed platforms:\n")
		for _, f := range result.Failures {
			fmt.Printf("  - %s after %d attempts: %v\n", f.Platform, f.Attempts, f.Err)
		}
	}
}

// ============ CONTENT COMMANDS ============

func contentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "content",
		Short: "Browse stored content",
	}

	cmd.AddCommand(contentListCmd())
	return cmd
}

func contentListCmd() *cobra.Command {
	var user string
	var platform string
	var keywords []string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored content, most recently fetched first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			filter := storage.DefaultContentFilter(user)
			if limit > 0 {
				filter.Limit = limit
			}
			if platform != "" {
				p, err := models.ParsePlatform(platform)
				if err != nil {
					return err
				}
				filter.Platform = &p
			}

			items, err := stack.Repository.QueryContent(ctx, filter)
			if err != nil {
				return err
			}
			items = feed.ContentByKeywords(items, keywords)

			fmt.Printf("\n=== Content (%d) ===\n\n", len(items))
			for _, it := range items {
				fmt.Printf("[%s] %s | %s | %s\n", it.Platform, it.Author, it.Date.Format(time.RFC3339), it.SentimentLabel())
				fmt.Printf("    %s\n", truncate(it.Content, 120))
				if tags, ok := it.Metadata[models.MetaHashtags]; ok {
					fmt.Printf("    Hashtags: %v\n", tags)
				}
				fmt.Println()
			}

			counts := feed.PlatformCounts(items)
			for _, p := range models.SupportedPlatforms() {
				if counts[p] > 0 {
					fmt.Printf("%-9s %d\n", p, counts[p])
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Caller id (required)")
	cmd.Flags().StringVar(&platform, "platform", "", "Filter by platform")
	cmd.Flags().StringSliceVar(&keywords, "keyword", nil, "Only show items mentioning a keyword")
	cmd.Flags().IntVar(&limit, "limit", storage.DefaultQueryLimit, "Maximum items to show")
	cmd.MarkFlagRequired("user")

	return cmd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// ============ RUNS COMMANDS ============

func runsCmd() *cobra.Command {
	var user string
	var platform string
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent scrape runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			filter := storage.RunFilter{UserID: user, Limit: limit}
			if platform != "" {
				p, err := models.ParsePlatform(platform)
				if err != nil {
					return err
				}
				filter.Platform = &p
			}

			runs, err := stack.Repository.ListScrapeRuns(ctx, filter)
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Scrape Runs (%d) ===\n\n", len(runs))
			for _, r := range runs {
				fmt.Printf("%s | %-9s | %-9s | %d items | %d attempts | %s\n",
					r.StartedAt.Format(time.RFC3339), r.Platform, r.Status, r.ItemCount, r.Attempts, r.UserID)
				if r.ErrorMessage != "" {
					fmt.Printf("    Error: %s\n", r.ErrorMessage)
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Filter by caller id")
	cmd.Flags().StringVar(&platform, "platform", "", "Filter by platform")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to show")

	return cmd
}

// ============ HEALTH COMMANDS ============

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show adapter and rate limit health",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			adapterErrs := stack.Registry.HealthCheck(ctx)

			fmt.Printf("\n=== Platform Health ===\n\n")
			for _, h := range stack.Orchestrator.Health() {
				line := fmt.Sprintf("%-9s %-13s", h.Platform, h.Status)
				if h.Remaining >= 0 {
					line += fmt.Sprintf(" remaining %d/min", h.Remaining)
				}
				if err := adapterErrs[h.Platform]; err != nil {
					line += fmt.Sprintf(" | adapter: %v", err)
				}
				fmt.Println(line)
			}

			return nil
		},
	}
}

// ============ OAUTH COMMANDS ============

func oauthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oauth",
		Short: "LinkedIn OAuth management",
	}

	cmd.AddCommand(oauthStatusCmd())
	return cmd
}

func oauthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check LinkedIn token status",
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, err := linkedin.NewTokenManager(context.Background(), cfg.Platforms.LinkedIn, log)
			if err != nil {
				fmt.Println("Status: Not authenticated")
				fmt.Println("Set WEB3FEED_LINKEDIN_ACCESS_TOKEN to enable the LinkedIn adapter")
				return nil
			}

			valid, expiresAt := tokens.Status()
			fmt.Printf("Status:     %s\n", map[bool]string{true: "Valid", false: "Expired"}[valid])
			fmt.Printf("Expires at: %s\n", expiresAt.Format(time.RFC1123))

			if !valid {
				if _, err := tokens.Token(); err != nil {
					return fmt.Errorf("token refresh failed: %w", err)
				}
				fmt.Println("Token refreshed")
			}

			return nil
		},
	}
}
