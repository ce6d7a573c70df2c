package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/fintrack/internal/config"
	"github.com/JonMunkholm/fintrack/internal/core"
	"github.com/JonMunkholm/fintrack/internal/store"
)

var (
	databaseURL string
	logLevel    string
	dryRun      bool

	logger *log.Logger
)

var rootCmd = &cobra.Command{
	Use:   "fintrack",
	Short: "Import bank statements and generate recurring transactions",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logger = log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			Prefix:          "fintrack",
			Level:           level,
		})
		return nil
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
	SilenceUsage: true,
}

// backend is the store behind one CLI invocation.
type backend struct {
	store.Store
	close func()
}

// openBackend connects to PostgreSQL, or returns an empty in-memory store
// for --dry-run or when no database URL is configured.
func openBackend(ctx context.Context) (*backend, error) {
	if dryRun || databaseURL == "" {
		if !dryRun {
			logger.Warn("no database configured, running against an in-memory store")
		}
		return &backend{Store: store.NewMemory(), close: func() {}}, nil
	}

	pool, err := store.OpenPool(ctx, config.DatabaseConfig{URL: databaseURL, Migrate: true})
	if err != nil {
		return nil, err
	}
	return &backend{Store: store.NewPostgres(pool), close: pool.Close}, nil
}

// newService builds a core service that logs through the CLI logger.
func newService(st core.TransactionStore) *core.Service {
	return core.NewService(st, core.ServiceConfig{}, core.WithLogger(slog.New(logger)))
}

func init() {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string (default $DATABASE_URL)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Run against an in-memory store; nothing is persisted")

	rootCmd.AddCommand(previewCmd, importCmd, planCmd, materializeCmd, accountsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if core.IsUserFacing(err) {
			fmt.Fprintln(os.Stderr, core.FormatUserError(err))
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
