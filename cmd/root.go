package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/watchlist/internal/config"
	"github.com/andresmejia3/watchlist/internal/store"
	"github.com/spf13/cobra"
)

var (
	// cfg is the resolved configuration, loaded in PersistentPreRunE
	cfg *config.Config
	// logger is what library packages log through
	logger *slog.Logger

	cfgFile   string
	dbURL     string
	logFormat string
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "watchlist",
	Short:   "Watchlist face surveillance: match live video against a gallery of known faces",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if cmd.Flags().Changed("db") {
			cfg.Database = dbURL
		}
		if cmd.Flags().Changed("log-format") {
			cfg.LogFormat = logFormat
		}
		if apply, ok := flagAppliers[cmd]; ok {
			apply(cmd)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		logger = newLogger(cfg.LogFormat)
		slog.SetDefault(logger)
		return nil
	},
}

// flagAppliers copy changed command flags over the loaded configuration.
var flagAppliers = map[*cobra.Command]func(*cobra.Command){}

func newLogger(format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// openStore connects to the criminal records database named in the config.
func openStore() (store.ProfileStore, error) {
	s, err := store.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %q: %w", cfg.Database, err)
	}
	return s, nil
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML configuration file (default: ./watchlist.yaml when present)")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "Criminal records database: SQLite file or postgres:// URL (default: criminal.db)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")
}
