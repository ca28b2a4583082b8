package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ayusman/autoselfie/internal/assets"
	"github.com/ayusman/autoselfie/internal/config"
	"github.com/ayusman/autoselfie/internal/logging"
	"github.com/ayusman/autoselfie/internal/store"
)

// Version is the application version.
const Version = "0.1.0"

var (
	cfgPath   string
	storePath string
	noStore   bool
	logLevel  string

	// cfg and st are set up by the root command before any subcommand runs.
	cfg *config.Config
	st  *store.Store
)

var rootCmd = &cobra.Command{
	Use:           "autoselfie",
	Short:         "Guided selfie capture with face framing checks",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		logging.Init(os.Stderr, cfg.Log.Level, cfg.Log.Format)

		if storePath != "" {
			cfg.Store.Path = storePath
		}
		if noStore {
			return nil
		}
		if cfg.Store.Path == "" {
			cfg.Store.Path, err = defaultStorePath()
			if err != nil {
				return err
			}
		}

		st, err = store.New(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}
		logging.GetLogger().Debug("store opened", "path", cfg.Store.Path)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if st != nil {
			if err := st.Close(); err != nil {
				logging.GetLogger().Warn("failed to close store", "error", err)
			}
		}
	},
}

// Execute runs the root command with a context cancelled on SIGINT or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "YAML config file (defaults are used when empty)")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "SQLite database for the asset cache and capture journal (default: ~/.autoselfie/autoselfie.db)")
	rootCmd.PersistentFlags().BoolVar(&noStore, "no-store", false, "Run without the SQLite database")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
}

// defaultStorePath returns ~/.autoselfie/autoselfie.db, creating the directory.
func defaultStorePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	dir := filepath.Join(homeDir, ".autoselfie")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return filepath.Join(dir, "autoselfie.db"), nil
}

// newResolver builds the asset resolver from the config. It returns nil when
// no asset source is configured.
func newResolver(logger *slog.Logger) assets.Resolver {
	var r assets.Resolver
	switch {
	case cfg.Assets.BaseURL != "":
		r = assets.NewHTTPResolver(cfg.Assets.BaseURL, cfg.AssetTimeout())
	case cfg.Assets.Dir != "":
		r = assets.NewDirResolver(cfg.Assets.Dir)
	default:
		return nil
	}

	if st != nil {
		return assets.NewCachedResolver(r, st.Assets(), logger)
	}
	return r
}

func requireStore() error {
	if st == nil {
		return fmt.Errorf("this command needs the database, drop --no-store")
	}
	return nil
}
