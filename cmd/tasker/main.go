// Package main implements the tasker CLI: the API server plus operator
// commands for schema migration, users, and tokens.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"zenith-tasker/internal/config"
	"zenith-tasker/internal/db"
	"zenith-tasker/internal/logging"
)

var (
	// configPath is the optional YAML config file
	configPath string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tasker",
	Short: "Zenith Tasker API server and operator tools",
	Long: `tasker serves the Zenith Tasker JSON API and provides operator commands.

Configuration comes from an optional YAML file (--config) and TASKER_*
environment variables, e.g. TASKER_DATABASE_URL and TASKER_AUTH_JWT_SECRET.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
}

// loadConfig reads and validates configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Log.Level, cfg.Log.Format)
}

// openDB connects to the configured database.
func openDB(ctx context.Context, cfg *config.Config) (*db.DB, error) {
	if cfg.Database.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Database.ConnectTimeout)
		defer cancel()
	}
	return db.Connect(ctx, db.Options{
		Driver:         db.Dialect(cfg.Database.Driver),
		URL:            cfg.Database.URL,
		MaxConns:       cfg.Database.MaxConns,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		IdleTimeout:    cfg.Database.IdleTimeout,
	})
}
