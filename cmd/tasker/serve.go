package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"zenith-tasker/internal/api"
	"zenith-tasker/internal/auth"
	"zenith-tasker/pkg/page"
	"zenith-tasker/pkg/task"
	"zenith-tasker/pkg/user"
)

var skipMigrate bool

func init() {
	serveCmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not apply schema migrations on start")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Run the HTTP API server until SIGINT or SIGTERM.

Pending schema migrations are applied on start unless --skip-migrate is set.

Examples:
  # Postgres
  TASKER_DATABASE_URL=postgres://localhost/tasker TASKER_AUTH_JWT_SECRET=... tasker serve

  # Embedded SQLite
  TASKER_DATABASE_DRIVER=sqlite TASKER_DATABASE_URL=./tasker.db tasker serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openDB(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer store.Close()

	if !skipMigrate {
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	authn, err := auth.New(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}

	handler := api.New(api.Deps{
		Tasks: task.NewService(task.NewSQLStore(store), log.Named("task")),
		Pages: page.NewSQLStore(store),
		Users: user.NewSQLStore(store),
		Auth:  authn,
		DB:    store,
		Log:   log.Named("http"),
	}, api.Options{
		Metrics:        cfg.Metrics.Enabled,
		RateLimit:      cfg.RateLimit.Enabled,
		RPS:            cfg.RateLimit.RPS,
		Burst:          cfg.RateLimit.Burst,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("driver", cfg.Database.Driver),
			zap.String("version", version))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
