package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/clementraoulgithub/gui-tcp-server/internal/config"
	"github.com/clementraoulgithub/gui-tcp-server/internal/httpserver"
	"github.com/clementraoulgithub/gui-tcp-server/internal/logging"
	"github.com/clementraoulgithub/gui-tcp-server/internal/security"
	"github.com/clementraoulgithub/gui-tcp-server/internal/store/sqlite"
	"github.com/clementraoulgithub/gui-tcp-server/internal/ws"
)

func newServerCommand() *cobra.Command {
	var debug bool
	var pretty bool

	cmd := &cobra.Command{
		Use:   "zchat-relay",
		Short: "Run the zChat relay: REST API and websocket fan-out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), debug, pretty)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging (overrides ZCHAT_DEBUG)")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Human readable log output")

	return cmd
}

func run(ctx context.Context, debug, pretty bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateServer(); err != nil {
		return err
	}
	logger := logging.New(os.Stderr, debug || cfg.Debug, pretty)

	db, err := sqlite.Open(cfg.SQLiteDSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := sqlite.Migrate(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	tokenSvc := security.NewTokenService(cfg.JWTSecret, time.Duration(cfg.AccessTokenMinutes)*time.Minute)
	passwordHasher := security.NewPasswordHasher(0)
	hub := ws.NewHub(logger)

	router := httpserver.NewRouter(cfg, db, hub, tokenSvc, passwordHasher, logger)

	// No read or write timeout: both would apply to hijacked websocket
	// connections as well.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr()).Str("db", cfg.SQLiteDSN).Msg("starting relay")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down relay")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func main() {
	if err := newServerCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
