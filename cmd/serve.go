package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"chatdesk/internal/api"
	"chatdesk/internal/auth"
	"chatdesk/internal/capture"
	"chatdesk/internal/config"
	"chatdesk/internal/observability"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local API used by the desktop window",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		authService, err := auth.NewService(cfg.BasicConfig.APIToken, 24*time.Hour)
		if err != nil {
			return fmt.Errorf("init auth: %w", err)
		}
		if cfg.BasicConfig.APIToken == "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "API token: %s\n", authService.Token())
		}
		broker := capture.NewBroker(capture.CommandCapturer{Command: cfg.Capture.Command})

		go func() {
			if err := a.store.Follow(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("follow shared storage stopped", "err", err)
			}
		}()
		if cfgFile != "" {
			err := config.Watch(ctx, cfgFile, func(next *config.Config) {
				a.ai.SetProviders(next.Providers)
				a.ctrl.SetTimeout(next.StreamTimeout())
				observability.SetLevel(next.Log.Level)
			})
			if err != nil {
				slog.Warn("config watch disabled", "err", err)
			}
		}

		router := gin.Default()
		api.NewHandler(a.store, a.ctrl, broker, authService).RegisterRoutes(router)

		addr := serveAddr
		if addr == "" {
			addr = cfg.BasicConfig.ServerAddress
		}
		if addr == "" {
			addr = ":8090"
		}
		srv := &http.Server{Addr: addr, Handler: router}
		errCh := make(chan error, 1)
		go func() {
			slog.Info("listening", "addr", addr, "storage", cfg.Storage.Backend)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stopped: %w", err)
			}
			return nil
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides basic_config.server_address)")
	rootCmd.AddCommand(serveCmd)
}
