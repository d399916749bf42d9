package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spherical/pdf-slides/internal/server"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve conversions over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				cfg.Server.Addr = addr
			}

			a, err := newApp(nil)
			if err != nil {
				return err
			}
			defer a.Close()

			api := server.New(a.service, server.Config{
				RateLimit:      cfg.Server.RateLimit,
				RateBurst:      cfg.Server.RateBurst,
				MaxUploadBytes: cfg.Server.MaxUploadMB << 20,
				RequestTimeout: cfg.Server.WriteTimeout,
			}, logger)

			srv := &http.Server{
				Addr:         cfg.Server.Addr,
				Handler:      api.Handler(),
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
				IdleTimeout:  cfg.Server.IdleTimeout,
			}

			serverErrors := make(chan error, 1)
			go func() {
				logger.Info().Str("addr", cfg.Server.Addr).Msg("HTTP server listening")
				serverErrors <- srv.ListenAndServe()
			}()

			shutdown := make(chan os.Signal, 1)
			signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-serverErrors:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case sig := <-shutdown:
				logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
			}

			ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				logger.Error().Err(err).Msg("Graceful shutdown failed")
				if err := srv.Close(); err != nil {
					logger.Error().Err(err).Msg("Forced shutdown failed")
				}
			}

			logger.Info().Msg("Server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
