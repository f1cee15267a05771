package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Harshitk-cp/protomind/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	app, backend, logger, err := bootstrap(ctx)
	if logger != nil {
		defer func() { _ = logger.Sync() }()
	}
	if err != nil {
		return err
	}
	defer backend.Close()

	if interval := config.DecayInterval(); interval > 0 {
		app.Decay.SetInterval(interval)
		app.Decay.Start()
		defer app.Decay.Stop()
	}

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = config.ServerAddr()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-quit:
	case err := <-serveErr:
		if err != nil {
			logger.Error("server failed", zap.Error(err))
			return err
		}
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		return err
	}

	logger.Info("server stopped")
	return nil
}
