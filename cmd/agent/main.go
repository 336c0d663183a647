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
	"go.uber.org/zap"

	"feasibility-bot/internal/browser"
	"feasibility-bot/internal/config"
	"feasibility-bot/internal/feasibility"
	"feasibility-bot/internal/logging"
	"feasibility-bot/internal/server"
)

// shutdownTimeout is how long in-flight checks get to finish and close their
// browsers once a stop signal arrives.
const shutdownTimeout = 90 * time.Second

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:          "agent",
		Short:        "Serves feasibility checks over HTTP and WebSocket",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfgFile)
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "YAML config file")
	return cmd
}

func serve(ctx context.Context, cfgFile string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return err
	}

	orch := feasibility.NewOrchestrator(*cfg, browser.NewLauncher(cfg.Browser), logger)
	limiter := feasibility.NewLimiter(cfg.MaxConcurrentChecks)
	srv := server.NewServer(orch, limiter, cfg.Server.Addr, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return err
	}

	logger.Info("shutting down gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", zap.Error(err))
	}

	logger.Info("server stopped")
	return nil
}
