package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/notifyhub/mailqueue/internal/api"
	"github.com/notifyhub/mailqueue/internal/worker"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Accept submissions over HTTP and dispatch them every tick",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer logger.Sync() //nolint:errcheck
			return serve(cmd.Context(), logger)
		},
	}
}

// serve runs until ctx is cancelled, then shuts down in order: stop accepting
// requests, stop ticking, wait for the in-flight cycle.
func serve(ctx context.Context, logger *zap.Logger) error {
	a, err := newApp(ctx, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	cycle, err := a.cycle()
	if err != nil {
		return err
	}
	svc := a.ingestionService()

	// ---- scheduler ----
	// Detached from ctx so an in-flight cycle is cancelled only after the HTTP
	// server has drained.
	workerCtx, cancelWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWorkers()

	schedulerDone := make(chan struct{})
	schedulerW := worker.NewSchedulerWorker(cycle, a.cfg.TickInterval, logger)
	go func() {
		defer close(schedulerDone)
		schedulerW.Run(workerCtx)
	}()

	// ---- HTTP server ----
	srv := a.httpServer(api.NewRouter(svc, cycle, a.checks, a.reg, logger))
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Stop the scheduler; a running cycle stops handing out records.
	cancelWorkers()

	// 3. Wait for in-flight sends to record their outcome.
	select {
	case <-schedulerDone:
	case <-shutdownCtx.Done():
		logger.Warn("dispatch cycle did not finish before the shutdown timeout")
	}

	logger.Info("server stopped cleanly")
	return runErr
}
