package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"numcheck/internal/app"
	"numcheck/internal/platform/config"
	"numcheck/internal/platform/httpserver"
	"numcheck/internal/platform/logger"
	httptransport "numcheck/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "numcheck: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("numcheck stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}

	// Request contexts hang off runCtx so shutdown can stop in-flight batch
	// runs before the final ledger flush.
	runCtx, cancelRuns := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRuns()
	srv := httpserver.New(cfg.Server.Addr, httptransport.NewRouter(a.Handler),
		httpserver.WithBaseContext(runCtx))
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting numcheck", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.Store.FlushEvery(gctx, cfg.Ledger.FlushInterval)
		return nil
	})

	// Shutdown starts on a signal or on the first failure above. Running
	// batches are cancelled first; the ledger is flushed after in-flight
	// requests have drained.
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		cancelRuns()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		return errors.Join(srv.Shutdown(shutdownCtx), a.Close(shutdownCtx))
	})

	return g.Wait()
}
