package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/sheetimport/internal/app"
	"github.com/JonMunkholm/sheetimport/internal/config"
	"github.com/JonMunkholm/sheetimport/internal/logging"
	"github.com/JonMunkholm/sheetimport/internal/spool"
	"github.com/JonMunkholm/sheetimport/internal/web"
)

// cancelDrainTimeout bounds the wait for cancelled runs at shutdown.
const cancelDrainTimeout = 5 * time.Second

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("configuration loaded", "config", cfg.String())

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w, err := app.OpenSink(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer w.Close()

	reg, err := app.Registry(cfg, w)
	if err != nil {
		return err
	}
	logger.Info("importers registered", "count", reg.Len(), "names", reg.Names())

	service := app.Service(cfg, reg, logger)

	store, err := spool.New(cfg.Import.SpoolDir, cfg.Import.MaxFileSize)
	if err != nil {
		return err
	}

	server := web.NewServer(service, store, cfg, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		store.StartSweeper(gctx, spool.SweepConfig{MaxAge: cfg.Import.SpoolMaxAge}, logger)
		return nil
	})

	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}

		// Runs are detached from requests; give them the rest of the
		// shutdown budget, then cancel what is left.
		status := service.Limiter().Status()
		if status.Active > 0 {
			logger.Info("waiting for runs to complete", "active", status.Active)
			if err := service.Limiter().WaitForDrain(shutdownCtx); err != nil {
				logger.Warn("runs did not complete in time, cancelling", "error", err)
				server.CancelRuns()

				// Cancelled runs still flush and tear down.
				drainCtx, cancelDrain := context.WithTimeout(context.Background(), cancelDrainTimeout)
				defer cancelDrain()
				_ = service.Limiter().WaitForDrain(drainCtx)
			} else {
				logger.Info("all runs completed")
			}
		}
		return nil
	})

	return g.Wait()
}
