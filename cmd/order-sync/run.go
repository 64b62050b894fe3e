package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/straye-as/order-sync/internal/jobs"
	"go.uber.org/zap"
)

// runSync wires the application and drives cycles until ctx is cancelled.
// With once set a single cycle runs and its error is returned.
func runSync(ctx context.Context, once bool) error {
	cfg, log, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting order sync",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Environment),
		zap.Int("window_days", cfg.Sync.WindowDays),
		zap.Int("max_retries", cfg.Sync.MaxRetries),
		zap.Bool("once", once),
	)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("Startup failed", zap.Error(err))
		return err
	}
	defer a.close()

	if once {
		run, err := a.driver.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("sync cycle failed: %w", err)
		}
		if run != nil {
			log.Info("Single cycle finished", zap.String("status", string(run.Status)))
		}
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var srv *http.Server
	serverErrors := make(chan error, 1)
	if cfg.Server.Enabled {
		srv = a.newServer()
		go func() {
			log.Info("Server starting", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErrors <- err
				cancel()
			}
		}()
	}

	if cfg.Sync.Cron != "" {
		a.runScheduled(ctx)
	} else {
		_ = a.driver.Run(ctx)
	}

	log.Info("Stopping order sync")

	if srv != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Failed to shutdown gracefully", zap.Error(err))
		}
	}

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	default:
	}

	log.Info("Order sync stopped")
	return nil
}

// runScheduled triggers cycles on the configured cron schedule until ctx is done,
// then waits for a running cycle to complete.
func (a *app) runScheduled(ctx context.Context) {
	scheduler := jobs.NewScheduler(a.log)
	if err := jobs.RegisterSyncJob(scheduler, a.driver, a.cfg.Sync.Cron); err != nil {
		// The expression was validated at startup
		a.log.Error("Failed to schedule sync job", zap.Error(err))
		return
	}
	scheduler.Start()

	<-ctx.Done()

	<-scheduler.Stop().Done()
	a.log.Info("Scheduler stopped")
}
