package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/straye-as/order-sync/internal/config"
	"github.com/straye-as/order-sync/internal/crm"
	"github.com/straye-as/order-sync/internal/database"
	"github.com/straye-as/order-sync/internal/datawarehouse"
	"github.com/straye-as/order-sync/internal/http/handler"
	"github.com/straye-as/order-sync/internal/http/router"
	"github.com/straye-as/order-sync/internal/jobs"
	"github.com/straye-as/order-sync/internal/lock"
	"github.com/straye-as/order-sync/internal/logger"
	"github.com/straye-as/order-sync/internal/metrics"
	"github.com/straye-as/order-sync/internal/normalize"
	"github.com/straye-as/order-sync/internal/repository"
	"github.com/straye-as/order-sync/internal/retry"
	"github.com/straye-as/order-sync/internal/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 30 * time.Second

// app holds the wired components of one process
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	dw      *datawarehouse.Client
	crm     *crm.Client
	db      *gorm.DB
	rdb     *redis.Client
	history *repository.SyncRunRepository
	cycle   *jobs.SyncCycle
	driver  *jobs.Driver
}

// loadConfig loads configuration with secrets and returns the logger built from it.
// Logging is configured from the plain configuration first so secret resolution is logged.
func loadConfig(ctx context.Context) (*config.Config, *zap.Logger, error) {
	basicCfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(&basicCfg.Logging, &basicCfg.App)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	cfg, err := config.LoadWithSecrets(ctx, log)
	if err != nil {
		_ = log.Sync()
		return nil, nil, fmt.Errorf("failed to load secrets: %w", err)
	}

	return cfg, log, nil
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (_ *app, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	datePolicy, err := normalize.ParseDatePolicy(cfg.Sync.DatePolicy)
	if err != nil {
		return nil, err
	}
	if cfg.Sync.Cron != "" {
		if err := jobs.ValidateCron(cfg.Sync.Cron); err != nil {
			return nil, err
		}
	}

	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	a.dw, err = datawarehouse.NewClient(ctx, &cfg.Warehouse, newPolicy(cfg, datawarehouse.IsConnectRetryable, log), log)
	if errors.Is(err, datawarehouse.ErrDisabled) {
		return nil, fmt.Errorf("the data warehouse is the order source and must be enabled")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to data warehouse: %w", err)
	}

	warehousePolicy := newPolicy(cfg, datawarehouse.IsTransient, log)
	source, err := datawarehouse.NewOrderSource(
		datawarehouse.NewRetryingQuerier(a.dw, warehousePolicy),
		cfg.Warehouse.OrdersView, datePolicy, log)
	if err != nil {
		return nil, err
	}

	a.crm, err = crm.NewClient(&cfg.CRM, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create CRM client: %w", err)
	}
	crmPolicy := newPolicy(cfg, crm.IsTransient, log)
	if err := a.crm.ConnectWithRetry(ctx, crmPolicy); err != nil {
		return nil, err
	}

	writer := service.NewRecordWriter(a.crm, crmPolicy, log)
	accounts := service.NewAccountResolver(a.crm, writer, log)
	reconciler := service.NewOrderReconciler(a.crm, writer, accounts, log)

	var locker lock.Locker
	if cfg.Redis.Enabled {
		a.rdb, err = lock.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, err
		}
		locker = lock.NewRedisLocker(a.rdb, cfg.Redis.LockKey, cfg.Redis.LockTTLDuration(), log)
		log.Info("Cycle lock enabled", zap.String("key", cfg.Redis.LockKey))
	}

	var history jobs.RunHistory
	if cfg.History.Enabled {
		a.db, err = database.NewDatabase(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.history = repository.NewSyncRunRepository(a.db)
		history = a.history
		log.Info("Run history enabled", zap.Int("retention", cfg.History.Retention))
	}

	a.cycle = jobs.NewSyncCycle(source, accounts, reconciler, locker, history, jobs.SyncCycleConfig{
		WindowDays:       cfg.Sync.WindowDays,
		HistoryRetention: cfg.History.Retention,
	}, log)
	a.driver = jobs.NewDriver(a.cycle, cfg.Sync.CycleWaitDuration(), log)

	return a, nil
}

func newPolicy(cfg *config.Config, retryable func(error) bool, log *zap.Logger) *retry.Policy {
	policy := retry.NewPolicy(cfg.Sync.MaxRetries, cfg.Sync.RetryWaitDuration(), retryable, log)
	policy.OnRetry = func(operation string, _ int, _ error) {
		metrics.RecordRetry(operation)
	}
	return policy
}

// healthChecks returns the readiness checks for the dependencies in use
func (a *app) healthChecks() map[string]handler.Check {
	checks := map[string]handler.Check{
		"warehouse": func(ctx context.Context) error {
			status := a.dw.HealthCheck(ctx)
			if status.Error != "" {
				return errors.New(status.Error)
			}
			return nil
		},
	}
	if a.db != nil {
		checks["database"] = func(ctx context.Context) error {
			sqlDB, err := a.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	if a.rdb != nil {
		checks["redis"] = func(ctx context.Context) error {
			return a.rdb.Ping(ctx).Err()
		}
	}
	return checks
}

func (a *app) newServer() *http.Server {
	var runs handler.RunLister
	if a.history != nil {
		runs = a.history
	}

	rt := router.NewRouter(a.log,
		handler.NewHealthHandler(a.healthChecks(), a.driver, a.cycle, a.log),
		handler.NewRunsHandler(runs, a.cycle, a.log),
	)

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:      rt.Setup(),
		ReadTimeout:  a.cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: a.cfg.Server.WriteTimeoutDuration(),
	}
}

func (a *app) close() {
	if a.crm != nil {
		a.crm.Close()
	}
	if a.dw != nil {
		if err := a.dw.Close(); err != nil {
			a.log.Warn("Error closing data warehouse connection", zap.Error(err))
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Warn("Error closing redis connection", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := database.Close(a.db); err != nil {
			a.log.Warn("Error closing database connection", zap.Error(err))
		}
	}
}
