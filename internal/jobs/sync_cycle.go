package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/order-sync/internal/datawarehouse"
	"github.com/straye-as/order-sync/internal/domain"
	"github.com/straye-as/order-sync/internal/lock"
	"github.com/straye-as/order-sync/internal/logger"
	"github.com/straye-as/order-sync/internal/metrics"
	"github.com/straye-as/order-sync/internal/normalize"
	"github.com/straye-as/order-sync/internal/service"
	"go.uber.org/zap"
)

// SyncJobName is the name of the order sync job
const SyncJobName = "order_sync"

// OrderSource reads warehouse order rows.
// *datawarehouse.OrderSource implements it.
type OrderSource interface {
	FetchOrderRows(ctx context.Context, since time.Time) (*datawarehouse.FetchResult, error)
}

// AccountIndexLoader builds the per-cycle account index
type AccountIndexLoader interface {
	LoadAccountIndex(ctx context.Context) (*domain.AccountIndex, error)
}

// OrderReconciler writes aggregated orders to the CRM
type OrderReconciler interface {
	Reconcile(ctx context.Context, orders []*domain.AggregatedOrder, index *domain.AccountIndex) service.ReconcileResult
}

// RunHistory persists cycle summaries. It is optional.
type RunHistory interface {
	Create(ctx context.Context, run *domain.SyncRun) error
	Finish(ctx context.Context, run *domain.SyncRun) error
	Prune(ctx context.Context, keep int) (int64, error)
}

// SyncCycleConfig holds the plain values a cycle runs with
type SyncCycleConfig struct {
	WindowDays       int
	HistoryRetention int
}

// SyncCycle runs one pull-reconcile pass: account index, warehouse window,
// aggregation, reconciliation.
type SyncCycle struct {
	source     OrderSource
	accounts   AccountIndexLoader
	reconciler OrderReconciler
	locker     lock.Locker
	history    RunHistory
	cfg        SyncCycleConfig
	logger     *zap.Logger
	now        func() time.Time

	mu      sync.Mutex
	lastRun *domain.SyncRun
}

// NewSyncCycle creates a SyncCycle. locker and history may be nil.
func NewSyncCycle(source OrderSource, accounts AccountIndexLoader, reconciler OrderReconciler, locker lock.Locker, history RunHistory, cfg SyncCycleConfig, logger *zap.Logger) *SyncCycle {
	if locker == nil {
		locker = lock.NoopLocker{}
	}
	if cfg.WindowDays < 1 {
		cfg.WindowDays = 7
	}
	return &SyncCycle{
		source:     source,
		accounts:   accounts,
		reconciler: reconciler,
		locker:     locker,
		history:    history,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// LastRun returns a copy of the most recent finished run, or nil before the first one
func (c *SyncCycle) LastRun() *domain.SyncRun {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastRun == nil {
		return nil
	}
	run := *c.lastRun
	return &run
}

// Run executes one cycle. A cycle skipped because another replica holds the lock
// returns a run with status skipped and no error. Panics are recovered and
// reported as a failed cycle.
func (c *SyncCycle) Run(ctx context.Context) (run *domain.SyncRun, err error) {
	start := c.now()
	run = &domain.SyncRun{
		ID:          uuid.New(),
		StartedAt:   start,
		Status:      domain.SyncRunStatusRunning,
		WindowStart: datawarehouse.WindowStart(start, c.cfg.WindowDays).Format(normalize.ISODateLayout),
	}
	log := logger.WithRun(c.logger, run.ID.String())

	lease, err := c.locker.Obtain(ctx)
	if errors.Is(err, lock.ErrNotObtained) {
		log.Info("Skipping cycle, lock held by another instance")
		run.Status = domain.SyncRunStatusSkipped
		metrics.RecordCycle(string(run.Status), 0)
		c.setLastRun(run)
		return run, nil
	}
	if err != nil {
		run.Status = domain.SyncRunStatusFailed
		run.ErrorMessage = err.Error()
		metrics.RecordCycle(string(run.Status), 0)
		c.setLastRun(run)
		return run, err
	}
	defer func() {
		if relErr := lease.Release(context.WithoutCancel(ctx)); relErr != nil {
			log.Warn("Failed to release cycle lock", zap.Error(relErr))
		}
	}()

	log.Info("Starting sync cycle", zap.String("window_start", run.WindowStart))
	c.recordStart(ctx, run, log)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync cycle panicked: %v", r)
			log.Error("Recovered from panic in sync cycle", zap.Any("panic", r), zap.Stack("stack"))
		}
		c.finish(ctx, run, err, log)
	}()

	err = c.execute(ctx, run, log)
	return run, err
}

func (c *SyncCycle) execute(ctx context.Context, run *domain.SyncRun, log *zap.Logger) error {
	index, err := c.accounts.LoadAccountIndex(ctx)
	if err != nil {
		return fmt.Errorf("failed to load account index: %w", err)
	}

	since := datawarehouse.WindowStart(run.StartedAt, c.cfg.WindowDays)
	fetched, err := c.source.FetchOrderRows(ctx, since)
	if err != nil {
		return fmt.Errorf("failed to fetch warehouse orders: %w", err)
	}
	run.RowsFetched = len(fetched.Rows)
	metrics.RowsFetched.Add(float64(len(fetched.Rows)))
	if fetched.Rejected > 0 {
		metrics.SkippedTotal.WithLabelValues("row", "invalid_date").Add(float64(fetched.Rejected))
	}

	batch := service.AggregateOrders(fetched.Rows)
	run.OrdersSeen = batch.Len()
	if batch.SkippedRows > 0 {
		log.Warn("Dropped rows without order number", zap.Int("rows", batch.SkippedRows))
		metrics.SkippedTotal.WithLabelValues("row", "missing_order_number").Add(float64(batch.SkippedRows))
	}
	for _, o := range batch.Conflicts() {
		log.Warn("Order rows disagree on header fields, using first row",
			zap.String("order_number", o.Header.SalesOrderNumber),
			zap.Int("conflicting_rows", o.HeaderConflicts),
		)
	}

	result := c.reconciler.Reconcile(ctx, batch.Orders, index)
	run.OrdersCreated = result.OrdersCreated
	run.OrdersUpdated = result.OrdersUpdated
	run.ItemsCreated = result.ItemsCreated
	run.ItemsUpdated = result.ItemsUpdated
	run.OrdersSkipped = result.OrdersSkipped
	run.ItemsSkipped = result.ItemsSkipped
	run.Failures = result.Failures
	return nil
}

func (c *SyncCycle) recordStart(ctx context.Context, run *domain.SyncRun, log *zap.Logger) {
	if c.history == nil {
		return
	}
	if err := c.history.Create(context.WithoutCancel(ctx), run); err != nil {
		log.Warn("Failed to record sync run start", zap.Error(err))
	}
}

func (c *SyncCycle) finish(ctx context.Context, run *domain.SyncRun, err error, log *zap.Logger) {
	finished := c.now()
	run.FinishedAt = &finished
	duration := finished.Sub(run.StartedAt)
	run.DurationMillis = duration.Milliseconds()

	if err != nil {
		run.Status = domain.SyncRunStatusFailed
		run.ErrorMessage = err.Error()
		log.Error("Sync cycle failed", zap.Error(err), zap.Duration("duration", duration))
	} else {
		run.Status = domain.SyncRunStatusSuccess
		metrics.LastSuccess.Set(float64(finished.Unix()))
		log.Info("Sync cycle completed",
			zap.Int("rows_fetched", run.RowsFetched),
			zap.Int("orders_seen", run.OrdersSeen),
			zap.Int("orders_created", run.OrdersCreated),
			zap.Int("orders_updated", run.OrdersUpdated),
			zap.Int("items_created", run.ItemsCreated),
			zap.Int("items_updated", run.ItemsUpdated),
			zap.Int("failures", run.Failures),
			zap.Duration("duration", duration),
		)
	}
	metrics.RecordCycle(string(run.Status), duration.Seconds())
	c.setLastRun(run)

	if c.history == nil {
		return
	}
	historyCtx := context.WithoutCancel(ctx)
	if err := c.history.Finish(historyCtx, run); err != nil {
		log.Warn("Failed to record sync run result", zap.Error(err))
	}
	if c.cfg.HistoryRetention > 0 {
		if pruned, err := c.history.Prune(historyCtx, c.cfg.HistoryRetention); err != nil {
			log.Warn("Failed to prune sync run history", zap.Error(err))
		} else if pruned > 0 {
			log.Debug("Pruned sync run history", zap.Int64("deleted", pruned))
		}
	}
}

func (c *SyncCycle) setLastRun(run *domain.SyncRun) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := *run
	c.lastRun = &copied
}
