package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/straye-as/order-sync/internal/domain"
	"go.uber.org/zap"
)

// State is the driver state
type State int32

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Cycle is one sync pass. *SyncCycle implements it.
type Cycle interface {
	Run(ctx context.Context) (*domain.SyncRun, error)
}

// Driver repeats a cycle with a fixed idle wait after each completion.
// A failing or panicking cycle is logged and never stops the loop.
type Driver struct {
	cycle  Cycle
	wait   time.Duration
	logger *zap.Logger
	state  atomic.Int32
	cycles atomic.Int64
}

// NewDriver creates a Driver that waits wait between cycles
func NewDriver(cycle Cycle, wait time.Duration, logger *zap.Logger) *Driver {
	return &Driver{cycle: cycle, wait: wait, logger: logger}
}

// State returns the current driver state
func (d *Driver) State() State {
	return State(d.state.Load())
}

// Cycles returns the number of cycles started
func (d *Driver) Cycles() int64 {
	return d.cycles.Load()
}

// Run loops until ctx is cancelled. Cancellation is observed before a cycle
// starts and during the idle wait; a cycle in progress runs to completion.
func (d *Driver) Run(ctx context.Context) error {
	d.logger.Info("Starting sync loop", zap.Duration("cycle_wait", d.wait))

	for {
		if ctx.Err() != nil {
			d.logger.Info("Sync loop stopped")
			return nil
		}

		_, _ = d.RunOnce(ctx)

		d.logger.Debug("Waiting for next cycle", zap.Duration("wait", d.wait))
		timer := time.NewTimer(d.wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			d.logger.Info("Sync loop stopped")
			return nil
		case <-timer.C:
		}
	}
}

// RunOnce runs a single cycle detached from ctx cancellation and returns its result
func (d *Driver) RunOnce(ctx context.Context) (run *domain.SyncRun, err error) {
	d.state.Store(int32(StateRunning))
	d.cycles.Add(1)
	defer d.state.Store(int32(StateIdle))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync cycle panicked: %v", r)
			d.logger.Error("Recovered from panic in sync loop", zap.Any("panic", r))
		}
	}()

	run, err = d.cycle.Run(context.WithoutCancel(ctx))
	if err != nil {
		d.logger.Error("Sync cycle ended with error", zap.Error(err))
	}
	return run, err
}
