// Package worker schedules the risk and automation cycles across gyms and
// runs them on demand for the HTTP API.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"gympulse/automation"
	"gympulse/dispatch"
	"gympulse/risk"
)

const defaultLockTTL = 2 * time.Hour

// Runner builds per-gym processors and engines over shared dispatchers and
// guards every run with the gym's lock.
type Runner struct {
	db        *gorm.DB
	dispatch  dispatch.Dispatchers
	publisher risk.AlertPublisher
	locker    Locker
	lockTTL   time.Duration
	logger    logrus.FieldLogger
	now       func() time.Time
}

type RunnerOption func(*Runner)

func WithPublisher(p risk.AlertPublisher) RunnerOption {
	return func(r *Runner) { r.publisher = p }
}

func WithLocker(l Locker) RunnerOption {
	return func(r *Runner) { r.locker = l }
}

func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

func NewRunner(db *gorm.DB, d dispatch.Dispatchers, logger logrus.FieldLogger, opts ...RunnerOption) *Runner {
	r := &Runner{
		db:       db,
		dispatch: d,
		locker:   NewLocalLocker(),
		lockTTL:  defaultLockTTL,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) Engine(gymID uint) *automation.Engine {
	return automation.NewEngine(r.db, gymID, r.dispatch, r.logger, automation.WithClock(r.now))
}

// Processor runs the risk pass and then the gym's rules.
func (r *Runner) Processor(gymID uint) *risk.Processor {
	opts := []risk.Option{
		risk.WithClock(r.now),
		risk.WithRules(r.Engine(gymID)),
	}
	if r.publisher != nil {
		opts = append(opts, risk.WithPublisher(r.publisher))
	}
	return risk.NewProcessor(r.db, gymID, r.dispatch, r.logger, opts...)
}

func (r *Runner) RunRisk(ctx context.Context, gymID uint) (risk.Summary, error) {
	var summary risk.Summary
	err := r.withLock(ctx, gymID, func() {
		summary = r.Processor(gymID).RunDailyRiskProcessing(ctx)
	})
	return summary, err
}

func (r *Runner) RunAutomations(ctx context.Context, gymID uint) ([]automation.ExecutionResult, error) {
	var results []automation.ExecutionResult
	err := r.withLock(ctx, gymID, func() {
		results = r.Engine(gymID).RunAll(ctx)
	})
	return results, err
}

func (r *Runner) withLock(ctx context.Context, gymID uint, fn func()) error {
	release, err := r.locker.Acquire(ctx, fmt.Sprintf("gympulse:run:%d", gymID), r.lockTTL)
	if err != nil {
		return err
	}
	defer release()
	fn()
	return nil
}
