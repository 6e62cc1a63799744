package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"gympulse/automation"
	"gympulse/models"
	"gympulse/risk"
	"gympulse/utils"
)

// forEachGym runs fn for every active gym with at most limit gyms in flight.
// A failing gym never cancels the others.
func forEachGym(ctx context.Context, db *gorm.DB, limit int, fn func(ctx context.Context, gymID uint)) error {
	var gymIDs []uint
	err := db.WithContext(ctx).
		Model(&models.Gym{}).
		Where("is_active = ?", true).
		Order("id ASC").
		Pluck("id", &gymIDs).Error
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for _, id := range gymIDs {
		if ctx.Err() != nil {
			break
		}
		gymID := id
		g.Go(func() error {
			fn(ctx, gymID)
			return nil
		})
	}
	return g.Wait()
}

// every calls fn after startDelay and then on each tick until ctx is done.
func every(ctx context.Context, startDelay, interval time.Duration, fn func(context.Context)) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(startDelay):
	}
	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// RiskWorker runs the daily risk cycle for every active gym.
type RiskWorker struct {
	DB          *gorm.DB
	Runner      *Runner
	Interval    time.Duration
	Concurrency int
	StartDelay  time.Duration
	Logger      logrus.FieldLogger
}

func NewRiskWorker(db *gorm.DB, runner *Runner, interval time.Duration, concurrency int, logger logrus.FieldLogger) *RiskWorker {
	return &RiskWorker{
		DB:          db,
		Runner:      runner,
		Interval:    interval,
		Concurrency: concurrency,
		StartDelay:  10 * time.Second,
		Logger:      logger.WithField("worker", "risk"),
	}
}

func (w *RiskWorker) Start(ctx context.Context) {
	w.Logger.WithField("interval", w.Interval.String()).Info("Risk worker started")
	every(ctx, w.StartDelay, w.Interval, func(ctx context.Context) { w.RunOnce(ctx) })
	w.Logger.Info("Risk worker shutting down...")
}

// RunOnce processes every active gym and returns the summaries by gym ID.
// Gyms locked by another run are skipped.
func (w *RiskWorker) RunOnce(ctx context.Context) map[uint]risk.Summary {
	var mu sync.Mutex
	out := make(map[uint]risk.Summary)
	err := forEachGym(ctx, w.DB, w.Concurrency, func(ctx context.Context, gymID uint) {
		summary, err := w.Runner.RunRisk(ctx, gymID)
		if errors.Is(err, ErrRunInProgress) {
			w.Logger.WithField("gym_id", gymID).Info("risk run skipped, gym locked")
			return
		}
		if err != nil {
			utils.LogError("risk_run", err, map[string]interface{}{"gym_id": gymID})
			return
		}
		mu.Lock()
		out[gymID] = summary
		mu.Unlock()
	})
	if err != nil {
		utils.LogError("risk_gym_load", err, nil)
	}
	return out
}

// AutomationWorker runs the rule engine for every active gym.
type AutomationWorker struct {
	DB          *gorm.DB
	Runner      *Runner
	Interval    time.Duration
	Concurrency int
	StartDelay  time.Duration
	Logger      logrus.FieldLogger
}

func NewAutomationWorker(db *gorm.DB, runner *Runner, interval time.Duration, concurrency int, logger logrus.FieldLogger) *AutomationWorker {
	return &AutomationWorker{
		DB:          db,
		Runner:      runner,
		Interval:    interval,
		Concurrency: concurrency,
		StartDelay:  30 * time.Second,
		Logger:      logger.WithField("worker", "automation"),
	}
}

func (w *AutomationWorker) Start(ctx context.Context) {
	w.Logger.WithField("interval", w.Interval.String()).Info("Automation worker started")
	every(ctx, w.StartDelay, w.Interval, func(ctx context.Context) { w.RunOnce(ctx) })
	w.Logger.Info("Automation worker shutting down...")
}

func (w *AutomationWorker) RunOnce(ctx context.Context) map[uint][]automation.ExecutionResult {
	var mu sync.Mutex
	out := make(map[uint][]automation.ExecutionResult)
	err := forEachGym(ctx, w.DB, w.Concurrency, func(ctx context.Context, gymID uint) {
		results, err := w.Runner.RunAutomations(ctx, gymID)
		if errors.Is(err, ErrRunInProgress) {
			w.Logger.WithField("gym_id", gymID).Info("automation run skipped, gym locked")
			return
		}
		if err != nil {
			utils.LogError("automation_run", err, map[string]interface{}{"gym_id": gymID})
			return
		}
		mu.Lock()
		out[gymID] = results
		mu.Unlock()
	})
	if err != nil {
		utils.LogError("automation_gym_load", err, nil)
	}
	return out
}
