package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"gympulse/dispatch"
	"gympulse/ledger"
	"gympulse/models"
	"gympulse/utils"
)

// Engine runs every active rule of one gym.
type Engine struct {
	db       *gorm.DB
	gymID    uint
	dispatch dispatch.Dispatchers
	ledger   *ledger.GormLedger
	logger   logrus.FieldLogger
	now      func() time.Time
}

type EngineOption func(*Engine)

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(db *gorm.DB, gymID uint, d dispatch.Dispatchers, logger logrus.FieldLogger, opts ...EngineOption) *Engine {
	e := &Engine{
		db:       db,
		gymID:    gymID,
		dispatch: d,
		ledger:   ledger.New(db, gymID),
		logger:   logger.WithField("gym_id", gymID),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunAll evaluates the gym's active rules in ID order. Failures never abort
// the run: a broken rule yields one error result, a failing member yields an
// error result for that member only.
func (e *Engine) RunAll(ctx context.Context) []ExecutionResult {
	log := e.logger.WithField("run_id", uuid.NewString())

	var rules []models.AutomationRule
	err := e.db.WithContext(ctx).
		Scopes(models.ForGym(e.gymID)).
		Where("is_active = ?", true).
		Order("id ASC").
		Find(&rules).Error
	if err != nil {
		utils.LogError("automation_rule_load", err, map[string]interface{}{"gym_id": e.gymID})
		return nil
	}

	var results []ExecutionResult
	for _, rule := range rules {
		if ctx.Err() != nil {
			log.Warn("automation run cancelled")
			break
		}
		results = append(results, e.runRule(ctx, log.WithField("rule_id", rule.ID), rule)...)
	}

	triggered := 0
	for _, r := range results {
		if r.Triggered() {
			triggered++
		}
	}
	log.WithFields(logrus.Fields{
		"rules":     len(rules),
		"results":   len(results),
		"triggered": triggered,
	}).Info("automation rules finished")
	return results
}

func (e *Engine) runRule(ctx context.Context, log logrus.FieldLogger, rule models.AutomationRule) []ExecutionResult {
	ruleError := func(err error) []ExecutionResult {
		log.WithError(err).Error("automation rule skipped")
		return []ExecutionResult{{
			RuleID:      rule.ID,
			RuleName:    rule.Name,
			SubjectID:   rule.ID,
			SubjectType: SubjectRule,
			Action:      rule.ActionType,
			Status:      StatusError,
			Reason:      err.Error(),
		}}
	}

	trigger, err := ParseTrigger(rule.TriggerType, rule.TriggerConfig)
	if err != nil {
		return ruleError(err)
	}
	action, err := ParseAction(rule.ActionType, rule.ActionConfig)
	if err != nil {
		return ruleError(err)
	}
	opts, err := parseActionOptions(rule.ActionConfig)
	if err != nil {
		return ruleError(err)
	}

	now := e.now().UTC()
	subjects, err := trigger.Match(ctx, e.db, e.gymID, now)
	if err != nil {
		return ruleError(fmt.Errorf("match %s: %w", rule.TriggerType, err))
	}
	if len(subjects) == 0 {
		return nil
	}

	if trigger.Type() == models.TriggerLeadStale {
		return e.skipLeads(log, rule, subjects)
	}

	env := Env{Rule: rule, Dispatch: e.dispatch, Now: now}
	results := make([]ExecutionResult, 0, len(subjects))
	for _, subj := range subjects {
		if ctx.Err() != nil {
			break
		}
		results = append(results, e.runSubject(ctx, log, env, action, opts, subj))
	}

	err = e.db.WithContext(ctx).
		Model(&models.AutomationRule{}).
		Where("id = ?", rule.ID).
		Updates(map[string]interface{}{
			"executions_count": gorm.Expr("executions_count + ?", 1),
			"last_executed_at": now,
		}).Error
	if err != nil {
		utils.LogError("automation_rule_counters", err, map[string]interface{}{"gym_id": e.gymID, "rule_id": rule.ID})
	}
	return results
}

func (e *Engine) runSubject(ctx context.Context, log logrus.FieldLogger, env Env, action Action, opts actionOptions, subj Subject) ExecutionResult {
	m := subj.Member
	res := ExecutionResult{}
	key := fmt.Sprintf("rule:%d", env.Rule.ID)

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		led := e.ledger.WithTx(tx)
		if opts.OncePerMember {
			done, err := led.Exists(ctx, m.ID, key)
			if err != nil {
				return err
			}
			if done {
				res = ExecutionResult{Status: StatusSkipped, Reason: "already_executed"}
				return nil
			}
		}

		var err error
		res, err = action.Execute(ctx, tx, env, m)
		if err != nil {
			return err
		}
		if opts.OncePerMember && res.Triggered() {
			return led.Record(ctx, m.ID, key, map[string]interface{}{
				"action": string(action.Type()),
				"status": string(res.Status),
			})
		}
		return nil
	})
	if err != nil {
		log.WithError(err).WithField("member_id", m.ID).Error("automation action failed")
		res = ExecutionResult{Status: StatusError, Reason: err.Error()}
	}

	res.RuleID = env.Rule.ID
	res.RuleName = env.Rule.Name
	res.SubjectID = m.ID
	res.SubjectType = SubjectMember
	res.Action = action.Type()
	return res
}

// skipLeads reports stale leads without acting on them: rule actions target
// members only. Rule counters are left untouched.
func (e *Engine) skipLeads(log logrus.FieldLogger, rule models.AutomationRule, subjects []Subject) []ExecutionResult {
	log.WithField("leads", len(subjects)).Warn("lead_stale rules do not dispatch actions")
	out := make([]ExecutionResult, len(subjects))
	for i, s := range subjects {
		out[i] = ExecutionResult{
			RuleID:      rule.ID,
			RuleName:    rule.Name,
			SubjectID:   s.ID(),
			SubjectType: s.Type(),
			Action:      rule.ActionType,
			Status:      StatusSkipped,
			Reason:      "lead_dispatch_unsupported",
		}
	}
	return out
}
