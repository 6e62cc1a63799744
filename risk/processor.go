package risk

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"gympulse/automation"
	"gympulse/dispatch"
	"gympulse/ledger"
	"gympulse/models"
	"gympulse/utils"
)

// Summary is the aggregate outcome of one daily cycle for a gym.
type Summary struct {
	RunID                string `json:"run_id"`
	MembersAnalyzed      int    `json:"members_analyzed"`
	AlertsProcessed      int    `json:"alerts_processed"`
	AutomationsTriggered int    `json:"automations_triggered"`
	Errors               int    `json:"errors"`
}

// RuleRunner runs the automation rules after the risk pass.
type RuleRunner interface {
	RunAll(ctx context.Context) []automation.ExecutionResult
}

// Processor runs the daily risk cycle for one gym.
type Processor struct {
	db        *gorm.DB
	gymID     uint
	ledger    *ledger.GormLedger
	signals   *SignalReader
	escalator *Escalator
	staff     StaffDirectory
	rules     RuleRunner
	publisher AlertPublisher
	logger    logrus.FieldLogger
	now       func() time.Time
}

type Option func(*Processor)

func WithRules(r RuleRunner) Option {
	return func(p *Processor) { p.rules = r }
}

func WithPublisher(pub AlertPublisher) Option {
	return func(p *Processor) { p.publisher = pub }
}

func WithStaffDirectory(s StaffDirectory) Option {
	return func(p *Processor) { p.staff = s }
}

func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

func NewProcessor(db *gorm.DB, gymID uint, d dispatch.Dispatchers, logger logrus.FieldLogger, opts ...Option) *Processor {
	p := &Processor{
		db:      db,
		gymID:   gymID,
		ledger:  ledger.New(db, gymID),
		signals: NewSignalReader(),
		logger:  logger.WithField("gym_id", gymID),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.escalator = NewEscalator(d, p.staff, p.logger, p.now)
	return p
}

// RunDailyRiskProcessing scores every active or paused member, fires overdue
// escalation stages, folds the outcome into risk alerts and then runs the
// automation rules. Each member is processed in its own transaction; a
// failing member is logged and counted, and the cycle moves on.
func (p *Processor) RunDailyRiskProcessing(ctx context.Context) Summary {
	summary := Summary{RunID: uuid.NewString()}
	log := p.logger.WithField("run_id", summary.RunID)

	var members []models.Member
	err := p.db.WithContext(ctx).
		Scopes(models.ForGym(p.gymID)).
		Where("status IN ?", []models.MemberStatus{models.MemberActive, models.MemberPaused}).
		Order("id ASC").
		Find(&members).Error
	if err != nil {
		utils.LogError("risk_member_load", err, map[string]interface{}{"gym_id": p.gymID, "run_id": summary.RunID})
		summary.Errors++
		return summary
	}

	now := p.now().UTC()
	for i := range members {
		if ctx.Err() != nil {
			log.WithField("remaining", len(members)-i).Warn("risk processing cancelled")
			return summary
		}
		m := &members[i]

		var (
			event    *AlertEvent
			fired    int
			stageErr error
		)
		err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			event, fired, stageErr, err = p.processMember(ctx, tx, m, now)
			return err
		})
		summary.MembersAnalyzed++
		if err != nil {
			summary.Errors++
			utils.LogError("risk_member_processing", err, map[string]interface{}{
				"gym_id":    p.gymID,
				"member_id": m.ID,
				"run_id":    summary.RunID,
			})
			continue
		}
		if stageErr != nil {
			summary.Errors++
			utils.LogError("risk_stage_failed", stageErr, map[string]interface{}{
				"gym_id":    p.gymID,
				"member_id": m.ID,
				"run_id":    summary.RunID,
			})
		}
		summary.AutomationsTriggered += fired
		if event != nil {
			summary.AlertsProcessed++
			if p.publisher != nil {
				p.publisher.Publish(ctx, *event)
			}
		}
	}

	if p.rules != nil && ctx.Err() == nil {
		for _, r := range p.rules.RunAll(ctx) {
			if r.Triggered() {
				summary.AutomationsTriggered++
			}
		}
	}

	log.WithFields(logrus.Fields{
		"members_analyzed":      summary.MembersAnalyzed,
		"alerts_processed":      summary.AlertsProcessed,
		"automations_triggered": summary.AutomationsTriggered,
		"errors":                summary.Errors,
	}).Info("risk processing finished")
	return summary
}

// processMember scores m and folds the escalation outcome into its alert. A
// failed stage is returned as stageErr; everything else still commits.
func (p *Processor) processMember(ctx context.Context, tx *gorm.DB, m *models.Member, now time.Time) (event *AlertEvent, fired int, stageErr error, err error) {
	signals, err := p.signals.Read(ctx, tx, *m, now)
	if err != nil {
		return nil, 0, nil, err
	}
	res := Score(*m, signals, now)
	m.RiskScore = res.Score
	m.RiskLevel = res.Level

	if res.Score >= AlertThreshold {
		out, err := p.escalator.Run(ctx, tx, p.ledger.WithTx(tx), m, res.DaysWithoutCheckin)
		if err != nil {
			return nil, 0, nil, err
		}
		fired, stageErr = out.Fired, out.Failed

		alert, created, err := upsertAlert(ctx, tx, m, res, out.Actions)
		if err != nil {
			return nil, 0, nil, err
		}
		event = &AlertEvent{
			Type:     EventAlertUpdated,
			GymID:    m.GymID,
			AlertID:  alert.ID,
			MemberID: m.ID,
			Member:   m.FullName,
			Score:    alert.Score,
			Level:    alert.Level,
			Stage:    alert.AutomationStage,
		}
		if created {
			event.Type = EventAlertCreated
		}
	}

	err = tx.WithContext(ctx).
		Model(&models.Member{}).
		Where("id = ?", m.ID).
		Updates(map[string]interface{}{
			"risk_score": m.RiskScore,
			"risk_level": m.RiskLevel,
		}).Error
	if err != nil {
		return nil, 0, nil, err
	}
	return event, fired, stageErr, nil
}
