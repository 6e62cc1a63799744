package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"gympulse/dispatch"
	"gympulse/ledger"
	"gympulse/models"
)

// Stage is one step of the inactivity escalation ladder.
type Stage struct {
	Days int
	// Key is the ledger key, Label the value stored as the alert's automation stage.
	Key   string
	Label string
}

// Stages is ordered by threshold. Every stage fires at most once per member.
var Stages = []Stage{
	{Days: 3, Key: "stage3", Label: "d3"},
	{Days: 7, Key: "stage7", Label: "d7"},
	{Days: 10, Key: "stage10", Label: "d10"},
	{Days: 14, Key: "stage14", Label: "d14"},
	{Days: 21, Key: "stage21", Label: "d21"},
}

// StageLabel is the label of the highest threshold reached, or "" below 3 days.
func StageLabel(days int) string {
	label := ""
	for _, s := range Stages {
		if days >= s.Days {
			label = s.Label
		}
	}
	return label
}

const (
	actionEmail        = "email"
	actionTask         = "task"
	actionNotification = "in_app_notification"
	actionManagerAlert = "manager_alert"
)

// StaffDirectory finds who receives the last-stage escalation.
type StaffDirectory interface {
	TopStaff(ctx context.Context, tx *gorm.DB, gymID uint) (*models.User, error)
}

// GormStaffDirectory picks the earliest active owner, then the earliest
// active manager.
type GormStaffDirectory struct{}

func (GormStaffDirectory) TopStaff(ctx context.Context, tx *gorm.DB, gymID uint) (*models.User, error) {
	for _, role := range []models.RoleEnum{models.RoleOwner, models.RoleManager} {
		var u models.User
		err := tx.WithContext(ctx).
			Scopes(models.ForGym(gymID)).
			Where("role = ? AND is_active = ?", role, true).
			Order("created_at ASC, id ASC").
			First(&u).Error
		if err == nil {
			return &u, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("lookup %s for gym %d: %w", role, gymID, err)
		}
	}
	return nil, nil
}

// Escalator fires overdue stages for one member inside the caller's
// transaction.
type Escalator struct {
	dispatch dispatch.Dispatchers
	staff    StaffDirectory
	logger   logrus.FieldLogger
	now      func() time.Time
}

func NewEscalator(d dispatch.Dispatchers, staff StaffDirectory, logger logrus.FieldLogger, now func() time.Time) *Escalator {
	if staff == nil {
		staff = GormStaffDirectory{}
	}
	if now == nil {
		now = time.Now
	}
	return &Escalator{dispatch: d, staff: staff, logger: logger, now: now}
}

// Outcome is what one escalation pass did for a member.
type Outcome struct {
	Actions []models.ActionRecord
	// Fired counts stages completed in this pass.
	Fired int
	// Failed is the error of the stage that stopped the ladder. Stages before
	// it keep their effects and ledger keys.
	Failed error
}

// Run evaluates every stage whose threshold is reached. Each stage runs in a
// savepoint of tx, so a failing stage is undone alone and the ladder stops
// there. The returned error is set only when tx itself is unusable.
// Stage 14 may raise m's level and score in place.
func (e *Escalator) Run(ctx context.Context, tx *gorm.DB, led ledger.Ledger, m *models.Member, days int) (Outcome, error) {
	var out Outcome

	for _, stage := range Stages {
		if days < stage.Days {
			break
		}
		done, err := led.Exists(ctx, m.ID, stage.Key)
		if err != nil {
			return Outcome{}, err
		}
		if done {
			continue
		}

		level, score := m.RiskLevel, m.RiskScore
		var (
			rec  models.ActionRecord
			mark bool
		)
		err = tx.Transaction(func(stx *gorm.DB) error {
			var err error
			rec, mark, err = e.fire(ctx, stx, m, stage)
			if err != nil || !mark {
				return err
			}
			meta := map[string]interface{}{"type": rec.Type, "status": rec.Status, "days": days}
			return led.Record(ctx, m.ID, stage.Key, meta)
		})
		if err != nil {
			m.RiskLevel, m.RiskScore = level, score
			out.Failed = fmt.Errorf("%s for member %d: %w", stage.Key, m.ID, err)
			out.Actions = append(out.Actions, models.ActionRecord{
				Type:      stageAction(stage),
				Stage:     stage.Label,
				Status:    "error",
				Reason:    err.Error(),
				Timestamp: e.now().UTC(),
			})
			return out, nil
		}
		out.Actions = append(out.Actions, rec)
		if mark {
			out.Fired++
		}
	}
	return out, nil
}

func stageAction(stage Stage) string {
	switch stage.Days {
	case 7:
		return actionTask
	case 14:
		return actionNotification
	case 21:
		return actionManagerAlert
	}
	return actionEmail
}

// fire performs one stage. mark reports whether the ledger key may be written.
func (e *Escalator) fire(ctx context.Context, tx *gorm.DB, m *models.Member, stage Stage) (models.ActionRecord, bool, error) {
	switch stage.Days {
	case 3:
		return e.sendEmail(ctx, tx, m, stage,
			"Come back to training today",
			fmt.Sprintf("Hi %s, your progress matters. Shall we get back on track this week?", m.FullName))
	case 7:
		return e.callTask(ctx, tx, m, stage)
	case 10:
		return e.sendEmail(ctx, tx, m, stage,
			"A quick tip to restart",
			fmt.Sprintf("Hi %s, we picked a short tip to make your return easier. Talk to the front desk and we will adjust your plan.", m.FullName))
	case 14:
		return e.upgradeAndNotify(ctx, tx, m, stage)
	case 21:
		return e.escalateToManager(ctx, tx, m, stage)
	}
	return models.ActionRecord{}, false, fmt.Errorf("no handler for stage %s", stage.Key)
}

func (e *Escalator) sendEmail(ctx context.Context, tx *gorm.DB, m *models.Member, stage Stage, subject, body string) (models.ActionRecord, bool, error) {
	rec := models.ActionRecord{Type: actionEmail, Stage: stage.Label, Timestamp: e.now().UTC()}
	if m.Email == "" {
		rec.Status = string(models.MessageSkipped)
		rec.Reason = "no_email"
		return rec, false, nil
	}
	memberID := m.ID
	entry, err := e.dispatch.Messages.Send(ctx, tx, dispatch.Message{
		GymID:        m.GymID,
		MemberID:     &memberID,
		Channel:      models.ChannelEmail,
		Recipient:    m.Email,
		Subject:      subject,
		Body:         body,
		TemplateName: "retention_" + stage.Label,
	})
	if err != nil {
		return rec, false, err
	}
	rec.Status = string(entry.Status)
	rec.Reason = entry.ErrorDetail
	rec.MessageLogID = &entry.ID
	return rec, entry.Status == models.MessageSent, nil
}

func (e *Escalator) callTask(ctx context.Context, tx *gorm.DB, m *models.Member, stage Stage) (models.ActionRecord, bool, error) {
	memberID := m.ID
	task, created, err := e.dispatch.Tasks.EnsureTask(ctx, tx, dispatch.TaskSpec{
		GymID:            m.GymID,
		MemberID:         &memberID,
		AssignedToUserID: m.AssignedUserID,
		Title:            "Call " + m.FullName,
		Description:      "Retention follow-up: member without training for 7 days.",
		Priority:         models.PriorityHigh,
		SuggestedMessage: fmt.Sprintf("Hi %s, we miss you at the gym. Shall we plan your next workouts together?", m.FullName),
	})
	if err != nil {
		return models.ActionRecord{}, false, err
	}
	rec := models.ActionRecord{
		Type:      actionTask,
		Stage:     stage.Label,
		Status:    "created",
		TaskID:    &task.ID,
		Timestamp: e.now().UTC(),
	}
	if !created {
		rec.Status = "skipped"
		rec.Reason = "open_task_exists"
	}
	return rec, true, nil
}

func (e *Escalator) upgradeAndNotify(ctx context.Context, tx *gorm.DB, m *models.Member, stage Stage) (models.ActionRecord, bool, error) {
	if m.RiskLevel == models.RiskYellow {
		m.RiskLevel = models.RiskRed
		if m.RiskScore < redThreshold {
			m.RiskScore = redThreshold
		}
	}
	memberID := m.ID
	n, err := e.dispatch.Notifications.Create(ctx, tx, dispatch.NotificationSpec{
		GymID:    m.GymID,
		MemberID: &memberID,
		UserID:   m.AssignedUserID,
		Title:    "Member without training for 14 days",
		Message:  fmt.Sprintf("%s has not checked in for 14 days. Start the retention plan.", m.FullName),
		Category: "retention",
		ExtraData: map[string]interface{}{
			"stage":      stage.Label,
			"risk_level": string(m.RiskLevel),
			"risk_score": m.RiskScore,
		},
	})
	if err != nil {
		return models.ActionRecord{}, false, err
	}
	return models.ActionRecord{
		Type:           actionNotification,
		Stage:          stage.Label,
		Status:         "notified",
		NotificationID: &n.ID,
		Timestamp:      e.now().UTC(),
	}, true, nil
}

func (e *Escalator) escalateToManager(ctx context.Context, tx *gorm.DB, m *models.Member, stage Stage) (models.ActionRecord, bool, error) {
	rec := models.ActionRecord{Type: actionManagerAlert, Stage: stage.Label, Timestamp: e.now().UTC()}

	staff, err := e.staff.TopStaff(ctx, tx, m.GymID)
	if err != nil {
		return rec, false, err
	}
	if staff == nil {
		e.logger.WithFields(logrus.Fields{"gym_id": m.GymID, "member_id": m.ID}).
			Warn("no owner or manager to receive churn escalation")
		rec.Status = "skipped"
		rec.Reason = "no_manager"
		return rec, true, nil
	}

	memberID := m.ID
	staffID := staff.ID
	task, created, err := e.dispatch.Tasks.EnsureTask(ctx, tx, dispatch.TaskSpec{
		GymID:            m.GymID,
		MemberID:         &memberID,
		AssignedToUserID: &staffID,
		Title:            "Escalate churn - " + m.FullName,
		Description:      "Member without training for 21+ days. Manager involvement required.",
		Priority:         models.PriorityUrgent,
	})
	if err != nil {
		return rec, false, err
	}
	rec.Status = "created"
	if !created {
		rec.Status = "skipped"
		rec.Reason = "open_task_exists"
	}
	rec.TaskID = &task.ID
	rec.UserID = &staffID
	return rec, true, nil
}
