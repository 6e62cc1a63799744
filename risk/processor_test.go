package risk

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"gympulse/automation"
	"gympulse/dispatch"
	"gympulse/models"
	"gympulse/testutil"
)

type fixture struct {
	db    *gorm.DB
	gym   models.Gym
	email *testutil.FakeChannel
	d     dispatch.Dispatchers
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	logger, _ := testutil.NullLogger()
	email := testutil.NewFakeChannel(models.ChannelEmail)
	return &fixture{
		db:    db,
		gym:   testutil.SeedGym(t, db),
		email: email,
		d: dispatch.Dispatchers{
			Tasks:         dispatch.NewTaskDispatcher(),
			Messages:      dispatch.NewMessageDispatcher(logger, []dispatch.Channel{email}, dispatch.WithClock(testutil.Clock)),
			Notifications: dispatch.NewNotificationDispatcher(),
		},
	}
}

func (f *fixture) processor(opts ...Option) *Processor {
	logger, _ := testutil.NullLogger()
	opts = append([]Option{WithClock(testutil.Clock)}, opts...)
	return NewProcessor(f.db, f.gym.ID, f.d, logger, opts...)
}

func (f *fixture) openAlerts(t *testing.T, memberID uint) []models.RiskAlert {
	t.Helper()
	var alerts []models.RiskAlert
	require.NoError(t, f.db.Where("member_id = ? AND resolved = ?", memberID, false).Find(&alerts).Error)
	return alerts
}

func (f *fixture) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []AlertEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e AlertEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

type stubRules struct {
	results []automation.ExecutionResult
	calls   int
}

func (s *stubRules) RunAll(context.Context) []automation.ExecutionResult {
	s.calls++
	return s.results
}

func TestRunDailyRiskProcessing_EscalatesLongInactiveMemberToTopStaff(t *testing.T) {
	f := newFixture(t)
	testutil.SeedStaff(t, f.db, f.gym.ID, "Carla Manager", models.RoleManager, testutil.Now.AddDate(-5, 0, 0))
	owner := testutil.SeedStaff(t, f.db, f.gym.ID, "Diego Owner", models.RoleOwner, testutil.Now.AddDate(-3, 0, 0))
	testutil.SeedStaff(t, f.db, f.gym.ID, "Elisa Owner", models.RoleOwner, testutil.Now.AddDate(-1, 0, 0))
	member := testutil.SeedMember(t, f.db, f.gym.ID, testutil.MemberOpts{
		Name:         "Fabio Rocha",
		Email:        "fabio@example.com",
		InactiveDays: 22,
		NPS:          testutil.Int(3),
	})

	summary := f.processor().RunDailyRiskProcessing(context.Background())

	assert.Equal(t, 1, summary.MembersAnalyzed)
	assert.Equal(t, 1, summary.AlertsProcessed)
	assert.Equal(t, 5, summary.AutomationsTriggered)
	assert.Zero(t, summary.Errors)
	assert.NotEmpty(t, summary.RunID)

	var reloaded models.Member
	require.NoError(t, f.db.First(&reloaded, member.ID).Error)
	assert.Equal(t, models.RiskRed, reloaded.RiskLevel)
	assert.Equal(t, 90, reloaded.RiskScore)

	var escalation models.Task
	require.NoError(t, f.db.Where("title = ?", "Escalate churn - Fabio Rocha").First(&escalation).Error)
	require.NotNil(t, escalation.AssignedToUserID)
	assert.Equal(t, owner.ID, *escalation.AssignedToUserID)
	assert.Equal(t, models.PriorityUrgent, escalation.Priority)
	assert.Equal(t, models.TaskTodo, escalation.Status)

	alerts := f.openAlerts(t, member.ID)
	require.Len(t, alerts, 1)
	assert.Equal(t, "d21", alerts[0].AutomationStage)
	assert.Equal(t, models.RiskRed, alerts[0].Level)
	assert.Equal(t, 60, alerts[0].Reasons.Data().InactivityPoints)
	assert.Equal(t, 18, alerts[0].Reasons.Data().NPSPoints)
	assert.Len(t, f.email.Sent, 2)
}

func TestRunDailyRiskProcessing_FiresStagesInOrder(t *testing.T) {
	f := newFixture(t)
	testutil.SeedStaff(t, f.db, f.gym.ID, "Gabi Owner", models.RoleOwner, testutil.Now.AddDate(-2, 0, 0))
	member := testutil.SeedMember(t, f.db, f.gym.ID, testutil.MemberOpts{
		Email:        "ana@example.com",
		InactiveDays: 25,
	})

	f.processor().RunDailyRiskProcessing(context.Background())

	alerts := f.openAlerts(t, member.ID)
	require.Len(t, alerts, 1)
	var stages, types []string
	for _, a := range alerts[0].ActionHistory {
		stages = append(stages, a.Stage)
		types = append(types, a.Type)
	}
	assert.Equal(t, []string{"d3", "d7", "d10", "d14", "d21"}, stages)
	assert.Equal(t, []string{"email", "task", "email", "in_app_notification", "manager_alert"}, types)
	assert.Equal(t, int64(5), f.count(t, &models.IdempotencyRecord{}))
}

func TestRunDailyRiskProcessing_SecondRunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	testutil.SeedStaff(t, f.db, f.gym.ID, "Gabi Owner", models.RoleOwner, testutil.Now.AddDate(-2, 0, 0))
	member := testutil.SeedMember(t, f.db, f.gym.ID, testutil.MemberOpts{
		Email:        "ana@example.com",
		InactiveDays: 22,
		NPS:          testutil.Int(3),
	})
	pub := &recordingPublisher{}
	p := f.processor(WithPublisher(pub))

	first := p.RunDailyRiskProcessing(context.Background())
	second := p.RunDailyRiskProcessing(context.Background())

	assert.Equal(t, 5, first.AutomationsTriggered)
	assert.Equal(t, 0, second.AutomationsTriggered)
	assert.Equal(t, 1, second.AlertsProcessed)

	assert.Len(t, f.openAlerts(t, member.ID), 1)
	assert.Equal(t, int64(5), f.count(t, &models.IdempotencyRecord{}))
	assert.Equal(t, int64(2), f.count(t, &models.Task{}))
	assert.Equal(t, int64(1), f.count(t, &models.Notification{}))
	assert.Len(t, f.email.Sent, 2)

	require.Len(t, pub.events, 2)
	assert.Equal(t, EventAlertCreated, pub.events[0].Type)
	assert.Equal(t, EventAlertUpdated, pub.events[1].Type)
	assert.Equal(t, pub.events[0].AlertID, pub.events[1].AlertID)
}

func TestRunDailyRiskProcessing_LoyalMemberStaysGreen(t *testing.T) {
	f := newFixture(t)
	member := testutil.SeedMember(t, f.db, f.gym.ID, testutil.MemberOpts{
		Email:         "loyal@example.com",
		LoyaltyMonths: 36,
	})
	days := make([]int, 0, 27)
	for d := 1; d <= 27; d++ {
		days = append(days, d)
	}
	testutil.SeedCheckins(t, f.db, member, 7, days...)

	summary := f.processor().RunDailyRiskProcessing(context.Background())

	assert.Equal(t, 1, summary.MembersAnalyzed)
	assert.Zero(t, summary.AlertsProcessed)
	assert.Zero(t, summary.AutomationsTriggered)

	var reloaded models.Member
	require.NoError(t, f.db.First(&reloaded, member.ID).Error)
	assert.Equal(t, models.RiskGreen, reloaded.RiskLevel)
	assert.Zero(t, reloaded.RiskScore)
	assert.Zero(t, f.count(t, &models.RiskAlert{}))
	assert.Zero(t, f.count(t, &models.IdempotencyRecord{}))
	assert.Empty(t, f.email.Sent)
}

func TestRunDailyRiskProcessing_FailedEmailIsRetriedNextCycle(t *testing.T) {
	f := newFixture(t)
	member := testutil.SeedMember(t, f.db, f.gym.ID, testutil.MemberOpts{
		Email:        "retry@example.com",
		InactiveDays: 4,
		NPS:          testutil.Int(3),
	})
	f.email.Fail = testutil.ErrTransport
	p := f.processor()

	first := p.RunDailyRiskProcessing(context.Background())
	assert.Equal(t, 0, first.AutomationsTriggered)
	assert.Equal(t, 1, first.AlertsProcessed)
	assert.Zero(t, f.count(t, &models.IdempotencyRecord{}))

	var failed models.MessageLog
	require.NoError(t, f.db.Where("member_id = ?", member.ID).First(&failed).Error)
	assert.Equal(t, models.MessageFailed, failed.Status)

	f.email.Fail = nil
	second := p.RunDailyRiskProcessing(context.Background())
	assert.Equal(t, 1, second.AutomationsTriggered)
	assert.Equal(t, 2, f.email.Attempts())
	assert.Len(t, f.email.Sent, 1)
	assert.Equal(t, int64(1), f.count(t, &models.IdempotencyRecord{}))

	alerts := f.openAlerts(t, member.ID)
	require.Len(t, alerts, 1)
	require.Len(t, alerts[0].ActionHistory, 2)
	assert.Equal(t, "failed", alerts[0].ActionHistory[0].Status)
	assert.Equal(t, "sent", alerts[0].ActionHistory[1].Status)
}

func TestRunDailyRiskProcessing_YellowMemberUpgradedAtFourteenDays(t *testing.T) {
	f := newFixture(t)
	member := testutil.SeedMember(t, f.db, f.gym.ID, testutil.MemberOpts{
		Email:         "yellow@example.com",
		InactiveDays:  14,
		LoyaltyMonths: 12,
	})

	f.processor().RunDailyRiskProcessing(context.Background())

	var reloaded models.Member
	require.NoError(t, f.db.First(&reloaded, member.ID).Error)
	assert.Equal(t, models.RiskRed, reloaded.RiskLevel)
	assert.Equal(t, 70, reloaded.RiskScore)

	var n models.Notification
	require.NoError(t, f.db.Where("member_id = ?", member.ID).First(&n).Error)
	assert.Equal(t, "retention", n.Category)
	assert.Equal(t, "red", n.ExtraData["risk_level"])

	alerts := f.openAlerts(t, member.ID)
	require.Len(t, alerts, 1)
	assert.Equal(t, 70, alerts[0].Score)
	assert.Equal(t, "d14", alerts[0].AutomationStage)
}

func TestRunDailyRiskProcessing_NoStaffStillRecordsLastStage(t *testing.T) {
	f := newFixture(t)
	inactive := testutil.SeedStaff(t, f.db, f.gym.ID, "Old Owner", models.RoleOwner, testutil.Now.AddDate(-4, 0, 0))
	require.NoError(t, f.db.Model(&inactive).Update("is_active", false).Error)
	member := testutil.SeedMember(t, f.db, f.gym.ID, testutil.MemberOpts{InactiveDays: 30})

	f.processor().RunDailyRiskProcessing(context.Background())

	var rec models.IdempotencyRecord
	require.NoError(t, f.db.Where("subject_id = ? AND action_key = ?", member.ID, "stage21").First(&rec).Error)

	alerts := f.openAlerts(t, member.ID)
	require.Len(t, alerts, 1)
	last := alerts[0].ActionHistory[len(alerts[0].ActionHistory)-1]
	assert.Equal(t, "manager_alert", last.Type)
	assert.Equal(t, "no_manager", last.Reason)

	var escalations int64
	require.NoError(t, f.db.Model(&models.Task{}).Where("title LIKE ?", "Escalate churn%").Count(&escalations).Error)
	assert.Zero(t, escalations)
}

type failingStaff struct{}

func (failingStaff) TopStaff(context.Context, *gorm.DB, uint) (*models.User, error) {
	return nil, errors.New("staff lookup timed out")
}

func TestRunDailyRiskProcessing_FailedStageKeepsEarlierStages(t *testing.T) {
	f := newFixture(t)
	member := testutil.SeedMember(t, f.db, f.gym.ID, testutil.MemberOpts{
		Email:        "ana@example.com",
		InactiveDays: 25,
	})

	summary := f.processor(WithStaffDirectory(failingStaff{})).RunDailyRiskProcessing(context.Background())

	assert.Equal(t, 1, summary.MembersAnalyzed)
	assert.Equal(t, 1, summary.AlertsProcessed)
	assert.Equal(t, 4, summary.AutomationsTriggered)
	assert.Equal(t, 1, summary.Errors)

	var logs []models.MessageLog
	require.NoError(t, f.db.Where("member_id = ?", member.ID).Find(&logs).Error)
	require.Len(t, logs, 2)
	for _, l := range logs {
		assert.Equal(t, models.MessageSent, l.Status)
	}
	assert.Len(t, f.email.Sent, 2)
	assert.Equal(t, int64(4), f.count(t, &models.IdempotencyRecord{}))

	alerts := f.openAlerts(t, member.ID)
	require.Len(t, alerts, 1)
	history := alerts[0].ActionHistory
	require.Len(t, history, 5)
	last := history[len(history)-1]
	assert.Equal(t, "manager_alert", last.Type)
	assert.Equal(t, "error", last.Status)
	assert.Contains(t, last.Reason, "staff lookup timed out")

	again := f.processor(WithStaffDirectory(failingStaff{})).RunDailyRiskProcessing(context.Background())
	assert.Equal(t, 1, again.Errors)
	assert.Zero(t, again.AutomationsTriggered)
	assert.Equal(t, 2, f.email.Attempts(), "delivered stages are not resent")
	assert.Equal(t, int64(2), f.count(t, &models.MessageLog{}))

	testutil.SeedStaff(t, f.db, f.gym.ID, "Gabi Owner", models.RoleOwner, testutil.Now.AddDate(-2, 0, 0))
	recovered := f.processor().RunDailyRiskProcessing(context.Background())
	assert.Zero(t, recovered.Errors)
	assert.Equal(t, 1, recovered.AutomationsTriggered)
	assert.Equal(t, int64(5), f.count(t, &models.IdempotencyRecord{}))
}

func TestRunDailyRiskProcessing_FailingMemberDoesNotStopOthers(t *testing.T) {
	f := newFixture(t)
	bad := testutil.SeedMember(t, f.db, f.gym.ID, testutil.MemberOpts{Name: "Bruno Broken", InactiveDays: 10})
	good := testutil.SeedMember(t, f.db, f.gym.ID, testutil.MemberOpts{Name: "Gina Good", InactiveDays: 10})
	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register("test:fail_alert", func(tx *gorm.DB) {
		if a, ok := tx.Statement.Dest.(*models.RiskAlert); ok && a.MemberID == bad.ID {
			_ = tx.AddError(errors.New("disk full"))
		}
	}))

	summary := f.processor().RunDailyRiskProcessing(context.Background())

	assert.Equal(t, 2, summary.MembersAnalyzed)
	assert.Equal(t, 1, summary.AlertsProcessed)
	assert.Equal(t, 1, summary.Errors)

	assert.Empty(t, f.openAlerts(t, bad.ID))
	assert.Len(t, f.openAlerts(t, good.ID), 1)

	var reloaded models.Member
	require.NoError(t, f.db.First(&reloaded, bad.ID).Error)
	assert.Zero(t, reloaded.RiskScore, "failed member is rolled back")

	var badTasks, badLedger int64
	require.NoError(t, f.db.Model(&models.Task{}).Where("member_id = ?", bad.ID).Count(&badTasks).Error)
	require.NoError(t, f.db.Model(&models.IdempotencyRecord{}).Where("subject_id = ?", bad.ID).Count(&badLedger).Error)
	assert.Zero(t, badTasks)
	assert.Zero(t, badLedger)

	require.NoError(t, f.db.First(&reloaded, good.ID).Error)
	assert.Equal(t, 42, reloaded.RiskScore)
}

func TestRunDailyRiskProcessing_SkipsCancelledMembers(t *testing.T) {
	f := newFixture(t)
	testutil.SeedMember(t, f.db, f.gym.ID, testutil.MemberOpts{InactiveDays: 30, Status: models.MemberCancelled})
	testutil.SeedMember(t, f.db, f.gym.ID, testutil.MemberOpts{Name: "Paused Pedro", InactiveDays: 1, Status: models.MemberPaused})

	summary := f.processor().RunDailyRiskProcessing(context.Background())

	assert.Equal(t, 1, summary.MembersAnalyzed)
}

func TestRunDailyRiskProcessing_CountsRuleResults(t *testing.T) {
	f := newFixture(t)
	rules := &stubRules{results: []automation.ExecutionResult{
		{Status: automation.StatusCreated},
		{Status: automation.StatusSent},
		{Status: automation.StatusSkipped},
		{Status: automation.StatusError},
	}}

	summary := f.processor(WithRules(rules)).RunDailyRiskProcessing(context.Background())

	assert.Equal(t, 1, rules.calls)
	assert.Equal(t, 2, summary.AutomationsTriggered)
}

func TestRunDailyRiskProcessing_StopsOnCancelledContext(t *testing.T) {
	f := newFixture(t)
	testutil.SeedMember(t, f.db, f.gym.ID, testutil.MemberOpts{InactiveDays: 30})
	rules := &stubRules{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary := f.processor(WithRules(rules)).RunDailyRiskProcessing(ctx)

	assert.Zero(t, summary.MembersAnalyzed)
	assert.Zero(t, rules.calls)
}

func TestResolveAlert_AppendsManualResolution(t *testing.T) {
	f := newFixture(t)
	member := testutil.SeedMember(t, f.db, f.gym.ID, testutil.MemberOpts{InactiveDays: 8, NPS: testutil.Int(2)})
	f.processor().RunDailyRiskProcessing(context.Background())
	alerts := f.openAlerts(t, member.ID)
	require.Len(t, alerts, 1)
	before := len(alerts[0].ActionHistory)

	userID := uint(42)
	resolvedAt := testutil.Now.Add(time.Hour)
	alert, err := ResolveAlert(context.Background(), f.db, f.gym.ID, alerts[0].ID, &userID, "member came back", resolvedAt)
	require.NoError(t, err)
	assert.True(t, alert.Resolved)
	require.Len(t, alert.ActionHistory, before+1)
	assert.Equal(t, "manual_resolution", alert.ActionHistory[before].Type)
	assert.Empty(t, f.openAlerts(t, member.ID))

	_, err = ResolveAlert(context.Background(), f.db, f.gym.ID+1, alerts[0].ID, &userID, "", resolvedAt)
	assert.ErrorIs(t, err, ErrAlertNotFound)
}
