package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"gympulse/dispatch"
	"gympulse/models"
	"gympulse/testutil"
)

func newRunner(t *testing.T, db *gorm.DB, locker Locker) *Runner {
	t.Helper()
	logger, _ := testutil.NullLogger()
	email := testutil.NewFakeChannel(models.ChannelEmail)
	d := dispatch.Dispatchers{
		Tasks:         dispatch.NewTaskDispatcher(),
		Messages:      dispatch.NewMessageDispatcher(logger, []dispatch.Channel{email}, dispatch.WithClock(testutil.Clock)),
		Notifications: dispatch.NewNotificationDispatcher(),
	}
	return NewRunner(db, d, logger, WithLocker(locker), WithClock(testutil.Clock))
}

func seedGyms(t *testing.T, db *gorm.DB) (models.Gym, models.Gym) {
	t.Helper()
	a := testutil.SeedGym(t, db)
	b := testutil.SeedGym(t, db)
	closed := testutil.SeedGym(t, db)
	require.NoError(t, db.Model(&closed).Update("is_active", false).Error)
	testutil.SeedMember(t, db, closed.ID, testutil.MemberOpts{InactiveDays: 30})
	return a, b
}

func TestRiskWorker_RunOnceCoversActiveGyms(t *testing.T) {
	db := testutil.NewDB(t)
	a, b := seedGyms(t, db)
	testutil.SeedMember(t, db, a.ID, testutil.MemberOpts{InactiveDays: 10})
	testutil.SeedMember(t, db, b.ID, testutil.MemberOpts{InactiveDays: 1})
	testutil.SeedMember(t, db, b.ID, testutil.MemberOpts{Name: "Second", InactiveDays: 2})
	logger, _ := testutil.NullLogger()

	w := NewRiskWorker(db, newRunner(t, db, NewLocalLocker()), time.Hour, 2, logger)
	out := w.RunOnce(context.Background())

	require.Len(t, out, 2)
	assert.Equal(t, 1, out[a.ID].MembersAnalyzed)
	assert.Equal(t, 1, out[a.ID].AlertsProcessed)
	assert.Equal(t, 2, out[b.ID].MembersAnalyzed)
}

func TestRiskWorker_SkipsLockedGym(t *testing.T) {
	db := testutil.NewDB(t)
	a, b := seedGyms(t, db)
	locker := NewLocalLocker()
	release, err := locker.Acquire(context.Background(), "gympulse:run:1", time.Minute)
	require.NoError(t, err)
	defer release()
	require.Equal(t, uint(1), a.ID)
	logger, _ := testutil.NullLogger()

	out := NewRiskWorker(db, newRunner(t, db, locker), time.Hour, 2, logger).RunOnce(context.Background())

	require.Len(t, out, 1)
	_, ok := out[b.ID]
	assert.True(t, ok)
}

func TestAutomationWorker_RunOnce(t *testing.T) {
	db := testutil.NewDB(t)
	a, b := seedGyms(t, db)
	testutil.SeedMember(t, db, a.ID, testutil.MemberOpts{InactiveDays: 5})
	rule := models.AutomationRule{
		GymID:         a.ID,
		Name:          "3 days inactive",
		TriggerType:   models.TriggerInactivityDays,
		TriggerConfig: datatypes.JSONMap{"days": 3},
		ActionType:    models.ActionNotify,
		IsActive:      true,
	}
	require.NoError(t, db.Create(&rule).Error)
	logger, _ := testutil.NullLogger()

	out := NewAutomationWorker(db, newRunner(t, db, NewLocalLocker()), time.Hour, 1, logger).RunOnce(context.Background())

	require.Len(t, out[a.ID], 1)
	assert.True(t, out[a.ID][0].Triggered())
	assert.Empty(t, out[b.ID])
}

func TestEvery_RunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	done := make(chan struct{})
	go func() {
		every(ctx, 0, 5*time.Millisecond, func(context.Context) {
			if atomic.AddInt32(&calls, 1) == 3 {
				cancel()
			}
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("every did not stop after cancel")
	}
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(3))
}
