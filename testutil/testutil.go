// Package testutil holds fixtures shared by package tests: an in-memory
// SQLite database with the full schema, seed helpers and a fake channel.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gympulse/models"
)

// Now is the fixed clock used across tests.
var Now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func Clock() time.Time { return Now }

// NewDB opens a per-test in-memory database and migrates every model.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, models.AutoMigrate(db))
	return db
}

// NullLogger discards output but keeps entries for assertions.
func NullLogger() (*logrus.Logger, *logtest.Hook) {
	return logtest.NewNullLogger()
}

func SeedGym(t *testing.T, db *gorm.DB) models.Gym {
	t.Helper()
	gym := models.Gym{Name: "Iron Temple", IsActive: true}
	require.NoError(t, db.Create(&gym).Error)
	return gym
}

func SeedStaff(t *testing.T, db *gorm.DB, gymID uint, name string, role models.RoleEnum, createdAt time.Time) models.User {
	t.Helper()
	u := models.User{
		GymID:    gymID,
		FullName: name,
		Email:    strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@gym.test",
		Role:     role,
		IsActive: true,
	}
	u.CreatedAt = createdAt
	require.NoError(t, db.Create(&u).Error)
	return u
}

// MemberOpts tunes SeedMember. Zero values give an active member with NPS 9
// who joined a year ago and never checked in.
type MemberOpts struct {
	Name          string
	Email         string
	Phone         string
	Status        models.MemberStatus
	InactiveDays  int
	NeverCheckin  bool
	NPS           *int
	LoyaltyMonths int
	RiskScore     int
	RiskLevel     models.RiskLevel
	DateOfBirth   *time.Time
}

func SeedMember(t *testing.T, db *gorm.DB, gymID uint, o MemberOpts) models.Member {
	t.Helper()
	if o.Name == "" {
		o.Name = "Ana Souza"
	}
	if o.Status == "" {
		o.Status = models.MemberActive
	}
	if o.RiskLevel == "" {
		o.RiskLevel = models.RiskGreen
	}
	nps := 9
	if o.NPS != nil {
		nps = *o.NPS
	}
	m := models.Member{
		GymID:         gymID,
		FullName:      o.Name,
		Email:         o.Email,
		Phone:         o.Phone,
		PlanName:      "Gold",
		Status:        o.Status,
		JoinDate:      Now.AddDate(-1, 0, 0),
		DateOfBirth:   o.DateOfBirth,
		NPSLastScore:  nps,
		LoyaltyMonths: o.LoyaltyMonths,
		RiskScore:     o.RiskScore,
		RiskLevel:     o.RiskLevel,
	}
	if !o.NeverCheckin {
		last := Now.Add(-time.Duration(o.InactiveDays)*24*time.Hour - time.Hour)
		m.LastCheckinAt = &last
	}
	require.NoError(t, db.Create(&m).Error)
	return m
}

// SeedCheckins inserts one check-in per entry of daysAgo at the given hour.
func SeedCheckins(t *testing.T, db *gorm.DB, m models.Member, hour int, daysAgo ...int) {
	t.Helper()
	for _, d := range daysAgo {
		day := Now.AddDate(0, 0, -d)
		at := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, time.UTC)
		c := models.Checkin{GymID: m.GymID, MemberID: m.ID, CheckinAt: at, HourBucket: hour}
		require.NoError(t, db.Create(&c).Error)
	}
}

func Int(v int) *int { return &v }

// SentMessage is a call recorded by FakeChannel.
type SentMessage struct {
	Recipient string
	Subject   string
	Body      string
}

// FakeChannel records sends. Set Fail to make every send return an error.
type FakeChannel struct {
	ChannelName  string
	Unconfigured bool
	Fail         error

	mu       sync.Mutex
	Sent     []SentMessage
	attempts int
}

func NewFakeChannel(name string) *FakeChannel {
	return &FakeChannel{ChannelName: name}
}

func (f *FakeChannel) Name() string     { return f.ChannelName }
func (f *FakeChannel) Configured() bool { return !f.Unconfigured }

func (f *FakeChannel) Send(_ context.Context, recipient, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.Fail != nil {
		return f.Fail
	}
	f.Sent = append(f.Sent, SentMessage{Recipient: recipient, Subject: subject, Body: body})
	return nil
}

// Attempts counts every Send call, failed ones included.
func (f *FakeChannel) Attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

var ErrTransport = errors.New("dial tcp: connection refused")
