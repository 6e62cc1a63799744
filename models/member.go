package models

import (
	"time"

	"gorm.io/gorm"
)

// Member is a gym customer whose retention risk the engine tracks.
type Member struct {
	gorm.Model
	GymID          uint  `gorm:"not null;index" json:"gym_id"`
	AssignedUserID *uint `gorm:"index" json:"assigned_user_id,omitempty"`

	FullName string `gorm:"not null" json:"full_name"`
	Email    string `gorm:"index" json:"email"`
	Phone    string `json:"phone"`
	PlanName string `gorm:"default:'Base Plan'" json:"plan_name"`

	Status      MemberStatus `gorm:"type:varchar(16);default:'active';index" json:"status"`
	JoinDate    time.Time    `gorm:"not null" json:"join_date"`
	DateOfBirth *time.Time   `json:"date_of_birth,omitempty"`

	NPSLastScore  int        `gorm:"default:7" json:"nps_last_score"`
	LoyaltyMonths int        `gorm:"default:0" json:"loyalty_months"`
	RiskScore     int        `gorm:"default:0" json:"risk_score"`
	RiskLevel     RiskLevel  `gorm:"type:varchar(16);default:'green';index" json:"risk_level"`
	LastCheckinAt *time.Time `gorm:"index" json:"last_checkin_at,omitempty"`
}

// DaysWithoutCheckin counts whole days since the last check-in, or since the
// join date for members who never checked in.
func (m Member) DaysWithoutCheckin(now time.Time) int {
	var ref time.Time
	if m.LastCheckinAt != nil {
		ref = m.LastCheckinAt.UTC()
	} else {
		j := m.JoinDate.UTC()
		ref = time.Date(j.Year(), j.Month(), j.Day(), 0, 0, 0, 0, time.UTC)
	}
	days := int(now.UTC().Sub(ref).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// Checkin is a single gym visit. HourBucket is the local hour of the visit (0-23).
type Checkin struct {
	gorm.Model
	GymID      uint      `gorm:"not null;index" json:"gym_id"`
	MemberID   uint      `gorm:"not null;index" json:"member_id"`
	CheckinAt  time.Time `gorm:"not null;index" json:"checkin_at"`
	HourBucket int       `gorm:"not null" json:"hour_bucket"`
	Source     string    `gorm:"default:'turnstile'" json:"source"`
}
