package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RiskReasons is the scoring breakdown stored on an alert for auditability.
type RiskReasons struct {
	InactivityPoints   int     `json:"inactivity_points"`
	FrequencyPoints    int     `json:"frequency_points"`
	FrequencyDropPct   float64 `json:"frequency_drop_pct"`
	ShiftPoints        int     `json:"shift_points"`
	ShiftChangeHours   int     `json:"shift_change_hours"`
	NPSPoints          int     `json:"nps_points"`
	LoyaltyDiscount    int     `json:"loyalty_discount"`
	DaysWithoutCheckin int     `json:"days_without_checkin"`
}

// ActionRecord is one entry of an alert's action history.
type ActionRecord struct {
	Type           string    `json:"type"` // email, task, in_app_notification, manager_alert, manual_resolution
	Stage          string    `json:"stage,omitempty"`
	Status         string    `json:"status,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	Message        string    `json:"message,omitempty"`
	TaskID         *uint     `json:"task_id,omitempty"`
	NotificationID *uint     `json:"notification_id,omitempty"`
	MessageLogID   *uint     `json:"message_log_id,omitempty"`
	UserID         *uint     `json:"user_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// RiskAlert is the open record of a member's current risk state. There is at
// most one unresolved alert per member.
type RiskAlert struct {
	gorm.Model
	GymID    uint `gorm:"not null;index" json:"gym_id"`
	MemberID uint `gorm:"not null;index" json:"member_id"`

	Score           int                               `gorm:"not null" json:"score"`
	Level           RiskLevel                         `gorm:"type:varchar(16);not null;index" json:"level"`
	Reasons         datatypes.JSONType[RiskReasons]   `json:"reasons"`
	ActionHistory   datatypes.JSONSlice[ActionRecord] `json:"action_history"`
	AutomationStage string                            `gorm:"type:varchar(32)" json:"automation_stage"`

	Resolved         bool       `gorm:"default:false;index" json:"resolved"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	ResolvedByUserID *uint      `json:"resolved_by_user_id,omitempty"`
}
