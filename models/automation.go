package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TriggerType selects the population a rule applies to.
type TriggerType string

const (
	TriggerRiskLevelChange TriggerType = "risk_level_change"
	TriggerInactivityDays  TriggerType = "inactivity_days"
	TriggerNPSScore        TriggerType = "nps_score"
	TriggerLeadStale       TriggerType = "lead_stale"
	TriggerBirthday        TriggerType = "birthday"
	TriggerCheckinStreak   TriggerType = "checkin_streak"
)

// ActionType is the outbound effect a rule performs for each matched subject.
type ActionType string

const (
	ActionCreateTask  ActionType = "create_task"
	ActionSendMessage ActionType = "send_message"
	ActionSendEmail   ActionType = "send_email"
	ActionNotify      ActionType = "notify"
)

// AutomationRule is a user-defined trigger -> action pair. The engine only
// writes ExecutionsCount and LastExecutedAt.
type AutomationRule struct {
	gorm.Model
	GymID       uint   `gorm:"not null;index:ix_automation_rules_gym_active" json:"gym_id"`
	Name        string `gorm:"not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`

	TriggerType   TriggerType       `gorm:"type:varchar(40);not null" json:"trigger_type"`
	TriggerConfig datatypes.JSONMap `json:"trigger_config"`
	ActionType    ActionType        `gorm:"type:varchar(40);not null" json:"action_type"`
	ActionConfig  datatypes.JSONMap `json:"action_config"`

	IsActive        bool       `gorm:"default:true;index:ix_automation_rules_gym_active" json:"is_active"`
	ExecutionsCount int        `gorm:"default:0" json:"executions_count"`
	LastExecutedAt  *time.Time `json:"last_executed_at,omitempty"`
}
