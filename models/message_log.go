package models

import (
	"time"

	"gorm.io/datatypes"
)

// MessageLog is one outbound message attempt. Rows in pending or sent status
// also feed the per-recipient hourly rate limit.
type MessageLog struct {
	ID               uint  `gorm:"primarykey" json:"id"`
	GymID            uint  `gorm:"not null;index" json:"gym_id"`
	MemberID         *uint `gorm:"index" json:"member_id,omitempty"`
	AutomationRuleID *uint `json:"automation_rule_id,omitempty"`

	Channel      string            `gorm:"type:varchar(20);not null;index:ix_message_logs_window" json:"channel"`
	Recipient    string            `gorm:"not null;index:ix_message_logs_window" json:"recipient"`
	TemplateName string            `json:"template_name,omitempty"`
	Subject      string            `json:"subject,omitempty"`
	Content      string            `gorm:"type:text;not null" json:"content"`
	Status       MessageStatus     `gorm:"type:varchar(20);not null;index" json:"status"`
	ErrorDetail  string            `gorm:"type:text" json:"error_detail,omitempty"`
	ExtraData    datatypes.JSONMap `json:"extra_data,omitempty"`
	CreatedAt    time.Time         `gorm:"index:ix_message_logs_window" json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}
