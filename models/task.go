package models

import (
	"time"

	"gorm.io/gorm"
)

// Task is a to-do item for staff, usually about a member or a lead.
type Task struct {
	gorm.Model
	GymID            uint  `gorm:"not null;index" json:"gym_id"`
	MemberID         *uint `gorm:"index" json:"member_id,omitempty"`
	LeadID           *uint `gorm:"index" json:"lead_id,omitempty"`
	AssignedToUserID *uint `gorm:"index" json:"assigned_to_user_id,omitempty"`

	Title            string       `gorm:"not null" json:"title"`
	Description      string       `gorm:"type:text" json:"description"`
	Priority         TaskPriority `gorm:"type:varchar(16);default:'medium'" json:"priority"`
	Status           TaskStatus   `gorm:"type:varchar(16);default:'todo';index" json:"status"`
	SuggestedMessage string       `gorm:"type:text" json:"suggested_message,omitempty"`
	DueDate          *time.Time   `json:"due_date,omitempty"`
	CompletedAt      *time.Time   `json:"completed_at,omitempty"`
}
