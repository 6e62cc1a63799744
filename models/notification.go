package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Notification is an in-app message for staff. A nil UserID means everyone
// in the gym can see it.
type Notification struct {
	gorm.Model
	GymID    uint  `gorm:"not null;index" json:"gym_id"`
	MemberID *uint `gorm:"index" json:"member_id,omitempty"`
	UserID   *uint `gorm:"index" json:"user_id,omitempty"`

	Title     string            `gorm:"not null" json:"title"`
	Message   string            `gorm:"type:text" json:"message"`
	Category  string            `gorm:"default:'retention'" json:"category"`
	ExtraData datatypes.JSONMap `json:"extra_data"`
	ReadAt    *time.Time        `json:"read_at,omitempty"`
}
