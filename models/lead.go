package models

import (
	"time"

	"gorm.io/gorm"
)

// Lead is a prospect in the sales pipeline.
type Lead struct {
	gorm.Model
	GymID   uint  `gorm:"not null;index" json:"gym_id"`
	OwnerID *uint `gorm:"index" json:"owner_id,omitempty"`

	FullName string    `gorm:"not null" json:"full_name"`
	Email    string    `gorm:"index" json:"email"`
	Phone    string    `json:"phone"`
	Source   string    `json:"source"`
	Stage    LeadStage `gorm:"type:varchar(16);default:'new';index" json:"stage"`

	LastContactAt *time.Time `gorm:"index" json:"last_contact_at,omitempty"`
}

// IsTerminal reports whether the lead left the pipeline.
func (l Lead) IsTerminal() bool {
	return l.Stage == LeadWon || l.Stage == LeadLost
}
