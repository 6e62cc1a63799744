package models

import (
	"time"

	"gorm.io/datatypes"
)

// IdempotencyRecord marks that an action keyed by Key already ran for a
// subject. Rows are never updated or deleted.
type IdempotencyRecord struct {
	ID        uint              `gorm:"primarykey" json:"id"`
	GymID     uint              `gorm:"not null;uniqueIndex:ux_idempotency_subject_key" json:"gym_id"`
	SubjectID uint              `gorm:"not null;uniqueIndex:ux_idempotency_subject_key" json:"subject_id"`
	Key       string            `gorm:"column:action_key;type:varchar(64);not null;uniqueIndex:ux_idempotency_subject_key" json:"key"`
	Metadata  datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
