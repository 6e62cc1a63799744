package models

import "gorm.io/gorm"

// User is a staff account. Authentication lives elsewhere; the engine only
// needs role and activity to pick escalation targets.
type User struct {
	gorm.Model
	GymID    uint     `gorm:"not null;index" json:"gym_id"`
	FullName string   `gorm:"not null" json:"full_name"`
	Email    string   `gorm:"not null;index" json:"email"`
	Role     RoleEnum `gorm:"type:varchar(24);not null;index" json:"role"`
	IsActive bool     `gorm:"default:true" json:"is_active"`
}
