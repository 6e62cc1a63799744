package models

import "gorm.io/gorm"

// Gym is the tenant. Every other table is scoped by gym_id.
type Gym struct {
	gorm.Model
	Name     string `gorm:"not null" json:"name"`
	IsActive bool   `gorm:"default:true" json:"is_active"`
}

// ForGym scopes a query to a single tenant.
func ForGym(gymID uint) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("gym_id = ?", gymID)
	}
}
