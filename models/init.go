package models

import "gorm.io/gorm"

// AutoMigrate creates or updates every table the engine reads or writes.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Gym{},
		&User{},
		&Member{},
		&Checkin{},
		&Lead{},
		&Task{},
		&Notification{},
		&RiskAlert{},
		&AutomationRule{},
		&MessageLog{},
		&IdempotencyRecord{},
	)
}
