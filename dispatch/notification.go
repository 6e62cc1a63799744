package dispatch

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"gympulse/models"
)

type NotificationSpec struct {
	GymID     uint
	MemberID  *uint
	UserID    *uint
	Title     string
	Message   string
	Category  string
	ExtraData map[string]interface{}
}

// NotificationDispatcher writes in-app notifications. It has no idempotency:
// every call creates a row.
type NotificationDispatcher struct{}

func NewNotificationDispatcher() *NotificationDispatcher {
	return &NotificationDispatcher{}
}

func (d *NotificationDispatcher) Create(ctx context.Context, tx *gorm.DB, spec NotificationSpec) (*models.Notification, error) {
	category := spec.Category
	if category == "" {
		category = "retention"
	}
	extra := spec.ExtraData
	if extra == nil {
		extra = map[string]interface{}{}
	}
	n := models.Notification{
		GymID:     spec.GymID,
		MemberID:  spec.MemberID,
		UserID:    spec.UserID,
		Title:     spec.Title,
		Message:   spec.Message,
		Category:  category,
		ExtraData: extra,
	}
	if err := tx.WithContext(ctx).Create(&n).Error; err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	return &n, nil
}
