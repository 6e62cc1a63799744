package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"gympulse/models"
)

const (
	EventAlertCreated = "risk_alert_created"
	EventAlertUpdated = "risk_alert_updated"
)

// AlertEvent is pushed to staff dashboards after an alert changed.
type AlertEvent struct {
	Type     string           `json:"type"`
	GymID    uint             `json:"gym_id"`
	AlertID  uint             `json:"alert_id"`
	MemberID uint             `json:"member_id"`
	Member   string           `json:"member_name"`
	Score    int              `json:"score"`
	Level    models.RiskLevel `json:"level"`
	Stage    string           `json:"automation_stage"`
}

// AlertPublisher receives alert events once the member's transaction committed.
type AlertPublisher interface {
	Publish(ctx context.Context, event AlertEvent)
}

// ErrAlertNotFound is returned by ResolveAlert for unknown or foreign alerts.
var ErrAlertNotFound = errors.New("risk alert not found")

// upsertAlert folds a scoring pass into the member's open alert, creating it
// when none is open. History is only ever appended to.
func upsertAlert(ctx context.Context, tx *gorm.DB, m *models.Member, res Result, actions []models.ActionRecord) (*models.RiskAlert, bool, error) {
	var alert models.RiskAlert
	err := tx.WithContext(ctx).
		Scopes(models.ForGym(m.GymID)).
		Where("member_id = ? AND resolved = ?", m.ID, false).
		Order("id DESC").
		First(&alert).Error

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		history := make(datatypes.JSONSlice[models.ActionRecord], 0, len(actions))
		alert = models.RiskAlert{
			GymID:           m.GymID,
			MemberID:        m.ID,
			Score:           m.RiskScore,
			Level:           m.RiskLevel,
			Reasons:         datatypes.NewJSONType(res.Reasons),
			ActionHistory:   append(history, actions...),
			AutomationStage: StageLabel(res.DaysWithoutCheckin),
		}
		if err := tx.WithContext(ctx).Create(&alert).Error; err != nil {
			return nil, false, fmt.Errorf("create alert for member %d: %w", m.ID, err)
		}
		return &alert, true, nil
	case err != nil:
		return nil, false, fmt.Errorf("lookup open alert for member %d: %w", m.ID, err)
	}

	alert.Score = m.RiskScore
	alert.Level = m.RiskLevel
	alert.Reasons = datatypes.NewJSONType(res.Reasons)
	alert.ActionHistory = append(alert.ActionHistory, actions...)
	alert.AutomationStage = StageLabel(res.DaysWithoutCheckin)
	if err := tx.WithContext(ctx).Save(&alert).Error; err != nil {
		return nil, false, fmt.Errorf("update alert %d: %w", alert.ID, err)
	}
	return &alert, false, nil
}

// ResolveAlert closes an open alert and appends a manual_resolution entry.
// Resolving an already resolved alert returns it unchanged.
func ResolveAlert(ctx context.Context, db *gorm.DB, gymID, alertID uint, userID *uint, note string, now time.Time) (*models.RiskAlert, error) {
	var alert models.RiskAlert
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Scopes(models.ForGym(gymID)).First(&alert, alertID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAlertNotFound
		}
		if err != nil {
			return fmt.Errorf("load alert %d: %w", alertID, err)
		}
		if alert.Resolved {
			return nil
		}

		resolvedAt := now.UTC()
		alert.Resolved = true
		alert.ResolvedAt = &resolvedAt
		alert.ResolvedByUserID = userID
		alert.ActionHistory = append(alert.ActionHistory, models.ActionRecord{
			Type:      "manual_resolution",
			Status:    "resolved",
			Message:   note,
			UserID:    userID,
			Timestamp: resolvedAt,
		})
		return tx.Save(&alert).Error
	})
	if err != nil {
		return nil, err
	}
	return &alert, nil
}
