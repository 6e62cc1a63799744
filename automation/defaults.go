package automation

import (
	"context"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"gympulse/models"
)

// DefaultRules is the starter set given to a gym without rules.
func DefaultRules(gymID uint) []models.AutomationRule {
	return []models.AutomationRule{
		{
			GymID:         gymID,
			Name:          "Red risk - WhatsApp",
			Description:   "Sends a WhatsApp message when a member reaches red risk.",
			TriggerType:   models.TriggerRiskLevelChange,
			TriggerConfig: datatypes.JSONMap{"level": "red"},
			ActionType:    models.ActionSendMessage,
			ActionConfig:  datatypes.JSONMap{"template": "risk_red"},
			IsActive:      true,
		},
		{
			GymID:         gymID,
			Name:          "Yellow risk - call task",
			Description:   "Creates a call task for members at yellow risk.",
			TriggerType:   models.TriggerRiskLevelChange,
			TriggerConfig: datatypes.JSONMap{"level": "yellow"},
			ActionType:    models.ActionCreateTask,
			ActionConfig: datatypes.JSONMap{
				"title":             "Call {name} - yellow risk",
				"description":       "Member at yellow risk (score {score}). Check how training is going.",
				"priority":          "medium",
				"suggested_message": "Hi {name}, how is your training going? Anything we can adjust on your {plan} plan?",
			},
			IsActive: true,
		},
		{
			GymID:         gymID,
			Name:          "7 days inactive - WhatsApp",
			Description:   "Re-engagement message after a week without training.",
			TriggerType:   models.TriggerInactivityDays,
			TriggerConfig: datatypes.JSONMap{"days": 7},
			ActionType:    models.ActionSendMessage,
			ActionConfig:  datatypes.JSONMap{"template": "reengagement_7d"},
			IsActive:      true,
		},
		{
			GymID:         gymID,
			Name:          "Low NPS - follow-up",
			Description:   "Creates a follow-up task for detractors.",
			TriggerType:   models.TriggerNPSScore,
			TriggerConfig: datatypes.JSONMap{"max_score": 6},
			ActionType:    models.ActionCreateTask,
			ActionConfig: datatypes.JSONMap{
				"title":             "NPS follow-up - {name}",
				"description":       "Member answered NPS {nps}. Understand what went wrong.",
				"priority":          "high",
				"suggested_message": "Hi {name}, thanks for your feedback. Can we talk about how to improve your experience?",
			},
			IsActive: true,
		},
		{
			GymID:         gymID,
			Name:          "3 days inactive - notify",
			Description:   "Warns the team about members starting to drift.",
			TriggerType:   models.TriggerInactivityDays,
			TriggerConfig: datatypes.JSONMap{"days": 3},
			ActionType:    models.ActionNotify,
			ActionConfig: datatypes.JSONMap{
				"title":    "{name} has not trained for {days} days",
				"message":  "Consider reaching out before the member drifts away.",
				"category": "retention",
			},
			IsActive: true,
		},
	}
}

// SeedDefaultRules inserts DefaultRules unless the gym already has any rule.
// It returns the rules it created.
func SeedDefaultRules(ctx context.Context, db *gorm.DB, gymID uint) ([]models.AutomationRule, error) {
	var existing int64
	err := db.WithContext(ctx).
		Model(&models.AutomationRule{}).
		Scopes(models.ForGym(gymID)).
		Count(&existing).Error
	if err != nil {
		return nil, fmt.Errorf("count rules for gym %d: %w", gymID, err)
	}
	if existing > 0 {
		return nil, nil
	}

	rules := DefaultRules(gymID)
	if err := db.WithContext(ctx).Create(&rules).Error; err != nil {
		return nil, fmt.Errorf("seed rules for gym %d: %w", gymID, err)
	}
	return rules, nil
}
