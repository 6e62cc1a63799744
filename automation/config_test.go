package automation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"gympulse/models"
)

func TestParseTrigger(t *testing.T) {
	cases := []struct {
		name    string
		typ     models.TriggerType
		cfg     datatypes.JSONMap
		wantErr error
	}{
		{"risk level default", models.TriggerRiskLevelChange, nil, nil},
		{"risk level yellow", models.TriggerRiskLevelChange, datatypes.JSONMap{"level": "yellow"}, nil},
		{"risk level bogus", models.TriggerRiskLevelChange, datatypes.JSONMap{"level": "purple"}, ErrInvalidConfig},
		{"inactivity", models.TriggerInactivityDays, datatypes.JSONMap{"days": 10}, nil},
		{"inactivity zero", models.TriggerInactivityDays, datatypes.JSONMap{"days": 0}, ErrInvalidConfig},
		{"inactivity string", models.TriggerInactivityDays, datatypes.JSONMap{"days": "ten"}, ErrInvalidConfig},
		{"nps", models.TriggerNPSScore, datatypes.JSONMap{"max_score": 0}, nil},
		{"nps out of range", models.TriggerNPSScore, datatypes.JSONMap{"max_score": 11}, ErrInvalidConfig},
		{"birthday", models.TriggerBirthday, nil, nil},
		{"streak", models.TriggerCheckinStreak, datatypes.JSONMap{"days": 10, "min_days": 5}, nil},
		{"streak min above window", models.TriggerCheckinStreak, datatypes.JSONMap{"days": 5, "min_days": 6}, ErrInvalidConfig},
		{"lead stale", models.TriggerLeadStale, datatypes.JSONMap{"days": 3}, nil},
		{"unknown", models.TriggerType("weather"), nil, ErrUnknownTrigger},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			trig, err := ParseTrigger(c.typ, c.cfg)
			if c.wantErr != nil {
				assert.ErrorIs(t, err, c.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.typ, trig.Type())
		})
	}
}

func TestParseAction(t *testing.T) {
	cases := []struct {
		name    string
		typ     models.ActionType
		cfg     datatypes.JSONMap
		wantErr error
	}{
		{"task", models.ActionCreateTask, datatypes.JSONMap{"title": "Call {name}", "priority": "nonsense"}, nil},
		{"message template", models.ActionSendMessage, datatypes.JSONMap{"template": "risk_red"}, nil},
		{"message body", models.ActionSendMessage, datatypes.JSONMap{"body": "Hi {name}"}, nil},
		{"message empty", models.ActionSendMessage, datatypes.JSONMap{}, ErrInvalidConfig},
		{"message unknown template", models.ActionSendMessage, datatypes.JSONMap{"template": "nope"}, ErrInvalidConfig},
		{"message bad extra vars", models.ActionSendMessage, datatypes.JSONMap{"body": "x", "extra_vars": []string{"a"}}, ErrInvalidConfig},
		{"email", models.ActionSendEmail, datatypes.JSONMap{"subject": "s", "body": "b"}, nil},
		{"email without subject", models.ActionSendEmail, datatypes.JSONMap{"body": "b"}, ErrInvalidConfig},
		{"notify", models.ActionNotify, nil, nil},
		{"unknown", models.ActionType("fax"), nil, ErrUnknownAction},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			act, err := ParseAction(c.typ, c.cfg)
			if c.wantErr != nil {
				assert.ErrorIs(t, err, c.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.typ, act.Type())
		})
	}
}
