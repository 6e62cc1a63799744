package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_RequiresSecrets(t *testing.T) {
	t.Setenv("DB_PASSWORD", "")
	t.Setenv("JWT_SECRET", "secret")
	assert.EqualError(t, LoadConfig(), "DB_PASSWORD is required")

	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("JWT_SECRET", "")
	assert.EqualError(t, LoadConfig(), "JWT_SECRET is required")
}

func TestLoadConfig_ParsesTypedValues(t *testing.T) {
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("RISK_INTERVAL", "6h")
	t.Setenv("AUTOMATION_INTERVAL", "not-a-duration")
	t.Setenv("MESSAGE_RATE_LIMIT_PER_HOUR", "3")
	t.Setenv("SMTP_PORT", "465")

	require.NoError(t, LoadConfig())
	assert.True(t, AppConfig.Redis.Enabled)
	assert.Equal(t, 6*time.Hour, AppConfig.RiskInterval)
	assert.Equal(t, time.Hour, AppConfig.AutomationInterval)
	assert.Equal(t, 3, AppConfig.MessageRateLimitPerHour)
	assert.Equal(t, 465, AppConfig.SMTP.Port)
}

func TestMaskPassword(t *testing.T) {
	assert.Equal(t, "host=db password=***** dbname=x", maskPassword("host=db password=hunter2 dbname=x"))
	assert.Equal(t, "host=db password=*****", maskPassword("host=db password=hunter2"))
	assert.Equal(t, "host=db", maskPassword("host=db"))
}
