package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *ProductionConfig {
	return &ProductionConfig{
		Database: DatabaseConfig{Host: "localhost", Port: 5432, Name: "wapool", User: "wapool", Password: "secret"},
		Server:   ServerConfig{Port: 8080, ReadTimeout: time.Second, WriteTimeout: time.Second},
		JWT: JWTConfig{
			SecretKey:      strings.Repeat("k", 32),
			AccessTokenTTL: time.Hour,
			Issuer:         "wa-pool",
			Audience:       "wa-pool-api",
		},
		Gateway:   GatewayConfig{Provider: "mock", Timeout: time.Second, RateLimit: 5, RateBurst: 5},
		Pool:      PoolConfig{TargetSize: 10, RefillThreshold: 5, AssignAttempts: 3, RefillQueueSize: 4, MaintenanceCron: "*/5 * * * *"},
		Scheduler: SchedulerConfig{StatusCheckInterval: time.Minute, StatusCheckBatch: 100},
		Logging:   LoggingConfig{Level: "info", Output: "stdout"},
		Cache:     CacheConfig{Enabled: false},
	}
}

func TestValidateProductionConfig(t *testing.T) {
	require.NoError(t, ValidateProductionConfig(validConfig()))

	tests := []struct {
		name   string
		mutate func(*ProductionConfig)
		want   string
	}{
		{"threshold above target", func(c *ProductionConfig) { c.Pool.RefillThreshold = 11 }, "POOL_REFILL_THRESHOLD"},
		{"no assign attempts", func(c *ProductionConfig) { c.Pool.AssignAttempts = 0 }, "POOL_ASSIGN_ATTEMPTS"},
		{"bad cron", func(c *ProductionConfig) { c.Pool.MaintenanceCron = "every minute" }, "POOL_MAINTENANCE_CRON"},
		{"waha without url", func(c *ProductionConfig) { c.Gateway.Provider = "waha" }, "GATEWAY_BASE_URL"},
		{"unknown provider", func(c *ProductionConfig) { c.Gateway.Provider = "twilio" }, "GATEWAY_PROVIDER"},
		{"short jwt secret", func(c *ProductionConfig) { c.JWT.SecretKey = "short" }, "JWT_SECRET_KEY"},
		{"bad log level", func(c *ProductionConfig) { c.Logging.Level = "trace" }, "LOG_LEVEL"},
		{"file log without path", func(c *ProductionConfig) { c.Logging.Output = "file" }, "LOG_FILE_PATH"},
		{"redis without url", func(c *ProductionConfig) {
			c.Cache = CacheConfig{Enabled: true, Provider: "redis"}
		}, "CACHE_REDIS_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := ValidateProductionConfig(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateProductionConfig_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Host = ""
	cfg.Pool.AssignAttempts = 0

	err := ValidateProductionConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_HOST")
	assert.Contains(t, err.Error(), "POOL_ASSIGN_ATTEMPTS")
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("WAPOOL_TEST_INT", "42")
	t.Setenv("WAPOOL_TEST_BAD_INT", "forty")
	t.Setenv("WAPOOL_TEST_DUR", "90s")
	t.Setenv("WAPOOL_TEST_SLICE", " a, ,b ")
	t.Setenv("WAPOOL_TEST_FLOAT", "2.5")

	assert.Equal(t, 42, getEnvInt("WAPOOL_TEST_INT", 1))
	assert.Equal(t, 1, getEnvInt("WAPOOL_TEST_BAD_INT", 1))
	assert.Equal(t, 90*time.Second, getEnvDuration("WAPOOL_TEST_DUR", time.Second))
	assert.Equal(t, []string{"a", "b"}, getEnvStringSlice("WAPOOL_TEST_SLICE", nil))
	assert.Equal(t, 2.5, getEnvFloat("WAPOOL_TEST_FLOAT", 1))
	assert.Equal(t, "fallback", getEnvString("WAPOOL_TEST_MISSING", "fallback"))
}
