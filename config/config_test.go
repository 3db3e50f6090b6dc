package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 300, cfg.PVP.TimeLimitSeconds)
	assert.Equal(t, 32.0, cfg.PVP.KFactor)
	assert.Equal(t, 1200.0, cfg.PVP.InitialRating)
	assert.Equal(t, "Asia/Seoul", cfg.App.Timezone)
	assert.Equal(t, "X-User-ID", cfg.HTTP.UserHeader)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_ProductionRequiresDatabase(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestValidate_AggregatesErrors(t *testing.T) {
	t.Setenv("PVP_TIME_LIMIT_SECONDS", "0")
	t.Setenv("HTTP_PORT", "70000")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PVP_TIME_LIMIT_SECONDS")
	assert.Contains(t, err.Error(), "HTTP_PORT")
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, getEnvList("KAFKA_BROKERS", nil))
}

func TestFeatureFlags(t *testing.T) {
	t.Setenv("FEATURE_EVENTS_KAFKA_FORWARDING", "true")
	t.Setenv("FEATURE_PVP_TARGETED_MATCH", "false")

	ff := LoadFeatureFlags()
	assert.True(t, ff.Enabled(FeatureEventsKafkaForwarding))
	assert.False(t, ff.Enabled(FeaturePVPTargetedMatch))
	assert.True(t, ff.Enabled(FeaturePVPRandomQueue))

	ff.SetUserOverride(7, FeaturePVPTargetedMatch, true)
	assert.True(t, ff.EnabledFor(FeaturePVPTargetedMatch, 7))
	assert.False(t, ff.EnabledFor(FeaturePVPTargetedMatch, 8))

	assert.ErrorIs(t, ff.SetRolloutPercent("nope", 10), ErrFeatureNotFound)
	assert.ErrorIs(t, ff.SetRolloutPercent(FeaturePVPRandomQueue, 101), ErrInvalidRolloutPercent)

	var nilFlags *FeatureFlags
	assert.True(t, nilFlags.Enabled(FeatureScoringCompletionBonus))
}

func TestFeatureFlags_RolloutIsStable(t *testing.T) {
	ff := LoadFeatureFlags()
	require.NoError(t, ff.SetRolloutPercent(FeatureScoringCompletionBonus, 50))

	first := ff.EnabledFor(FeatureScoringCompletionBonus, 12345)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ff.EnabledFor(FeatureScoringCompletionBonus, 12345))
	}
}
