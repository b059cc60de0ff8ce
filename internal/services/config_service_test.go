package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/K3mp3/FixMatch/internal/config"
	"github.com/K3mp3/FixMatch/internal/utils"
)

func testConfig() *config.Config {
	return &config.Config{
		TrialPeriodDays:     121.6,
		PendingDeletionDays: 30,
		RetentionDays:       1825,
		InactivityPeriod:    8760 * time.Hour,
		RateLimitBucketSize: 20,
		RateLimitRefillRate: 5,
		TempRegistrationTTL: 40 * time.Minute,
		JwtSecret:           "test-secret",
		JwtTTL:              time.Hour,
		DefaultLocale:       "sv-SE",
		Timezone:            "Europe/Stockholm",
		ContactAddress:      "info@fixmatch.se",
		ImageMaxSizeMB:      1,
	}
}

func TestConfigService_FallsBackToEnv(t *testing.T) {
	database := utils.SetupTestDB(t, "testdb_config_service_env", configCollection)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := NewConfigService(ctx, database, testConfig(), nil)

	assert.Equal(t, 121.6, svc.GetFloat64(ctx, ConfigTrialPeriodDays, 0))
	assert.Equal(t, 30, svc.GetInt(ctx, ConfigPendingDeletionDays, 0))
	assert.Equal(t, 1825, svc.GetInt(ctx, ConfigRetentionDays, 0))
	assert.Equal(t, 8760*time.Hour, svc.GetDuration(ctx, ConfigInactivityPeriod, 0))
	assert.Equal(t, 5.0, svc.GetFloat64(ctx, ConfigBookingFeePercent, 5.0))

	_, err := svc.Get(ctx, "does_not_exist")
	assert.Error(t, err)
}

func TestConfigService_OverridesAndRemoval(t *testing.T) {
	database := utils.SetupTestDB(t, "testdb_config_service_crud", configCollection)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := NewConfigService(ctx, database, testConfig(), nil)

	assert.NoError(t, svc.SetConfigValue(ctx, ConfigBookingFeePercent, 7.5, false))
	assert.Equal(t, 7.5, svc.GetFloat64(ctx, ConfigBookingFeePercent, 5.0))

	assert.NoError(t, svc.SetConfigValue(ctx, ConfigRateLimitBucketSize, int64(42), true))
	assert.Equal(t, 42, svc.GetInt(ctx, ConfigRateLimitBucketSize, 0))

	pub, err := svc.GetAllPublic(ctx)
	assert.NoError(t, err)
	assert.EqualValues(t, 42, pub[ConfigRateLimitBucketSize])
	assert.Equal(t, 121.6, pub[ConfigTrialPeriodDays])
	_, private := pub[ConfigBookingFeePercent]
	assert.False(t, private)

	// A reload from the store sees the same values.
	assert.NoError(t, svc.Load(ctx))
	assert.Equal(t, 7.5, svc.GetFloat64(ctx, ConfigBookingFeePercent, 5.0))

	assert.NoError(t, svc.SetConfigValue(ctx, ConfigBookingFeePercent, nil, false))
	assert.Equal(t, 5.0, svc.GetFloat64(ctx, ConfigBookingFeePercent, 5.0))
	count, err := database.Collection(configCollection).CountDocuments(ctx, bson.M{"key": ConfigBookingFeePercent})
	assert.NoError(t, err)
	assert.Zero(t, count)
}

func TestConfigService_TypeMismatchUsesDefault(t *testing.T) {
	database := utils.SetupTestDB(t, "testdb_config_service_types", configCollection)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := NewConfigService(ctx, database, testConfig(), nil)

	assert.NoError(t, svc.SetConfigValue(ctx, "banner", "hello", true))
	assert.Equal(t, "hello", svc.GetString(ctx, "banner", ""))
	assert.Equal(t, 3, svc.GetInt(ctx, "banner", 3))
	assert.False(t, svc.GetBool(ctx, "banner", false))
	assert.Equal(t, time.Minute, svc.GetDuration(ctx, "banner", time.Minute))
}
