package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadFeatureFlags_Defaults(t *testing.T) {
	ff := LoadFeatureFlags()

	for _, name := range []string{
		FeatureStreakAchievements,
		FeatureLevelUpEvents,
		FeatureProgressCache,
		FeatureRedisLeaderboard,
		FeatureCelebrations,
	} {
		assert.True(t, ff.IsEnabled(name), name)
	}
	assert.False(t, ff.IsEnabled("no.such_flag"))
}

func TestFeatureFlags_EnvOverride(t *testing.T) {
	t.Setenv("FEATURE_CACHE_PROGRESS_VIEW", "false")
	t.Setenv("FEATURE_NOTIFY_CELEBRATIONS", "25")

	ff := LoadFeatureFlags()

	assert.False(t, ff.IsEnabled(FeatureProgressCache))

	celebrations := ff.GetAllFeatures()[FeatureCelebrations]
	assert.True(t, celebrations.Enabled)
	assert.Equal(t, 25, celebrations.RolloutPercent)
}

func TestFeatureFlags_EnvOverrideIgnoresGarbage(t *testing.T) {
	t.Setenv("FEATURE_CACHE_LEADERBOARD", "definitely")

	ff := LoadFeatureFlags()

	assert.True(t, ff.IsEnabled(FeatureRedisLeaderboard))
}

func TestFeatureFlags_SetRolloutPercent(t *testing.T) {
	ff := LoadFeatureFlags()

	assert.NoError(t, ff.SetRolloutPercent(FeatureCelebrations, 50))
	assert.True(t, ff.IsEnabled(FeatureCelebrations))

	assert.NoError(t, ff.SetRolloutPercent(FeatureCelebrations, 0))
	assert.False(t, ff.IsEnabled(FeatureCelebrations))

	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureCelebrations, 150), ErrInvalidRolloutPercent)
	assert.ErrorIs(t, ff.SetRolloutPercent("no.such_flag", 50), ErrFeatureNotFound)
}

func TestFeatureFlags_EnableDisable(t *testing.T) {
	ff := LoadFeatureFlags()

	assert.NoError(t, ff.DisableFeature(FeatureLevelUpEvents))
	assert.False(t, ff.IsEnabled(FeatureLevelUpEvents))
	assert.False(t, ff.IsEnabledFor(FeatureLevelUpEvents, "student1"))

	assert.NoError(t, ff.EnableFeature(FeatureLevelUpEvents))
	assert.True(t, ff.IsEnabledFor(FeatureLevelUpEvents, "student1"))
}

func TestFeatureFlags_RolloutIsConsistentPerStudent(t *testing.T) {
	ff := LoadFeatureFlags()
	assert.NoError(t, ff.SetRolloutPercent(FeatureCelebrations, 50))

	first := ff.IsEnabledFor(FeatureCelebrations, "student1")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ff.IsEnabledFor(FeatureCelebrations, "student1"))
	}
}

func TestFeatureFlags_PartialRolloutSplitsPopulation(t *testing.T) {
	ff := LoadFeatureFlags()
	assert.NoError(t, ff.SetRolloutPercent(FeatureCelebrations, 50))

	in := 0
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j",
		"k", "l", "m", "n", "o", "p", "q", "r", "s", "t"} {
		if ff.IsEnabledFor(FeatureCelebrations, id) {
			in++
		}
	}
	// Exact split depends on the hash; it must not be all-or-nothing.
	assert.Greater(t, in, 0)
	assert.Less(t, in, 20)
}

func TestFeatureFlags_GetAllFeaturesReturnsCopies(t *testing.T) {
	ff := LoadFeatureFlags()

	all := ff.GetAllFeatures()
	all[FeatureLevelUpEvents].Enabled = false

	assert.True(t, ff.IsEnabled(FeatureLevelUpEvents))
}
