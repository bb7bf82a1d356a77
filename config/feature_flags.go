package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages feature toggles with gradual per-student rollout.
// Rollout buckets are assigned by consistent hashing of the student ID so a
// student stays in the same bucket across requests.
type FeatureFlags struct {
	mu       sync.RWMutex
	features map[string]*Feature
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100)
	RolloutPercent int
}

// Predefined feature flag names.
const (
	// === Progression Features ===
	FeatureStreakAchievements = "progression.streak_achievements" // auto-unlock at 7/30/100
	FeatureLevelUpEvents      = "progression.level_up_events"     // publish LevelUp events

	// === Read Model Features ===
	FeatureProgressCache    = "cache.progress_view"   // Redis progress view cache
	FeatureRedisLeaderboard = "cache.leaderboard"     // Redis ZSET ranking
	FeatureCelebrations     = "notify.celebrations"   // level-up/unlock log celebrations
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features: make(map[string]*Feature),
	}

	// Initialize all features with defaults
	ff.initializeDefaults()

	// Load overrides from environment
	ff.loadFromEnvironment()

	return ff
}

// initializeDefaults sets up all features with default values.
func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureStreakAchievements] = &Feature{
		Name:           FeatureStreakAchievements,
		Description:    "Unlock streak achievements at exact thresholds",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureLevelUpEvents] = &Feature{
		Name:           FeatureLevelUpEvents,
		Description:    "Publish level-up domain events",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureProgressCache] = &Feature{
		Name:           FeatureProgressCache,
		Description:    "Serve the progress view from Redis",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureRedisLeaderboard] = &Feature{
		Name:           FeatureRedisLeaderboard,
		Description:    "Rank students via the Redis sorted set",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureCelebrations] = &Feature{
		Name:           FeatureCelebrations,
		Description:    "Log level-up and unlock celebrations",
		Enabled:        true,
		RolloutPercent: 100,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_CACHE_PROGRESS_VIEW=false
// Example: FEATURE_NOTIFY_CELEBRATIONS=50 (50% rollout)
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		envKey := featureNameToEnvKey(name)
		if val := os.Getenv(envKey); val != "" {
			// Try parsing as boolean
			if b, err := strconv.ParseBool(val); err == nil {
				feature.Enabled = b
				if b {
					feature.RolloutPercent = 100
				} else {
					feature.RolloutPercent = 0
				}
				continue
			}

			// Try parsing as percentage
			if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
				feature.Enabled = p > 0
				feature.RolloutPercent = p
			}
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "cache.progress_view" -> "FEATURE_CACHE_PROGRESS_VIEW"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled globally (ignoring rollout).
func (ff *FeatureFlags) IsEnabled(featureName string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return false
	}
	return feature.Enabled && feature.RolloutPercent > 0
}

// IsEnabledFor checks if a feature is enabled for a specific student,
// honoring partial rollout.
func (ff *FeatureFlags) IsEnabledFor(featureName, studentID string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	feature, ok := ff.features[featureName]
	if !ok || !feature.Enabled {
		return false
	}

	if feature.RolloutPercent >= 100 {
		return true
	}
	if feature.RolloutPercent <= 0 {
		return false
	}
	return inRollout(studentID, featureName, feature.RolloutPercent)
}

// inRollout determines if a student is in the rollout percentage.
// Uses consistent hashing so students stay in their bucket.
func inRollout(studentID, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(studentID))
	hash := h.Sum32()

	// Map to 0-99 range
	bucket := int(hash % 100)

	return bucket < percent
}

// SetRolloutPercent updates the rollout percentage for a feature.
// Thread-safe for live updates.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}

	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0

	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]*Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]*Feature, len(ff.features))
	for k, v := range ff.features {
		// Return a copy
		featureCopy := *v
		result[k] = &featureCopy
	}
	return result
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
