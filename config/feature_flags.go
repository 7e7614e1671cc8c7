package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FeatureFlags manages feature toggles with gradual per-user rollout.
//
// Rollout is deterministic: a user lands in the same bucket for a feature
// on every call and on every replica, so partial rollouts never flap.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// userID -> feature -> enabled
	userOverrides map[string]map[string]bool

	now func() time.Time
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100), bucketed by hash of feature and user id.
	RolloutPercent int

	// Time-based activation.
	EnabledFrom  *time.Time
	EnabledUntil *time.Time

	// A/B test variants.
	Variants []string
}

// Predefined feature flag names.
const (
	// === Notifications ===
	FeatureNotifyMilestones   = "notify.milestones"   // streak milestone pushes
	FeatureNotifyAchievements = "notify.achievements" // "badge unlocked" pushes
	FeatureNotifyRecapReady   = "notify.recap_ready"  // Monday recap push
	FeatureNotifyRewards      = "notify.rewards"      // quest reward claimed

	// === Flex cards ===
	FeatureFlexCardExport = "flexcard.export" // render public cards to object storage

	// === Milestones ===
	FeatureNightsOutMilestones = "milestones.nights_out" // 10/25/50/100 nights out
)

// LoadFeatureFlags loads feature flags with defaults and FEATURE_* overrides.
func LoadFeatureFlags() *FeatureFlags {
	ff := NewFeatureFlags()
	ff.loadFromEnvironment()
	return ff
}

// NewFeatureFlags returns flags with defaults only, ignoring the environment.
func NewFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:      make(map[string]*Feature),
		userOverrides: make(map[string]map[string]bool),
		now:           time.Now,
	}
	ff.initializeDefaults()
	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureNotifyMilestones] = &Feature{
		Name:           FeatureNotifyMilestones,
		Description:    "Push when a streak milestone is reached",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureNotifyAchievements] = &Feature{
		Name:           FeatureNotifyAchievements,
		Description:    "Push when an achievement is unlocked",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureNotifyRecapReady] = &Feature{
		Name:           FeatureNotifyRecapReady,
		Description:    "Push when the weekly recap is ready",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureNotifyRewards] = &Feature{
		Name:           FeatureNotifyRewards,
		Description:    "Push when a quest reward is claimed",
		Enabled:        false, // the app already shows an in-place toast
		RolloutPercent: 0,
	}

	ff.features[FeatureFlexCardExport] = &Feature{
		Name:           FeatureFlexCardExport,
		Description:    "Export public flex cards to object storage",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureNightsOutMilestones] = &Feature{
		Name:           FeatureNightsOutMilestones,
		Description:    "Nights-out count milestones",
		Enabled:        true,
		RolloutPercent: 50,
	}
}

// loadFromEnvironment applies FEATURE_<NAME>=true|false|<percent>.
// Example: FEATURE_NOTIFY_REWARDS=true
// Example: FEATURE_MILESTONES_NIGHTS_OUT=25 (25% rollout)
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		val := os.Getenv(featureNameToEnvKey(name))
		if val == "" {
			continue
		}

		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
			if b {
				feature.RolloutPercent = 100
			} else {
				feature.RolloutPercent = 0
			}
			continue
		}

		if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
			feature.Enabled = p > 0
			feature.RolloutPercent = p
		}
	}
}

// featureNameToEnvKey converts a feature name to its environment key.
// "notify.recap_ready" -> "FEATURE_NOTIFY_RECAP_READY"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled reports whether a feature is on globally, ignoring rollout buckets.
// Partially rolled-out features count as enabled.
func (ff *FeatureFlags) IsEnabled(featureName string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return false
	}
	return ff.isActive(feature) && feature.RolloutPercent > 0
}

// IsEnabledForUser reports whether a feature is on for one user. Unknown
// features are off.
func (ff *FeatureFlags) IsEnabledForUser(featureName, userID string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()
	return ff.enabledForUser(featureName, userID)
}

func (ff *FeatureFlags) enabledForUser(featureName, userID string) bool {
	if userID != "" {
		if overrides, ok := ff.userOverrides[userID]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok || !ff.isActive(feature) {
		return false
	}

	if feature.RolloutPercent >= 100 {
		return true
	}
	if feature.RolloutPercent <= 0 || userID == "" {
		return false
	}
	return bucket(featureName, userID) < feature.RolloutPercent
}

func (ff *FeatureFlags) isActive(feature *Feature) bool {
	if !feature.Enabled {
		return false
	}
	now := ff.now()
	if feature.EnabledFrom != nil && now.Before(*feature.EnabledFrom) {
		return false
	}
	if feature.EnabledUntil != nil && now.After(*feature.EnabledUntil) {
		return false
	}
	return true
}

// bucket maps feature+user to 0-99.
func bucket(featureName, userID string) int {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(userID))
	return int(h.Sum32() % 100)
}

// GetVariant returns the A/B variant for a user, or "" if the feature is
// off for them or has no variants.
func (ff *FeatureFlags) GetVariant(featureName, userID string) string {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	feature, ok := ff.features[featureName]
	if !ok || len(feature.Variants) == 0 || !ff.enabledForUser(featureName, userID) {
		return ""
	}

	h := fnv.New32a()
	h.Write([]byte(featureName + "_variant"))
	h.Write([]byte(userID))
	return feature.Variants[int(h.Sum32()%uint32(len(feature.Variants)))]
}

// SetUserOverride forces a feature on or off for one user.
func (ff *FeatureFlags) SetUserOverride(userID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.userOverrides[userID]; !ok {
		ff.userOverrides[userID] = make(map[string]bool)
	}
	ff.userOverrides[userID][featureName] = enabled
}

// ClearUserOverrides removes all overrides for a user.
func (ff *FeatureFlags) ClearUserOverrides(userID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.userOverrides, userID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
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
		featureCopy := *v
		result[k] = &featureCopy
	}
	return result
}

// NotificationsEnabled reports whether any push category is on for the user.
func (ff *FeatureFlags) NotificationsEnabled(userID string) bool {
	return ff.IsEnabledForUser(FeatureNotifyMilestones, userID) ||
		ff.IsEnabledForUser(FeatureNotifyAchievements, userID) ||
		ff.IsEnabledForUser(FeatureNotifyRecapReady, userID) ||
		ff.IsEnabledForUser(FeatureNotifyRewards, userID)
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
