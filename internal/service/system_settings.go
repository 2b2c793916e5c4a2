package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"

	"signalflow/internal/models"
	"signalflow/internal/repository"
)

const (
	FeatureAnalysis      = "feature.analysis"
	FeatureCopyTrading   = "feature.copy_trading"
	FeatureLifecycle     = "feature.lifecycle"
	FeatureNotifications = "feature.notifications"
)

func DefaultFeatureSwitches() map[string]bool {
	return map[string]bool{
		FeatureAnalysis:      true,
		FeatureCopyTrading:   true,
		FeatureLifecycle:     true,
		FeatureNotifications: true,
	}
}

// Switches is the feature state read once at the start of a tick.
type Switches struct {
	Analysis      bool `json:"analysis"`
	CopyTrading   bool `json:"copy_trading"`
	Lifecycle     bool `json:"lifecycle"`
	Notifications bool `json:"notifications"`
}

type SystemSettingsService struct {
	Repo repository.SettingsRepository
}

// EnsureDefaultSwitches seeds missing switches. Stored values are left alone.
func (s *SystemSettingsService) EnsureDefaultSwitches(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	now := time.Now().UTC()
	defaults := DefaultFeatureSwitches()
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		existing, err := s.Repo.GetSystemSettingByKey(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		raw, _ := json.Marshal(defaults[key])
		item := &models.SystemSetting{
			Key:         key,
			Value:       datatypes.JSON(raw),
			Description: "feature switch",
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.Repo.UpsertSystemSetting(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *SystemSettingsService) IsEnabled(ctx context.Context, key string, fallback bool) bool {
	if s == nil || s.Repo == nil {
		return fallback
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fallback
	}
	item, err := s.Repo.GetSystemSettingByKey(ctx, key)
	if err != nil || item == nil || len(item.Value) == 0 {
		return fallback
	}
	var enabled bool
	if err := json.Unmarshal(item.Value, &enabled); err != nil {
		return fallback
	}
	return enabled
}

func (s *SystemSettingsService) SetEnabled(ctx context.Context, key string, enabled bool) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	raw, _ := json.Marshal(enabled)
	item := &models.SystemSetting{
		Key:         key,
		Value:       datatypes.JSON(raw),
		Description: "feature switch",
		UpdatedAt:   time.Now().UTC(),
	}
	return s.Repo.UpsertSystemSetting(ctx, item)
}

// Switches reads every feature switch. Missing or unreadable values fall back
// to their defaults.
func (s *SystemSettingsService) Switches(ctx context.Context) Switches {
	d := DefaultFeatureSwitches()
	return Switches{
		Analysis:      s.IsEnabled(ctx, FeatureAnalysis, d[FeatureAnalysis]),
		CopyTrading:   s.IsEnabled(ctx, FeatureCopyTrading, d[FeatureCopyTrading]),
		Lifecycle:     s.IsEnabled(ctx, FeatureLifecycle, d[FeatureLifecycle]),
		Notifications: s.IsEnabled(ctx, FeatureNotifications, d[FeatureNotifications]),
	}
}
