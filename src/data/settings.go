package data

import (
	"sync"

	"github.com/stake-plus/fitbet/src/shared/fit"
	"gorm.io/gorm"
)

var (
	settingsCache map[string]string
	settingsMu    sync.RWMutex
)

// LoadSettings loads all settings from the database into cache
func LoadSettings(db *gorm.DB) error {
	var settings []fit.Setting
	if err := db.Find(&settings).Error; err != nil {
		return err
	}
	values := make(map[string]string, len(settings))
	for _, s := range settings {
		values[s.Name] = s.Value
	}
	SeedSettings(values)
	return nil
}

// SeedSettings replaces the cache wholesale.
func SeedSettings(values map[string]string) {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	settingsCache = make(map[string]string, len(values))
	for k, v := range values {
		settingsCache[k] = v
	}
}

// GetSetting retrieves a setting value from cache (call LoadSettings first)
func GetSetting(name string) string {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return settingsCache[name]
}
