// Package settings manages persistent user settings for the ogctl CLI.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/mitchellh/go-homedir"
)

// Settings holds persistent user preferences
type Settings struct {
	// DefaultDevice is the device to use when -d is not specified
	DefaultDevice string `json:"default_device,omitempty"`

	// Inventory overrides the default inventory file
	Inventory string `json:"inventory,omitempty"`

	// AuditLog overrides the default audit log path
	AuditLog string `json:"audit_log,omitempty"`

	// RedisAddr enables device locking against this Redis server
	RedisAddr string `json:"redis_addr,omitempty"`
}

// keys maps setting names accepted by Get and Set to their fields.
var keys = map[string]func(*Settings) *string{
	"default_device": func(s *Settings) *string { return &s.DefaultDevice },
	"inventory":      func(s *Settings) *string { return &s.Inventory },
	"audit_log":      func(s *Settings) *string { return &s.AuditLog },
	"redis_addr":     func(s *Settings) *string { return &s.RedisAddr },
}

// Dir returns ~/.ogctl, or "." when the home directory is unknown.
func Dir() string {
	home, err := homedir.Dir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".ogctl")
}

// DefaultSettingsPath returns the default path for the settings file
func DefaultSettingsPath() string {
	return filepath.Join(Dir(), "settings.json")
}

// Load reads settings from the default location
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from a specific path. A missing file yields empty
// settings.
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return s, nil
}

// Save writes settings to the default location
func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

// SaveTo writes settings to a specific path
func (s *Settings) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Keys returns the setting names in sorted order.
func Keys() []string {
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Get returns the value of a named setting.
func (s *Settings) Get(key string) (string, error) {
	field, ok := keys[key]
	if !ok {
		return "", fmt.Errorf("unknown setting %q", key)
	}
	return *field(s), nil
}

// Set assigns a named setting. An empty value clears it.
func (s *Settings) Set(key, value string) error {
	field, ok := keys[key]
	if !ok {
		return fmt.Errorf("unknown setting %q", key)
	}
	*field(s) = value
	return nil
}

// GetInventory returns the inventory path (with fallback)
func (s *Settings) GetInventory() string {
	if s.Inventory != "" {
		return s.Inventory
	}
	return filepath.Join(Dir(), "inventory.yaml")
}

// GetAuditLog returns the audit log path (with fallback)
func (s *Settings) GetAuditLog() string {
	if s.AuditLog != "" {
		return s.AuditLog
	}
	return filepath.Join(Dir(), "audit.log")
}

// Clear resets all settings to defaults
func (s *Settings) Clear() {
	*s = Settings{}
}
