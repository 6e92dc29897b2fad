package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"whisper-desk/internal/domain"
)

// SettingsStore defines persistence operations for user settings.
type SettingsStore interface {
	Load() (domain.Settings, error)
	Save(domain.Settings) error
}

// YAMLStore persists settings in a single YAML file on disk.
type YAMLStore struct {
	path string
}

// NewYAMLStore creates a YAML-backed settings store.
func NewYAMLStore(path string) *YAMLStore {
	return &YAMLStore{path: path}
}

// Path returns the backing file.
func (s *YAMLStore) Path() string {
	return s.path
}

// Load reads settings from disk or returns defaults when missing.
func (s *YAMLStore) Load() (domain.Settings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultSettings(), nil
		}
		return domain.Settings{}, fmt.Errorf("read settings: %w", err)
	}

	var settings domain.Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return domain.Settings{}, fmt.Errorf("parse settings %s: %w", s.path, err)
	}
	return NormalizeSettings(settings), nil
}

// Save writes normalized settings and creates parent directories.
func (s *YAMLStore) Save(settings domain.Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	data, err := yaml.Marshal(NormalizeSettings(settings))
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return os.WriteFile(s.path, data, 0o644)
}

// NormalizeSettings trims user input and fills empty fields with defaults.
func NormalizeSettings(settings domain.Settings) domain.Settings {
	defaults := DefaultSettings()
	settings.DefaultModel = strings.TrimSpace(settings.DefaultModel)
	if settings.DefaultModel == "" {
		settings.DefaultModel = defaults.DefaultModel
	}
	settings.Language = strings.TrimSpace(settings.Language)
	if settings.Language == "" {
		settings.Language = defaults.Language
	}
	if settings.DefaultOptions == nil {
		settings.DefaultOptions = map[string]string{}
	}
	return settings
}
