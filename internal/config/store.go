package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"trim-it/internal/domain"
)

// Store defines persistence operations for app settings.
type Store interface {
	Load() (domain.Settings, error)
	Save(domain.Settings) error
}

// ViperStore persists settings in a single JSON file and layers
// TRIMIT_* environment overrides on top when loading.
type ViperStore struct {
	path string
}

// NewViperStore creates a viper-backed settings store.
func NewViperStore(path string) *ViperStore {
	return &ViperStore{path: path}
}

// Path returns the backing settings file.
func (s *ViperStore) Path() string {
	return s.path
}

// Load reads settings from disk or returns defaults when missing.
func (s *ViperStore) Load() (domain.Settings, error) {
	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("json")
	for key, value := range settingsMap(DefaultSettings()) {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return domain.Settings{}, fmt.Errorf("read %s: %w", s.path, err)
		}
	}

	var cfg domain.Settings
	if err := v.Unmarshal(&cfg); err != nil {
		return domain.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return Normalize(cfg), nil
}

// Save writes settings as JSON and creates parent directories.
// Environment overrides are not written back.
func (s *ViperStore) Save(cfg domain.Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	v := viper.New()
	v.SetConfigType("json")
	for key, value := range settingsMap(cfg) {
		v.Set(key, value)
	}
	return v.WriteConfigAs(s.path)
}

// settingsMap flattens settings onto their mapstructure keys.
func settingsMap(cfg domain.Settings) map[string]any {
	return map[string]any{
		"output_dir":    cfg.OutputDir,
		"data_dir":      cfg.DataDir,
		"temp_dir":      cfg.TempDir,
		"log_level":     cfg.LogLevel,
		"log_format":    cfg.LogFormat,
		"listen_addr":   cfg.ListenAddr,
		"encode_preset": cfg.EncodePreset,
		"encode_crf":    cfg.EffectiveCRF(),
	}
}
