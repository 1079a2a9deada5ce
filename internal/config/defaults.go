package config

import (
	"os"
	"path/filepath"
	"strings"

	"trim-it/internal/domain"
)

const (
	appDirName = ".trim-it"

	// EnvPrefix namespaces environment overrides, e.g. TRIMIT_OUTPUT_DIR.
	EnvPrefix = "TRIMIT"
)

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		OutputDir:    filepath.Join(homeDir, "Downloads"),
		DataDir:      filepath.Join(homeDir, appDirName),
		TempDir:      os.TempDir(),
		LogLevel:     "info",
		LogFormat:    "text",
		ListenAddr:   "127.0.0.1:8790",
		EncodePreset: "ultrafast",
		EncodeCRF:    domain.CRF(domain.DefaultEncodeCRF),
	}
}

// DefaultPath is the settings file location under the default data dir.
func DefaultPath() string {
	return filepath.Join(DefaultSettings().DataDir, "settings.json")
}

// Normalize trims user inputs and fills empty fields from defaults.
func Normalize(settings domain.Settings) domain.Settings {
	defaults := DefaultSettings()
	fill := func(value *string, fallback string) {
		*value = strings.TrimSpace(*value)
		if *value == "" {
			*value = fallback
		}
	}

	fill(&settings.OutputDir, defaults.OutputDir)
	fill(&settings.DataDir, defaults.DataDir)
	fill(&settings.TempDir, defaults.TempDir)
	fill(&settings.LogLevel, defaults.LogLevel)
	fill(&settings.LogFormat, defaults.LogFormat)
	fill(&settings.ListenAddr, defaults.ListenAddr)
	fill(&settings.EncodePreset, defaults.EncodePreset)
	if crf := settings.EncodeCRF; crf == nil || *crf < 0 || *crf > 51 {
		settings.EncodeCRF = defaults.EncodeCRF
	}
	return settings
}

// BinDir is where provisioned tool binaries live.
func BinDir(settings domain.Settings) string {
	return filepath.Join(settings.DataDir, "bin")
}

// DownloadsDir holds in-flight tool archives.
func DownloadsDir(settings domain.Settings) string {
	return filepath.Join(settings.DataDir, "downloads")
}
