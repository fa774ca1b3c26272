// Package config loads wrenchpdf defaults from an optional YAML file in the
// user's home directory, with environment variables taking precedence.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	// PreviewDPIEnvVar overrides the PDF preview render resolution.
	PreviewDPIEnvVar = "WRENCHPDF_PREVIEW_DPI"

	// TempTTLEnvVar overrides the temp registry TTL, in hours.
	TempTTLEnvVar = "WRENCHPDF_TEMP_TTL_HOURS"

	// DefaultCompressionEnvVar overrides the default compression preset.
	DefaultCompressionEnvVar = "WRENCHPDF_DEFAULT_COMPRESSION"

	configDirName  = ".wrenchpdf"
	configFileName = "config.yaml"
)

// Config carries the tunable defaults for a wrenchpdf process.
type Config struct {
	// TempTTLHours is how long generated temp files are retained before
	// the sweeper may delete them.
	TempTTLHours int `yaml:"temp_ttl_hours"`

	// PreviewDPI is the resolution PDF pages are rendered at for
	// thumbnails.
	PreviewDPI float64 `yaml:"preview_dpi"`

	// DefaultCompression is the compression preset applied when a request
	// does not name one.
	DefaultCompression string `yaml:"default_compression"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		TempTTLHours:       24,
		PreviewDPI:         144,
		DefaultCompression: "Medium",
	}
}

// Load resolves the effective configuration: built-in defaults, overlaid
// with ~/.wrenchpdf/config.yaml when present, overlaid with environment
// variables. A malformed config file is logged and ignored.
func Load(logger *logrus.Logger) *Config {
	cfg := Default()

	if path, err := configFilePath(); err == nil {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				logger.WithError(err).WithField("path", path).Warn("Ignoring malformed config file")
				cfg = Default()
			} else {
				logger.WithField("path", path).Debug("Loaded config file")
			}
		}
	}

	applyEnvOverrides(cfg)
	cfg.normalise()
	return cfg
}

func configFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configDirName, configFileName), nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(TempTTLEnvVar); v != "" {
		if hours, err := strconv.Atoi(v); err == nil && hours > 0 {
			cfg.TempTTLHours = hours
		}
	}
	if v := os.Getenv(PreviewDPIEnvVar); v != "" {
		if dpi, err := strconv.ParseFloat(v, 64); err == nil && dpi > 0 {
			cfg.PreviewDPI = dpi
		}
	}
	if v := os.Getenv(DefaultCompressionEnvVar); v != "" {
		cfg.DefaultCompression = v
	}
}

func (c *Config) normalise() {
	if c.TempTTLHours <= 0 {
		c.TempTTLHours = 24
	}
	if c.PreviewDPI <= 0 {
		c.PreviewDPI = 144
	}
	if c.DefaultCompression == "" {
		c.DefaultCompression = "Medium"
	}
}

// TempTTL returns the retention period as a duration.
func (c *Config) TempTTL() time.Duration {
	return time.Duration(c.TempTTLHours) * time.Hour
}
