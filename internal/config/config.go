package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// BasicAuthConfig holds credentials for the publishing endpoints. The
// password is stored as an argon2id hash produced by `evcal -hash-password`.
type BasicAuthConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// Config is the serve-mode configuration.
type Config struct {
	// Listen is the HTTP listen address for the calendar feed and API.
	Listen string `yaml:"listen"`

	// DefinitionFile is the YAML event definition file the published
	// calendar is built from.
	DefinitionFile string `yaml:"definition_file"`

	// ProductID overrides the PRODID of the published calendar. Empty
	// means the definition file (or the built-in default) decides.
	ProductID string `yaml:"product_id"`

	// Timezone is the IANA zone occurrences are displayed in.
	Timezone string `yaml:"timezone"`

	// RefreshCron schedules re-reading the definition file,
	// e.g. "*/15 * * * *".
	RefreshCron string `yaml:"refresh"`

	// HorizonDays is how far ahead /api/occurrences expands by default.
	HorizonDays int `yaml:"horizon_days"`

	// BasicAuth, if non-nil, guards all endpoints except /health and
	// /metrics.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:         "127.0.0.1:8099",
		DefinitionFile: "events.yaml",
		Timezone:       "UTC",
		RefreshCron:    "*/15 * * * *",
		HorizonDays:    30,
	}
}

// Normalize fills in missing/zero values so partially-filled configs
// still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8099"
	}
	if c.DefinitionFile == "" {
		c.DefinitionFile = "events.yaml"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/15 * * * *"
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = 30
	}
}

// Load loads configuration from the given YAML path. A missing file is a
// first run: a default config is written there (0600) and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes the configuration atomically: temp file in the same
// directory, 0600 perms, then rename over the target.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".evcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
