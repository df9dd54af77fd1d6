// Package config reads server settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/matthewbaird/bindery/internal/store"
)

// Config holds server settings.
type Config struct {
	Port        int    `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`
	SchemeDB    string `yaml:"scheme_db"`
	SchemeDir   string `yaml:"scheme_dir"`
	ActionsFile string `yaml:"actions_file"`
	LogLevel    string `yaml:"log_level"`
	// Entities declares the SQL tables available to managed providers.
	Entities []store.Entity `yaml:"entities"`

	SessionMaxAge time.Duration `yaml:"session_max_age"`
	SessionIdle   time.Duration `yaml:"session_idle"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Port:          8080,
		DatabaseURL:   "file:bindery.db?_pragma=foreign_keys(1)",
		SchemeDB:      "schemes.db",
		LogLevel:      "info",
		SessionMaxAge: 24 * time.Hour,
		SessionIdle:   30 * time.Minute,
	}
}

// Load reads the file named by BINDERY_CONFIG, if any, then applies the
// environment.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := Default()
	if path := getenv("BINDERY_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse config %s", path)
		}
	}

	if p := getenv("PORT"); p != "" {
		v, err := strconv.Atoi(p)
		if err != nil {
			return cfg, errors.Errorf("invalid PORT %q", p)
		}
		cfg.Port = v
	}
	for key, dst := range map[string]*string{
		"DATABASE_URL": &cfg.DatabaseURL,
		"SCHEME_DB":    &cfg.SchemeDB,
		"SCHEME_DIR":   &cfg.SchemeDir,
		"ACTIONS_FILE": &cfg.ActionsFile,
		"LOG_LEVEL":    &cfg.LogLevel,
	} {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	for key, dst := range map[string]*time.Duration{
		"SESSION_MAX_AGE": &cfg.SessionMaxAge,
		"SESSION_IDLE":    &cfg.SessionIdle,
	} {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return cfg, errors.Wrapf(err, "invalid %s", key)
			}
			*dst = d
		}
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Errorf("port %d out of range", c.Port)
	}
	for _, e := range c.Entities {
		if e.Name == "" {
			return errors.New("entity without name")
		}
	}
	return nil
}
