// Package config loads the daemon configuration from a YAML file and
// applies defaults and clamping.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"resource-tracker/internal/apperr"
	"resource-tracker/internal/filter"
)

// Seed describes a resource registered at startup.
type Seed struct {
	Name       string            `yaml:"name"`
	Ranking    int               `yaml:"ranking"`
	Properties map[string]string `yaml:"properties"`
}

// Config is the daemon configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `yaml:"addr"`

	// RequestTimeout bounds each HTTP request, including waits.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Criterion selects the resources the daemon's tracker follows,
	// in filter syntax. Exactly one of Criterion and TrackName is used;
	// TrackName wins when both are set.
	Criterion string `yaml:"criterion"`

	// TrackName selects by category name instead of a filter.
	TrackName string `yaml:"track_name"`

	// Seeds are registered before the tracker opens.
	Seeds []Seed `yaml:"seeds"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Addr:           ":8080",
		RequestTimeout: 10 * time.Second,
		TrackName:      "service",
	}
}

// Load reads a YAML config file. An empty path yields Default. The
// criterion is validated here so a malformed filter fails at startup,
// not when tracking opens.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) validate() error {
	if c.TrackName == "" && c.Criterion == "" {
		return fmt.Errorf("config: no criterion or track_name: %w", apperr.ErrInvalidCriterion)
	}
	if c.TrackName == "" {
		if _, err := filter.Parse(c.Criterion); err != nil {
			return fmt.Errorf("config criterion: %w", err)
		}
	}
	for i, s := range c.Seeds {
		if s.Name == "" {
			return fmt.Errorf("config seed %d: empty name: %w", i, apperr.ErrInvalidArgument)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
}
