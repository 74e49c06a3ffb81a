// Package config loads mulambdactl settings from YAML, layered over embedded
// defaults.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrUnknownProfile is returned by Profile for kinds without a profile.
var ErrUnknownProfile = errors.New("unknown profile")

type Config struct {
	Run       RunConfig                `yaml:"run"`
	Storage   StorageConfig            `yaml:"storage"`
	Artifacts ArtifactsConfig          `yaml:"artifacts"`
	Log       LogConfig                `yaml:"log"`
	Profiles  map[string]ProfileConfig `yaml:"profiles"`
}

// RunConfig holds engine settings shared by every kind.
type RunConfig struct {
	Workers   int   `yaml:"workers"`
	Seed      int64 `yaml:"seed"` // 0 seeds from the clock
	Verbose   bool  `yaml:"verbose"`
	Crossover bool  `yaml:"crossover"`
}

type StorageConfig struct {
	Kind       string `yaml:"kind"` // empty selects the build default
	SQLitePath string `yaml:"sqlite_path"`
}

type ArtifactsConfig struct {
	BenchmarksDir string `yaml:"benchmarks_dir"`
	ExportsDir    string `yaml:"exports_dir"`
	TopCount      int    `yaml:"top_count"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// ProfileConfig holds the per-kind selection rates and termination bounds.
type ProfileConfig struct {
	Mu             int     `yaml:"mu"`
	Lambda         int     `yaml:"lambda"`
	MaxGenerations int     `yaml:"max_generations"`
	FitnessTarget  float64 `yaml:"fitness_target"`
}

// Default returns the embedded defaults.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	return cfg, nil
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used. A profile named in the
// file inherits unset fields from the default profile of the same name.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return overlay(cfg, data)
}

func overlay(cfg *Config, data []byte) (*Config, error) {
	defaults := make(map[string]ProfileConfig, len(cfg.Profiles))
	for name, profile := range cfg.Profiles {
		defaults[name] = profile
	}

	// Unmarshal into same struct - only overwrites fields present in file.
	// Map entries are replaced whole, so profiles are merged below.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	for name, profile := range cfg.Profiles {
		base, ok := defaults[name]
		if !ok {
			continue
		}
		cfg.Profiles[name] = profile.withDefaults(base)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (p ProfileConfig) withDefaults(base ProfileConfig) ProfileConfig {
	if p.Mu == 0 {
		p.Mu = base.Mu
	}
	if p.Lambda == 0 {
		p.Lambda = base.Lambda
	}
	if p.MaxGenerations == 0 {
		p.MaxGenerations = base.MaxGenerations
	}
	if p.FitnessTarget == 0 {
		p.FitnessTarget = base.FitnessTarget
	}
	return p
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Run.Workers < 0 {
		return fmt.Errorf("run.workers must be >= 0, got %d", c.Run.Workers)
	}
	if c.Artifacts.TopCount < 0 {
		return fmt.Errorf("artifacts.top_count must be >= 0, got %d", c.Artifacts.TopCount)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	for name, profile := range c.Profiles {
		if profile.Mu < 1 || profile.Lambda < 1 {
			return fmt.Errorf("profile %s: mu and lambda must be >= 1, got mu=%d lambda=%d", name, profile.Mu, profile.Lambda)
		}
		if profile.MaxGenerations < 0 {
			return fmt.Errorf("profile %s: max_generations must be >= 0, got %d", name, profile.MaxGenerations)
		}
	}
	return nil
}

// Profile returns the profile for kind.
func (c *Config) Profile(kind string) (ProfileConfig, error) {
	profile, ok := c.Profiles[kind]
	if !ok {
		return ProfileConfig{}, fmt.Errorf("%w: %s", ErrUnknownProfile, kind)
	}
	return profile, nil
}

// ParseLevel maps a level name to a slog level. Empty means info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level: %s", name)
	}
}

// WriteYAML saves the configuration to a file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
