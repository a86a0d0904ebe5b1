// Package config loads the nnprep YAML configuration by environment name.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the nnprep configuration.
type Config struct {
	Cache    CacheConfig              `yaml:"cache"`
	Datasets map[string]DatasetConfig `yaml:"datasets"`
	Pairs    PairsConfig              `yaml:"pairs"`
	Split    SplitConfig              `yaml:"split"`
	Metrics  MetricsConfig            `yaml:"metrics"`
	Logging  LoggingConfig            `yaml:"logging"`
}

// CacheConfig holds local storage settings for downloaded datasets.
type CacheConfig struct {
	Dir string `yaml:"dir"`
}

// DatasetConfig describes one downloadable dataset archive.
type DatasetConfig struct {
	URL      string `yaml:"url"`
	SHA256   string `yaml:"sha256"`
	Filename string `yaml:"filename"` // defaults to the URL basename
}

// PairsConfig holds pair-list computation settings.
type PairsConfig struct {
	Cutoff float64 `yaml:"cutoff"` // same unit as stored positions
	Unique bool    `yaml:"unique"` // upper-triangle pairs only
}

// SplitConfig holds dataset splitting settings. Seed is a pointer so that an
// explicit 0 is distinguishable from an unset value.
type SplitConfig struct {
	Seed      *int64    `yaml:"seed"`
	Fractions []float64 `yaml:"fractions"` // train/validation/test, sums to 1
}

// MetricsConfig holds the Prometheus scrape endpoint settings.
type MetricsConfig struct {
	Port int `yaml:"port"` // 0 disables the endpoint
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Cache.Dir == "" {
		c.Cache.Dir = "data"
	}
	if c.Pairs.Cutoff <= 0 {
		c.Pairs.Cutoff = 0.5
	}
	if len(c.Split.Fractions) == 0 {
		c.Split.Fractions = []float64{0.8, 0.1, 0.1}
	}
	if c.Split.Seed == nil {
		seed := int64(42)
		c.Split.Seed = &seed
	}
	for name, ds := range c.Datasets {
		if ds.Filename == "" {
			ds.Filename = filepath.Base(ds.URL)
			c.Datasets[name] = ds
		}
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 0 and 65535, got %d", c.Metrics.Port)
	}
	if len(c.Split.Fractions) != 3 {
		return fmt.Errorf("split.fractions must have 3 entries, got %d", len(c.Split.Fractions))
	}
	sum := 0.0
	for _, f := range c.Split.Fractions {
		if f < 0 {
			return fmt.Errorf("split.fractions must be non-negative, got %g", f)
		}
		sum += f
	}
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("split.fractions must sum to 1, got %g", sum)
	}
	for name, ds := range c.Datasets {
		if ds.URL == "" {
			return fmt.Errorf("datasets.%s.url is required", name)
		}
		if ds.SHA256 != "" && len(ds.SHA256) != 64 {
			return fmt.Errorf("datasets.%s.sha256 must be 64 hex chars, got %d", name, len(ds.SHA256))
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
