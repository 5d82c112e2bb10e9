// Package config loads and validates the server configuration from YAML,
// with environment variable expansion and optional .env loading.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Scripts  ScriptsConfig  `yaml:"scripts"`
	Build    BuildConfig    `yaml:"build"`
	Repos    ReposConfig    `yaml:"repos"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	BuildLog BuildLogConfig `yaml:"buildlog"`
	TokenEnv string         `yaml:"token_env"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ScriptsConfig names the external scripts the pipelines invoke. Paths are
// resolved relative to Dir unless absolute.
type ScriptsConfig struct {
	Dir             string   `yaml:"dir"`
	TagRelease      string   `yaml:"tag_release"`
	UpdateStructure string   `yaml:"update_structure"`
	UpdateElement   string   `yaml:"update_element"`
	FinishStage     string   `yaml:"finish_stage"`
	Analyze         string   `yaml:"analyze"`
	Timeout         Duration `yaml:"timeout"`
}

// BuildConfig controls pipeline execution.
type BuildConfig struct {
	Dir         string   `yaml:"dir"`
	SettleDelay Duration `yaml:"settle_delay"`
	QueueSize   int      `yaml:"queue_size"`
}

// ReposConfig lists repository names with special classification handling.
type ReposConfig struct {
	Ignored []string `yaml:"ignored"`
	Parents []string `yaml:"parents"`
}

// CatalogConfig holds the NATS key-value catalog settings.
type CatalogConfig struct {
	NATSURL string `yaml:"nats_url"`
	Bucket  string `yaml:"bucket"`
}

// BuildLogConfig holds the SQLite pipeline log settings.
type BuildLogConfig struct {
	Path          string   `yaml:"path"`
	Retention     Duration `yaml:"retention"`
	PruneInterval Duration `yaml:"prune_interval"`
}

// Load loads configuration from the specified file, after sourcing a .env
// file when one is present. Environment variables referenced in the YAML
// as ${VAR} are expanded before decoding.
func Load(configPath string) (*Config, error) {
	// Existing process env wins over .env values.
	_ = godotenv.Load()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default creates a configuration with all defaults applied, for use when
// no config file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":5243"
	}
	if c.Scripts.Dir == "" {
		c.Scripts.Dir = "scripts"
	}
	if c.Scripts.TagRelease == "" {
		c.Scripts.TagRelease = "tag-build"
	}
	if c.Scripts.UpdateStructure == "" {
		c.Scripts.UpdateStructure = "update-structure"
	}
	if c.Scripts.UpdateElement == "" {
		c.Scripts.UpdateElement = "update-git-element.sh"
	}
	if c.Scripts.FinishStage == "" {
		c.Scripts.FinishStage = "finish-stage.sh"
	}
	if c.Scripts.Analyze == "" {
		c.Scripts.Analyze = "analyze"
	}
	if c.Build.Dir == "" {
		c.Build.Dir = "../build"
	}
	if c.Build.SettleDelay == 0 {
		c.Build.SettleDelay = Duration(3 * time.Second)
	}
	if c.Build.QueueSize == 0 {
		c.Build.QueueSize = 16
	}
	if c.Catalog.Bucket == "" {
		c.Catalog.Bucket = "api-components"
	}
	if c.BuildLog.Path == "" {
		c.BuildLog.Path = "arcci-buildlog.db"
	}
	if c.BuildLog.Retention == 0 {
		c.BuildLog.Retention = Duration(30 * 24 * time.Hour)
	}
	if c.BuildLog.PruneInterval == 0 {
		c.BuildLog.PruneInterval = Duration(time.Hour)
	}
	if c.TokenEnv == "" {
		c.TokenEnv = "GITHUB_TOKEN"
	}
}

func (c *Config) validate() error {
	if c.Build.SettleDelay < 0 {
		return fmt.Errorf("build.settle_delay must not be negative")
	}
	if c.Build.QueueSize < 1 {
		return fmt.Errorf("build.queue_size must be at least 1")
	}
	if c.Scripts.Timeout < 0 {
		return fmt.Errorf("scripts.timeout must not be negative")
	}
	return nil
}
