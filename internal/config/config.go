// Package config provides YAML-based configuration loading for Humpyard.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level Humpyard configuration, loaded from humpyard.yaml.
type Config struct {
	Root       string          `yaml:"root"`
	Extensions []string        `yaml:"extensions"`
	Exclude    []string        `yaml:"exclude"`
	Markers    MarkersConfig   `yaml:"markers"`
	Priority   PriorityConfig  `yaml:"priority"`
	Batch      BatchConfig     `yaml:"batch"`
	Action     ActionConfig    `yaml:"action"`
	Status     StatusConfig    `yaml:"status"`
	Log        LogConfig       `yaml:"log"`
	Database   DatabaseConfig  `yaml:"database"`
	Notify     NotifyConfig    `yaml:"notify"`
	GitHub     GitHubConfig    `yaml:"github"`
	Dashboard  DashboardConfig `yaml:"dashboard"`
	Schedule   ScheduleConfig  `yaml:"schedule"`
}

// MarkersConfig holds the text signals used to classify files.
type MarkersConfig struct {
	Migrated  []string `yaml:"migrated"`
	Candidate []string `yaml:"candidate"`
}

// PriorityConfig holds the keyword sets used to rank pending files.
type PriorityConfig struct {
	HighContent []string `yaml:"high_content"`
	MediumPath  []string `yaml:"medium_path"`
}

// BatchConfig controls how pending files are grouped and confirmed.
type BatchConfig struct {
	Size        int  `yaml:"size"`
	AutoConfirm bool `yaml:"auto_confirm"`
}

// ActionConfig describes the migration action applied to each file. When
// Command is empty the built-in rewrite action runs Rewrites instead.
type ActionConfig struct {
	Command  string        `yaml:"command"`
	Args     []string      `yaml:"args"`
	Rewrites []RewriteRule `yaml:"rewrites"`
	Header   string        `yaml:"header"` // prepended by the built-in rewrite
}

// RewriteRule is a literal substitution applied by the built-in action.
type RewriteRule struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// StatusConfig holds the status file location and an optional external
// command run after every batch.
type StatusConfig struct {
	File    string   `yaml:"file"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// LogConfig controls the run-scoped log file.
type LogConfig struct {
	Dir   string `yaml:"dir"`
	Debug bool   `yaml:"debug"`
}

// DatabaseConfig holds run history storage settings.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite or mysql
	Path   string `yaml:"path"`
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Name   string `yaml:"name"`
	User   string `yaml:"user"`
}

// NotifyConfig holds chat targets for run summaries. Tokens come from the
// environment (SLACK_BOT_TOKEN, DISCORD_BOT_TOKEN).
type NotifyConfig struct {
	Slack   ChannelConfig `yaml:"slack"`
	Discord ChannelConfig `yaml:"discord"`
}

// ChannelConfig is a single chat destination.
type ChannelConfig struct {
	Channel string `yaml:"channel"`
	Token   string `yaml:"-"`
}

// GitHubConfig holds the repository used for commit status reports.
type GitHubConfig struct {
	Owner   string `yaml:"owner"`
	Repo    string `yaml:"repo"`
	Context string `yaml:"context"`
	Token   string `yaml:"-"`
}

// DashboardConfig holds the dashboard listener settings.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// ScheduleConfig holds the cron expression for scheduled status refreshes.
type ScheduleConfig struct {
	Cron string `yaml:"cron"`
}

// DefaultBatchSize is used when batch.size is omitted.
const DefaultBatchSize = 5

// Load reads a YAML config file from path and returns a validated Config.
// A .env file next to the config, if present, is loaded into the process
// environment first so tokens can stay out of the YAML. A malformed .env is
// an error; a missing one is not.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: load %s: %w", envPath, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if !filepath.IsAbs(cfg.Root) {
		cfg.Root = filepath.Join(filepath.Dir(path), cfg.Root)
	}
	return cfg, nil
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Root == "" {
		c.Root = "."
	}
	if len(c.Extensions) == 0 {
		c.Extensions = []string{".js", ".jsx", ".ts", ".tsx"}
	}
	for i, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") {
			c.Extensions[i] = "." + ext
		}
	}
	if c.Exclude == nil {
		c.Exclude = []string{"node_modules", "/build/", "/dist/", ".git/"}
	}
	if len(c.Priority.HighContent) == 0 {
		c.Priority.HighContent = []string{"Service", "service"}
	}
	if len(c.Priority.MediumPath) == 0 {
		c.Priority.MediumPath = []string{"component", "Component", "screen", "Screen"}
	}
	if c.Batch.Size == 0 {
		c.Batch.Size = DefaultBatchSize
	}
	if c.Status.File == "" {
		c.Status.File = "migration-status.json"
	}
	if c.Log.Dir == "" {
		c.Log.Dir = "logs"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = ".humpyard/history.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.Name == "" {
			c.Database.Name = "humpyard"
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
	}
	if c.GitHub.Context == "" {
		c.GitHub.Context = "humpyard/migration"
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
}

// applyEnv pulls secrets from the environment.
func (c *Config) applyEnv() {
	c.Notify.Slack.Token = os.Getenv("SLACK_BOT_TOKEN")
	c.Notify.Discord.Token = os.Getenv("DISCORD_BOT_TOKEN")
	c.GitHub.Token = os.Getenv("GITHUB_TOKEN")
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if len(c.Markers.Migrated) == 0 {
		errs = append(errs, "markers.migrated is required")
	}
	if len(c.Markers.Candidate) == 0 {
		errs = append(errs, "markers.candidate is required")
	}
	if c.Batch.Size < 0 {
		errs = append(errs, fmt.Sprintf("batch.size must be positive, got %d", c.Batch.Size))
	}
	if c.Action.Command == "" && len(c.Action.Rewrites) == 0 {
		errs = append(errs, "action.command or action.rewrites is required")
	}
	for i, r := range c.Action.Rewrites {
		if r.From == "" {
			errs = append(errs, fmt.Sprintf("action.rewrites[%d].from is required", i))
		}
	}
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver must be sqlite or mysql, got %q", c.Database.Driver))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// StatusPath returns the status file path resolved against Root.
func (c *Config) StatusPath() string {
	return c.resolve(c.Status.File)
}

// LogDir returns the log directory resolved against Root.
func (c *Config) LogDir() string {
	return c.resolve(c.Log.Dir)
}

// DatabasePath returns the sqlite file path resolved against Root.
func (c *Config) DatabasePath() string {
	return c.resolve(c.Database.Path)
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}
