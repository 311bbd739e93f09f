package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"eventhub/internal/db"
	"eventhub/internal/sources"
)

// Config models eventhub.yml.
type Config struct {
	City struct {
		Name     string `yaml:"name"`
		Timezone string `yaml:"timezone"`
	} `yaml:"city"`
	Database struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
	Scrape struct {
		RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"`
		RunTimeoutSeconds     int     `yaml:"run_timeout_seconds"`
		UserAgent             string  `yaml:"user_agent"`
		RatePerSecond         float64 `yaml:"rate_per_second"`
		Burst                 int     `yaml:"burst"`
		Archive               bool    `yaml:"archive"`
	} `yaml:"scrape"`
	Sources  map[string]SourceConfig `yaml:"sources"`
	Schedule struct {
		IntervalMinutes int `yaml:"interval_minutes"`
	} `yaml:"schedule"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret  string `yaml:"jwt_secret"`
		CronSecret string `yaml:"cron_secret"`
	} `yaml:"auth"`
	Notify struct {
		Webhooks []WebhookConfig `yaml:"webhooks"`
		NATS     struct {
			URL    string `yaml:"url"`
			Prefix string `yaml:"prefix"`
		} `yaml:"nats"`
		AMQP struct {
			URL      string `yaml:"url"`
			Exchange string `yaml:"exchange"`
		} `yaml:"amqp"`
	} `yaml:"notify"`
	Archive struct {
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Bucket    string `yaml:"bucket"`
		UseSSL    bool   `yaml:"use_ssl"`
	} `yaml:"archive"`
}

type SourceConfig struct {
	Enabled *bool  `yaml:"enabled"`
	URL     string `yaml:"url"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.City.Name) == "" {
		return fmt.Errorf("config.city.name is required")
	}
	if c.City.Timezone != "" {
		if _, err := time.LoadLocation(c.City.Timezone); err != nil {
			return fmt.Errorf("config.city.timezone: %w", err)
		}
	}
	switch c.Database.Driver {
	case "", db.DriverSQLite:
	case db.DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("config.database.dsn is required for driver %s", db.DriverPostgres)
		}
	default:
		return fmt.Errorf("config.database.driver must be %s or %s", db.DriverSQLite, db.DriverPostgres)
	}
	if c.Scrape.RequestTimeoutSeconds < 0 || c.Scrape.RunTimeoutSeconds < 0 {
		return fmt.Errorf("config.scrape timeouts must not be negative")
	}
	if c.Scrape.RatePerSecond < 0 {
		return fmt.Errorf("config.scrape.rate_per_second must not be negative")
	}
	for key := range c.Sources {
		if _, err := sources.ParseID(key); err != nil {
			return fmt.Errorf("config.sources: %w", err)
		}
	}
	if c.Schedule.IntervalMinutes < 0 {
		return fmt.Errorf("config.schedule.interval_minutes must not be negative")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	for i, hook := range c.Notify.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.notify.webhooks[%d].url is required", i)
		}
	}
	if c.Scrape.Archive {
		if c.Archive.Endpoint == "" || c.Archive.Bucket == "" {
			return fmt.Errorf("config.archive.endpoint and bucket are required when scrape.archive is on")
		}
	}
	return nil
}

// EnabledSources lists enabled sources in run order. Sources absent from the
// config are enabled.
func (c *Config) EnabledSources() []sources.ID {
	var out []sources.ID
	for _, id := range sources.Order {
		if sc, ok := c.source(id); ok && sc.Enabled != nil && !*sc.Enabled {
			continue
		}
		out = append(out, id)
	}
	return out
}

// SourceURLs returns listing page overrides keyed by source.
func (c *Config) SourceURLs() map[sources.ID]string {
	out := map[sources.ID]string{}
	for _, id := range sources.Order {
		if sc, ok := c.source(id); ok && sc.URL != "" {
			out[id] = sc.URL
		}
	}
	return out
}

// source merges every entry that names id, by slug or display name. Any entry
// disabling the source wins.
func (c *Config) source(id sources.ID) (SourceConfig, bool) {
	var merged SourceConfig
	found := false
	for key, sc := range c.Sources {
		if parsed, err := sources.ParseID(key); err != nil || parsed != id {
			continue
		}
		found = true
		if sc.URL != "" {
			merged.URL = sc.URL
		}
		if sc.Enabled != nil && (merged.Enabled == nil || !*sc.Enabled) {
			merged.Enabled = sc.Enabled
		}
	}
	return merged, found
}

func (c *Config) RequestTimeout() time.Duration {
	return seconds(c.Scrape.RequestTimeoutSeconds, sources.DefaultRequestTimeout)
}

func (c *Config) RunTimeout() time.Duration {
	return seconds(c.Scrape.RunTimeoutSeconds, 2*time.Minute)
}

// Interval is the serve-mode schedule. Zero disables it.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Schedule.IntervalMinutes) * time.Minute
}

func seconds(n int, def time.Duration) time.Duration {
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "eventhub.yml")
}

// Load reads and validates the workspace config, using defaults when the file
// does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes. Missing fields
// keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		return nil, fmt.Errorf("invalid default yaml: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `city:
  name: Sydney
  timezone: Australia/Sydney

database:
  driver: sqlite

scrape:
  request_timeout_seconds: 15
  run_timeout_seconds: 120
  rate_per_second: 1
  burst: 2
  archive: false

sources:
  seed: {enabled: true}
  eventbrite: {enabled: true}
  timeout: {enabled: true}
  council: {enabled: true}
  broadsheet: {enabled: true}

schedule:
  interval_minutes: 0

server:
  addr: 127.0.0.1:8080
  base_path: /v0
`
