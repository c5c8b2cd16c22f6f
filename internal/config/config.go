package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// AppConfig is the loaded configuration for the running service
var AppConfig *Config

// Config is the root of a service's YAML configuration
type Config struct {
	Metadata      Metadata                     `yaml:"metadata"`
	Storage       StorageConfig                `yaml:"storage"`
	Server        ServerConfig                 `yaml:"server"`
	Tracing       TracingConfig                `yaml:"tracing"`
	ContentTypes  map[string]ContentTypeConfig `yaml:"content_types"`
	Notifications NotificationConfig           `yaml:"notifications"`
	Sync          SyncConfig                   `yaml:"sync"`
}

// Metadata identifies the service
type Metadata struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// StorageConfig describes local storage paths and limits
type StorageConfig struct {
	BasePath     string `yaml:"base_path"`
	MinFreeSpace string `yaml:"min_free_space"`

	// MinFreeSpaceBytes is derived from MinFreeSpace during validation
	MinFreeSpaceBytes int64 `yaml:"-"`
}

// ServerConfig configures the status HTTP server
type ServerConfig struct {
	Port        int    `yaml:"port"`
	Environment string `yaml:"environment"`
}

// TracingConfig configures the OTLP tracer
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// ContentTypeConfig is the declarative config of one content type
type ContentTypeConfig struct {
	LocalPath       string         `yaml:"local_path"`
	Source          string         `yaml:"source"`
	MaxSize         string         `yaml:"max_size"`
	Schedule        string         `yaml:"schedule"`
	IncludeFolders  []string       `yaml:"include_folders"`
	ExcludePatterns []string       `yaml:"exclude_patterns"`
	Filters         *FilterRules   `yaml:"filters"`
	PriorityRules   []PriorityRule `yaml:"priority_rules"`

	// MaxSizeBytes is derived from MaxSize during validation
	MaxSizeBytes int64 `yaml:"-"`
}

// FilterRules restrict which items a content handler considers
type FilterRules struct {
	MinRating float64  `yaml:"min_rating"`
	MinYear   int      `yaml:"min_year"`
	Genres    []string `yaml:"genres"`
}

// PriorityRule contributes a weighted component to an item's priority score
type PriorityRule struct {
	Field  string   `yaml:"field"`
	Weight float64  `yaml:"weight"`
	Values []string `yaml:"values"`
}

// NotificationConfig configures the webhook notification sink
type NotificationConfig struct {
	Enabled         bool   `yaml:"enabled"`
	WebhookURL      string `yaml:"webhook_url"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// SyncConfig tunes engine-wide sync behavior
type SyncConfig struct {
	Cooldown   string `yaml:"cooldown"`
	Timeout    string `yaml:"timeout"`
	Retries    int    `yaml:"retries"`
	RetryDelay string `yaml:"retry_delay"`

	// Derived during validation
	CooldownDuration   time.Duration `yaml:"-"`
	TimeoutDuration    time.Duration `yaml:"-"`
	RetryDelayDuration time.Duration `yaml:"-"`
}

// envPlaceholder matches ${VAR} and ${VAR:-default}
var envPlaceholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// Load reads, substitutes, parses and validates the YAML config at path,
// setting AppConfig on success
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	substituted, err := substituteEnv(string(raw))
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(substituted), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	AppConfig = &cfg
	return &cfg, nil
}

// substituteEnv expands ${VAR} and ${VAR:-default} placeholders. An unset
// variable without a default is a fatal config error.
func substituteEnv(raw string) (string, error) {
	var missing []string

	out := envPlaceholder.ReplaceAllStringFunc(raw, func(match string) string {
		groups := envPlaceholder.FindStringSubmatch(match)
		name, hasDefault, defaultVal := groups[1], groups[2] != "", groups[3]

		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		if hasDefault {
			return defaultVal
		}
		missing = append(missing, name)
		return match
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("unset environment variables without defaults: %v", missing)
	}
	return out, nil
}

// validate checks the schema and derives parsed size/duration fields
func (c *Config) validate() error {
	if c.Metadata.Name == "" {
		return fmt.Errorf("config validation failed: metadata.name is required")
	}
	if c.Metadata.Version == "" {
		// the version also feeds the tracing resource, so it must never be blank
		c.Metadata.Version = "dev"
	}
	if c.Storage.BasePath == "" {
		return fmt.Errorf("config validation failed: storage.base_path is required")
	}
	if len(c.ContentTypes) == 0 {
		return fmt.Errorf("config validation failed: at least one content type is required")
	}

	if c.Storage.MinFreeSpace != "" {
		size, err := ParseSize(c.Storage.MinFreeSpace)
		if err != nil {
			return fmt.Errorf("config validation failed: storage.min_free_space: %w", err)
		}
		c.Storage.MinFreeSpaceBytes = size
	}

	cronParser := cron.ParseStandard
	for name, ct := range c.ContentTypes {
		if ct.LocalPath == "" {
			return fmt.Errorf("config validation failed: content_types.%s.local_path is required", name)
		}
		if ct.Source == "" {
			return fmt.Errorf("config validation failed: content_types.%s.source is required", name)
		}
		if ct.MaxSize != "" {
			size, err := ParseSize(ct.MaxSize)
			if err != nil {
				return fmt.Errorf("config validation failed: content_types.%s.max_size: %w", name, err)
			}
			ct.MaxSizeBytes = size
		}
		if ct.Schedule != "" {
			if _, err := cronParser(ct.Schedule); err != nil {
				return fmt.Errorf("config validation failed: content_types.%s.schedule %q: %w", name, ct.Schedule, err)
			}
		}
		c.ContentTypes[name] = ct
	}

	if c.Notifications.Enabled && c.Notifications.WebhookURL == "" {
		return fmt.Errorf("config validation failed: notifications.webhook_url is required when notifications are enabled")
	}

	if err := c.Sync.applyDefaults(); err != nil {
		return err
	}

	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Environment == "" {
		c.Server.Environment = "development"
	}

	return nil
}

// applyDefaults parses sync durations, falling back to the engine defaults
func (s *SyncConfig) applyDefaults() error {
	var err error

	s.CooldownDuration = 5 * time.Second
	if s.Cooldown != "" {
		if s.CooldownDuration, err = ParseDurationString(s.Cooldown); err != nil {
			return fmt.Errorf("config validation failed: sync.cooldown: %w", err)
		}
	}

	s.TimeoutDuration = 300 * time.Second
	if s.Timeout != "" {
		if s.TimeoutDuration, err = ParseDurationString(s.Timeout); err != nil {
			return fmt.Errorf("config validation failed: sync.timeout: %w", err)
		}
	}

	s.RetryDelayDuration = 5 * time.Second
	if s.RetryDelay != "" {
		if s.RetryDelayDuration, err = ParseDurationString(s.RetryDelay); err != nil {
			return fmt.Errorf("config validation failed: sync.retry_delay: %w", err)
		}
	}

	if s.Retries == 0 {
		s.Retries = 2
	}

	return nil
}
