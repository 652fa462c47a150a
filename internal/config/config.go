// Package config loads ledgersync settings from YAML, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFile is read when no config path is given. It may be absent.
const DefaultFile = "ledgersync.yaml"

const (
	SourceSupabase = "supabase"
	SourceBigQuery = "bigquery"

	ObjectsSupabase = "supabase"
	ObjectsGCS      = "gcs"
)

// Config holds every setting of the sync service.
type Config struct {
	Source  SourceConfig  `yaml:"source"`
	Objects ObjectsConfig `yaml:"objects"`
	Drive   DriveConfig   `yaml:"drive"`

	// ExportRoot is the local directory receiving ledgers and attachments.
	ExportRoot string `yaml:"export_root"`
	LogLevel   string `yaml:"log_level"`
	// Workers bounds how many entities sync concurrently in daemon mode.
	Workers int `yaml:"workers"`
	// HTTPAddr enables the status API in daemon mode when set, e.g. ":8080".
	HTTPAddr string `yaml:"http_addr"`
	// APIToken, when set, is required as a bearer token by the status API.
	APIToken string `yaml:"api_token"`
	// Timezone is the IANA zone cron schedules are evaluated in.
	Timezone string `yaml:"timezone"`
	// SchemasFile optionally overrides or extends the built-in entity schemas.
	SchemasFile string `yaml:"schemas_file"`

	Entities map[string]EntityConfig `yaml:"entities"`
}

// SourceConfig selects and configures the record source.
type SourceConfig struct {
	Kind     string         `yaml:"kind"`
	URL      string         `yaml:"url"`
	APIKey   string         `yaml:"api_key"`
	PageSize int            `yaml:"page_size"`
	Timeout  time.Duration  `yaml:"timeout"`
	BigQuery BigQueryConfig `yaml:"bigquery"`
}

// BigQueryConfig names the dataset whose tables hold the collections.
type BigQueryConfig struct {
	Project string `yaml:"project"`
	Dataset string `yaml:"dataset"`
}

// ObjectsConfig selects where attachment references are fetched from.
type ObjectsConfig struct {
	// Kind is the store for plain references: supabase or gcs.
	Kind string `yaml:"kind"`
	// GCS enables fetching gs:// references regardless of Kind.
	GCS bool `yaml:"gcs"`
	// Bucket resolves plain references when Kind is gcs.
	Bucket string `yaml:"bucket"`
}

// DriveConfig configures the remote mirror.
type DriveConfig struct {
	Enabled         *bool  `yaml:"enabled"`
	CredentialsFile string `yaml:"credentials_file"`
	TokenFile       string `yaml:"token_file"`
}

// On reports whether mirroring is enabled. Unset means enabled.
func (d DriveConfig) On() bool {
	return d.Enabled == nil || *d.Enabled
}

// EntityConfig toggles and reschedules one entity.
type EntityConfig struct {
	Enabled  *bool  `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

// Load reads .env, then the YAML file at path, then environment overrides,
// and applies defaults. An empty path reads DefaultFile if it exists.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&cfg.Source.URL, "SUPABASE_URL")
	set(&cfg.Source.APIKey, "API_KEY")
	set(&cfg.Source.BigQuery.Project, "BIGQUERY_PROJECT")
	set(&cfg.Source.BigQuery.Dataset, "BIGQUERY_DATASET")
	set(&cfg.ExportRoot, "LEDGERSYNC_EXPORT_ROOT")
	set(&cfg.Drive.CredentialsFile, "GOOGLE_CREDENTIALS_FILE")
	set(&cfg.Drive.TokenFile, "GOOGLE_TOKEN_FILE")
	set(&cfg.LogLevel, "LEDGERSYNC_LOG_LEVEL")
	set(&cfg.APIToken, "LEDGERSYNC_API_TOKEN")

	if v := getenv("LEDGERSYNC_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LEDGERSYNC_WORKERS: %w", err)
		}
		cfg.Workers = n
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Source.Kind == "" {
		cfg.Source.Kind = SourceSupabase
	}
	if cfg.Source.PageSize == 0 {
		cfg.Source.PageSize = 1000
	}
	if cfg.Source.Timeout == 0 {
		cfg.Source.Timeout = 60 * time.Second
	}
	cfg.Source.URL = strings.TrimRight(cfg.Source.URL, "/")
	if cfg.Objects.Kind == "" {
		cfg.Objects.Kind = ObjectsSupabase
	}
	if cfg.Drive.CredentialsFile == "" {
		cfg.Drive.CredentialsFile = "credentials.json"
	}
	if cfg.Drive.TokenFile == "" {
		cfg.Drive.TokenFile = "token.json"
	}
	if cfg.ExportRoot == "" {
		cfg.ExportRoot = "exports"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Workers == 0 {
		cfg.Workers = 3
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}
}

func validate(cfg *Config) error {
	switch cfg.Source.Kind {
	case SourceSupabase, SourceBigQuery:
	default:
		return fmt.Errorf("source.kind must be %q or %q, got %q", SourceSupabase, SourceBigQuery, cfg.Source.Kind)
	}
	switch cfg.Objects.Kind {
	case ObjectsSupabase, ObjectsGCS:
	default:
		return fmt.Errorf("objects.kind must be %q or %q, got %q", ObjectsSupabase, ObjectsGCS, cfg.Objects.Kind)
	}
	if cfg.Objects.Kind == ObjectsGCS && cfg.Objects.Bucket == "" {
		return fmt.Errorf("objects.bucket is required when objects.kind is %q", ObjectsGCS)
	}
	if cfg.Source.PageSize < 0 {
		return fmt.Errorf("source.page_size must be positive")
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	return nil
}

// RequireSource checks that the selected record source has its credentials.
func (c *Config) RequireSource() error {
	var missing []string
	switch c.Source.Kind {
	case SourceSupabase:
		if c.Source.URL == "" {
			missing = append(missing, "source.url (SUPABASE_URL)")
		}
		if c.Source.APIKey == "" {
			missing = append(missing, "source.api_key (API_KEY)")
		}
	case SourceBigQuery:
		if c.Source.BigQuery.Project == "" {
			missing = append(missing, "source.bigquery.project (BIGQUERY_PROJECT)")
		}
		if c.Source.BigQuery.Dataset == "" {
			missing = append(missing, "source.bigquery.dataset (BIGQUERY_DATASET)")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Location returns the zone cron schedules are evaluated in.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// EntityEnabled reports whether the named entity takes part in sync runs.
func (c *Config) EntityEnabled(name string) bool {
	e, ok := c.Entities[name]
	return !ok || e.Enabled == nil || *e.Enabled
}

// EntitySchedule returns the configured schedule for name, else fallback.
func (c *Config) EntitySchedule(name, fallback string) string {
	if e, ok := c.Entities[name]; ok && e.Schedule != "" {
		return e.Schedule
	}
	return fallback
}
