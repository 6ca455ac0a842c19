package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/ilyakaznacheev/cleanenv"
)

// Keys of the persisted remote settings.
const (
	SettingURL             = "sb_url"
	SettingKey             = "sb_key"
	SettingRecordsTable    = "sb_table"
	SettingIndicatorsTable = "sb_indicators_table"
)

const (
	DefaultRecordsTable    = "dofa_records"
	DefaultIndicatorsTable = "saam_indicators"
)

// Config models dofaline.yml. Environment variables override file values;
// secrets are only read from the environment.
type Config struct {
	Server   ServerConfig `yaml:"server"`
	Remote   RemoteConfig `yaml:"remote"`
	Sync     SyncConfig   `yaml:"sync"`
	Log      LogConfig    `yaml:"log"`
	Timezone string       `yaml:"timezone" env:"DOFALINE_TIMEZONE" env-default:"Local"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" env:"DOFALINE_ADDR" env-default:"127.0.0.1:8080"`
	// JWTSecret enables bearer authentication on the API when set.
	JWTSecret string `yaml:"-" env:"DOFALINE_JWT_SECRET"`
}

// RemoteConfig locates the PostgREST backend the collections are mirrored to.
type RemoteConfig struct {
	URL             string        `yaml:"url" env:"DOFALINE_REMOTE_URL"`
	Key             string        `yaml:"-" env:"DOFALINE_REMOTE_KEY"`
	RecordsTable    string        `yaml:"records_table" env:"DOFALINE_REMOTE_RECORDS_TABLE" env-default:"dofa_records"`
	IndicatorsTable string        `yaml:"indicators_table" env:"DOFALINE_REMOTE_INDICATORS_TABLE" env-default:"saam_indicators"`
	Timeout         time.Duration `yaml:"timeout" env:"DOFALINE_REMOTE_TIMEOUT" env-default:"10s"`
}

type SyncConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" env:"DOFALINE_SYNC_POLL_INTERVAL" env-default:"60s"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"DOFALINE_LOG_LEVEL" env-default:"info"`
	// Format is "json" or "console".
	Format string `yaml:"format" env:"DOFALINE_LOG_FORMAT" env-default:"console"`
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "dofaline.yml")
}

// Load reads dofaline.yml from the workspace when present, then applies the
// environment. A missing file is not an error.
func Load(workspace string) (*Config, error) {
	cfg := &Config{}
	path := Path(workspace)
	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("read environment: %w", err)
		}
	} else {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the config can be used to start the service.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("config.timezone: %w", err)
	}
	if c.Sync.PollInterval <= 0 {
		return fmt.Errorf("config.sync.poll_interval must be positive")
	}
	if c.Remote.Timeout <= 0 {
		return fmt.Errorf("config.remote.timeout must be positive")
	}
	return c.Remote.Validate()
}

// Location resolves the timezone that calendar dates are evaluated in.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Enabled reports whether both the base URL and the key are set.
func (r RemoteConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" && strings.TrimSpace(r.Key) != ""
}

func (r RemoteConfig) Validate() error {
	if r.URL == "" {
		return nil
	}
	u, err := url.Parse(r.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("remote url %q must be an absolute http(s) url", r.URL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("remote url %q must use http or https", r.URL)
	}
	return nil
}

// WithSettings overlays persisted settings on r. Persisted values win over
// file and environment values.
func (r RemoteConfig) WithSettings(s map[string]string) RemoteConfig {
	if v := s[SettingURL]; v != "" {
		r.URL = v
	}
	if v := s[SettingKey]; v != "" {
		r.Key = v
	}
	if v := s[SettingRecordsTable]; v != "" {
		r.RecordsTable = v
	}
	if v := s[SettingIndicatorsTable]; v != "" {
		r.IndicatorsTable = v
	}
	if r.RecordsTable == "" {
		r.RecordsTable = DefaultRecordsTable
	}
	if r.IndicatorsTable == "" {
		r.IndicatorsTable = DefaultIndicatorsTable
	}
	return r
}

// Settings returns r in the persisted settings layout.
func (r RemoteConfig) Settings() map[string]string {
	return map[string]string{
		SettingURL:             strings.TrimSpace(r.URL),
		SettingKey:             strings.TrimSpace(r.Key),
		SettingRecordsTable:    strings.TrimSpace(r.RecordsTable),
		SettingIndicatorsTable: strings.TrimSpace(r.IndicatorsTable),
	}
}

// MaskedKey hides all but the last four characters of the key.
func (r RemoteConfig) MaskedKey() string {
	if len(r.Key) <= 4 {
		return strings.Repeat("*", len(r.Key))
	}
	return strings.Repeat("*", len(r.Key)-4) + r.Key[len(r.Key)-4:]
}

// GenerateDefault returns a commented starter dofaline.yml.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `# dofaline workspace configuration.
# Secrets come from the environment: DOFALINE_REMOTE_KEY, DOFALINE_JWT_SECRET.
timezone: Local

server:
  addr: 127.0.0.1:8080

remote:
  url: ""
  records_table: dofa_records
  indicators_table: saam_indicators
  timeout: 10s

sync:
  poll_interval: 60s

log:
  level: info
  format: console
`
