// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration for YAML "1s"/"500ms" strings.
type Duration struct{ time.Duration }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string (e.g., \"2s\"): %w", err)
	}
	// env expansion (rare, but supported)
	s = expandEnvDefault(s)
	if s == "" {
		d.Duration = 0
		return nil
	}
	dd, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = dd
	return nil
}

type Config struct {
	LogLevel string `yaml:"logLevel"` // info | debug | warn | error

	Device struct {
		MemberID        string `yaml:"memberId"`
		ID              string `yaml:"id"`
		Listen          string `yaml:"listen"` // e.g., ":8080"
		KeystorePath    string `yaml:"keystorePath"`
		KeystorePassEnv string `yaml:"keystorePassEnv"` // name of the env var holding the keystore passphrase
	} `yaml:"device"`

	Storage struct {
		Path string `yaml:"path"` // sqlite DSN / file path
	} `yaml:"storage"`

	Relay struct {
		Endpoint     string   `yaml:"endpoint"`     // e.g., https://relay.buds.app
		TokenEnv     string   `yaml:"tokenEnv"`      // name of the env var holding the bearer token
		PollInterval Duration `yaml:"pollInterval"` // housekeeper sweep cadence
	} `yaml:"relay"`

	Sync struct {
		MaxRetries          int      `yaml:"maxRetries"`
		MaxQueueAgeMs       int64    `yaml:"maxQueueAgeMs"`
		BackfillLockTTLMs   int64    `yaml:"backfillLockTtlMs"`
		QueueDrainLockTTLMs int64    `yaml:"queueDrainLockTtlMs"`
		BackfillBackoffMs   []int64  `yaml:"backfillBackoffMs"`
		FetchLimit          int      `yaml:"fetchLimit"`
		ReaperInterval      Duration `yaml:"reaperInterval"`
	} `yaml:"sync"`

	Metrics struct {
		Enable bool   `yaml:"enable"`
		Path   string `yaml:"path"` // e.g., "/metrics"
	} `yaml:"metrics"`
}

// Load reads, environment-expands, parses YAML, applies defaults, and validates.
func Load(path string) (*Config, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// First pass: basic YAML → struct (strings may still contain ${} tokens)
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	// Expand environment variables (with defaults) on known string fields.
	cfg.LogLevel = expandEnvDefault(cfg.LogLevel)

	cfg.Device.MemberID = expandEnvDefault(cfg.Device.MemberID)
	cfg.Device.ID = expandEnvDefault(cfg.Device.ID)
	cfg.Device.Listen = expandEnvDefault(cfg.Device.Listen)
	cfg.Device.KeystorePath = expandEnvDefault(cfg.Device.KeystorePath)
	cfg.Device.KeystorePassEnv = expandEnvDefault(cfg.Device.KeystorePassEnv)

	cfg.Storage.Path = expandEnvDefault(cfg.Storage.Path)

	cfg.Relay.Endpoint = expandEnvDefault(cfg.Relay.Endpoint)
	cfg.Relay.TokenEnv = expandEnvDefault(cfg.Relay.TokenEnv)

	cfg.Metrics.Path = expandEnvDefault(cfg.Metrics.Path)

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(c *Config) {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Device.Listen == "" {
		c.Device.Listen = ":8080"
	}
	if c.Device.KeystorePath == "" {
		c.Device.KeystorePath = "./data/device.keystore"
	}
	if c.Device.KeystorePassEnv == "" {
		c.Device.KeystorePassEnv = "BUDS_KEYSTORE_PASSPHRASE"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "./data/buds-sync.db"
	}
	if c.Relay.TokenEnv == "" {
		c.Relay.TokenEnv = "BUDS_RELAY_TOKEN"
	}
	if c.Relay.PollInterval.Duration == 0 {
		c.Relay.PollInterval = Duration{Duration: 15 * time.Second}
	}
	if c.Sync.MaxRetries == 0 {
		c.Sync.MaxRetries = 5
	}
	if c.Sync.MaxQueueAgeMs == 0 {
		c.Sync.MaxQueueAgeMs = 7 * 24 * 60 * 60 * 1000
	}
	if c.Sync.BackfillLockTTLMs == 0 {
		c.Sync.BackfillLockTTLMs = 15000
	}
	if c.Sync.QueueDrainLockTTLMs == 0 {
		c.Sync.QueueDrainLockTTLMs = 15000
	}
	if len(c.Sync.BackfillBackoffMs) == 0 {
		c.Sync.BackfillBackoffMs = []int64{5000, 15000, 60000, 300000, 900000}
	}
	if c.Sync.FetchLimit == 0 {
		c.Sync.FetchLimit = 500
	}
	if c.Sync.ReaperInterval.Duration == 0 {
		c.Sync.ReaperInterval = Duration{Duration: 30 * time.Second}
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

func validate(c *Config) error {
	if c.Device.MemberID == "" {
		return errors.New("device.memberId is required")
	}
	if c.Device.ID == "" {
		return errors.New("device.id is required")
	}
	if c.Device.Listen == "" {
		return errors.New("device.listen is required")
	}
	if c.Storage.Path == "" {
		return errors.New("storage.path is required")
	}
	if c.Relay.Endpoint == "" {
		return errors.New("relay.endpoint is required")
	}
	if c.Relay.PollInterval.Duration < 1*time.Second {
		return fmt.Errorf("relay.pollInterval too small: %s", c.Relay.PollInterval.Duration)
	}
	return nil
}

// --- env expansion with ${VAR} and ${VAR:default} ---

var envRe = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvDefault replaces ${VAR} with os.Getenv("VAR"),
// and ${VAR:default} with env value or "default" if unset.
func expandEnvDefault(s string) string {
	if s == "" {
		return s
	}
	return envRe.ReplaceAllStringFunc(s, func(m string) string {
		parts := envRe.FindStringSubmatch(m)
		if len(parts) != 3 {
			return m
		}
		name := parts[1]
		def := parts[2]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return def
	})
}
