// Package config loads server configuration from a YAML file and TP_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/evcraddock/trip-planner/internal/enrich"
	"github.com/evcraddock/trip-planner/internal/geo"
	"github.com/evcraddock/trip-planner/internal/job"
	"github.com/evcraddock/trip-planner/internal/synth"
)

// Config is the server configuration.
type Config struct {
	Port    int    `yaml:"port"`
	DBPath  string `yaml:"db_path"`
	DevMode bool   `yaml:"dev_mode"`
	// NATSURL enables status events when set.
	NATSURL string `yaml:"nats_url"`

	OpenAI     OpenAI     `yaml:"openai"`
	Mapbox     Mapbox     `yaml:"mapbox"`
	Worker     Worker     `yaml:"worker"`
	Enrich     Enrich     `yaml:"enrich"`
	Generation Generation `yaml:"generation"`
}

type OpenAI struct {
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// Mapbox configures the geocoding provider. Without an access token
// locations are never resolved.
type Mapbox struct {
	AccessToken string        `yaml:"access_token"`
	BaseURL     string        `yaml:"base_url"`
	Timeout     time.Duration `yaml:"timeout"`
	// RequestInterval is the minimum gap between provider calls.
	RequestInterval time.Duration `yaml:"request_interval"`
}

type Worker struct {
	Interval     time.Duration `yaml:"interval"`
	BatchSize    int           `yaml:"batch_size"`
	GroupTimeout time.Duration `yaml:"group_timeout"`
}

type Enrich struct {
	Concurrency int `yaml:"concurrency"`
}

type Generation struct {
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	sc := synth.DefaultConfig()
	return Config{
		Port: 8080,
		OpenAI: OpenAI{
			Model:      sc.Model,
			Timeout:    sc.Timeout,
			MaxRetries: sc.MaxRetries,
		},
		Mapbox: Mapbox{
			Timeout:         10 * time.Second,
			RequestInterval: 100 * time.Millisecond,
		},
		Worker: Worker{
			Interval:     geo.DefaultInterval,
			BatchSize:    geo.DefaultBatchSize,
			GroupTimeout: geo.DefaultGroupTimeout,
		},
		Enrich:     Enrich{Concurrency: enrich.DefaultConcurrency},
		Generation: Generation{Timeout: job.DefaultTimeout},
	}
}

// Load reads the configuration with Read and validates it.
func Load(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read loads path over the defaults, skipping the file when path is empty,
// then applies environment overrides. It does not validate.
func Read(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.DBPath = envOrDefault("TP_DB_PATH", c.DBPath)
	c.NATSURL = envOrDefault("TP_NATS_URL", c.NATSURL)
	c.OpenAI.APIKey = envOrDefault("TP_OPENAI_API_KEY", envOrDefault("OPENAI_API_KEY", c.OpenAI.APIKey))
	c.OpenAI.Model = envOrDefault("TP_OPENAI_MODEL", c.OpenAI.Model)
	c.OpenAI.BaseURL = envOrDefault("TP_OPENAI_BASE_URL", c.OpenAI.BaseURL)
	c.Mapbox.AccessToken = envOrDefault("TP_MAPBOX_ACCESS_TOKEN", c.Mapbox.AccessToken)
	c.Mapbox.BaseURL = envOrDefault("TP_MAPBOX_BASE_URL", c.Mapbox.BaseURL)

	var errs []error
	if v := os.Getenv("TP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		errs = append(errs, envError("TP_PORT", err))
		c.Port = port
	}
	if v := os.Getenv("TP_DEV_MODE"); v != "" {
		dev, err := strconv.ParseBool(v)
		errs = append(errs, envError("TP_DEV_MODE", err))
		c.DevMode = dev
	}
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"TP_WORKER_INTERVAL", &c.Worker.Interval},
		{"TP_MAPBOX_REQUEST_INTERVAL", &c.Mapbox.RequestInterval},
		{"TP_GENERATION_TIMEOUT", &c.Generation.Timeout},
	}
	for _, d := range durations {
		if v := os.Getenv(d.key); v != "" {
			parsed, err := time.ParseDuration(v)
			errs = append(errs, envError(d.key, err))
			*d.dst = parsed
		}
	}
	return errors.Join(errs...)
}

func envError(key string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", key, err)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 1 and 65535, got %d", c.Port))
	}
	if c.OpenAI.APIKey == "" {
		errs = append(errs, errors.New("openai.api_key is required (or TP_OPENAI_API_KEY)"))
	}
	if c.OpenAI.Model == "" {
		errs = append(errs, errors.New("openai.model is required"))
	}
	if c.OpenAI.MaxRetries < 0 {
		errs = append(errs, errors.New("openai.max_retries must not be negative"))
	}
	if c.Mapbox.RequestInterval < 0 {
		errs = append(errs, errors.New("mapbox.request_interval must not be negative"))
	}
	if c.Worker.Interval <= 0 {
		errs = append(errs, errors.New("worker.interval must be positive"))
	}
	if c.Worker.BatchSize <= 0 {
		errs = append(errs, errors.New("worker.batch_size must be positive"))
	}
	if c.Worker.GroupTimeout <= 0 {
		errs = append(errs, errors.New("worker.group_timeout must be positive"))
	}
	if c.Enrich.Concurrency <= 0 {
		errs = append(errs, errors.New("enrich.concurrency must be positive"))
	}
	if c.Generation.Timeout <= 0 {
		errs = append(errs, errors.New("generation.timeout must be positive"))
	}
	return errors.Join(errs...)
}

// Synth returns the synthesizer settings.
func (c Config) Synth() synth.Config {
	sc := synth.DefaultConfig()
	sc.APIKey = c.OpenAI.APIKey
	sc.Model = c.OpenAI.Model
	sc.BaseURL = c.OpenAI.BaseURL
	sc.MaxRetries = c.OpenAI.MaxRetries
	if c.OpenAI.Timeout > 0 {
		sc.Timeout = c.OpenAI.Timeout
	}
	return sc
}
