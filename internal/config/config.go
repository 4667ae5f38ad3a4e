// Package config loads studio and service settings from file, environment and flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/psantana5/denoise-studio/pkg/client"
	"github.com/psantana5/denoise-studio/pkg/logging"
	"github.com/psantana5/denoise-studio/pkg/store"
	"github.com/psantana5/denoise-studio/pkg/tracing"
)

// EnvPrefix prefixes every automatically bound environment variable
const EnvPrefix = "DENOISE"

// Config is the merged configuration
type Config struct {
	APIURL       string        `mapstructure:"api_url"`
	PollInterval time.Duration `mapstructure:"poll_interval"`

	History  HistoryConfig  `mapstructure:"history"`
	Log      LogConfig      `mapstructure:"log"`
	TLS      TLSConfig      `mapstructure:"tls"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Recorder RecorderConfig `mapstructure:"recorder"`
	Service  ServiceConfig  `mapstructure:"service"`
}

// HistoryConfig selects the history backend
type HistoryConfig struct {
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
	Path    string `mapstructure:"path"`
	// Originals holds the submitted audio that history entries point at
	Originals string `mapstructure:"originals"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TLSConfig holds client certificates for talking to a TLS service
type TLSConfig struct {
	CAFile   string `mapstructure:"ca_file"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// RecorderConfig selects the ffmpeg capture input
type RecorderConfig struct {
	Format string `mapstructure:"format"`
	Device string `mapstructure:"device"`
}

// ServiceConfig configures the development service
type ServiceConfig struct {
	Port       string        `mapstructure:"port"`
	WorkDir    string        `mapstructure:"work_dir"`
	StepDelay  time.Duration `mapstructure:"step_delay"`
	Retention  time.Duration `mapstructure:"retention"`
	RateLimit  float64       `mapstructure:"rate_limit"`
	RateBurst  int           `mapstructure:"rate_burst"`
	CertFile   string        `mapstructure:"cert_file"`
	KeyFile    string        `mapstructure:"key_file"`
	TLSEnabled bool          `mapstructure:"tls"`
}

// DefaultDir is $HOME/.denoise-studio, or .denoise-studio when there is no home
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".denoise-studio"
	}
	return filepath.Join(home, ".denoise-studio")
}

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	dir := DefaultDir()

	v.SetDefault("api_url", client.DefaultBaseURL)
	v.SetDefault("poll_interval", 1500*time.Millisecond)

	v.SetDefault("history.backend", "file")
	v.SetDefault("history.path", filepath.Join(dir, "history"))
	v.SetDefault("history.originals", filepath.Join(dir, "originals"))

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")

	v.SetDefault("recorder.format", defaultCaptureFormat())
	v.SetDefault("recorder.device", "default")

	v.SetDefault("service.port", "8000")
	v.SetDefault("service.work_dir", filepath.Join(os.TempDir(), "denoise-studio"))
	v.SetDefault("service.step_delay", 300*time.Millisecond)
	v.SetDefault("service.retention", time.Hour)
	v.SetDefault("service.rate_limit", 20.0)
	v.SetDefault("service.rate_burst", 40)
	v.SetDefault("service.cert_file", filepath.Join(dir, "certs", "service.crt"))
	v.SetDefault("service.key_file", filepath.Join(dir, "certs", "service.key"))
}

// Load reads cfgFile, or config.yaml under DefaultDir when cfgFile is empty, then the environment.
// A missing default file is not an error.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(DefaultDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("api_url", client.EnvBaseURL)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll_interval must be positive, got %s", cfg.PollInterval)
	}
	return &cfg, nil
}

// StoreConfig maps the history settings onto a KV backend configuration
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Type: c.History.Backend,
		DSN:  c.History.DSN,
		Path: c.History.Path,
	}
}

// NewLogger builds a stderr logger from the log settings
func (c *Config) NewLogger() *logging.Logger {
	return logging.NewLogger(logging.ParseLevel(c.Log.Level), c.Log.Format == "json")
}

// TracingFor returns the tracer settings for serviceName
func (c *Config) TracingFor(serviceName, version string) tracing.Config {
	return tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    "development",
		OTLPEndpoint:   c.Tracing.Endpoint,
		Enabled:        c.Tracing.Enabled,
	}
}

// ClientTLS reports whether client certificates or a CA are configured
func (c *Config) ClientTLS() bool {
	return c.TLS.CAFile != "" || c.TLS.CertFile != ""
}
