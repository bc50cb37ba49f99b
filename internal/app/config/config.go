package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/IPrometheusI/solar-daq/internal/adapters/session"
)

type Config struct {
	Window     WindowConfig     `yaml:"window"`
	Output     OutputConfig     `yaml:"output"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Influx     InfluxConfig     `yaml:"influx"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// WindowConfig is the daily operating range; an end at or before the start
// crosses midnight.
type WindowConfig struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

type OutputConfig struct {
	Dir string `yaml:"dir"`
}

type CheckpointConfig struct {
	Path       string `yaml:"path"`
	BackupPath string `yaml:"backup_path"`
}

// InfluxConfig identifies the remote time-series store. An empty URL runs
// the rig in file-only mode. Every value can be overridden through the
// SOLAR_DAQ_INFLUX_* environment variables.
type InfluxConfig struct {
	URL         string            `yaml:"url"`
	Token       string            `yaml:"token"`
	Org         string            `yaml:"org"`
	Bucket      string            `yaml:"bucket"`
	Measurement string            `yaml:"measurement"`
	Tags        map[string]string `yaml:"tags"`

	FailureThreshold  int      `yaml:"failure_threshold"`
	ReconnectAttempts int      `yaml:"reconnect_attempts"`
	ReconnectPause    Duration `yaml:"reconnect_pause"`
	MaxConnAge        Duration `yaml:"max_conn_age"`
	HealthInterval    Duration `yaml:"health_interval"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Duration wraps time.Duration so YAML can carry values like "2s" or "30m".
type Duration time.Duration

// UnmarshalYAML accepts a Go duration string or a bare integer of seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var secs int64
	if err := value.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped standard duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the configuration the daemon runs with when no file is
// given.
func Default() *Config {
	var cfg Config
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyEnv() {
	overlay(&c.Influx.URL, "SOLAR_DAQ_INFLUX_URL")
	overlay(&c.Influx.Token, "SOLAR_DAQ_INFLUX_TOKEN")
	overlay(&c.Influx.Org, "SOLAR_DAQ_INFLUX_ORG")
	overlay(&c.Influx.Bucket, "SOLAR_DAQ_INFLUX_BUCKET")
}

func overlay(dst *string, envVar string) {
	if v := os.Getenv(envVar); v != "" {
		*dst = v
	}
}

func (c *Config) applyDefaults() {
	if c.Window.Start == "" {
		c.Window.Start = "05:00"
	}
	if c.Window.End == "" {
		c.Window.End = "18:00"
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "./data/measurements"
	}
	if c.Checkpoint.Path == "" {
		c.Checkpoint.Path = "./data/session_state.json"
	}
	if c.Checkpoint.BackupPath == "" {
		c.Checkpoint.BackupPath = "./data/session_state_backup.json"
	}
	if c.Influx.Measurement == "" {
		c.Influx.Measurement = "solar_panel_measurement"
	}
	if c.Influx.Tags == nil {
		c.Influx.Tags = map[string]string{
			"system":   "raspberry_pi",
			"location": "solar_farm",
		}
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
}

func (c *Config) validate() error {
	if _, err := c.ParsedWindow(); err != nil {
		return fmt.Errorf("window: %w", err)
	}
	if c.Influx.URL != "" {
		if c.Influx.Token == "" {
			return fmt.Errorf("influx.token is required when influx.url is set")
		}
		if c.Influx.Org == "" || c.Influx.Bucket == "" {
			return fmt.Errorf("influx.org and influx.bucket are required when influx.url is set")
		}
	}
	if c.Influx.FailureThreshold < 0 {
		return fmt.Errorf("influx.failure_threshold must not be negative")
	}
	if c.Influx.ReconnectAttempts < 0 {
		return fmt.Errorf("influx.reconnect_attempts must not be negative")
	}
	if c.Influx.ReconnectPause < 0 || c.Influx.MaxConnAge < 0 || c.Influx.HealthInterval < 0 {
		return fmt.Errorf("influx durations must not be negative")
	}
	return nil
}

// ParsedWindow parses the configured operating window.
func (c *Config) ParsedWindow() (session.Window, error) {
	return session.ParseWindow(c.Window.Start, c.Window.End)
}

// SinkEnabled reports whether a remote store is configured.
func (c *Config) SinkEnabled() bool { return c.Influx.URL != "" }
