package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "output:\n  dir: /var/data\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Window.Start != "05:00" || cfg.Window.End != "18:00" {
		t.Fatalf("window defaults = %s-%s", cfg.Window.Start, cfg.Window.End)
	}
	if cfg.Output.Dir != "/var/data" {
		t.Fatalf("output dir = %s", cfg.Output.Dir)
	}
	if cfg.Checkpoint.Path != "./data/session_state.json" {
		t.Fatalf("checkpoint path = %s", cfg.Checkpoint.Path)
	}
	if cfg.Influx.Measurement != "solar_panel_measurement" {
		t.Fatalf("measurement = %s", cfg.Influx.Measurement)
	}
	if cfg.Influx.Tags["system"] != "raspberry_pi" || cfg.Influx.Tags["location"] != "solar_farm" {
		t.Fatalf("default tags = %v", cfg.Influx.Tags)
	}
	if cfg.Metrics.Addr != ":9100" {
		t.Fatalf("metrics addr = %s", cfg.Metrics.Addr)
	}
	if cfg.SinkEnabled() {
		t.Fatalf("sink should be disabled without a url")
	}
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
window:
  start: "06:30"
  end: "19:00"
influx:
  url: http://influx.local:8086
  token: secret
  org: solar
  bucket: telemetry
  reconnect_pause: 2s
  max_conn_age: 30m
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if !cfg.SinkEnabled() {
		t.Fatalf("sink should be enabled")
	}
	if cfg.Influx.ReconnectPause.Std() != 2*time.Second || cfg.Influx.MaxConnAge.Std() != 30*time.Minute {
		t.Fatalf("durations = %v / %v", cfg.Influx.ReconnectPause.Std(), cfg.Influx.MaxConnAge.Std())
	}

	w, err := cfg.ParsedWindow()
	if err != nil {
		t.Fatalf("parsed window: %v", err)
	}
	inside := time.Date(2025, 6, 14, 7, 0, 0, 0, time.UTC)
	if !w.Contains(inside) {
		t.Fatalf("07:00 should be inside 06:30-19:00")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("SOLAR_DAQ_INFLUX_URL", "http://env.local:8086")
	t.Setenv("SOLAR_DAQ_INFLUX_TOKEN", "env-token")
	t.Setenv("SOLAR_DAQ_INFLUX_ORG", "env-org")
	t.Setenv("SOLAR_DAQ_INFLUX_BUCKET", "env-bucket")

	cfg, err := Load(writeConfig(t, `
influx:
  url: http://file.local:8086
  token: file-token
  org: file-org
  bucket: file-bucket
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Influx.URL != "http://env.local:8086" {
		t.Fatalf("url = %s, env must win", cfg.Influx.URL)
	}
	if cfg.Influx.Token != "env-token" || cfg.Influx.Org != "env-org" || cfg.Influx.Bucket != "env-bucket" {
		t.Fatalf("env overrides incomplete: %+v", cfg.Influx)
	}
}

func TestDurationAcceptsBareSeconds(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
influx:
  url: http://influx.local:8086
  token: x
  org: y
  bucket: z
  health_interval: 90
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Influx.HealthInterval.Std() != 90*time.Second {
		t.Fatalf("health interval = %v, want 90s", cfg.Influx.HealthInterval.Std())
	}
}

func TestValidateRejectsPartialInflux(t *testing.T) {
	cases := []string{
		"influx:\n  url: http://influx.local:8086\n",
		"influx:\n  url: http://influx.local:8086\n  token: x\n",
		"influx:\n  url: http://influx.local:8086\n  token: x\n  org: y\n",
	}
	for _, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("config should be rejected:\n%s", body)
		}
	}
}

func TestValidateRejectsNegativeInfluxTuning(t *testing.T) {
	cases := []string{
		"influx:\n  reconnect_attempts: -1\n",
		"influx:\n  failure_threshold: -5\n",
		"influx:\n  reconnect_pause: -2s\n",
	}
	for _, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("config should be rejected:\n%s", body)
		}
	}
}

func TestValidateRejectsBadWindow(t *testing.T) {
	if _, err := Load(writeConfig(t, "window:\n  start: \"25:00\"\n")); err == nil {
		t.Fatalf("out-of-range window should be rejected")
	}
}
