package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/IPrometheusI/solar-daq/internal/ports"
)

func newTestObs(t *testing.T) (*Obs, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	return New(log, prometheus.NewRegistry()), &buf
}

func TestMetricsByName(t *testing.T) {
	obs, _ := newTestObs(t)

	obs.IncCounter("solar_daq_rows_written_total", 3)
	if got := testutil.ToFloat64(obs.counters["solar_daq_rows_written_total"]); got != 3 {
		t.Fatalf("expected rows counter 3, got %f", got)
	}

	obs.SetGauge("solar_daq_daily_file_size_bytes", 4096)
	if got := testutil.ToFloat64(obs.gauges["solar_daq_daily_file_size_bytes"]); got != 4096 {
		t.Fatalf("expected file size gauge 4096, got %f", got)
	}

	obs.ObserveLatency("solar_daq_cycle_duration_seconds", 0.25)
	hCollector := obs.histos["solar_daq_cycle_duration_seconds"].(prometheus.Collector)
	if samples := testutil.CollectAndCount(hCollector); samples != 1 {
		t.Fatalf("expected duration histogram to record 1 sample, got %d", samples)
	}

	// unknown names are ignored, never a panic
	obs.IncCounter("no_such_metric", 1)
	obs.SetGauge("no_such_metric", 1)
	obs.ObserveLatency("no_such_metric", 1)
}

func TestLogErrorAttachesError(t *testing.T) {
	obs, buf := newTestObs(t)

	obs.LogError("checkpoint_save_failed", errTest, ports.F("file", "state.json"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if entry["msg"] != "checkpoint_save_failed" {
		t.Fatalf("msg = %v", entry["msg"])
	}
	if entry["error"] != "boom" {
		t.Fatalf("error field = %v", entry["error"])
	}
	if entry["file"] != "state.json" {
		t.Fatalf("file field = %v", entry["file"])
	}
}

func TestLogCriticalTagsEntry(t *testing.T) {
	obs, buf := newTestObs(t)

	obs.LogCritical("hardware_reinit", nil)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if entry["critical"] != true {
		t.Fatalf("critical flag missing: %v", entry)
	}
	if entry["level"] != "ERROR" {
		t.Fatalf("level = %v", entry["level"])
	}
}

var errTest = errBoom{}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
