// Package solardaq wires the acquisition daemon together: hardware providers,
// bus arbitration, background sampling, the daily recording session, the
// remote telemetry sink, and the metrics endpoint. It is the embedding
// surface for callers that want the daemon inside their own process.
package solardaq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IPrometheusI/solar-daq/internal/adapters/aggregate"
	"github.com/IPrometheusI/solar-daq/internal/adapters/bus"
	"github.com/IPrometheusI/solar-daq/internal/adapters/observability"
	"github.com/IPrometheusI/solar-daq/internal/adapters/session"
	"github.com/IPrometheusI/solar-daq/internal/adapters/simhw"
	"github.com/IPrometheusI/solar-daq/internal/adapters/sink"
	"github.com/IPrometheusI/solar-daq/internal/app/config"
	"github.com/IPrometheusI/solar-daq/internal/app/pipeline"
	"github.com/IPrometheusI/solar-daq/internal/domain"
	"github.com/IPrometheusI/solar-daq/internal/ports"
)

const shutdownGrace = 5 * time.Second

// Config is the daemon configuration, re-exported for embedders.
type Config = config.Config

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// DefaultConfig returns a ready-to-run configuration with the sink disabled.
func DefaultConfig() *Config { return config.Default() }

// Option customizes the dependencies used by the Daemon.
type Option func(*overrides)

type overrides struct {
	hardware ports.Hardware
	sink     ports.TelemetrySink
	obs      ports.Observability
	logger   *slog.Logger
}

// WithHardware injects a hardware layer (real rig bindings, simulators).
func WithHardware(hw ports.Hardware) Option {
	return func(o *overrides) { o.hardware = hw }
}

// WithSink injects a telemetry sink so points can go to any remote store.
func WithSink(s ports.TelemetrySink) Option {
	return func(o *overrides) { o.sink = s }
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs ports.Observability) Option {
	return func(o *overrides) { o.obs = obs }
}

// WithLogger sets the structured logger used by the default observability
// backend. Ignored when WithObservability is given.
func WithLogger(log *slog.Logger) Option {
	return func(o *overrides) { o.logger = log }
}

// Daemon is the assembled acquisition runtime.
type Daemon struct {
	cfg *Config
	obs ports.Observability

	hw        ports.Hardware
	ownsHW    bool
	arb       *bus.Arbiter
	agg       *aggregate.Aggregator
	machine   *session.Machine
	snk       ports.TelemetrySink
	sampler   *pipeline.Sampler
	scheduler *pipeline.Scheduler

	metricsSrv *http.Server
	registry   *prometheus.Registry
}

// New assembles the daemon from cfg with default adapters: simulated hardware,
// the InfluxDB sink when configured, and slog+Prometheus observability.
// Options override any dependency.
func New(cfg *Config, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var ov overrides
	for _, opt := range opts {
		if opt != nil {
			opt(&ov)
		}
	}

	window, err := cfg.ParsedWindow()
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	obs := ov.obs
	if obs == nil {
		logger := ov.logger
		if logger == nil {
			logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
		}
		obs = observability.New(logger, registry)
	}

	hw := ov.hardware
	ownsHW := false
	if hw == nil {
		hw = simhw.New()
		ownsHW = true
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("output dir: %w", err)
	}

	store := session.NewCheckpointStore(cfg.Checkpoint.Path, cfg.Checkpoint.BackupPath)
	machine := session.NewMachine(window, cfg.Output.Dir, store, obs,
		session.WithDayStartHook(func() {
			for i := 0; i < domain.NumPanels; i++ {
				if err := hw.Meter(i).ResetEnergy(); err != nil {
					obs.LogError("energy_reset_failed", err, ports.F("channel", i))
				}
			}
		}),
	)

	snk := ov.sink
	if snk == nil {
		if cfg.SinkEnabled() {
			snk = sink.New(sink.Config{
				URL:               cfg.Influx.URL,
				Token:             cfg.Influx.Token,
				Org:               cfg.Influx.Org,
				Bucket:            cfg.Influx.Bucket,
				FailureThreshold:  cfg.Influx.FailureThreshold,
				ReconnectAttempts: cfg.Influx.ReconnectAttempts,
				ReconnectPause:    cfg.Influx.ReconnectPause.Std(),
				MaxConnAge:        cfg.Influx.MaxConnAge.Std(),
				HealthInterval:    cfg.Influx.HealthInterval.Std(),
			}, obs)
		} else {
			snk = sink.Disabled{}
		}
	}

	arb := bus.New(hw.Bus(), bus.DefaultSettle)
	agg := aggregate.New()

	pipe := pipeline.NewPipeline(hw, arb, agg, machine, snk, obs,
		cfg.Influx.Measurement, cfg.Influx.Tags)

	return &Daemon{
		cfg:       cfg,
		obs:       obs,
		hw:        hw,
		ownsHW:    ownsHW,
		arb:       arb,
		agg:       agg,
		machine:   machine,
		snk:       snk,
		sampler:   pipeline.NewSampler(hw, arb, agg, obs),
		scheduler: pipeline.NewScheduler(pipe, machine, hw, obs),
		registry:  registry,
	}, nil
}

// Run starts every component and blocks until ctx is cancelled, then shuts
// down in dependency order: session first so the checkpoint reflects the last
// written row, then the sink, then the hardware.
func (d *Daemon) Run(ctx context.Context) error {
	d.obs.LogInfo("daemon_starting",
		ports.F("window", d.cfg.Window.Start+"-"+d.cfg.Window.End),
		ports.F("output_dir", d.cfg.Output.Dir),
		ports.F("sink_enabled", d.cfg.SinkEnabled()),
	)

	d.machine.Recover()
	d.startMetrics()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	if hs, ok := d.snk.(*sink.InfluxSink); ok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hs.RunHealthChecks(runCtx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.sampler.Run(runCtx)
	}()

	d.scheduler.Run(runCtx)

	cancel()
	waitBounded(&wg, shutdownGrace)

	return d.shutdown()
}

func (d *Daemon) shutdown() error {
	d.machine.Shutdown()
	d.snk.Close()

	var errs []error
	if d.ownsHW {
		if err := d.hw.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if d.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := d.metricsSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}

	d.obs.LogInfo("daemon_stopped")
	return errors.Join(errs...)
}

func (d *Daemon) startMetrics() {
	if d.cfg.Metrics.Addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	d.metricsSrv = &http.Server{
		Addr:    d.cfg.Metrics.Addr,
		Handler: mux,
	}

	go func() {
		if err := d.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.obs.LogError("metrics_server_exited", err)
		}
	}()
}

// waitBounded joins wg but gives up after d so a wedged goroutine cannot
// block the exit path.
func waitBounded(wg *sync.WaitGroup, d time.Duration) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
	}
}
