package solardaq

import (
	"log/slog"

	base "github.com/IPrometheusI/solar-daq/pkg/solardaq"
)

// Type aliases so consumers can import github.com/IPrometheusI/solar-daq
// directly.
type (
	Config         = base.Config
	Daemon         = base.Daemon
	Option         = base.Option
	Hardware       = base.Hardware
	PowerMeter     = base.PowerMeter
	AnalogBus      = base.AnalogBus
	AmbientProbe   = base.AmbientProbe
	TelemetrySink  = base.TelemetrySink
	Observability  = base.Observability
	Field          = base.Field
	Measurement    = base.Measurement
	PanelPower     = base.PanelPower
	TelemetryPoint = base.TelemetryPoint
	Value          = base.Value
)

// Config helpers.
func LoadConfig(path string) (*Config, error) { return base.LoadConfig(path) }

func DefaultConfig() *Config { return base.DefaultConfig() }

// Daemon assembly and options.
func New(cfg *Config, opts ...Option) (*Daemon, error) {
	return base.New(cfg, opts...)
}

func WithHardware(hw Hardware) Option { return base.WithHardware(hw) }

func WithSink(s TelemetrySink) Option { return base.WithSink(s) }

func WithObservability(obs Observability) Option { return base.WithObservability(obs) }

func WithLogger(log *slog.Logger) Option { return base.WithLogger(log) }

// Simulated hardware for development machines.
func NewSimulator() Hardware { return base.NewSimulator() }
