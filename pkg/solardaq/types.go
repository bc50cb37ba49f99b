package solardaq

import (
	"github.com/IPrometheusI/solar-daq/internal/adapters/simhw"
	"github.com/IPrometheusI/solar-daq/internal/domain"
	"github.com/IPrometheusI/solar-daq/internal/ports"
)

// Aliases so embedders can name the extension points without reaching into
// internal packages.
type (
	Hardware      = ports.Hardware
	PowerMeter    = ports.PowerMeter
	AnalogBus     = ports.AnalogBus
	AmbientProbe  = ports.AmbientProbe
	TelemetrySink = ports.TelemetrySink
	Observability = ports.Observability
	Field         = ports.Field

	Measurement    = domain.Measurement
	PanelPower     = domain.PanelPower
	TelemetryPoint = domain.TelemetryPoint
	Value          = domain.Value
)

// NewSimulator returns the in-memory hardware layer used when no real rig is
// attached. Callers own its lifecycle when they inject it through
// WithHardware.
func NewSimulator() Hardware { return simhw.New() }
