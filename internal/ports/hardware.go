package ports

import (
	"context"

	"github.com/IPrometheusI/solar-daq/internal/domain"
)

// PowerMeter reads one power channel. Meters sit on their own bus and need
// no arbitration.
type PowerMeter interface {
	// Read returns the channel's instantaneous electrical quantities.
	// ok is false when the device could not be read before ctx expired;
	// the caller decides how to retry or substitute.
	Read(ctx context.Context) (reading domain.PanelPower, ok bool)

	// ResetEnergy zeroes the meter's cumulative energy accumulator. Called
	// once per day at window start.
	ResetEnergy() error
}

// AnalogBus is the multiplexed analog front end shared by the thermistor
// bank, the irradiance differential pair, and the wind vane. It carries no
// locking of its own; callers serialize access through the bus arbiter.
// Every read returns a missing value on failure, never an error.
type AnalogBus interface {
	// SelectChannel drives the multiplexer select lines. Reports false when
	// the select lines could not be driven.
	SelectChannel(ch int) bool

	// ThermistorTemp reads the bank input for thermistor index (0..19) in
	// °C. The matching mux channel must already be selected and settled.
	ThermistorTemp(index int) domain.Value

	// IrradianceLeg reads one leg of the differential irradiance pair in
	// volts. Leg 0 is IRR-, leg 1 is IRR+.
	IrradianceLeg(leg int) domain.Value

	// WindAngle reads the vane potentiometer and returns the resolved
	// angle in degrees.
	WindAngle() domain.Value
}

// AmbientProbe reads the combined humidity/temperature sensor.
type AmbientProbe interface {
	ReadAmbient() (temp, humidity domain.Value)
}

// Hardware bundles every provider on the rig plus lifecycle control. The
// pulse counters are incremented by the providers' input bindings and
// drained by the acquisition side.
type Hardware interface {
	Meter(i int) PowerMeter
	Bus() AnalogBus
	Ambient() AmbientProbe
	WindPulses() *domain.PulseCounter
	RainPulses() *domain.PulseCounter

	// Reinit tears hardware down and brings it back up. Invoked by the
	// scheduler after repeated cycle failures.
	Reinit(ctx context.Context) error

	Close() error
}
