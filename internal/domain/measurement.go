package domain

import "time"

const (
	// NumPanels is the number of independently metered power channels.
	NumPanels = 2

	// NumThermistors is the size of the multiplexed thermistor bank.
	NumThermistors = 20
)

// Pulse-to-physical conversion factors for the tipping bucket and the
// anemometer.
const (
	MMPerRainPulse       = 0.2794 // mm of rain per bucket tip
	KPHPerPulsePerSecond = 2.4    // km/h of wind per pulse per second
)

// PanelPower holds one power channel's electrical quantities. All four are
// missing together when the meter could not be read before its deadline.
type PanelPower struct {
	Voltage  Value
	Current  Value
	Power    Value
	EnergyWh Value
}

// Valid reports whether the channel was read this cycle.
func (p PanelPower) Valid() bool { return p.Voltage.Valid() }

// Measurement is one minute's consolidated readings: instantaneous values
// from the arbitrated bus batch, windowed means from the aggregator, and the
// minute's drained rain pulses. It is the unit appended to the daily file and
// forwarded to the remote store.
type Measurement struct {
	Panels      [NumPanels]PanelPower
	Irradiance  Value                 // W/m²
	Thermistors [NumThermistors]Value // °C, windowed means
	RainMM      float64               // accumulation for the elapsed minute
	WindSpeed   Value                 // m/s, windowed mean
	WindAngle   Value                 // degrees
	Humidity    Value                 // %RH, windowed mean
	AmbientTemp Value                 // °C, windowed mean
	Taken       time.Time             // local wall clock, second precision
}

// WindComposite renders the human-readable angle+compass column, e.g.
// "225.0°(SW)", or the empty string when the vane had no reading.
func (m Measurement) WindComposite() string {
	deg, ok := m.WindAngle.Float()
	if !ok {
		return ""
	}
	return formatAngle(deg) + "(" + Compass(deg) + ")"
}
