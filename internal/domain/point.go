package domain

import (
	"fmt"
	"time"
)

// TelemetryPoint is one outbound record for the remote time-series store.
// Fields carry only the readings that were present this cycle; a sensor
// dropout shrinks the point instead of poisoning it with fake zeros.
type TelemetryPoint struct {
	Name   string
	Tags   map[string]string
	Fields map[string]any
	Time   time.Time
}

// Point builds the outbound record for a measurement. Missing source values
// are omitted entirely. The timestamp is taken at construction time with
// nanosecond precision, independent of the row timestamp.
func (m Measurement) Point(name string, tags map[string]string, at time.Time) TelemetryPoint {
	fields := make(map[string]any, 32)

	for i, p := range m.Panels {
		prefix := fmt.Sprintf("panel%d_", i+1)
		putField(fields, prefix+"voltage", p.Voltage)
		putField(fields, prefix+"current", p.Current)
		putField(fields, prefix+"power", p.Power)
		putField(fields, prefix+"energy", p.EnergyWh)
	}

	putField(fields, "irradiance", m.Irradiance)

	for i, t := range m.Thermistors {
		putField(fields, fmt.Sprintf("thermistor_%02d_temp", i), t)
	}

	fields["rain_accumulation"] = m.RainMM
	putField(fields, "wind_speed", m.WindSpeed)
	putField(fields, "wind_direction", m.WindAngle)
	putField(fields, "ambient_temperature", m.AmbientTemp)
	putField(fields, "ambient_humidity", m.Humidity)

	return TelemetryPoint{
		Name:   name,
		Tags:   tags,
		Fields: fields,
		Time:   at,
	}
}

func putField(fields map[string]any, key string, v Value) {
	if f, ok := v.Float(); ok {
		fields[key] = f
	}
}
