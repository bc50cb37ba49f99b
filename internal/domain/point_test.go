package domain

import (
	"testing"
	"time"
)

func fullMeasurement() Measurement {
	m := Measurement{
		Irradiance:  Some(850),
		RainMM:      0.5588,
		WindSpeed:   Some(3.2),
		WindAngle:   Some(225),
		Humidity:    Some(48),
		AmbientTemp: Some(24.5),
		Taken:       time.Date(2025, 6, 14, 12, 30, 0, 0, time.UTC),
	}
	for i := range m.Panels {
		m.Panels[i] = PanelPower{
			Voltage:  Some(30.1),
			Current:  Some(7.5),
			Power:    Some(225.75),
			EnergyWh: Some(1200),
		}
	}
	for i := range m.Thermistors {
		m.Thermistors[i] = Some(40 + float64(i))
	}
	return m
}

func TestPointCarriesAllPresentFields(t *testing.T) {
	at := time.Date(2025, 6, 14, 12, 30, 0, 123456789, time.UTC)
	p := fullMeasurement().Point("solar_panel_measurement", map[string]string{"system": "raspberry_pi"}, at)

	if p.Name != "solar_panel_measurement" {
		t.Fatalf("unexpected measurement name %q", p.Name)
	}
	if !p.Time.Equal(at) {
		t.Fatalf("point time %v, want %v", p.Time, at)
	}

	// 2 panels × 4 + irradiance + 20 thermistors + rain + wind×2 + ambient×2
	if got := len(p.Fields); got != 34 {
		t.Fatalf("expected 34 fields, got %d", got)
	}
	if got := p.Fields["panel2_energy"]; got != 1200.0 {
		t.Fatalf("panel2_energy = %v, want 1200", got)
	}
	if got := p.Fields["thermistor_05_temp"]; got != 45.0 {
		t.Fatalf("thermistor_05_temp = %v, want 45", got)
	}
}

func TestPointOmitsMissingFields(t *testing.T) {
	m := fullMeasurement()
	m.Panels[0] = PanelPower{} // unreadable meter: all four quantities missing
	m.Irradiance = Missing()
	m.RainMM = 0

	p := m.Point("solar_panel_measurement", nil, time.Now())

	for _, key := range []string{"panel1_voltage", "panel1_current", "panel1_power", "panel1_energy", "irradiance"} {
		if _, present := p.Fields[key]; present {
			t.Fatalf("field %s should be omitted, got %v", key, p.Fields[key])
		}
	}
	if _, present := p.Fields["panel2_voltage"]; !present {
		t.Fatalf("the readable channel should still be present")
	}

	// zero rain is real data, not a dropout
	if got, present := p.Fields["rain_accumulation"]; !present || got != 0.0 {
		t.Fatalf("rain_accumulation = %v present=%v, want 0", got, present)
	}
}

func TestWindComposite(t *testing.T) {
	m := Measurement{WindAngle: Some(225)}
	if got := m.WindComposite(); got != "225.0°(SW)" {
		t.Fatalf("composite = %q, want 225.0°(SW)", got)
	}
	m.WindAngle = Missing()
	if got := m.WindComposite(); got != "" {
		t.Fatalf("composite for missing angle = %q, want empty", got)
	}
}

func TestCompassSectors(t *testing.T) {
	cases := []struct {
		deg  float64
		want string
	}{
		{0, "N"},
		{11.24, "N"},
		{11.3, "NNE"},
		{90, "E"},
		{225, "SW"},
		{348.7, "NNW"},
		{348.8, "N"}, // wraps back to north
		{360, "N"},
		{-45, "NW"},
		{720 + 90, "E"},
	}
	for _, c := range cases {
		if got := Compass(c.deg); got != c.want {
			t.Fatalf("Compass(%v) = %q, want %q", c.deg, got, c.want)
		}
	}
}
