package bus

import (
	"sync"
	"time"

	"github.com/IPrometheusI/solar-daq/internal/domain"
	"github.com/IPrometheusI/solar-daq/internal/ports"
)

// DefaultSettle is how long the ADC input is left to stabilize after a mux
// channel switch before sampling.
const DefaultSettle = 100 * time.Millisecond

// mux channel assignment on the shared front end
const (
	thermistorsPerMux = 8
	irrMinusChannel   = 4 // IRR- on the third mux
	irrPlusChannel    = 5 // IRR+ on the third mux
)

// 1000 W/m² per 75 mV of differential signal
const irradianceCalibration = 1000.0 / 75.0

// Arbiter serializes access to the multiplexed analog channel. The thermistor
// bank, the irradiance pair, and the wind vane all steer the same select
// lines; interleaved access from two goroutines would sample one sensor
// through another's channel. Callers either use the one-shot locked wrappers
// or Acquire once and run several ...Locked reads as a single atomic batch.
type Arbiter struct {
	mu     sync.Mutex
	bus    ports.AnalogBus
	settle time.Duration
}

func New(bus ports.AnalogBus, settle time.Duration) *Arbiter {
	if settle < 0 {
		settle = DefaultSettle
	}
	return &Arbiter{bus: bus, settle: settle}
}

// Acquire takes exclusive ownership of the shared channel.
func (a *Arbiter) Acquire() { a.mu.Lock() }

// Release gives the shared channel back.
func (a *Arbiter) Release() { a.mu.Unlock() }

// ReadThermistors is the locked one-shot form of ReadThermistorsLocked.
func (a *Arbiter) ReadThermistors() [domain.NumThermistors]domain.Value {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ReadThermistorsLocked()
}

// ReadIrradiance is the locked one-shot form of ReadIrradianceLocked.
func (a *Arbiter) ReadIrradiance() domain.Value {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ReadIrradianceLocked()
}

// ReadWindAngle is the locked one-shot form of ReadWindAngleLocked.
func (a *Arbiter) ReadWindAngle() domain.Value {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ReadWindAngleLocked()
}

// ReadThermistorsLocked sweeps the whole bank, selecting each thermistor's
// mux channel and letting it settle before sampling. A failed select or read
// yields a missing value for that slot only. Caller must hold the arbiter.
func (a *Arbiter) ReadThermistorsLocked() [domain.NumThermistors]domain.Value {
	var out [domain.NumThermistors]domain.Value
	for i := range out {
		if !a.selectAndSettle(i % thermistorsPerMux) {
			out[i] = domain.Missing()
			continue
		}
		out[i] = a.bus.ThermistorTemp(i)
	}
	return out
}

// ReadIrradianceLocked samples the differential pair and converts the
// rectified difference to W/m². Either leg failing makes the whole reading
// missing. Caller must hold the arbiter.
func (a *Arbiter) ReadIrradianceLocked() domain.Value {
	if !a.selectAndSettle(irrMinusChannel) {
		return domain.Missing()
	}
	minus, ok := a.bus.IrradianceLeg(0).Float()
	if !ok {
		return domain.Missing()
	}

	if !a.selectAndSettle(irrPlusChannel) {
		return domain.Missing()
	}
	plus, ok := a.bus.IrradianceLeg(1).Float()
	if !ok {
		return domain.Missing()
	}

	diffMilliVolts := abs(plus-minus) * 1000.0
	return domain.Some(diffMilliVolts * irradianceCalibration)
}

// ReadWindAngleLocked reads the vane. The vane sits on a dedicated ADC input
// but shares the converter, so it still needs the arbiter held.
func (a *Arbiter) ReadWindAngleLocked() domain.Value {
	return a.bus.WindAngle()
}

func (a *Arbiter) selectAndSettle(ch int) bool {
	if !a.bus.SelectChannel(ch) {
		return false
	}
	if a.settle > 0 {
		time.Sleep(a.settle)
	}
	return true
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
