package aggregate

import (
	"sync"

	"github.com/IPrometheusI/solar-daq/internal/domain"
)

// Buffer capacities per signal class. Slow periodic signals keep a short
// window; high-variance wind speed keeps a full minute of one-second samples.
const (
	AmbientWindow    = 12
	WindWindow       = 60
	ThermistorWindow = 12
)

// Plausibility band for thermistor temperatures. Readings outside it are
// glitches and never enter the buffer.
const (
	MinPlausibleTemp = 10.0
	MaxPlausibleTemp = 70.0
)

// Aggregator smooths fast noisy signals into representative per-minute
// values. The background sampler pushes, the measurement pipeline reads
// means; one lock covers both sides.
type Aggregator struct {
	mu          sync.Mutex
	ambientTemp *ring
	humidity    *ring
	windSpeed   *ring
	thermistors [domain.NumThermistors]*ring
}

func New() *Aggregator {
	a := &Aggregator{
		ambientTemp: newRing(AmbientWindow),
		humidity:    newRing(AmbientWindow),
		windSpeed:   newRing(WindWindow),
	}
	for i := range a.thermistors {
		a.thermistors[i] = newRing(ThermistorWindow)
	}
	return a
}

// PushAmbient buffers one probe reading. Missing halves are skipped
// independently so a partial probe read still contributes what it has.
func (a *Aggregator) PushAmbient(temp, humidity domain.Value) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if v, ok := temp.Float(); ok {
		a.ambientTemp.push(v)
	}
	if v, ok := humidity.Float(); ok {
		a.humidity.push(v)
	}
}

// PushWindSpeed buffers one one-second wind speed sample in m/s.
func (a *Aggregator) PushWindSpeed(ms float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.windSpeed.push(ms)
}

// PushThermistor buffers one bank reading after the plausibility filter.
// Out-of-band and missing readings are discarded before they can drag the
// window, not compensated afterwards.
func (a *Aggregator) PushThermistor(index int, temp domain.Value) {
	v, ok := temp.Float()
	if !ok || v < MinPlausibleTemp || v > MaxPlausibleTemp {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.thermistors[index].push(v)
}

// MeanAmbientTemp returns the windowed mean or missing on an empty buffer.
func (a *Aggregator) MeanAmbientTemp() domain.Value {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ambientTemp.mean()
}

func (a *Aggregator) MeanHumidity() domain.Value {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.humidity.mean()
}

func (a *Aggregator) MeanWindSpeed() domain.Value {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.windSpeed.mean()
}

func (a *Aggregator) MeanThermistor(index int) domain.Value {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.thermistors[index].mean()
}

// MeanThermistors snapshots all twenty channel means under one lock
// acquisition.
func (a *Aggregator) MeanThermistors() [domain.NumThermistors]domain.Value {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out [domain.NumThermistors]domain.Value
	for i, r := range a.thermistors {
		out[i] = r.mean()
	}
	return out
}

// ring is a fixed-capacity oldest-evicted buffer.
type ring struct {
	vals  []float64
	head  int
	count int
}

func newRing(capacity int) *ring {
	return &ring{vals: make([]float64, capacity)}
}

func (r *ring) push(v float64) {
	r.vals[r.head] = v
	r.head = (r.head + 1) % len(r.vals)
	if r.count < len(r.vals) {
		r.count++
	}
}

func (r *ring) mean() domain.Value {
	if r.count == 0 {
		return domain.Missing()
	}
	var sum float64
	for i := 0; i < r.count; i++ {
		sum += r.vals[i]
	}
	return domain.Some(sum / float64(r.count))
}
