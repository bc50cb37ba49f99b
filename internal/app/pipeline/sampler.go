package pipeline

import (
	"context"
	"time"

	"github.com/IPrometheusI/solar-daq/internal/adapters/aggregate"
	"github.com/IPrometheusI/solar-daq/internal/adapters/bus"
	"github.com/IPrometheusI/solar-daq/internal/domain"
	"github.com/IPrometheusI/solar-daq/internal/ports"
)

// slow periodic sensors (thermistor bank, ambient probe) are sampled on a
// longer cadence than the 1 Hz tick
const slowSampleEvery = 5 * time.Second

// Sampler is the continuous background reader. It drains the anemometer
// pulse counter into one-second wind speed samples and feeds the slow
// sensors through the bus arbiter, all into the aggregator's windows.
type Sampler struct {
	hw  ports.Hardware
	arb *bus.Arbiter
	agg *aggregate.Aggregator
	obs ports.Observability

	interval time.Duration
	now      func() time.Time
}

type SamplerOption func(*Sampler)

// WithSamplerClock overrides the wall-clock source, for tests.
func WithSamplerClock(now func() time.Time) SamplerOption {
	return func(s *Sampler) { s.now = now }
}

// WithSamplerInterval overrides the tick cadence, for tests.
func WithSamplerInterval(d time.Duration) SamplerOption {
	return func(s *Sampler) { s.interval = d }
}

func NewSampler(hw ports.Hardware, arb *bus.Arbiter, agg *aggregate.Aggregator, obs ports.Observability, opts ...SamplerOption) *Sampler {
	s := &Sampler{
		hw:       hw,
		arb:      arb,
		agg:      agg,
		obs:      obs,
		interval: time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run ticks until ctx is done. Cancellation is cooperative: the shutdown
// path waits for this loop to observe ctx and return.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	lastWind := s.now()
	var lastSlow time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := s.now()

		if elapsed := now.Sub(lastWind).Seconds(); elapsed >= 1.0 {
			pulses := s.hw.WindPulses().Drain()
			perSecond := float64(pulses) / elapsed
			s.agg.PushWindSpeed(perSecond * domain.KPHPerPulsePerSecond / 3.6)
			lastWind = now
		}

		if lastSlow.IsZero() || now.Sub(lastSlow) >= slowSampleEvery {
			for i, t := range s.arb.ReadThermistors() {
				s.agg.PushThermistor(i, t)
			}
			temp, humidity := s.hw.Ambient().ReadAmbient()
			s.agg.PushAmbient(temp, humidity)
			lastSlow = now
		}
	}
}
