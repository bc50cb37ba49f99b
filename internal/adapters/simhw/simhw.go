// Package simhw is a software stand-in for the acquisition rig. Every
// provider returns plausible, slowly drifting values, and a background
// goroutine feeds the wind and rain pulse counters, so the full pipeline can
// run on a developer machine with no hardware attached.
package simhw

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/IPrometheusI/solar-daq/internal/domain"
	"github.com/IPrometheusI/solar-daq/internal/ports"
)

const pulseFeedInterval = 250 * time.Millisecond

// Sim implements ports.Hardware entirely in memory.
type Sim struct {
	mu        sync.Mutex
	rng       *rand.Rand
	meters    [domain.NumPanels]*simMeter
	wind      domain.PulseCounter
	rain      domain.PulseCounter
	startedAt time.Time

	stop chan struct{}
	done chan struct{}
}

// New builds a simulator seeded from the clock. Use NewSeeded in tests.
func New() *Sim { return NewSeeded(time.Now().UnixNano()) }

// NewSeeded builds a deterministic simulator.
func NewSeeded(seed int64) *Sim {
	s := &Sim{
		rng:       rand.New(rand.NewSource(seed)),
		startedAt: time.Now(),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for i := range s.meters {
		s.meters[i] = &simMeter{sim: s, channel: i}
	}
	go s.feedPulses()
	return s
}

func (s *Sim) Meter(i int) ports.PowerMeter     { return s.meters[i] }
func (s *Sim) Bus() ports.AnalogBus             { return (*simBus)(s) }
func (s *Sim) Ambient() ports.AmbientProbe      { return (*simAmbient)(s) }
func (s *Sim) WindPulses() *domain.PulseCounter { return &s.wind }
func (s *Sim) RainPulses() *domain.PulseCounter { return &s.rain }

// Reinit is a no-op for the simulator beyond clearing accumulated energy.
func (s *Sim) Reinit(ctx context.Context) error {
	for _, m := range s.meters {
		_ = m.ResetEnergy()
	}
	return ctx.Err()
}

// Close stops the pulse feeder. Safe to call once.
func (s *Sim) Close() error {
	close(s.stop)
	<-s.done
	return nil
}

// feedPulses ticks the anemometer at a rate matching the simulated wind and
// tips the rain bucket rarely.
func (s *Sim) feedPulses() {
	defer close(s.done)
	ticker := time.NewTicker(pulseFeedInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			windPulses := uint64(s.rng.Intn(3))
			rainTip := s.rng.Float64() < 0.002
			s.mu.Unlock()

			s.wind.Add(windPulses)
			if rainTip {
				s.rain.Add(1)
			}
		}
	}
}

// jitter returns base plus a uniform offset in ±spread.
func (s *Sim) jitter(base, spread float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return base + (s.rng.Float64()*2-1)*spread
}

// daylight approximates the solar curve: 0 at the window edges, 1 at noon.
func daylight(t time.Time) float64 {
	h := float64(t.Hour()) + float64(t.Minute())/60
	x := (h - 5) / 13 // window span 05:00..18:00
	if x < 0 || x > 1 {
		return 0
	}
	return math.Sin(x * math.Pi)
}

type simMeter struct {
	sim      *Sim
	channel  int
	energyWh float64
	mu       sync.Mutex
}

func (m *simMeter) Read(ctx context.Context) (domain.PanelPower, bool) {
	if ctx.Err() != nil {
		return domain.PanelPower{}, false
	}

	sun := daylight(time.Now())
	voltage := m.sim.jitter(30*sun+2, 0.5)
	current := m.sim.jitter(8*sun, 0.2)
	if current < 0 {
		current = 0
	}
	power := voltage * current

	m.mu.Lock()
	m.energyWh += power / 60 // the caller polls about once a minute
	energy := m.energyWh
	m.mu.Unlock()

	return domain.PanelPower{
		Voltage:  domain.Some(voltage),
		Current:  domain.Some(current),
		Power:    domain.Some(power),
		EnergyWh: domain.Some(energy),
	}, true
}

func (m *simMeter) ResetEnergy() error {
	m.mu.Lock()
	m.energyWh = 0
	m.mu.Unlock()
	return nil
}

// simBus ignores channel selection; each read synthesizes its own value.
type simBus Sim

func (b *simBus) SelectChannel(ch int) bool { return ch >= 0 && ch < 8 }

func (b *simBus) ThermistorTemp(index int) domain.Value {
	sun := daylight(time.Now())
	return domain.Some((*Sim)(b).jitter(22+20*sun+float64(index%4), 0.8))
}

func (b *simBus) IrradianceLeg(leg int) domain.Value {
	sun := daylight(time.Now())
	// differential pair: IRR+ carries the signal, IRR- sits near ground
	if leg == 1 {
		return domain.Some((*Sim)(b).jitter(0.075*sun, 0.001))
	}
	return domain.Some((*Sim)(b).jitter(0, 0.0005))
}

func (b *simBus) WindAngle() domain.Value {
	return domain.Some((*Sim)(b).jitter(180, 90))
}

type simAmbient Sim

func (a *simAmbient) ReadAmbient() (temp, humidity domain.Value) {
	sun := daylight(time.Now())
	return domain.Some((*Sim)(a).jitter(18+10*sun, 0.5)),
		domain.Some((*Sim)(a).jitter(55-15*sun, 2))
}
