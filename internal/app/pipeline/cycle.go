package pipeline

import (
	"context"
	"time"

	"github.com/IPrometheusI/solar-daq/internal/adapters/aggregate"
	"github.com/IPrometheusI/solar-daq/internal/adapters/bus"
	"github.com/IPrometheusI/solar-daq/internal/adapters/session"
	"github.com/IPrometheusI/solar-daq/internal/domain"
	"github.com/IPrometheusI/solar-daq/internal/ports"
)

// power meter read policy: bounded attempts with a short pause, zero
// substitution on exhaustion rather than a failed cycle
const (
	meterReadAttempts = 3
	meterReadTimeout  = time.Second
	meterRetryPause   = time.Second
)

// Pipeline runs the per-minute measurement sequence: meters, one arbitrated
// mux batch, aggregator means, sanitize, local row, telemetry point,
// checkpoint. Local durability always comes before remote delivery and never
// depends on it.
type Pipeline struct {
	hw   ports.Hardware
	arb  *bus.Arbiter
	agg  *aggregate.Aggregator
	sess *session.Machine
	sink ports.TelemetrySink
	obs  ports.Observability

	measurement string
	tags        map[string]string

	now   func() time.Time
	pause func(time.Duration)
}

type PipelineOption func(*Pipeline)

// WithPipelineClock overrides the wall-clock source, for tests.
func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

// WithPipelinePause overrides the inter-attempt pause, for tests.
func WithPipelinePause(pause func(time.Duration)) PipelineOption {
	return func(p *Pipeline) { p.pause = pause }
}

func NewPipeline(
	hw ports.Hardware,
	arb *bus.Arbiter,
	agg *aggregate.Aggregator,
	sess *session.Machine,
	sink ports.TelemetrySink,
	obs ports.Observability,
	measurement string,
	tags map[string]string,
	opts ...PipelineOption,
) *Pipeline {
	p := &Pipeline{
		hw:          hw,
		arb:         arb,
		agg:         agg,
		sess:        sess,
		sink:        sink,
		obs:         obs,
		measurement: measurement,
		tags:        tags,
		now:         time.Now,
		pause:       time.Sleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunCycle performs one measurement cycle. Outside the window, or while the
// session is not recording, the reads still run and feed the aggregation
// windows, but nothing is written or sent.
func (p *Pipeline) RunCycle(ctx context.Context) error {
	started := time.Now()
	now := p.now()
	p.obs.IncCounter("solar_daq_cycles_total", 1)

	// Meters use their own bus; no arbitration needed.
	var panels [domain.NumPanels]domain.PanelPower
	for i := range panels {
		panels[i] = p.readMeter(ctx, p.hw.Meter(i), i)
	}

	// One atomic batch over the multiplexed channel.
	p.arb.Acquire()
	instantTemps := p.arb.ReadThermistorsLocked()
	irradiance := p.arb.ReadIrradianceLocked()
	windAngle := p.arb.ReadWindAngleLocked()
	p.arb.Release()

	// The batch's thermistor sweep joins the windows before the means are
	// pulled, so a freshly restarted process has at least one sample.
	for i, t := range instantTemps {
		p.agg.PushThermistor(i, t)
	}

	rainPulses := p.hw.RainPulses().Load()

	m := domain.Measurement{
		Panels:      panels,
		Irradiance:  irradiance,
		Thermistors: p.agg.MeanThermistors(),
		RainMM:      float64(rainPulses) * domain.MMPerRainPulse,
		WindSpeed:   p.agg.MeanWindSpeed(),
		WindAngle:   windAngle,
		Humidity:    p.agg.MeanHumidity(),
		AmbientTemp: p.agg.MeanAmbientTemp(),
		Taken:       now,
	}

	if p.sess.Recording() && p.sess.InWindow(now) {
		if err := p.sess.AppendRow(m, rainPulses); err != nil {
			p.obs.LogError("row_append_failed", err)
			return err
		}
		// Reset the minute's rain count only now that it has been read
		// and written; tips that landed mid-write carry over.
		p.hw.RainPulses().Discard(rainPulses)

		p.obs.IncCounter("solar_daq_rows_written_total", 1)
		p.obs.SetGauge("solar_daq_daily_file_size_bytes", float64(p.sess.FileSize()))

		// Telemetry mirrors the written row. Without a drained counter
		// the rain field would carry a cumulative value under a name
		// that means one minute's accumulation, so nothing goes out
		// from the diagnostic branch below. Best effort; a sink
		// failure never undoes the row above.
		point := m.Point(p.measurement, p.tags, time.Now().UTC())
		if err := p.sink.Send(ctx, point); err != nil {
			p.obs.LogError("telemetry_send_failed", err)
			p.obs.IncCounter("solar_daq_points_dropped_total", 1)
		} else {
			p.obs.IncCounter("solar_daq_points_sent_total", 1)
		}
	} else {
		p.obs.LogInfo("cycle_diagnostic_only",
			ports.F("state", p.sess.State().String()),
			ports.F("in_window", p.sess.InWindow(now)),
		)
	}

	p.obs.ObserveLatency("solar_daq_cycle_duration_seconds", time.Since(started).Seconds())
	return nil
}

// readMeter attempts one channel a fixed number of times under a bounded
// per-attempt deadline. Exhaustion yields an all-missing reading: the file
// row renders zeros for it, the telemetry point omits it.
func (p *Pipeline) readMeter(ctx context.Context, meter ports.PowerMeter, idx int) domain.PanelPower {
	for attempt := 0; attempt < meterReadAttempts; attempt++ {
		readCtx, cancel := context.WithTimeout(ctx, meterReadTimeout)
		reading, ok := meter.Read(readCtx)
		cancel()
		if ok {
			return reading
		}
		if attempt < meterReadAttempts-1 {
			p.pause(meterRetryPause)
		}
	}
	p.obs.LogError("power_meter_unreadable", nil, ports.F("channel", idx))
	return domain.PanelPower{}
}
