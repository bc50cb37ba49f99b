package observability

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IPrometheusI/solar-daq/internal/ports"
)

// Obs backs the observability port with slog and Prometheus. Metrics are
// addressed by name through the port so components never import the
// Prometheus client directly.
type Obs struct {
	log      *slog.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

func New(log *slog.Logger, reg prometheus.Registerer) *Obs {
	rows := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "solar_daq_rows_written_total",
		Help: "Rows appended to the daily file.",
	})
	cycles := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "solar_daq_cycles_total",
		Help: "Per-minute measurement cycles attempted.",
	})
	cycleFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "solar_daq_cycle_failures_total",
		Help: "Measurement cycles that ended in error.",
	})
	pointsSent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "solar_daq_points_sent_total",
		Help: "Telemetry points accepted by the remote store.",
	})
	pointsDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "solar_daq_points_dropped_total",
		Help: "Telemetry points given up on after sink retries.",
	})
	sendFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "solar_daq_sink_send_failures_total",
		Help: "Individual failed writes to the remote store.",
	})
	reconnects := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "solar_daq_sink_reconnects_total",
		Help: "Successful sink reconnect sequences.",
	})
	reinits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "solar_daq_hardware_reinits_total",
		Help: "Full hardware re-initializations forced by repeated failures.",
	})
	fileSize := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "solar_daq_daily_file_size_bytes",
		Help: "Size of the active daily file on disk.",
	})
	sinkFailures := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "solar_daq_sink_consecutive_failures",
		Help: "Consecutive failed sends since the last success.",
	})
	cycleDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "solar_daq_cycle_duration_seconds",
		Help:    "Wall time of one measurement cycle.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	reg.MustRegister(rows, cycles, cycleFailures, pointsSent, pointsDropped,
		sendFailures, reconnects, reinits, fileSize, sinkFailures, cycleDuration)

	return &Obs{
		log: log,
		counters: map[string]prometheus.Counter{
			"solar_daq_rows_written_total":       rows,
			"solar_daq_cycles_total":             cycles,
			"solar_daq_cycle_failures_total":     cycleFailures,
			"solar_daq_points_sent_total":        pointsSent,
			"solar_daq_points_dropped_total":     pointsDropped,
			"solar_daq_sink_send_failures_total": sendFailures,
			"solar_daq_sink_reconnects_total":    reconnects,
			"solar_daq_hardware_reinits_total":   reinits,
		},
		gauges: map[string]prometheus.Gauge{
			"solar_daq_daily_file_size_bytes":     fileSize,
			"solar_daq_sink_consecutive_failures": sinkFailures,
		},
		histos: map[string]prometheus.Observer{
			"solar_daq_cycle_duration_seconds": cycleDuration,
		},
	}
}

func (o *Obs) LogInfo(msg string, fields ...ports.Field) {
	o.log.Info(msg, attrs(fields)...)
}

func (o *Obs) LogError(msg string, err error, fields ...ports.Field) {
	if err != nil {
		fields = append(fields, ports.F("error", err.Error()))
	}
	o.log.Error(msg, attrs(fields)...)
}

func (o *Obs) LogCritical(msg string, err error, fields ...ports.Field) {
	if err != nil {
		fields = append(fields, ports.F("error", err.Error()))
	}
	fields = append(fields, ports.F("critical", true))
	o.log.Error(msg, attrs(fields)...)
}

func (o *Obs) IncCounter(name string, v float64) {
	if c, ok := o.counters[name]; ok {
		c.Add(v)
	}
}

func (o *Obs) SetGauge(name string, v float64) {
	if g, ok := o.gauges[name]; ok {
		g.Set(v)
	}
}

func (o *Obs) ObserveLatency(name string, seconds float64) {
	if h, ok := o.histos[name]; ok {
		h.Observe(seconds)
	}
}

func attrs(fields []ports.Field) []any {
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		out = append(out, slog.Any(f.Key, f.Value))
	}
	return out
}

var _ ports.Observability = (*Obs)(nil)
