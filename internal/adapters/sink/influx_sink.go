package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	influxdomain "github.com/influxdata/influxdb-client-go/v2/domain"

	"github.com/IPrometheusI/solar-daq/internal/domain"
	"github.com/IPrometheusI/solar-daq/internal/ports"
)

// ConnState is the sink's connection condition.
type ConnState int

const (
	Disconnected ConnState = iota
	Connected
	Degraded // failures accumulating but not yet past threshold
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Degraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Config holds the remote store endpoint, identity, and recovery tuning.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string

	FailureThreshold  int           // consecutive send failures before a forced reconnect
	ReconnectAttempts int           // bounded dial attempts per reconnect sequence
	ReconnectPause    time.Duration // pause between dial attempts
	MaxConnAge        time.Duration // preventive refresh threshold
	HealthInterval    time.Duration // liveness probe cadence
}

// ApplyDefaults fills unset values. Non-positive tuning values fall back to
// the defaults too: ReconnectAttempts feeds a uint64 retry budget where a
// negative count would wrap to an effectively unbounded one.
func (c *Config) ApplyDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.ReconnectAttempts <= 0 {
		c.ReconnectAttempts = 3
	}
	if c.ReconnectPause <= 0 {
		c.ReconnectPause = 2 * time.Second
	}
	if c.MaxConnAge <= 0 {
		c.MaxConnAge = 30 * time.Minute
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = time.Minute
	}
}

// Client is the narrow seam over the InfluxDB connection, faked in tests.
type Client interface {
	Write(ctx context.Context, p domain.TelemetryPoint) error
	Ping(ctx context.Context) error
	Close()
}

// Dialer opens a verified connection to the remote store.
type Dialer func(ctx context.Context, cfg Config) (Client, error)

// InfluxSink is the auto-recovering client for the remote time-series store.
// Its lock guards only the connection object and the health counters; it is
// never held across a network call.
type InfluxSink struct {
	cfg  Config
	dial Dialer
	obs  ports.Observability
	now  func() time.Time

	mu          sync.Mutex
	cli         Client
	gen         uint64 // bumped on every installed connection
	openedAt    time.Time
	lastSuccess time.Time
	failures    int

	// dialMu serializes reconnect sequences; Send and the health prober
	// can both land in reconnect at the same time.
	dialMu sync.Mutex
}

type Option func(*InfluxSink)

// WithDialer overrides how connections are opened, for tests.
func WithDialer(d Dialer) Option {
	return func(s *InfluxSink) { s.dial = d }
}

// WithSinkClock overrides the wall-clock source, for tests.
func WithSinkClock(now func() time.Time) Option {
	return func(s *InfluxSink) { s.now = now }
}

func New(cfg Config, obs ports.Observability, opts ...Option) *InfluxSink {
	cfg.ApplyDefaults()
	s := &InfluxSink{
		cfg:  cfg,
		dial: dialInflux,
		obs:  obs,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send delivers one point. A connection past its age threshold is refreshed
// first; a missing connection triggers one bounded reconnect sequence. On a
// write failure that crosses the consecutive-failure threshold the sink does
// exactly one full reconnect and retries the same point once before giving
// up on it. Send never panics past this boundary.
func (s *InfluxSink) Send(ctx context.Context, p domain.TelemetryPoint) error {
	cli, err := s.connection(ctx)
	if err != nil {
		s.recordFailure()
		return fmt.Errorf("sink unavailable: %w", err)
	}

	if err := cli.Write(ctx, p); err != nil {
		failures := s.recordFailure()
		s.obs.IncCounter("solar_daq_sink_send_failures_total", 1)

		if failures >= s.cfg.FailureThreshold {
			retryCli, rerr := s.reconnect(ctx)
			if rerr == nil {
				if retryErr := retryCli.Write(ctx, p); retryErr == nil {
					s.recordSuccess()
					return nil
				}
				s.recordFailure()
			}
		}
		return fmt.Errorf("write point: %w", err)
	}

	s.recordSuccess()
	return nil
}

// State reports the current connection condition.
func (s *InfluxSink) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.cli == nil:
		return Disconnected
	case s.failures > 0:
		return Degraded
	default:
		return Connected
	}
}

// RunHealthChecks probes connection liveness on a fixed cadence and
// proactively recovers a stale or dead connection even when no send is
// failing. Blocks until ctx is done.
func (s *InfluxSink) RunHealthChecks(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkHealth(ctx)
		}
	}
}

func (s *InfluxSink) checkHealth(ctx context.Context) {
	s.mu.Lock()
	cli := s.cli
	s.mu.Unlock()

	if cli == nil {
		if _, err := s.reconnect(ctx); err != nil {
			s.obs.LogError("sink_health_reconnect_failed", err)
		}
		return
	}

	if err := cli.Ping(ctx); err != nil {
		s.obs.LogError("sink_health_probe_failed", err)
		if _, rerr := s.reconnect(ctx); rerr != nil {
			s.obs.LogError("sink_health_reconnect_failed", rerr)
		}
	}
}

func (s *InfluxSink) Close() {
	s.mu.Lock()
	cli := s.cli
	s.cli = nil
	s.mu.Unlock()

	if cli != nil {
		cli.Close()
	}
}

// connection returns a live client, refreshing an aged one and dialing when
// disconnected.
func (s *InfluxSink) connection(ctx context.Context) (Client, error) {
	s.mu.Lock()
	cli := s.cli
	aged := cli != nil && s.cfg.MaxConnAge > 0 && s.now().Sub(s.openedAt) > s.cfg.MaxConnAge
	s.mu.Unlock()

	if cli != nil && !aged {
		return cli, nil
	}
	if aged {
		s.obs.LogInfo("sink_connection_refresh", ports.F("max_age", s.cfg.MaxConnAge.String()))
	}
	return s.reconnect(ctx)
}

// reconnect closes the current connection and runs one bounded dial
// sequence. Only one sequence runs at a time; a caller that waited out a
// concurrent one adopts its connection instead of displacing it.
func (s *InfluxSink) reconnect(ctx context.Context) (Client, error) {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	s.dialMu.Lock()
	defer s.dialMu.Unlock()

	s.mu.Lock()
	if s.gen != gen && s.cli != nil {
		cli := s.cli
		s.mu.Unlock()
		return cli, nil
	}
	old := s.cli
	s.cli = nil
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}

	var cli Client
	op := func() error {
		c, err := s.dial(ctx, s.cfg)
		if err != nil {
			return err
		}
		cli = c
		return nil
	}

	pause := backoff.NewConstantBackOff(s.cfg.ReconnectPause)
	bounded := backoff.WithMaxRetries(pause, uint64(s.cfg.ReconnectAttempts-1))
	if err := backoff.Retry(op, backoff.WithContext(bounded, ctx)); err != nil {
		return nil, fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}

	s.mu.Lock()
	s.cli = cli
	s.gen++
	s.openedAt = s.now()
	s.mu.Unlock()

	s.obs.IncCounter("solar_daq_sink_reconnects_total", 1)
	s.obs.LogInfo("sink_connected", ports.F("url", s.cfg.URL))
	return cli, nil
}

func (s *InfluxSink) recordSuccess() {
	s.mu.Lock()
	s.failures = 0
	s.lastSuccess = s.now()
	s.mu.Unlock()
	s.obs.SetGauge("solar_daq_sink_consecutive_failures", 0)
}

func (s *InfluxSink) recordFailure() int {
	s.mu.Lock()
	s.failures++
	n := s.failures
	s.mu.Unlock()
	s.obs.SetGauge("solar_daq_sink_consecutive_failures", float64(n))
	return n
}

var _ ports.TelemetrySink = (*InfluxSink)(nil)

// influxClient adapts the InfluxDB v2 client to the Client seam.
type influxClient struct {
	c influxdb2.Client
	w api.WriteAPIBlocking
}

func dialInflux(ctx context.Context, cfg Config) (Client, error) {
	c := influxdb2.NewClient(cfg.URL, cfg.Token)

	health, err := c.Health(ctx)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("health check: %w", err)
	}
	if health.Status != influxdomain.HealthCheckStatusPass {
		c.Close()
		return nil, fmt.Errorf("health check status %q", health.Status)
	}

	return &influxClient{c: c, w: c.WriteAPIBlocking(cfg.Org, cfg.Bucket)}, nil
}

func (i *influxClient) Write(ctx context.Context, p domain.TelemetryPoint) error {
	point := influxdb2.NewPoint(p.Name, p.Tags, p.Fields, p.Time)
	return i.w.WritePoint(ctx, point)
}

func (i *influxClient) Ping(ctx context.Context) error {
	health, err := i.c.Health(ctx)
	if err != nil {
		return err
	}
	if health.Status != influxdomain.HealthCheckStatusPass {
		return fmt.Errorf("health check status %q", health.Status)
	}
	return nil
}

func (i *influxClient) Close() { i.c.Close() }

// Disabled is the sink used when no remote store is configured; rows still
// land in the daily file.
type Disabled struct{}

func (Disabled) Send(context.Context, domain.TelemetryPoint) error { return nil }
func (Disabled) Close()                                            {}

var _ ports.TelemetrySink = Disabled{}
