package sink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IPrometheusI/solar-daq/internal/domain"
	"github.com/IPrometheusI/solar-daq/internal/ports"
)

type nopObs struct{}

func (nopObs) LogInfo(string, ...ports.Field)            {}
func (nopObs) LogError(string, error, ...ports.Field)    {}
func (nopObs) LogCritical(string, error, ...ports.Field) {}
func (nopObs) IncCounter(string, float64)                {}
func (nopObs) SetGauge(string, float64)                  {}
func (nopObs) ObserveLatency(string, float64)            {}

// fakeClient scripts write/ping outcomes and counts calls.
type fakeClient struct {
	writes    int
	pings     int
	closed    bool
	writeErrs []error // consumed in order; nil entry means success
	pingErr   error
}

func (f *fakeClient) Write(ctx context.Context, p domain.TelemetryPoint) error {
	f.writes++
	if len(f.writeErrs) == 0 {
		return nil
	}
	err := f.writeErrs[0]
	f.writeErrs = f.writeErrs[1:]
	return err
}

func (f *fakeClient) Ping(ctx context.Context) error {
	f.pings++
	return f.pingErr
}

func (f *fakeClient) Close() { f.closed = true }

type fakeDialer struct {
	clients []*fakeClient
	dials   int
	errs    []error
}

func (d *fakeDialer) dial(ctx context.Context, cfg Config) (Client, error) {
	d.dials++
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	cli := d.clients[0]
	if len(d.clients) > 1 {
		d.clients = d.clients[1:]
	}
	return cli, nil
}

func testConfig() Config {
	return Config{
		URL:               "http://influx.test:8086",
		FailureThreshold:  3,
		ReconnectAttempts: 3,
		ReconnectPause:    time.Millisecond,
		MaxConnAge:        30 * time.Minute,
		HealthInterval:    time.Minute,
	}
}

func point() domain.TelemetryPoint {
	return domain.TelemetryPoint{
		Name:   "solar_panel_measurement",
		Fields: map[string]any{"irradiance": 850.0},
		Time:   time.Now(),
	}
}

func TestSendDialsOnceAndReusesConnection(t *testing.T) {
	d := &fakeDialer{clients: []*fakeClient{{}}}
	s := New(testConfig(), nopObs{}, WithDialer(d.dial))

	require.Equal(t, Disconnected, s.State())

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Send(context.Background(), point()))
	}

	assert.Equal(t, 1, d.dials)
	assert.Equal(t, 3, d.clients[0].writes)
	assert.Equal(t, Connected, s.State())
}

func TestThresholdTriggersExactlyOneReconnectAndRetry(t *testing.T) {
	failing := &fakeClient{writeErrs: []error{
		errors.New("w1"), errors.New("w2"), errors.New("w3"),
	}}
	fresh := &fakeClient{}
	d := &fakeDialer{clients: []*fakeClient{failing, fresh}}
	s := New(testConfig(), nopObs{}, WithDialer(d.dial))

	ctx := context.Background()

	// failures below the threshold: no reconnect, errors surface
	require.Error(t, s.Send(ctx, point()))
	require.Error(t, s.Send(ctx, point()))
	assert.Equal(t, 1, d.dials)
	assert.Equal(t, Degraded, s.State())

	// the third failure crosses the threshold: one reconnect, one retry
	require.NoError(t, s.Send(ctx, point()))
	assert.Equal(t, 2, d.dials)
	assert.True(t, failing.closed, "old connection must be closed on reconnect")
	assert.Equal(t, 1, fresh.writes, "exactly one retry of the same point")
	assert.Equal(t, Connected, s.State())

	// counter was reset by the successful retry
	require.Error(t, s.Send(ctx, addWriteErr(fresh)))
	assert.Equal(t, 2, d.dials, "a single post-recovery failure must not reconnect")
}

func addWriteErr(c *fakeClient) domain.TelemetryPoint {
	c.writeErrs = append(c.writeErrs, errors.New("late failure"))
	return point()
}

func TestRetryFailureKeepsCounting(t *testing.T) {
	alwaysFailing := &fakeClient{writeErrs: []error{
		errors.New("w1"), errors.New("w2"), errors.New("w3"), errors.New("retry"),
	}}
	d := &fakeDialer{clients: []*fakeClient{alwaysFailing}}
	s := New(testConfig(), nopObs{}, WithDialer(d.dial))

	ctx := context.Background()
	require.Error(t, s.Send(ctx, point()))
	require.Error(t, s.Send(ctx, point()))
	require.Error(t, s.Send(ctx, point()), "retry after reconnect also failed")

	assert.Equal(t, 2, d.dials)
	assert.Equal(t, Degraded, s.State())
}

func TestBoundedDialAttempts(t *testing.T) {
	d := &fakeDialer{
		clients: []*fakeClient{{}},
		errs:    []error{errors.New("d1"), errors.New("d2"), errors.New("d3")},
	}
	s := New(testConfig(), nopObs{}, WithDialer(d.dial))

	err := s.Send(context.Background(), point())
	require.Error(t, err)
	assert.Equal(t, 3, d.dials, "dial sequence is bounded by ReconnectAttempts")
	assert.Equal(t, Disconnected, s.State())

	// next send starts a fresh sequence and succeeds
	require.NoError(t, s.Send(context.Background(), point()))
	assert.Equal(t, 4, d.dials)
}

func TestAgedConnectionIsRefreshedBeforeWrite(t *testing.T) {
	first := &fakeClient{}
	second := &fakeClient{}
	d := &fakeDialer{clients: []*fakeClient{first, second}}

	now := time.Date(2025, 6, 14, 12, 0, 0, 0, time.UTC)
	s := New(testConfig(), nopObs{},
		WithDialer(d.dial),
		WithSinkClock(func() time.Time { return now }),
	)

	require.NoError(t, s.Send(context.Background(), point()))
	require.Equal(t, 1, first.writes)

	now = now.Add(31 * time.Minute)
	require.NoError(t, s.Send(context.Background(), point()))

	assert.Equal(t, 2, d.dials, "aged connection must be replaced preventively")
	assert.True(t, first.closed)
	assert.Equal(t, 1, second.writes)
}

func TestHealthCheckReconnectsDeadConnection(t *testing.T) {
	dead := &fakeClient{pingErr: errors.New("no pong")}
	fresh := &fakeClient{}
	d := &fakeDialer{clients: []*fakeClient{dead, fresh}}
	s := New(testConfig(), nopObs{}, WithDialer(d.dial))

	require.NoError(t, s.Send(context.Background(), point()))
	require.Equal(t, 1, d.dials)

	s.checkHealth(context.Background())

	assert.Equal(t, 1, dead.pings)
	assert.True(t, dead.closed)
	assert.Equal(t, 2, d.dials)

	// healthy connection is left alone
	s.checkHealth(context.Background())
	assert.Equal(t, 1, fresh.pings)
	assert.Equal(t, 2, d.dials)
}

func TestConcurrentReconnectsDoNotLeakAConnection(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	var mu sync.Mutex
	var created []*fakeClient
	dial := func(ctx context.Context, cfg Config) (Client, error) {
		mu.Lock()
		cli := &fakeClient{}
		created = append(created, cli)
		first := len(created) == 1
		mu.Unlock()
		if first {
			close(started)
			<-release
		}
		return cli, nil
	}
	s := New(testConfig(), nopObs{}, WithDialer(dial))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = s.reconnect(context.Background())
	}()
	<-started // first caller is mid-dial
	go func() {
		defer wg.Done()
		_, _ = s.reconnect(context.Background())
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	open := 0
	for _, c := range created {
		if !c.closed {
			open++
		}
	}
	assert.Equal(t, 1, open, "every displaced client must be closed")
	assert.Equal(t, Connected, s.State())
}

func TestNegativeReconnectAttemptsFallBackToDefault(t *testing.T) {
	cfg := testConfig()
	cfg.ReconnectAttempts = -2

	d := &fakeDialer{
		clients: []*fakeClient{{}},
		errs:    []error{errors.New("d1"), errors.New("d2"), errors.New("d3")},
	}
	s := New(cfg, nopObs{}, WithDialer(d.dial))

	require.Error(t, s.Send(context.Background(), point()))
	assert.Equal(t, 3, d.dials, "a bounded sequence, not a wrapped retry budget")
}

func TestCloseIsIdempotentAndDisconnects(t *testing.T) {
	cli := &fakeClient{}
	d := &fakeDialer{clients: []*fakeClient{cli}}
	s := New(testConfig(), nopObs{}, WithDialer(d.dial))

	require.NoError(t, s.Send(context.Background(), point()))

	s.Close()
	s.Close()

	assert.True(t, cli.closed)
	assert.Equal(t, Disconnected, s.State())
}
