package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IPrometheusI/solar-daq/internal/adapters/aggregate"
	"github.com/IPrometheusI/solar-daq/internal/adapters/bus"
)

func TestSamplerFeedsAggregatorWindows(t *testing.T) {
	hw := newFakeRig()
	agg := aggregate.New()

	// every clock call advances one simulated second
	base := time.Date(2025, 6, 14, 9, 0, 0, 0, time.UTC)
	var calls atomic.Int64
	clock := func() time.Time {
		return base.Add(time.Duration(calls.Add(1)) * time.Second)
	}

	s := NewSampler(hw, bus.New(fakeRigBus{}, 0), agg, nopObs{},
		WithSamplerClock(clock),
		WithSamplerInterval(time.Millisecond),
	)

	hw.wind.Add(15)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for hw.wind.Load() != 0 {
		select {
		case <-deadline:
			t.Fatal("sampler never drained the anemometer counter")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	ws, ok := agg.MeanWindSpeed().Float()
	require.True(t, ok, "wind speed window must have samples")
	// 15 pulses over one second is 36 km/h, i.e. 10 m/s; later empty
	// seconds can only pull the mean down
	assert.Greater(t, ws, 0.0)
	assert.LessOrEqual(t, ws, 10.0)

	if got, ok := agg.MeanThermistor(5).Float(); !ok || got != 45 {
		t.Fatalf("thermistor 5 mean = %v ok=%v, want 45", got, ok)
	}
	if got, ok := agg.MeanAmbientTemp().Float(); !ok || got != 24 {
		t.Fatalf("ambient temp mean = %v ok=%v, want 24", got, ok)
	}
	if got, ok := agg.MeanHumidity().Float(); !ok || got != 50 {
		t.Fatalf("humidity mean = %v ok=%v, want 50", got, ok)
	}
}
