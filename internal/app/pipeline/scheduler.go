package pipeline

import (
	"context"
	"time"

	"github.com/IPrometheusI/solar-daq/internal/adapters/session"
	"github.com/IPrometheusI/solar-daq/internal/ports"
)

const (
	// consecutive failed iterations before forcing a hardware reinit
	maxConsecutiveFailures = 10
	reinitCooldown         = 30 * time.Second

	// a cycle fires only within the first seconds of its minute; a late
	// wake skips the minute rather than writing an off-grid row
	cycleGraceSeconds = 5

	activeSleep = time.Second
	idleSleep   = 5 * time.Second
)

// Scheduler drives the minute grid: session boundary ticks, one measurement
// cycle per in-window minute, failure counting and hardware reinit. A panic
// in an iteration is contained and counted like any other failure; the loop
// itself never dies.
type Scheduler struct {
	pipe *Pipeline
	sess *session.Machine
	hw   ports.Hardware
	obs  ports.Observability

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)

	consecutive int
	lastMinute  int
}

type SchedulerOption func(*Scheduler)

// WithSchedulerClock overrides the wall-clock source, for tests.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// WithSchedulerSleep overrides the inter-iteration sleep, for tests.
func WithSchedulerSleep(sleep func(ctx context.Context, d time.Duration)) SchedulerOption {
	return func(s *Scheduler) { s.sleep = sleep }
}

func NewScheduler(pipe *Pipeline, sess *session.Machine, hw ports.Hardware, obs ports.Observability, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		pipe:       pipe,
		sess:       sess,
		hw:         hw,
		obs:        obs,
		now:        time.Now,
		sleep:      sleepCtx,
		lastMinute: -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.seedConsumedMinute()
	for ctx.Err() == nil {
		s.iterate(ctx)

		if s.consecutive >= maxConsecutiveFailures {
			s.reinit(ctx)
		}

		if s.sess.InWindow(s.now()) {
			s.sleep(ctx, activeSleep)
		} else {
			s.sleep(ctx, idleSleep)
		}
	}
}

// seedConsumedMinute marks the minute of the recovered checkpoint as already
// consumed. The minute grid lives in process memory; without the seed a
// crash and restart inside the same minute's grace window would write a
// second row for a minute that is already on disk.
func (s *Scheduler) seedConsumedMinute() {
	cp, ok := s.sess.CheckpointedAt()
	if !ok {
		return
	}
	now := s.now()
	if cp.Year() != now.Year() || cp.YearDay() != now.YearDay() {
		return
	}
	s.lastMinute = cp.Hour()*60 + cp.Minute()
}

func (s *Scheduler) iterate(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.obs.LogCritical("iteration_panic", nil, ports.F("panic", r))
			s.consecutive++
		}
	}()

	now := s.now()

	res, err := s.sess.Tick(now)
	if err != nil {
		s.obs.LogError("session_tick_failed", err)
		s.consecutive++
		return
	}
	if res == session.TickDayStarted || res == session.TickDayEnded {
		s.consecutive = 0
		// The boundary consumed this minute; the first row lands on the
		// next grid point.
		s.lastMinute = now.Hour()*60 + now.Minute()
		return
	}

	minute := now.Hour()*60 + now.Minute()
	if minute == s.lastMinute || now.Second() >= cycleGraceSeconds {
		return
	}
	s.lastMinute = minute

	if err := s.pipe.RunCycle(ctx); err != nil {
		s.obs.IncCounter("solar_daq_cycle_failures_total", 1)
		s.consecutive++
		return
	}
	s.consecutive = 0
}

// reinit power-cycles the hardware layer after a run of failed iterations,
// then backs off before the loop tries again.
func (s *Scheduler) reinit(ctx context.Context) {
	s.obs.LogCritical("hardware_reinit", nil, ports.F("consecutive_failures", s.consecutive))
	s.obs.IncCounter("solar_daq_hardware_reinits_total", 1)

	if err := s.hw.Reinit(ctx); err != nil {
		s.obs.LogError("hardware_reinit_failed", err)
	} else {
		s.consecutive = 0
	}
	s.sleep(ctx, reinitCooldown)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
