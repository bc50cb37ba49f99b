package session

import (
	"fmt"
	"os"
	"time"

	"github.com/IPrometheusI/solar-daq/internal/domain"
	"github.com/IPrometheusI/solar-daq/internal/ports"
)

// State of the daily recording session.
type State int

const (
	// Idle: outside the operating window, no file open.
	Idle State = iota
	// Recording: inside the window with a valid file handle.
	Recording
	// Suspended: inside the window but not recording, reached only through
	// an ambiguous or failed recovery. The watchdog self-heals out of it.
	Suspended
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Suspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// TickResult tells the scheduler what a boundary check did.
type TickResult int

const (
	TickNone TickResult = iota
	TickDayStarted
	TickDayEnded
	TickRecovered
)

// watchdog cadence while inside the operating window
const watchdogEveryMinutes = 5

// Machine owns the daily recording window, the active output file, and the
// crash-safe checkpoint. It is driven from the scheduler goroutine only and
// needs no locking of its own.
type Machine struct {
	window Window
	dir    string
	store  *CheckpointStore
	obs    ports.Observability

	now        func() time.Time
	onDayStart func()

	state           State
	file            *DailyFile
	fileCreatedAt   time.Time
	lastCreationDay int
	rainPulseTotal  uint64
	startedAt       time.Time
	checkpointAt    time.Time
}

type MachineOption func(*Machine)

// WithClock overrides the wall-clock source, for tests.
func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) { m.now = now }
}

// WithDayStartHook registers a callback run once per window open, after the
// fresh file exists. Used to reset the power meters' energy accumulators.
func WithDayStartHook(fn func()) MachineOption {
	return func(m *Machine) { m.onDayStart = fn }
}

func NewMachine(window Window, dir string, store *CheckpointStore, obs ports.Observability, opts ...MachineOption) *Machine {
	m := &Machine{
		window:          window,
		dir:             dir,
		store:           store,
		obs:             obs,
		now:             time.Now,
		lastCreationDay: -1,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.startedAt = m.now()
	return m
}

func (m *Machine) State() State              { return m.state }
func (m *Machine) Recording() bool           { return m.state == Recording && m.file != nil }
func (m *Machine) InWindow(t time.Time) bool { return m.window.Contains(t) }

// FilePath returns the active daily file path, or "" when none is open.
func (m *Machine) FilePath() string {
	if m.file == nil {
		return ""
	}
	return m.file.Path()
}

// FileSize returns the active file's on-disk size, or 0 when none is open.
func (m *Machine) FileSize() int64 {
	if m.file == nil {
		return 0
	}
	return m.file.Size()
}

// RainTotalPulses is the running daily rain tip count.
func (m *Machine) RainTotalPulses() uint64 { return m.rainPulseTotal }

// CheckpointedAt returns the stamp of the checkpoint that recovery loaded,
// so the scheduler can treat that minute as already consumed. The previous
// process checkpointed after its last row; a restart landing in the same
// minute must not write that minute again. Zero when startup found no
// readable checkpoint.
func (m *Machine) CheckpointedAt() (time.Time, bool) {
	return m.checkpointAt, !m.checkpointAt.IsZero()
}

// Recover rebuilds session state on startup. The checkpoint is accepted only
// when its day and year are today's, the wall clock is inside the window,
// the referenced file exists with the expected header, and the recording
// flag was set. Anything else discards the checkpoint and falls back to
// directory scan, then fresh-file creation.
func (m *Machine) Recover() {
	now := m.now()

	cp, err := m.store.Load()
	if err != nil {
		m.obs.LogError("checkpoint_load_failed", err)
	}

	if cp != nil {
		if ts, perr := time.ParseInLocation(checkpointTimeLayout, cp.Timestamp, now.Location()); perr == nil {
			m.checkpointAt = ts
		}
		if reason := m.rejectCheckpoint(cp, now); reason == "" {
			if m.resumeFrom(cp) {
				return
			}
		} else {
			m.obs.LogInfo("checkpoint_rejected", ports.F("reason", reason))
		}
	}

	m.adoptOrCreate(now)
}

// rejectCheckpoint returns "" when cp is safe to resume from, or the reason
// it is not.
func (m *Machine) rejectCheckpoint(cp *Checkpoint, now time.Time) string {
	if cp.Day != now.YearDay() || cp.Year != now.Year() {
		return "day changed"
	}
	if !m.window.Contains(now) {
		return "outside operating window"
	}
	if cp.FilePath == "" {
		return "no file recorded"
	}
	if err := ValidateHeader(cp.FilePath); err != nil {
		return err.Error()
	}
	if !cp.Recording {
		return "was not recording"
	}
	return ""
}

func (m *Machine) resumeFrom(cp *Checkpoint) bool {
	f, err := OpenDailyFile(cp.FilePath)
	if err != nil {
		m.obs.LogError("checkpoint_resume_failed", err)
		return false
	}

	m.file = f
	m.state = Recording
	m.lastCreationDay = cp.LastCreationDay
	m.rainPulseTotal = cp.RainPulseTotal
	if cp.StartedAt > 0 {
		m.startedAt = time.Unix(cp.StartedAt, 0)
	}
	if cp.FileCreatedAt > 0 {
		m.fileCreatedAt = time.Unix(cp.FileCreatedAt, 0)
	}

	m.obs.LogInfo("session_resumed", ports.F("file", cp.FilePath))
	m.persist()
	return true
}

// adoptOrCreate scans for a same-day file to adopt, otherwise creates a
// fresh one when inside the window, otherwise goes Idle.
func (m *Machine) adoptOrCreate(now time.Time) {
	if !m.window.Contains(now) {
		m.state = Idle
		m.obs.LogInfo("session_idle", ports.F("window", "closed"))
		return
	}

	if path, ok := FindDailyFile(m.dir, now); ok {
		f, err := OpenDailyFile(path)
		if err == nil {
			m.file = f
			m.state = Recording
			m.lastCreationDay = now.YearDay()
			if info, statErr := os.Stat(path); statErr == nil {
				m.fileCreatedAt = info.ModTime()
			}
			m.obs.LogInfo("daily_file_adopted", ports.F("file", path))
			m.persist()
			return
		}
		m.obs.LogError("daily_file_adopt_failed", err, ports.F("file", path))
	}

	if err := m.beginDay(now); err != nil {
		m.obs.LogError("daily_file_create_failed", err)
		m.state = Suspended
	}
}

// Tick runs the boundary checks for one scheduler iteration. Day start wins
// over everything; day end only fires while recording; the watchdog re-runs
// recovery on its cadence when the session should be recording but is not.
func (m *Machine) Tick(now time.Time) (TickResult, error) {
	switch {
	case m.window.StartsAt(now) && now.YearDay() != m.lastCreationDay:
		if err := m.beginDay(now); err != nil {
			m.state = Suspended
			return TickNone, fmt.Errorf("open daily file: %w", err)
		}
		return TickDayStarted, nil

	case m.window.EndsAt(now) && m.state == Recording:
		m.endDay()
		return TickDayEnded, nil
	}

	if now.Minute()%watchdogEveryMinutes == 0 && m.window.Contains(now) && !m.healthy() {
		m.obs.LogInfo("watchdog_recovery", ports.F("state", m.state.String()))
		m.adoptOrCreate(now)
		if m.Recording() {
			return TickRecovered, nil
		}
		return TickNone, fmt.Errorf("watchdog could not restore recording")
	}

	return TickNone, nil
}

func (m *Machine) healthy() bool {
	if m.state != Recording || m.file == nil {
		return false
	}
	_, err := os.Stat(m.file.Path())
	return err == nil
}

// beginDay opens the new daily file and runs the day-start resets: daily
// rain total to zero and, through the hook, each meter's energy accumulator.
func (m *Machine) beginDay(now time.Time) error {
	if m.file != nil {
		_ = m.file.Close()
		m.file = nil
	}

	f, err := CreateDailyFile(m.dir, now)
	if err != nil {
		return err
	}

	m.file = f
	m.fileCreatedAt = now
	m.state = Recording
	m.lastCreationDay = now.YearDay()
	m.rainPulseTotal = 0

	if m.onDayStart != nil {
		m.onDayStart()
	}

	m.obs.LogInfo("daily_file_created", ports.F("file", f.Path()))
	m.persist()
	return nil
}

// endDay closes the window: file closed, handle cleared, checkpoint deleted
// so the next day starts from a clean slate.
func (m *Machine) endDay() {
	if m.file != nil {
		m.obs.LogInfo("daily_file_closed",
			ports.F("file", m.file.Path()),
			ports.F("size_bytes", m.file.Size()),
			ports.F("rain_mm_total", float64(m.rainPulseTotal)*domain.MMPerRainPulse),
		)
		_ = m.file.Close()
		m.file = nil
	}
	m.state = Idle
	if err := m.store.Clear(); err != nil {
		m.obs.LogError("checkpoint_clear_failed", err)
	}
}

// AppendRow writes exactly one row and folds the minute's rain pulses into
// the daily total, then checkpoints. When the file handle went stale
// mid-window the file is recreated first, without re-running the day-start
// resets.
func (m *Machine) AppendRow(rec domain.Measurement, rainPulses uint64) error {
	if !m.Recording() {
		return fmt.Errorf("session is %s, not recording", m.state)
	}

	if _, err := os.Stat(m.file.Path()); err != nil {
		m.obs.LogError("daily_file_vanished", err, ports.F("file", m.file.Path()))
		if !m.window.Contains(rec.Taken) {
			return fmt.Errorf("daily file missing outside window")
		}
		if err := m.recreateFile(rec.Taken); err != nil {
			return err
		}
	}

	if err := m.file.Append(rec); err != nil {
		return err
	}
	m.rainPulseTotal += rainPulses
	m.persist()
	return nil
}

// recreateFile replaces a vanished daily file without touching the daily
// rain total or the meter accumulators.
func (m *Machine) recreateFile(now time.Time) error {
	_ = m.file.Close()
	f, err := CreateDailyFile(m.dir, now)
	if err != nil {
		return fmt.Errorf("recreate daily file: %w", err)
	}
	m.file = f
	m.fileCreatedAt = now
	m.obs.LogInfo("daily_file_recreated", ports.F("file", f.Path()))
	return nil
}

// Shutdown flushes state on the graceful exit path. A session interrupted
// mid-window keeps its checkpoint so a restart resumes the same file; the
// checkpoint is only deleted by a clean window close.
func (m *Machine) Shutdown() {
	if m.state == Recording {
		m.persist()
	}
	if m.file != nil {
		_ = m.file.Close()
		m.file = nil
	}
}

func (m *Machine) persist() {
	now := m.now()
	cp := Checkpoint{
		Timestamp:       checkpointTimestamp(now),
		FilePath:        m.FilePath(),
		Recording:       m.state == Recording,
		LastCreationDay: m.lastCreationDay,
		Day:             now.YearDay(),
		Year:            now.Year(),
		RainPulseTotal:  m.rainPulseTotal,
		StartedAt:       m.startedAt.Unix(),
	}
	if m.file != nil {
		if !m.fileCreatedAt.IsZero() {
			cp.FileCreatedAt = m.fileCreatedAt.Unix()
		}
		cp.FileSize = m.file.Size()
	}

	if err := m.store.Save(cp); err != nil {
		m.obs.LogError("checkpoint_save_failed", err)
	}
}
