package safety

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"pnp-bridge/backend"
	"pnp-bridge/cache"
	"pnp-bridge/models"
)

// Level is the global escalating safety level. Any monitor may raise it;
// only an explicit reset lowers it from Emergency.
type Level int32

const (
	LevelNormal Level = iota
	LevelCaution
	LevelWarning
	LevelCritical
	LevelEmergency
)

func (l Level) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelCaution:
		return "caution"
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	case LevelEmergency:
		return "emergency"
	}
	return "unknown"
}

// EventKind classifies a safety event for statistics.
type EventKind string

const (
	EventTemperatureExceeded EventKind = "temperature_exceeded"
	EventPositionExceeded    EventKind = "position_limit_exceeded"
	EventBoundsViolation     EventKind = "bounds_violation"
	EventEmergencyStop       EventKind = "emergency_stop"
	EventStateChange         EventKind = "state_change"
)

// Event is one entry in the safety transition log.
type Event struct {
	Kind      EventKind              `json:"kind"`
	Level     Level                  `json:"level"`
	Message   string                 `json:"message"`
	Component string                 `json:"component"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Statistics counts safety activity since construction.
type Statistics struct {
	TotalEvents           int
	EmergencyStops        int
	TemperatureViolations int
	PositionViolations    int
	BoundsViolations      int
	LastEmergencyStop     time.Time
	LastViolation         time.Time
}

const maxEventLog = 1000

// Manager owns the safety level state machine, the event log, the
// configured limits, and the periodic monitors that watch cached hardware
// state. The level is read atomically so the queue consumer can gate
// dispatch without locking.
type Manager struct {
	level atomic.Int32

	mu        sync.RWMutex
	limits    Limits
	events    []Event
	callbacks []func(Event)
	stats     Statistics

	backend backend.MotionBackend
	cache   *cache.StateCache
	logger  *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager creates a safety manager at level Normal.
func NewManager(limits Limits, b backend.MotionBackend, sc *cache.StateCache, logger *slog.Logger) *Manager {
	return &Manager{
		limits:  limits,
		backend: b,
		cache:   sc,
		logger:  logger.With("component", "safety_manager"),
		stop:    make(chan struct{}),
	}
}

// Limits returns a copy of the current limits.
func (m *Manager) Limits() Limits {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.limits
}

// UpdateLimits is the administrative limit update. Inverted pairs are
// rejected and the previous limits stay in force.
func (m *Manager) UpdateLimits(l Limits) error {
	if err := l.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.limits = l
	m.mu.Unlock()
	m.logger.Info("safety limits updated")
	m.record(Event{
		Kind:      EventStateChange,
		Level:     m.Level(),
		Message:   "safety limits updated",
		Component: "safety_manager",
		Timestamp: time.Now(),
	})
	return nil
}

// Level returns the current safety level.
func (m *Manager) Level() Level {
	return Level(m.level.Load())
}

// EmergencyActive reports whether dispatch is blocked.
func (m *Manager) EmergencyActive() bool {
	return m.Level() == LevelEmergency
}

// Raise escalates the safety level. Transitions are monotonic by trigger:
// a lower requested level never downgrades the current one.
func (m *Manager) Raise(level Level, kind EventKind, component, message string, details map[string]interface{}) {
	for {
		current := m.level.Load()
		if int32(level) <= current {
			break
		}
		if m.level.CompareAndSwap(current, int32(level)) {
			m.logger.Warn("safety level raised",
				"from", Level(current).String(), "to", level.String(),
				"component", component, "message", message)
			break
		}
	}
	m.record(Event{
		Kind:      kind,
		Level:     level,
		Message:   message,
		Component: component,
		Details:   details,
		Timestamp: time.Now(),
	})
}

// NoteViolation records an event without changing the safety level. Used
// for per-command rejections, which do not indicate a machine-wide hazard.
func (m *Manager) NoteViolation(kind EventKind, component, message string, details map[string]interface{}) {
	m.record(Event{
		Kind:      kind,
		Level:     m.Level(),
		Message:   message,
		Component: component,
		Details:   details,
		Timestamp: time.Now(),
	})
}

// EmergencyStop transitions to Emergency, sends the backend stop
// instruction, and invalidates the entire state cache. The Emergency level
// is set before anything else so concurrent dispatch sees it immediately.
func (m *Manager) EmergencyStop(ctx context.Context, reason string) error {
	m.level.Store(int32(LevelEmergency))

	m.mu.Lock()
	m.stats.EmergencyStops++
	m.stats.LastEmergencyStop = time.Now()
	m.mu.Unlock()

	m.record(Event{
		Kind:      EventEmergencyStop,
		Level:     LevelEmergency,
		Message:   "emergency stop: " + reason,
		Component: "safety_manager",
		Timestamp: time.Now(),
	})

	err := m.backend.EmergencyStop(ctx)
	if err != nil {
		m.logger.Error("backend emergency stop failed", "error", err)
	}
	cleared := m.cache.Clear()
	m.logger.Warn("emergency stop executed", "reason", reason, "cache_entries_cleared", cleared)
	return err
}

// Reset returns the level to Normal. Callers must have drained or cleared
// the command queue first; the translator enforces that precondition.
func (m *Manager) Reset() {
	prev := Level(m.level.Swap(int32(LevelNormal)))
	m.record(Event{
		Kind:      EventStateChange,
		Level:     LevelNormal,
		Message:   "safety level reset from " + prev.String(),
		Component: "safety_manager",
		Timestamp: time.Now(),
	})
	m.logger.Info("safety level reset", "previous", prev.String())
}

// OnEvent registers a callback invoked for every recorded event.
func (m *Manager) OnEvent(fn func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// Events returns the most recent events, newest last.
func (m *Manager) Events(limit int) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := m.events
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	out := make([]Event, len(events))
	copy(out, events)
	return out
}

// Stats returns a snapshot of the counters.
func (m *Manager) Stats() Statistics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

func (m *Manager) record(ev Event) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	if len(m.events) > maxEventLog {
		m.events = m.events[len(m.events)-maxEventLog:]
	}
	m.stats.TotalEvents++
	switch ev.Kind {
	case EventTemperatureExceeded:
		m.stats.TemperatureViolations++
		m.stats.LastViolation = ev.Timestamp
	case EventPositionExceeded:
		m.stats.PositionViolations++
		m.stats.LastViolation = ev.Timestamp
	case EventBoundsViolation:
		m.stats.BoundsViolations++
		m.stats.LastViolation = ev.Timestamp
	}
	callbacks := make([]func(Event), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	for _, fn := range callbacks {
		fn(ev)
	}
}

// Start launches the three periodic monitors. Each runs on its own interval
// and may only raise the level, never lower it.
func (m *Manager) Start(ctx context.Context) {
	limits := m.Limits()
	m.startMonitor(ctx, "temperature_monitor", limits.TemperatureCheckInterval, m.checkTemperatures)
	m.startMonitor(ctx, "position_monitor", limits.PositionCheckInterval, m.checkPosition)
	m.startMonitor(ctx, "state_monitor", limits.StateCheckInterval, m.checkState)
	m.logger.Info("safety monitors started")
}

// Stop halts the monitors and waits for them to exit.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.wg.Wait()
}

func (m *Manager) startMonitor(ctx context.Context, name string, interval time.Duration, check func(context.Context)) {
	if interval <= 0 {
		interval = time.Second
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				check(ctx)
			}
		}
	}()
}

// checkTemperatures polls cached sensor state and escalates on any zone
// exceeding its ceiling.
func (m *Manager) checkTemperatures(ctx context.Context) {
	value, err := m.cache.Get(ctx, "sensor:all", cache.CategorySensor)
	if err != nil {
		m.logger.Debug("temperature check skipped", "error", err)
		return
	}
	limits := m.Limits()
	for zone, reading := range extractTemperatures(value) {
		max := limits.zoneMaxTemp(zone)
		if reading > max {
			m.Raise(LevelCritical, EventTemperatureExceeded, zone,
				"temperature exceeded limit",
				map[string]interface{}{"temperature": reading, "limit": max})
		}
	}
}

// checkPosition polls the cached toolhead position against the axis bounds.
func (m *Manager) checkPosition(ctx context.Context) {
	value, err := m.cache.Get(ctx, "position", cache.CategoryPosition)
	if err != nil {
		m.logger.Debug("position check skipped", "error", err)
		return
	}
	pos, ok := extractPosition(value)
	if !ok {
		return
	}
	limits := m.Limits()
	for axis, v := range pos {
		if err := CheckPosition(axis, v, limits); err != nil {
			m.Raise(LevelCritical, EventPositionExceeded, "axis_"+axis,
				err.Message,
				map[string]interface{}{"axis": axis, "position": v})
		}
	}
}

// checkState watches for a lingering emergency condition and logs it.
func (m *Manager) checkState(ctx context.Context) {
	if m.EmergencyActive() {
		m.logger.Warn("emergency stop still active, awaiting reset")
	}
}

// ValidateWithCurrent validates a command against the live limits.
func (m *Manager) ValidateWithCurrent(cmd *models.Command) *models.CommandError {
	return ValidateCommand(cmd, m.Limits())
}
