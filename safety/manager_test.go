package safety

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"pnp-bridge/backend"
	"pnp-bridge/cache"
	"pnp-bridge/models"
)

type stubBackend struct {
	stops int32
}

func (b *stubBackend) Execute(ctx context.Context, seq models.InstructionSequence) error {
	return nil
}
func (b *stubBackend) QueryState(ctx context.Context, selectors []string) (backend.Snapshot, error) {
	return backend.Snapshot{}, nil
}
func (b *stubBackend) EmergencyStop(ctx context.Context) error {
	atomic.AddInt32(&b.stops, 1)
	return nil
}

func newTestManager() (*Manager, *stubBackend, *cache.StateCache) {
	b := &stubBackend{}
	sc := cache.NewStateCache(time.Minute, slog.Default())
	return NewManager(DefaultLimits(), b, sc, slog.Default()), b, sc
}

func TestRaiseIsMonotonic(t *testing.T) {
	m, _, _ := newTestManager()

	m.Raise(LevelWarning, EventStateChange, "test", "warn", nil)
	if m.Level() != LevelWarning {
		t.Fatalf("expected warning, got %s", m.Level())
	}

	m.Raise(LevelCaution, EventStateChange, "test", "lower request", nil)
	if m.Level() != LevelWarning {
		t.Errorf("a lower raise must not downgrade the level, got %s", m.Level())
	}

	m.Raise(LevelCritical, EventStateChange, "test", "critical", nil)
	if m.Level() != LevelCritical {
		t.Errorf("expected critical, got %s", m.Level())
	}
}

func TestEmergencyStop(t *testing.T) {
	m, b, sc := newTestManager()
	sc.Set("position", map[string]float64{"x": 1}, 0, cache.CategoryPosition)

	if err := m.EmergencyStop(context.Background(), "operator request"); err != nil {
		t.Fatalf("emergency stop failed: %v", err)
	}
	if !m.EmergencyActive() {
		t.Error("level must be emergency after stop")
	}
	if atomic.LoadInt32(&b.stops) != 1 {
		t.Errorf("backend stop not sent, count %d", b.stops)
	}
	if len(sc.Keys()) != 0 {
		t.Error("cache must be cleared, hardware state is unknown after a stop")
	}
	if m.Stats().EmergencyStops != 1 {
		t.Errorf("stats not updated: %+v", m.Stats())
	}
}

func TestResetReturnsToNormal(t *testing.T) {
	m, _, _ := newTestManager()
	m.EmergencyStop(context.Background(), "test")
	m.Reset()
	if m.Level() != LevelNormal {
		t.Errorf("expected normal after reset, got %s", m.Level())
	}
}

func TestUpdateLimitsRejectsInverted(t *testing.T) {
	m, _, _ := newTestManager()
	bad := DefaultLimits()
	bad.MinX = 100
	bad.MaxX = 50

	err := m.UpdateLimits(bad)
	if err == nil {
		t.Fatal("inverted limits must be rejected")
	}
	if ce := models.AsCommandError(err); ce.Code != models.ErrCodeInvalidLimits {
		t.Errorf("expected INVALID_LIMITS, got %s", ce.Code)
	}
	if m.Limits().MaxX != 300 {
		t.Error("previous limits must stay in force after a rejected update")
	}
}

func TestOnEventCallback(t *testing.T) {
	m, _, _ := newTestManager()
	var got atomic.Int32
	m.OnEvent(func(ev Event) { got.Add(1) })

	m.Raise(LevelCaution, EventStateChange, "test", "event", nil)
	if got.Load() != 1 {
		t.Errorf("expected 1 callback, got %d", got.Load())
	}
}

func TestNoteViolationKeepsLevel(t *testing.T) {
	m, _, _ := newTestManager()
	m.NoteViolation(EventBoundsViolation, "translator", "bad move", nil)
	if m.Level() != LevelNormal {
		t.Errorf("a noted violation must not escalate, got %s", m.Level())
	}
	if m.Stats().BoundsViolations != 1 {
		t.Errorf("violation not counted: %+v", m.Stats())
	}
}

func TestTemperatureMonitorEscalates(t *testing.T) {
	m, _, sc := newTestManager()
	sc.Set("sensor:all", map[string]interface{}{
		"heaters": map[string]interface{}{
			"extruder": map[string]interface{}{"temperature": 280.0},
		},
	}, 0, cache.CategorySensor)

	m.checkTemperatures(context.Background())
	if m.Level() != LevelCritical {
		t.Errorf("expected critical after over-temperature, got %s", m.Level())
	}
	if m.Stats().TemperatureViolations != 1 {
		t.Errorf("violation not counted: %+v", m.Stats())
	}
}

func TestPositionMonitorEscalates(t *testing.T) {
	m, _, sc := newTestManager()
	sc.Set("position", map[string]interface{}{
		"toolhead": map[string]interface{}{
			"position": map[string]interface{}{"x": 500.0, "y": 10.0, "z": 10.0},
		},
	}, 0, cache.CategoryPosition)

	m.checkPosition(context.Background())
	if m.Level() != LevelCritical {
		t.Errorf("expected critical after position excursion, got %s", m.Level())
	}
}

func TestLoadLimitsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "limits.yaml")
	content := []byte("max_x: 220\nmax_extruder_temp: 200\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	limits, err := LoadLimitsFile(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if limits.MaxX != 220 {
		t.Errorf("overlay not applied, max_x %v", limits.MaxX)
	}
	if limits.MaxExtruderTemp != 200 {
		t.Errorf("overlay not applied, max_extruder_temp %v", limits.MaxExtruderTemp)
	}
	if limits.MaxY != 300 {
		t.Errorf("unset fields must keep defaults, max_y %v", limits.MaxY)
	}
}

func TestLoadLimitsFileRejectsInverted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "limits.yaml")
	if err := os.WriteFile(path, []byte("min_x: 500\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadLimitsFile(path); err == nil {
		t.Fatal("inverted file limits must be rejected")
	}
}
