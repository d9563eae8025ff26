package events

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"pnp-bridge/cache"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

func eventMessage(t *testing.T, eventType string, payload map[string]interface{}) *fakeMessage {
	t.Helper()
	raw, err := json.Marshal(StateEvent{EventType: eventType, Payload: payload})
	if err != nil {
		t.Fatal(err)
	}
	return &fakeMessage{topic: "pnp/v1/state/" + eventType, payload: raw}
}

func newTestClient() (*Client, *cache.StateCache) {
	sc := cache.NewStateCache(time.Minute, slog.Default())
	return &Client{cache: sc, logger: slog.Default()}, sc
}

func TestPositionEventInvalidates(t *testing.T) {
	c, sc := newTestClient()
	sc.Set("position", map[string]float64{"x": 1}, 0, cache.CategoryPosition)
	sc.Set("fan", 0.5, 0, cache.CategoryFan)

	c.handleStateEvent(nil, eventMessage(t, "position_changed", nil))

	if _, ok := sc.Peek("position"); ok {
		t.Error("position entry must be invalidated")
	}
	if _, ok := sc.Peek("fan"); !ok {
		t.Error("unrelated entries must keep their expiry")
	}
}

func TestTargetedGPIOInvalidation(t *testing.T) {
	c, sc := newTestClient()
	sc.Set("gpio:led", 1, 0, cache.CategoryGPIO)
	sc.Set("gpio:valve", 0, 0, cache.CategoryGPIO)

	c.handleStateEvent(nil, eventMessage(t, "gpio_changed", map[string]interface{}{"pin": "led"}))

	if _, ok := sc.Peek("gpio:led"); ok {
		t.Error("named pin must be invalidated")
	}
	if _, ok := sc.Peek("gpio:valve"); !ok {
		t.Error("other pins must survive a targeted event")
	}
}

func TestGPIOEventWithoutPinInvalidatesAll(t *testing.T) {
	c, sc := newTestClient()
	sc.Set("gpio:led", 1, 0, cache.CategoryGPIO)
	sc.Set("gpio:valve", 0, 0, cache.CategoryGPIO)

	c.handleStateEvent(nil, eventMessage(t, "gpio_changed", nil))

	if len(sc.Keys()) != 0 {
		t.Errorf("all gpio entries must be invalidated, keys: %v", sc.Keys())
	}
}

func TestSensorEventInvalidatesAggregate(t *testing.T) {
	c, sc := newTestClient()
	sc.Set("sensor:bed", 55.0, 0, cache.CategorySensor)
	sc.Set("sensor:all", map[string]interface{}{}, 0, cache.CategorySensor)

	c.handleStateEvent(nil, eventMessage(t, "sensor_update", map[string]interface{}{"sensor": "bed"}))

	if _, ok := sc.Peek("sensor:bed"); ok {
		t.Error("named sensor must be invalidated")
	}
	if _, ok := sc.Peek("sensor:all"); ok {
		t.Error("the aggregate key must follow any sensor change")
	}
}

func TestUnknownEventIgnored(t *testing.T) {
	c, sc := newTestClient()
	sc.Set("position", map[string]float64{"x": 1}, 0, cache.CategoryPosition)

	c.handleStateEvent(nil, eventMessage(t, "firmware_blinked", nil))

	if _, ok := sc.Peek("position"); !ok {
		t.Error("unknown events must not touch the cache")
	}
}

func TestMalformedPayloadIgnored(t *testing.T) {
	c, sc := newTestClient()
	sc.Set("position", map[string]float64{"x": 1}, 0, cache.CategoryPosition)

	c.handleStateEvent(nil, &fakeMessage{topic: "pnp/v1/state/x", payload: []byte("not json")})

	if _, ok := sc.Peek("position"); !ok {
		t.Error("malformed payloads must not touch the cache")
	}
}
