package events

import (
	"encoding/json"
	"log/slog"

	"pnp-bridge/cache"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// StateEvent is the backend's notification envelope. The payload shape
// depends on the event type.
type StateEvent struct {
	EventType string                 `json:"event_type"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp float64                `json:"timestamp"`
}

// handleStateEvent maps a backend notification onto targeted cache
// invalidation. Push events keep the cache fresher than the per-category
// TTLs alone; an unknown event type only logs.
func (c *Client) handleStateEvent(client mqtt.Client, msg mqtt.Message) {
	var event StateEvent
	if err := json.Unmarshal(msg.Payload(), &event); err != nil {
		c.logger.Error("Failed to unmarshal state event", "topic", msg.Topic(), slog.Any("error", err))
		return
	}

	switch event.EventType {
	case "position_changed", "motion_complete", "homing_complete":
		c.cache.Invalidate("position")

	case "gpio_changed":
		if pin, ok := event.Payload["pin"].(string); ok {
			c.cache.Invalidate("gpio:" + pin)
		} else if _, err := c.cache.InvalidatePattern("gpio:*"); err != nil {
			c.logger.Error("GPIO invalidation failed", slog.Any("error", err))
		}

	case "sensor_update":
		if name, ok := event.Payload["sensor"].(string); ok {
			c.cache.Invalidate("sensor:" + name)
		}
		c.cache.Invalidate("sensor:all")

	case "fan_changed":
		c.cache.Invalidate("fan")

	case "pwm_changed":
		if pin, ok := event.Payload["pin"].(string); ok {
			c.cache.Invalidate("pwm:" + pin)
		} else {
			c.cache.InvalidateCategory(cache.CategoryPWM)
		}

	case "actuator_changed":
		if pin, ok := event.Payload["pin"].(string); ok {
			c.cache.Invalidate("actuator:" + pin)
		} else {
			c.cache.InvalidateCategory(cache.CategoryActuator)
		}

	case "printer_state_changed", "klippy_state_changed":
		c.cache.Invalidate("printer_state")

	default:
		c.logger.Debug("Unhandled state event", "event_type", event.EventType, "topic", msg.Topic())
	}
}
