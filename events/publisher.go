package events

import (
	"encoding/json"
	"log/slog"

	"pnp-bridge/safety"
)

// PublishSafetyEvent sends one safety event to the safety topic so external
// monitors see escalations as they happen.
func (c *Client) PublishSafetyEvent(ev safety.Event) error {
	payload, err := json.Marshal(map[string]interface{}{
		"kind":      ev.Kind,
		"level":     ev.Level.String(),
		"message":   ev.Message,
		"component": ev.Component,
		"details":   ev.Details,
		"timestamp": ev.Timestamp.Unix(),
	})
	if err != nil {
		return err
	}
	return c.publish(c.safetyTopic, payload)
}

// BindSafetyManager forwards every safety event to the broker. Publication
// is best effort; a broker outage never blocks the safety path.
func (c *Client) BindSafetyManager(mgr *safety.Manager) {
	mgr.OnEvent(func(ev safety.Event) {
		if err := c.PublishSafetyEvent(ev); err != nil {
			c.logger.Warn("Safety event not published", "kind", ev.Kind, slog.Any("error", err))
		}
	})
}
